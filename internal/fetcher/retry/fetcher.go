package retry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/deck-harvester/internal/deck"
	"github.com/JakeFAU/deck-harvester/internal/metrics"
)

// Waiter blocks until a request to rawURL is allowed.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Policy decides on retries and their spacing.
type Policy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Fetcher decorates another fetcher. Every attempt first waits on the
// per-host limiter.
type Fetcher struct {
	next   deck.Fetcher
	policy Policy
	waiter Waiter
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New wraps next. A nil waiter disables politeness delays.
func New(next deck.Fetcher, policy Policy, waiter Waiter, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy == nil {
		policy = NewExponentialPolicy(0, -1, 0)
	}
	return &Fetcher{
		next:   next,
		policy: policy,
		waiter: waiter,
		logger: logger.Named("retry"),
		sleep:  sleepContext,
	}
}

// Fetch runs attempts until success, a non-retryable failure, or the policy
// gives up. Exhausted or permanent failures are returned as *deck.FetchError
// wrapping the last cause.
func (f *Fetcher) Fetch(ctx context.Context, request deck.FetchRequest) (deck.Document, error) {
	for attempt := 1; ; attempt++ {
		if f.waiter != nil {
			if err := f.waiter.Wait(ctx, request.URL); err != nil {
				return deck.Document{}, fmt.Errorf("politeness wait: %w", err)
			}
		}

		doc, err := f.next.Fetch(ctx, request)
		metrics.ObserveFetch(request.URL, statusLabel(doc, err))
		if err == nil {
			return doc, nil
		}
		if ctx.Err() != nil {
			return deck.Document{}, fmt.Errorf("fetch %s: %w", request.URL, ctx.Err())
		}
		if !f.policy.ShouldRetry(err, attempt) {
			return deck.Document{}, finalError(request.URL, attempt, err)
		}

		delay := f.policy.Backoff(attempt)
		metrics.ObserveRetry(request.URL)
		f.logger.Warn("fetch attempt failed, retrying",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := f.sleep(ctx, delay); err != nil {
			return deck.Document{}, fmt.Errorf("fetch %s: %w", request.URL, err)
		}
	}
}

func finalError(url string, attempts int, err error) error {
	var fetchErr *deck.FetchError
	if errors.As(err, &fetchErr) {
		return &deck.FetchError{URL: url, StatusCode: fetchErr.StatusCode, Attempts: attempts, Err: fetchErr.Err}
	}
	return &deck.FetchError{URL: url, Attempts: attempts, Err: err}
}

func statusLabel(doc deck.Document, err error) string {
	if err == nil {
		if doc.StatusCode == 0 {
			return "ok"
		}
		return strconv.Itoa(doc.StatusCode)
	}
	var fetchErr *deck.FetchError
	if errors.As(err, &fetchErr) && fetchErr.StatusCode != 0 {
		return strconv.Itoa(fetchErr.StatusCode)
	}
	if Retryable(err) {
		return "timeout"
	}
	return "error"
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
