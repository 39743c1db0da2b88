// Package unshorten resolves link-shortener URLs one redirect hop at a time
// and unwraps known redirect wrappers without network I/O.
package unshorten

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrTooManyRedirects means the hop budget ran out while still on a
// shortener host.
var ErrTooManyRedirects = errors.New("unshorten: too many redirects")

// DefaultShorteners lists the shortener hosts resolved out of the box.
var DefaultShorteners = []string{
	"bit.ly",
	"buff.ly",
	"cutt.ly",
	"goo.gl",
	"is.gd",
	"ow.ly",
	"rebrand.ly",
	"shorturl.at",
	"t.co",
	"tiny.cc",
	"tinyurl.com",
}

// Waiter blocks until a request to rawURL is allowed.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls the resolver.
type Config struct {
	MaxHops    int
	Timeout    time.Duration
	UserAgent  string
	Shorteners []string
	// Waiter paces each hop per host. Nil sends hops without delay.
	Waiter Waiter
}

// Resolver follows shortener redirects.
type Resolver struct {
	client     *resty.Client
	shorteners map[string]struct{}
	maxHops    int
	waiter     Waiter
	logger     *zap.Logger
}

// New builds a Resolver. Empty Shorteners means DefaultShorteners.
func New(cfg Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	hosts := cfg.Shorteners
	if len(hosts) == 0 {
		hosts = DefaultShorteners
	}
	shorteners := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		shorteners[normalizeHost(h)] = struct{}{}
	}

	client := resty.New()
	client.SetTimeout(cfg.Timeout)
	// Each hop is inspected, so the client must never follow on its own.
	client.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}))
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Resolver{
		client:     client,
		shorteners: shorteners,
		maxHops:    cfg.MaxHops,
		waiter:     cfg.Waiter,
		logger:     logger.Named("unshorten"),
	}
}

// IsShortener reports whether u points at a known shortener host.
func (r *Resolver) IsShortener(u *url.URL) bool {
	if u == nil {
		return false
	}
	_, ok := r.shorteners[normalizeHost(u.Hostname())]
	return ok
}

// Resolve returns the first URL past the shortener set. Non-shortener
// inputs are returned unchanged without I/O.
func (r *Resolver) Resolve(ctx context.Context, target *url.URL) (*url.URL, error) {
	if unwrapped, ok := Unwrap(target); ok {
		target = unwrapped
	}
	if !r.IsShortener(target) {
		return target, nil
	}

	current := target
	for hop := 1; hop <= r.maxHops; hop++ {
		next, err := r.hop(ctx, current)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return current, nil
		}
		if unwrapped, ok := Unwrap(next); ok {
			next = unwrapped
		}
		r.logger.Debug("followed redirect",
			zap.Int("hop", hop),
			zap.String("from", current.String()),
			zap.String("to", next.String()),
		)
		if !r.IsShortener(next) {
			return next, nil
		}
		current = next
	}
	return nil, fmt.Errorf("%w: %s after %d hops", ErrTooManyRedirects, target, r.maxHops)
}

// hop issues one request and returns the redirect target, or nil when the
// response is not a redirect.
func (r *Resolver) hop(ctx context.Context, current *url.URL) (*url.URL, error) {
	if r.waiter != nil {
		if err := r.waiter.Wait(ctx, current.String()); err != nil {
			return nil, fmt.Errorf("unshorten %s: %w", current, err)
		}
	}
	resp, err := r.client.R().SetContext(ctx).Get(current.String())
	if err != nil {
		return nil, fmt.Errorf("unshorten %s: %w", current, err)
	}
	if resp.StatusCode() < 300 || resp.StatusCode() > 399 {
		return nil, nil
	}
	location := resp.Header().Get("Location")
	if location == "" {
		return nil, nil
	}
	ref, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("unshorten %s: bad location %q: %w", current, location, err)
	}
	return current.ResolveReference(ref), nil
}

// Unwrap extracts the destination of a known redirect wrapper such as
// YouTube's redirect?q= links.
func Unwrap(u *url.URL) (*url.URL, bool) {
	if u == nil {
		return nil, false
	}
	host := normalizeHost(u.Hostname())
	var param string
	switch {
	case (host == "youtube.com" || host == "m.youtube.com") && u.Path == "/redirect":
		param = "q"
	case host == "google.com" && u.Path == "/url":
		param = "q"
	default:
		return u, false
	}
	dest := u.Query().Get(param)
	if dest == "" {
		return u, false
	}
	parsed, err := url.Parse(dest)
	if err != nil || parsed.Host == "" {
		return u, false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return u, false
	}
	return parsed, true
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
}
