// Package ratelimit enforces a minimum delay between requests to the same host.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/deck-harvester/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	// MinDelay is the default spacing between requests to one host.
	MinDelay time.Duration
	// HostDelays overrides MinDelay for specific hosts.
	HostDelays map[string]time.Duration
}

// Limiter manages per-host pacing.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultDelay time.Duration
	hostDelays   map[string]time.Duration
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	overrides := make(map[string]time.Duration, len(cfg.HostDelays))
	for host, d := range cfg.HostDelays {
		overrides[normalizeHost(host)] = d
	}
	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultDelay: cfg.MinDelay,
		hostDelays:   overrides,
	}
}

// Wait blocks until the host of rawURL may be contacted again.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	limiter := l.limiterFor(host)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

// Delay reports the spacing applied to host.
func (l *Limiter) Delay(host string) time.Duration {
	if d, ok := l.hostDelays[normalizeHost(host)]; ok {
		return d
	}
	return l.defaultDelay
}

func (l *Limiter) limiterFor(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[host]
	if !ok {
		limit := rate.Inf
		if d := l.Delay(host); d > 0 {
			limit = rate.Every(d)
		}
		limiter = rate.NewLimiter(limit, 1)
		l.limiters[host] = limiter
	}
	return limiter
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return normalizeHost(u.Hostname())
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
}
