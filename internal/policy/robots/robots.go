// Package robots enforces robots.txt directives in front of a deck.Fetcher.
package robots

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// ErrDisallowed means robots.txt forbids the requested path.
var ErrDisallowed = errors.New("disallowed by robots.txt")

const maxRobotsBody = 1 << 20

// Waiter blocks until a request to rawURL is allowed.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls the Enforcer.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Waiter paces robots.txt downloads with the rest of the host's traffic.
	Waiter Waiter
}

// Enforcer caches robots.txt per host and answers path checks.
type Enforcer struct {
	client    *resty.Client
	userAgent string
	waiter    Waiter
	logger    *zap.Logger

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

// NewEnforcer builds an Enforcer that identifies as cfg.UserAgent.
func NewEnforcer(cfg Config, logger *zap.Logger) *Enforcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().SetTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	return &Enforcer{
		client:    client,
		userAgent: cfg.UserAgent,
		waiter:    cfg.Waiter,
		logger:    logger.Named("robots"),
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether rawURL may be fetched. Unreachable or unparsable
// robots files allow access.
func (e *Enforcer) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	data, err := e.load(ctx, parsed)
	if err != nil {
		e.logger.Warn("robots fetch failed; allowing access", zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	group := data.FindGroup(e.userAgent)
	if group == nil {
		return true
	}
	return group.Test(parsed.EscapedPath())
}

func (e *Enforcer) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	hostKey := strings.ToLower(parsed.Host)
	e.mu.Lock()
	data, ok := e.cache[hostKey]
	e.mu.Unlock()
	if ok {
		return data, nil
	}

	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	if e.waiter != nil {
		if err := e.waiter.Wait(ctx, robotsURL.String()); err != nil {
			return nil, fmt.Errorf("fetch robots: %w", err)
		}
	}
	resp, err := e.client.R().SetContext(ctx).Get(robotsURL.String())
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	body := resp.Body()
	if len(body) > maxRobotsBody {
		body = body[:maxRobotsBody]
	}
	data, err = robotstxt.FromStatusAndBytes(resp.StatusCode(), body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}

	e.mu.Lock()
	e.cache[hostKey] = data
	e.mu.Unlock()
	return data, nil
}

// Policy answers whether a URL may be fetched.
type Policy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Fetcher refuses requests the policy disallows and delegates the rest.
type Fetcher struct {
	next   deck.Fetcher
	policy Policy
}

// NewFetcher wraps next with policy.
func NewFetcher(next deck.Fetcher, policy Policy) *Fetcher {
	return &Fetcher{next: next, policy: policy}
}

// Fetch implements deck.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, request deck.FetchRequest) (deck.Document, error) {
	if !f.policy.Allowed(ctx, request.URL) {
		return deck.Document{}, &deck.FetchError{URL: request.URL, Err: ErrDisallowed}
	}
	return f.next.Fetch(ctx, request)
}
