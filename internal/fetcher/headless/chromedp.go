// Package headless renders JavaScript deck pages in headless Chrome.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	// settleDelay lets client-side rendering finish after the wait selector
	// appears.
	settleDelay = 500 * time.Millisecond
)

// Config controls the browser fetcher.
type Config struct {
	// MaxParallel caps open tabs. Zero means one.
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
}

// Fetcher renders pages in tabs of one shared Chrome process.
type Fetcher struct {
	navTimeout time.Duration
	tabs       chan struct{}
	browser    context.Context
	cancel     context.CancelFunc
}

// NewChromedp starts the browser allocator. Chrome itself launches on the
// first Fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("headless: max parallel must not be negative, got %d", cfg.MaxParallel)
	}
	if cfg.MaxParallel == 0 {
		cfg.MaxParallel = 1
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("enable-automation", false),
		chromedp.DisableGPU,
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	browser, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		navTimeout: cfg.NavigationTimeout,
		tabs:       make(chan struct{}, cfg.MaxParallel),
		browser:    browser,
		cancel:     cancel,
	}, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	f.cancel()
}

// Fetch opens request.URL in a new tab, waits for request.WaitSelector (or
// body) and returns the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, request deck.FetchRequest) (deck.Document, error) {
	select {
	case f.tabs <- struct{}{}:
	case <-ctx.Done():
		return deck.Document{}, fmt.Errorf("wait for browser tab: %w", ctx.Err())
	}
	defer func() { <-f.tabs }()

	tab, closeTab := chromedp.NewContext(f.browser)
	defer closeTab()
	defer context.AfterFunc(ctx, closeTab)()
	tab, cancel := context.WithTimeout(tab, f.navTimeout)
	defer cancel()

	var page pageResponse
	chromedp.ListenTarget(tab, page.observe)

	var html, location string
	started := time.Now()
	if err := chromedp.Run(tab, renderActions(request, &html, &location)...); err != nil {
		if ctx.Err() != nil {
			return deck.Document{}, fmt.Errorf("headless fetch canceled: %w", ctx.Err())
		}
		return deck.Document{}, &deck.FetchError{URL: request.URL, Attempts: 1, Err: fmt.Errorf("chromedp run: %w", err)}
	}

	fallback := location
	if fallback == "" {
		fallback = request.URL
	}
	status, contentType, finalURL := page.result(fallback)
	if status < 200 || status > 299 {
		return deck.Document{}, &deck.FetchError{URL: request.URL, StatusCode: status, Attempts: 1}
	}
	return deck.Document{
		URL:         request.URL,
		FinalURL:    finalURL,
		StatusCode:  status,
		ContentType: contentType,
		Body:        []byte(html),
		Headless:    true,
		Duration:    time.Since(started),
	}, nil
}

func renderActions(request deck.FetchRequest, html, location *string) []chromedp.Action {
	wait := request.WaitSelector
	if wait == "" {
		wait = "body"
	}
	actions := []chromedp.Action{network.Enable()}
	if len(request.Headers) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(networkHeaders(request.Headers)))
	}
	return append(actions,
		chromedp.Navigate(request.URL),
		chromedp.WaitReady(wait, chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.Location(location),
		chromedp.OuterHTML("html", html, chromedp.ByQuery),
	)
}

// pageResponse keeps the first document response a tab receives, which is
// the main frame's.
type pageResponse struct {
	mu          sync.Mutex
	status      int
	contentType string
	url         string
}

func (p *pageResponse) observe(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != 0 {
		return
	}
	p.status = int(resp.Response.Status)
	p.contentType = resp.Response.MimeType
	p.url = resp.Response.URL
}

// result returns status, content type and final URL. A page with no captured
// response counts as a 200 HTML document at fallbackURL.
func (p *pageResponse) result(fallbackURL string) (int, string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	status, contentType, finalURL := p.status, p.contentType, p.url
	if status == 0 {
		status = http.StatusOK
	}
	if contentType == "" {
		contentType = "text/html"
	}
	if finalURL == "" {
		finalURL = fallbackURL
	}
	return status, contentType, finalURL
}

func networkHeaders(h http.Header) network.Headers {
	out := make(network.Headers, len(h))
	for key, values := range h {
		if len(values) > 0 {
			out[key] = strings.Join(values, ", ")
		}
	}
	return out
}
