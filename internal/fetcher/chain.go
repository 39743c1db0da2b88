// Package fetcher combines the plain HTTP probe with the headless browser.
package fetcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// Detector decides whether a probe result needs a browser render.
type Detector interface {
	ShouldPromote(doc deck.Document) bool
}

// Waiter blocks until a request to rawURL is allowed.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Chain probes with a plain fetcher and promotes to headless when the
// request forces it or the detector flags the probe result.
type Chain struct {
	probe    deck.Fetcher
	headless deck.Fetcher
	detector Detector
	waiter   Waiter
	logger   *zap.Logger
}

// NewChain builds a Chain. headless and detector may be nil.
func NewChain(probe, headless deck.Fetcher, detector Detector, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{
		probe:    probe,
		headless: headless,
		detector: detector,
		logger:   logger.Named("fetcher"),
	}
}

// WithWaiter paces the promoted headless request, which follows the probe
// to the same host inside one attempt.
func (c *Chain) WithWaiter(w Waiter) *Chain {
	c.waiter = w
	return c
}

// Fetch implements deck.Fetcher.
func (c *Chain) Fetch(ctx context.Context, request deck.FetchRequest) (deck.Document, error) {
	if request.Headless && c.headless != nil {
		doc, err := c.headless.Fetch(ctx, request)
		if err != nil {
			return deck.Document{}, fmt.Errorf("headless fetch: %w", err)
		}
		return doc, nil
	}

	doc, err := c.probe.Fetch(ctx, request)
	if err != nil {
		return deck.Document{}, fmt.Errorf("probe fetch: %w", err)
	}
	if promoted, ok := c.maybePromote(ctx, request, doc); ok {
		return promoted, nil
	}
	return doc, nil
}

func (c *Chain) maybePromote(ctx context.Context, request deck.FetchRequest, doc deck.Document) (deck.Document, bool) {
	if c.detector == nil || c.headless == nil || !c.detector.ShouldPromote(doc) {
		return doc, false
	}
	if c.waiter != nil {
		if err := c.waiter.Wait(ctx, request.URL); err != nil {
			c.logger.Warn("headless promotion abandoned", zap.String("url", request.URL), zap.Error(err))
			return doc, false
		}
	}
	request.Headless = true
	rendered, err := c.headless.Fetch(ctx, request)
	if err != nil {
		c.logger.Warn("headless promotion failed", zap.String("url", request.URL), zap.Error(err))
		return doc, false
	}
	c.logger.Info("headless promotion applied", zap.String("url", request.URL))
	return rendered, true
}
