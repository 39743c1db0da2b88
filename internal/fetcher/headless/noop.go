package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// ErrNotConfigured is returned by Noop.
var ErrNotConfigured = errors.New("headless fetcher not configured")

// Noop implements deck.Fetcher but always fails, for runs where
// headless browsing is disabled.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch returns ErrNotConfigured.
func (Noop) Fetch(_ context.Context, _ deck.FetchRequest) (deck.Document, error) {
	return deck.Document{}, ErrNotConfigured
}
