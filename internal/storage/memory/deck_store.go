package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// StoredDeck is a deck with the batch metadata recorded at save time.
type StoredDeck struct {
	Deck        deck.Deck
	BatchID     string
	Fingerprint string
	HarvestedAt time.Time
}

// DeckStore keeps decks keyed by fingerprint.
type DeckStore struct {
	mu    sync.RWMutex
	byFP  map[string]int
	decks []StoredDeck
}

// NewDeckStore creates an empty in-memory deck store.
func NewDeckStore() *DeckStore {
	return &DeckStore{byFP: make(map[string]int)}
}

// SaveDeck implements deck.DeckStore. A deck whose fingerprint is already
// stored is ignored.
func (s *DeckStore) SaveDeck(ctx context.Context, d deck.Deck, batchID string, harvestedAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("save deck: %w", err)
	}
	if d.ID == "" {
		return false, fmt.Errorf("deck id is required")
	}
	fp := d.Fingerprint()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byFP[fp]; ok {
		return false, nil
	}
	s.byFP[fp] = len(s.decks)
	s.decks = append(s.decks, StoredDeck{Deck: d, BatchID: batchID, Fingerprint: fp, HarvestedAt: harvestedAt})
	return true, nil
}

// Decks returns the stored decks in save order.
func (s *DeckStore) Decks() []StoredDeck {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]StoredDeck(nil), s.decks...)
}
