package deck

import (
	"context"
	"io"
	"net/url"
	"time"
)

// Fetcher retrieves a document.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (Document, error)
}

// Adapter turns one site's documents into raw decklists or child URLs.
type Adapter interface {
	Name() string
	Request(target *url.URL) (FetchRequest, error)
	Parse(ctx context.Context, target *url.URL, doc Document) (Parsed, error)
}

// ResolutionStage names the lookup stage that resolved a card.
type ResolutionStage string

// Resolution stages in the order they are attempted.
const (
	StageLocal  ResolutionStage = "local"
	StageRemote ResolutionStage = "remote"
	StageAlias  ResolutionStage = "alias"
	StageFuzzy  ResolutionStage = "fuzzy"
	StageMissed ResolutionStage = "missed"
)

// CardResolver maps a card name onto a Card.
type CardResolver interface {
	Resolve(ctx context.Context, name string) (Card, ResolutionStage, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// DeckStore persists harvested decks. Saved reports false when the deck's
// fingerprint was already stored.
type DeckStore interface {
	SaveDeck(ctx context.Context, d Deck, batchID string, harvestedAt time.Time) (saved bool, err error)
}

// Publisher pushes deck events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces deck and batch IDs.
type IDGenerator interface {
	NewID() (string, error)
}
