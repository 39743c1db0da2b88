package adapters

import (
	"context"
	"net/url"
	"regexp"
	"unicode/utf8"

	"github.com/JakeFAU/deck-harvester/internal/deck"
	"github.com/JakeFAU/deck-harvester/internal/deckfile"
)

// TappedOut reads the plain-text export of a deck.
type TappedOut struct{}

// Name implements deck.Adapter.
func (TappedOut) Name() string { return "tappedout" }

// Request implements deck.Adapter.
func (a TappedOut) Request(target *url.URL) (deck.FetchRequest, error) {
	slug, ok := segmentAfter(target, "mtg-decks")
	if !ok {
		return deck.FetchRequest{}, deck.NewParseError(a.Name(), target.String(), "missing deck slug", nil)
	}
	export := &url.URL{
		Scheme:   "https",
		Host:     "tappedout.net",
		Path:     "/mtg-decks/" + slug + "/",
		RawQuery: "fmt=txt",
	}
	return deck.FetchRequest{URL: export.String()}, nil
}

// Parse implements deck.Adapter.
func (a TappedOut) Parse(_ context.Context, target *url.URL, doc deck.Document) (deck.Parsed, error) {
	raw, err := parsePlainDocument(a.Name(), doc)
	if err != nil {
		return deck.Parsed{}, err
	}
	raw.URL = target.String()
	return deck.Parsed{Decklists: []deck.RawDecklist{raw}}, nil
}

var pasteID = regexp.MustCompile(`^[A-Za-z0-9]{8}$`)

// Pastebin reads a paste through its raw endpoint. Pastes in Forge .dck
// form are detected and read as such.
type Pastebin struct{}

// Name implements deck.Adapter.
func (Pastebin) Name() string { return "pastebin" }

// Request implements deck.Adapter.
func (a Pastebin) Request(target *url.URL) (deck.FetchRequest, error) {
	segs := pathSegments(target)
	if len(segs) == 0 || !pasteID.MatchString(segs[len(segs)-1]) {
		return deck.FetchRequest{}, deck.NewParseError(a.Name(), target.String(), "not a paste id", nil)
	}
	return deck.FetchRequest{URL: "https://pastebin.com/raw/" + segs[len(segs)-1]}, nil
}

// Parse implements deck.Adapter.
func (a Pastebin) Parse(_ context.Context, target *url.URL, doc deck.Document) (deck.Parsed, error) {
	raw, err := parsePlainDocument(a.Name(), doc)
	if err != nil {
		return deck.Parsed{}, err
	}
	raw.URL = target.String()
	return deck.Parsed{Decklists: []deck.RawDecklist{raw}}, nil
}

func parsePlainDocument(adapter string, doc deck.Document) (deck.RawDecklist, error) {
	if !utf8.Valid(doc.Body) {
		return deck.RawDecklist{}, deck.NewParseError(adapter, doc.URL, "body is not utf-8 text", nil)
	}
	body, err := documentText(adapter, doc)
	if err != nil {
		return deck.RawDecklist{}, err
	}
	raw := deckfile.Parse(string(body))
	if len(raw.Entries) == 0 {
		return deck.RawDecklist{}, deck.NewParseError(adapter, doc.URL, "no card lines", deck.ErrEmptyDecklist)
	}
	return raw, nil
}
