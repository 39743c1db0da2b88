package adapters

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// MoxfieldAPI is the host serving Moxfield's JSON API.
const MoxfieldAPI = "https://api2.moxfield.com"

// moxfieldBoards maps API board names to zone labels, in output order.
// Boards not listed here keep their API name and are reported by the
// normalizer as unknown zones.
var moxfieldBoards = []struct {
	board string
	zone  string
}{
	{"commanders", "commander"},
	{"companions", "companion"},
	{"mainboard", "main"},
	{"sideboard", "sideboard"},
	{"maybeboard", "maybeboard"},
}

type moxfieldDeck struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Format        string `json:"format"`
	PublicURL     string `json:"publicUrl"`
	CreatedByUser struct {
		UserName string `json:"userName"`
	} `json:"createdByUser"`
	Boards map[string]struct {
		Cards map[string]struct {
			Quantity int `json:"quantity"`
			Card     struct {
				Name string `json:"name"`
				Set  string `json:"set"`
				CN   string `json:"cn"`
			} `json:"card"`
		} `json:"cards"`
	} `json:"boards"`
}

type moxfieldList struct {
	Data []struct {
		PublicURL string `json:"publicUrl"`
		PublicID  string `json:"publicId"`
	} `json:"data"`
}

// MoxfieldDeck reads a single deck through the v3 deck API.
type MoxfieldDeck struct{}

// Name implements deck.Adapter.
func (MoxfieldDeck) Name() string { return "moxfield" }

// Request implements deck.Adapter.
func (a MoxfieldDeck) Request(target *url.URL) (deck.FetchRequest, error) {
	id, ok := segmentAfter(target, "decks")
	if !ok {
		return deck.FetchRequest{}, deck.NewParseError(a.Name(), target.String(), "missing deck id", nil)
	}
	return jsonRequest(MoxfieldAPI + "/v3/decks/all/" + url.PathEscape(id)), nil
}

// Parse implements deck.Adapter.
func (a MoxfieldDeck) Parse(_ context.Context, target *url.URL, doc deck.Document) (deck.Parsed, error) {
	var payload moxfieldDeck
	if err := decodeJSON(a.Name(), doc, &payload); err != nil {
		return deck.Parsed{}, err
	}

	raw := deck.RawDecklist{
		Title:       strings.TrimSpace(payload.Name),
		Author:      payload.CreatedByUser.UserName,
		FormatHint:  payload.Format,
		Description: payload.Description,
		URL:         target.String(),
	}
	if payload.PublicURL != "" {
		raw.URL = payload.PublicURL
	}

	seen := make(map[string]struct{}, len(moxfieldBoards))
	appendBoard := func(board, zone string) {
		seen[board] = struct{}{}
		b, ok := payload.Boards[board]
		if !ok {
			return
		}
		for _, id := range sortedCardIDs(b.Cards, func(id string) string { return b.Cards[id].Card.Name }) {
			c := b.Cards[id]
			raw.Entries = append(raw.Entries, deck.RawEntry{
				Name:            c.Card.Name,
				Quantity:        c.Quantity,
				Zone:            zone,
				Set:             strings.ToUpper(c.Card.Set),
				CollectorNumber: c.Card.CN,
			})
		}
	}
	for _, b := range moxfieldBoards {
		appendBoard(b.board, b.zone)
	}
	for _, board := range sortedKeys(payload.Boards) {
		if _, done := seen[board]; !done {
			appendBoard(board, board)
		}
	}

	if len(raw.Entries) == 0 {
		return deck.Parsed{}, deck.NewParseError(a.Name(), doc.URL, "deck has no boards", deck.ErrEmptyDecklist)
	}
	return deck.Parsed{Decklists: []deck.RawDecklist{raw}}, nil
}

// sortedCardIDs orders a board's card map by card name, then ID.
func sortedCardIDs[V any](cards map[string]V, name func(string) string) []string {
	ids := sortedKeys(cards)
	sort.SliceStable(ids, func(i, j int) bool { return name(ids[i]) < name(ids[j]) })
	return ids
}

// MoxfieldSearch lists public decks from the deck search API. Query
// parameters on the routed URL (fmt, q) are passed through.
type MoxfieldSearch struct{}

// Name implements deck.Adapter.
func (MoxfieldSearch) Name() string { return "moxfield-search" }

// Request implements deck.Adapter.
func (MoxfieldSearch) Request(target *url.URL) (deck.FetchRequest, error) {
	params := url.Values{}
	params.Set("pageNumber", "1")
	params.Set("pageSize", "64")
	params.Set("sortType", "updated")
	params.Set("sortDirection", "Descending")
	query := target.Query()
	if f := firstNonEmpty(query.Get("fmt"), query.Get("format")); f != "" {
		params.Set("fmt", f)
	}
	if q := query.Get("q"); q != "" {
		params.Set("q", q)
	}
	return jsonRequest(MoxfieldAPI + "/v2/decks/search?" + params.Encode()), nil
}

// Parse implements deck.Adapter.
func (a MoxfieldSearch) Parse(_ context.Context, _ *url.URL, doc deck.Document) (deck.Parsed, error) {
	return parseMoxfieldList(a.Name(), doc)
}

// MoxfieldUser lists a user's public decks.
type MoxfieldUser struct{}

// Name implements deck.Adapter.
func (MoxfieldUser) Name() string { return "moxfield-user" }

// Request implements deck.Adapter.
func (a MoxfieldUser) Request(target *url.URL) (deck.FetchRequest, error) {
	user, ok := segmentAfter(target, "users")
	if !ok {
		return deck.FetchRequest{}, deck.NewParseError(a.Name(), target.String(), "missing user name", nil)
	}
	return jsonRequest(MoxfieldAPI + "/v2/users/" + url.PathEscape(user) + "/decks?pageNumber=1&pageSize=100"), nil
}

// Parse implements deck.Adapter.
func (a MoxfieldUser) Parse(_ context.Context, _ *url.URL, doc deck.Document) (deck.Parsed, error) {
	return parseMoxfieldList(a.Name(), doc)
}

func parseMoxfieldList(adapter string, doc deck.Document) (deck.Parsed, error) {
	var payload moxfieldList
	if err := decodeJSON(adapter, doc, &payload); err != nil {
		return deck.Parsed{}, err
	}
	base := &url.URL{Scheme: "https", Host: "www.moxfield.com", Path: "/"}
	hrefs := make([]string, 0, len(payload.Data))
	for _, d := range payload.Data {
		switch {
		case d.PublicURL != "":
			hrefs = append(hrefs, d.PublicURL)
		case d.PublicID != "":
			hrefs = append(hrefs, "/decks/"+url.PathEscape(d.PublicID))
		}
	}
	return deck.Parsed{Children: childLinks(base, hrefs, nil)}, nil
}
