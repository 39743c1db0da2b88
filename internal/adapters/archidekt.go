package adapters

import (
	"context"
	"net/url"
	"strings"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// ArchidektAPI is the Archidekt host; its deck API lives under /api.
const ArchidektAPI = "https://archidekt.com"

// archidektFormats maps the numeric deckFormat field onto format labels.
var archidektFormats = map[int]string{
	1:  "standard",
	2:  "modern",
	3:  "commander",
	4:  "legacy",
	5:  "vintage",
	6:  "pauper",
	10: "penny dreadful",
	11: "duel commander",
	12: "duel commander",
	13: "brawl",
	14: "oathbreaker",
	15: "pioneer",
	16: "historic",
	17: "pauper edh",
	18: "alchemy",
	19: "explorer",
	20: "historic brawl",
	22: "premodern",
	24: "timeless",
}

type archidektDeck struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	DeckFormat  int    `json:"deckFormat"`
	Owner       struct {
		Username string `json:"username"`
	} `json:"owner"`
	Categories []struct {
		Name           string `json:"name"`
		IncludedInDeck bool   `json:"includedInDeck"`
	} `json:"categories"`
	Cards []struct {
		Quantity   int      `json:"quantity"`
		Categories []string `json:"categories"`
		Card       struct {
			CollectorNumber string `json:"collectorNumber"`
			Edition         struct {
				Code string `json:"editioncode"`
			} `json:"edition"`
			OracleCard struct {
				Name string `json:"name"`
			} `json:"oracleCard"`
		} `json:"card"`
	} `json:"cards"`
}

// Archidekt reads decks through the public deck API.
type Archidekt struct{}

// Name implements deck.Adapter.
func (Archidekt) Name() string { return "archidekt" }

// Request implements deck.Adapter.
func (a Archidekt) Request(target *url.URL) (deck.FetchRequest, error) {
	id, ok := segmentAfter(target, "decks")
	if !ok || strings.Trim(id, "0123456789") != "" {
		return deck.FetchRequest{}, deck.NewParseError(a.Name(), target.String(), "missing numeric deck id", nil)
	}
	return jsonRequest(ArchidektAPI + "/api/decks/" + id + "/"), nil
}

// Parse implements deck.Adapter.
func (a Archidekt) Parse(_ context.Context, target *url.URL, doc deck.Document) (deck.Parsed, error) {
	var payload archidektDeck
	if err := decodeJSON(a.Name(), doc, &payload); err != nil {
		return deck.Parsed{}, err
	}

	excluded := make(map[string]struct{})
	for _, c := range payload.Categories {
		if !c.IncludedInDeck {
			excluded[strings.ToLower(c.Name)] = struct{}{}
		}
	}

	raw := deck.RawDecklist{
		Title:       strings.TrimSpace(payload.Name),
		Author:      payload.Owner.Username,
		FormatHint:  archidektFormats[payload.DeckFormat],
		Description: payload.Description,
		URL:         target.String(),
	}
	for _, c := range payload.Cards {
		raw.Entries = append(raw.Entries, deck.RawEntry{
			Name:            c.Card.OracleCard.Name,
			Quantity:        c.Quantity,
			Zone:            archidektZone(c.Categories, excluded),
			Set:             strings.ToUpper(c.Card.Edition.Code),
			CollectorNumber: c.Card.CollectorNumber,
		})
	}
	if len(raw.Entries) == 0 {
		return deck.Parsed{}, deck.NewParseError(a.Name(), doc.URL, "deck has no cards", deck.ErrEmptyDecklist)
	}
	return deck.Parsed{Decklists: []deck.RawDecklist{raw}}, nil
}

// archidektZone picks a zone label from a card's categories. Cards in a
// category excluded from the deck (the maybeboard, typically) keep that
// category's name.
func archidektZone(categories []string, excluded map[string]struct{}) string {
	zone := "main"
	for _, c := range categories {
		key := strings.ToLower(c)
		if _, ok := excluded[key]; ok {
			return key
		}
		switch key {
		case "commander":
			zone = "commander"
		case "sideboard":
			if zone != "commander" {
				zone = "sideboard"
			}
		case "companion":
			if zone == "main" {
				zone = "companion"
			}
		}
	}
	return zone
}
