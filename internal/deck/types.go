package deck

import (
	"net/http"
	"time"
)

// Card identifies a card by name with optional printing disambiguators.
type Card struct {
	Name            string   `json:"name"`
	Set             string   `json:"set,omitempty"`
	CollectorNumber string   `json:"collector_number,omitempty"`
	ColorIdentity   []string `json:"color_identity,omitempty"`
	TypeLine        string   `json:"type_line,omitempty"`
}

// IsLand reports whether the card's type line names it a land.
func (c Card) IsLand() bool {
	return containsWord(c.TypeLine, "Land")
}

// Entry is one (card, quantity, zone) line of a deck.
type Entry struct {
	Card     Card `json:"card"`
	Quantity int  `json:"quantity"`
	Zone     Zone `json:"zone"`
}

// WarningKind classifies non-fatal problems found while building a deck.
type WarningKind string

// Warning kinds attached to decks.
const (
	WarningCardNotFound    WarningKind = "card_not_found"
	WarningUnknownZone     WarningKind = "unknown_zone"
	WarningInvalidQuantity WarningKind = "invalid_quantity"
	WarningUnparsedLine    WarningKind = "unparsed_line"
)

// Warning records a problem that did not prevent deck construction.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Subject string      `json:"subject"`
	Message string      `json:"message,omitempty"`
}

// RawEntry is a card line as an adapter saw it, before resolution.
type RawEntry struct {
	Name            string
	Quantity        int
	Zone            string
	Set             string
	CollectorNumber string
}

// RawDecklist is adapter output prior to normalization.
type RawDecklist struct {
	Entries     []RawEntry
	Title       string
	Author      string
	FormatHint  string
	Description string
	Source      string
	URL         string
	Skipped     []string
}

// FetchRequest describes how an adapter wants its document fetched.
type FetchRequest struct {
	URL          string
	Headers      http.Header
	Headless     bool
	WaitSelector string
}

// Document is a fetched page or API response.
type Document struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
	Headless    bool
	Duration    time.Duration
}

// Parsed is what an adapter extracts from a document. Decklist adapters
// fill Decklists with one entry; container adapters fill Children and may
// embed decklist fragments.
type Parsed struct {
	Decklists []RawDecklist
	Children  []string
}

// DeckEvent is published once per newly harvested deck.
type DeckEvent struct {
	DeckID      string    `json:"deck_id"`
	BatchID     string    `json:"batch_id"`
	Name        string    `json:"name"`
	Format      Format    `json:"format"`
	Source      string    `json:"source"`
	URL         string    `json:"url,omitempty"`
	CardCount   int       `json:"card_count"`
	Warnings    int       `json:"warnings"`
	Fingerprint string    `json:"fingerprint"`
	HarvestedAt time.Time `json:"harvested_at"`
}
