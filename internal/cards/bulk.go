package cards

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// scryfallCard is the subset of a Scryfall card object we read, shared by
// bulk files and API responses.
type scryfallCard struct {
	Name            string   `json:"name"`
	Set             string   `json:"set"`
	CollectorNumber string   `json:"collector_number"`
	ColorIdentity   []string `json:"color_identity"`
	TypeLine        string   `json:"type_line"`
	Layout          string   `json:"layout"`
	CardFaces       []struct {
		TypeLine string `json:"type_line"`
	} `json:"card_faces"`
}

func (c scryfallCard) toCard() deck.Card {
	typeLine := c.TypeLine
	if typeLine == "" && len(c.CardFaces) > 0 {
		typeLine = c.CardFaces[0].TypeLine
	}
	return deck.Card{
		Name:            c.Name,
		Set:             strings.ToUpper(c.Set),
		CollectorNumber: c.CollectorNumber,
		ColorIdentity:   c.ColorIdentity,
		TypeLine:        typeLine,
	}
}

// ReadBulk streams a Scryfall bulk data file (a JSON array of card
// objects). Tokens and art cards are skipped.
func ReadBulk(r io.Reader) ([]deck.Card, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read bulk: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("read bulk: expected array, got %v", tok)
	}
	var out []deck.Card
	for dec.More() {
		var c scryfallCard
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("read bulk card %d: %w", len(out), err)
		}
		switch c.Layout {
		case "token", "double_faced_token", "art_series", "emblem":
			continue
		}
		out = append(out, c.toCard())
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read bulk: %w", err)
	}
	return out, nil
}

// ReadBulkFile opens and reads a Scryfall bulk data file.
func ReadBulkFile(path string) ([]deck.Card, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bulk file: %w", err)
	}
	defer f.Close()
	return ReadBulk(f)
}
