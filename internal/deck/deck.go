package deck

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Deck is the canonical, normalized decklist.
type Deck struct {
	ID       string    `json:"id,omitempty"`
	Name     string    `json:"name"`
	Format   Format    `json:"format"`
	Source   string    `json:"source"`
	URL      string    `json:"url,omitempty"`
	Author   string    `json:"author,omitempty"`
	Entries  []Entry   `json:"entries"`
	Warnings []Warning `json:"warnings,omitempty"`
}

// Add appends quantity copies of card to zone, merging with an existing
// entry for the same card name in that zone. Non-positive quantities are
// rejected.
func (d *Deck) Add(card Card, quantity int, zone Zone) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity %d for %q must be positive", quantity, card.Name)
	}
	for i := range d.Entries {
		e := &d.Entries[i]
		if e.Zone == zone && strings.EqualFold(e.Card.Name, card.Name) {
			e.Quantity += quantity
			return nil
		}
	}
	d.Entries = append(d.Entries, Entry{Card: card, Quantity: quantity, Zone: zone})
	return nil
}

// Warn attaches a warning.
func (d *Deck) Warn(kind WarningKind, subject, message string) {
	d.Warnings = append(d.Warnings, Warning{Kind: kind, Subject: subject, Message: message})
}

// Zone returns the entries of one zone in insertion order.
func (d Deck) Zone(zone Zone) []Entry {
	var out []Entry
	for _, e := range d.Entries {
		if e.Zone == zone {
			out = append(out, e)
		}
	}
	return out
}

// CardCount sums quantities across all zones.
func (d Deck) CardCount() int {
	total := 0
	for _, e := range d.Entries {
		total += e.Quantity
	}
	return total
}

// Line is one element of a deck's card multiset.
type Line struct {
	Zone     Zone
	Name     string
	Quantity int
}

// Multiset returns the (zone, name, quantity) lines sorted by zone then
// case-folded name, with duplicate lines merged.
func (d Deck) Multiset() []Line {
	merged := make(map[string]*Line)
	keys := make([]string, 0, len(d.Entries))
	for _, e := range d.Entries {
		key := string(e.Zone) + "\x00" + strings.ToLower(e.Card.Name)
		if l, ok := merged[key]; ok {
			l.Quantity += e.Quantity
			continue
		}
		merged[key] = &Line{Zone: e.Zone, Name: e.Card.Name, Quantity: e.Quantity}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]Line, 0, len(keys))
	for _, k := range keys {
		out = append(out, *merged[k])
	}
	return out
}

// Fingerprint hashes the card multiset so the same list found through
// different pages dedupes to one deck.
func (d Deck) Fingerprint() string {
	h := sha256.New()
	for _, l := range d.Multiset() {
		fmt.Fprintf(h, "%s|%s|%d\n", l.Zone, strings.ToLower(l.Name), l.Quantity)
	}
	return hex.EncodeToString(h.Sum(nil))
}
