package normalize

import (
	"strings"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// colorOrder is WUBRG; identities are keyed in this order.
const colorOrder = "WUBRG"

var colorNames = map[string]string{
	"":      "Colorless",
	"W":     "Mono-White",
	"U":     "Mono-Blue",
	"B":     "Mono-Black",
	"R":     "Mono-Red",
	"G":     "Mono-Green",
	"WU":    "Azorius",
	"UB":    "Dimir",
	"BR":    "Rakdos",
	"RG":    "Gruul",
	"WG":    "Selesnya",
	"WB":    "Orzhov",
	"UR":    "Izzet",
	"BG":    "Golgari",
	"WR":    "Boros",
	"UG":    "Simic",
	"WUB":   "Esper",
	"UBR":   "Grixis",
	"BRG":   "Jund",
	"WRG":   "Naya",
	"WUG":   "Bant",
	"WBG":   "Abzan",
	"WUR":   "Jeskai",
	"UBG":   "Sultai",
	"WBR":   "Mardu",
	"URG":   "Temur",
	"WUBRG": "Five-Color",
}

var basicLands = map[string]struct{}{
	"plains": {}, "island": {}, "swamp": {}, "mountain": {}, "forest": {}, "wastes": {},
	"snow-covered plains": {}, "snow-covered island": {}, "snow-covered swamp": {},
	"snow-covered mountain": {}, "snow-covered forest": {},
}

// SynthesizeName builds "<Format> <Colors> <Card>" for decks without a
// title. Card is the commander, else the most-played nonland mainboard
// card. Parts that cannot be determined are left out.
func SynthesizeName(d deck.Deck) string {
	var parts []string
	if f := d.Format.Title(); f != "" {
		parts = append(parts, f)
	}
	if colors, ok := ColorIdentity(d); ok {
		parts = append(parts, ColorName(colors))
	}
	if card := archetypeCard(d); card != "" {
		parts = append(parts, card)
	}
	if len(parts) == 0 {
		return "Untitled Deck"
	}
	return strings.Join(parts, " ")
}

// ColorIdentity returns the deck's colors in WUBRG order. A deck with a
// commander takes the commander's identity. ok is false when no card
// carries database details, so the identity is unknown rather than
// colorless.
func ColorIdentity(d deck.Deck) (string, bool) {
	entries := d.Zone(deck.ZoneCommander)
	if len(entries) == 0 {
		entries = d.Zone(deck.ZoneMainboard)
	}
	seen := make(map[rune]bool, len(colorOrder))
	known := false
	for _, e := range entries {
		if e.Card.TypeLine == "" && len(e.Card.ColorIdentity) == 0 {
			continue
		}
		known = true
		for _, c := range e.Card.ColorIdentity {
			for _, r := range strings.ToUpper(c) {
				seen[r] = true
			}
		}
	}
	if !known {
		return "", false
	}
	var b strings.Builder
	for _, r := range colorOrder {
		if seen[r] {
			b.WriteRune(r)
		}
	}
	return b.String(), true
}

// ColorName names a WUBRG-ordered identity: Mono-X, a guild, shard or
// wedge, Four-Color or Five-Color.
func ColorName(colors string) string {
	if name, ok := colorNames[colors]; ok {
		return name
	}
	if len(colors) == 4 {
		return "Four-Color"
	}
	return colors
}

func archetypeCard(d deck.Deck) string {
	if commanders := d.Zone(deck.ZoneCommander); len(commanders) > 0 {
		return commanders[0].Card.Name
	}
	best, most := "", 0
	for _, e := range d.Zone(deck.ZoneMainboard) {
		if isLand(e.Card) {
			continue
		}
		if e.Quantity > most {
			best, most = e.Card.Name, e.Quantity
		}
	}
	return best
}

func isLand(c deck.Card) bool {
	if c.TypeLine != "" {
		return c.IsLand()
	}
	_, basic := basicLands[strings.ToLower(c.Name)]
	return basic
}
