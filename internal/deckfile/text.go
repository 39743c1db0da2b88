package deckfile

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// Line shapes. printingSuffix covers printings such as "(M11) 149" and "[M11]".
var (
	entryLine      = regexp.MustCompile(`^(-?\d+)\s*[xX]?\s+(.+)$`)
	printingSuffix = regexp.MustCompile(`\s+(?:\(([A-Za-z0-9]{2,6})\)|\[([A-Za-z0-9]{2,6})\])(?:\s+(\S+))?$`)
	foilMarker     = regexp.MustCompile(`\s+\*[A-Za-z]\*$`)
	headerCount    = regexp.MustCompile(`\s*\(\d+\)$`)
)

// zoneHeaders switch the current zone label.
var zoneHeaders = map[string]string{
	"deck":        "main",
	"main":        "main",
	"mainboard":   "main",
	"maindeck":    "main",
	"main deck":   "main",
	"sideboard":   "sideboard",
	"side":        "sideboard",
	"commander":   "commander",
	"commanders":  "commander",
	"companion":   "companion",
	"maybeboard":  "maybeboard",
	"maybe":       "maybeboard",
	"considering": "maybeboard",
	"tokens":      "tokens",
}

// groupHeaders are card-type groupings that leave the zone unchanged.
var groupHeaders = map[string]struct{}{
	"creature": {}, "creatures": {}, "instant": {}, "instants": {},
	"sorcery": {}, "sorceries": {}, "artifact": {}, "artifacts": {},
	"enchantment": {}, "enchantments": {}, "planeswalker": {}, "planeswalkers": {},
	"land": {}, "lands": {}, "battle": {}, "battles": {}, "spells": {}, "other": {},
}

// ParseText reads a pasted or exported deck list. It understands Arena
// exports, "SB:" prefixes, "4x" quantities, printing suffixes, section
// headers and comments. Without headers, the first blank line after
// mainboard cards starts the sideboard. Lines it cannot read are kept in
// Skipped.
func ParseText(text string) deck.RawDecklist {
	var (
		out                           deck.RawDecklist
		sawHeader, sawMain, splitDone bool
		inAbout, pendingGap           bool
	)
	zone := "main"
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" {
			inAbout = false
			if sawMain && !sawHeader && !splitDone {
				pendingGap = true
			}
			continue
		}
		if strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
			continue
		}
		if inAbout {
			if name, ok := cutFold(line, "name "); ok {
				out.Title = strings.TrimSpace(name)
			}
			continue
		}

		lower := strings.ToLower(strings.TrimSuffix(headerCount.ReplaceAllString(line, ""), ":"))
		lower = strings.TrimSpace(lower)
		if lower == "about" {
			inAbout = true
			continue
		}
		if label, ok := zoneHeaders[lower]; ok {
			zone = label
			sawHeader = true
			pendingGap = false
			continue
		}
		if _, ok := groupHeaders[lower]; ok {
			continue
		}

		entryZone := zone
		body := line
		if rest, ok := cutFold(body, "sb:"); ok {
			entryZone = "sideboard"
			body = strings.TrimSpace(rest)
		} else if pendingGap {
			zone = "sideboard"
			entryZone = zone
			splitDone = true
			pendingGap = false
		}

		entry, ok := parseEntry(body)
		if !ok {
			out.Skipped = append(out.Skipped, line)
			continue
		}
		entry.Zone = entryZone
		if entryZone == "main" {
			sawMain = true
		}
		out.Entries = append(out.Entries, entry)
	}
	return out
}

// parseEntry reads "<qty>[x] <name> [(SET) [number]]".
func parseEntry(s string) (deck.RawEntry, bool) {
	m := entryLine.FindStringSubmatch(s)
	if m == nil {
		return deck.RawEntry{}, false
	}
	qty, err := strconv.Atoi(m[1])
	if err != nil {
		return deck.RawEntry{}, false
	}
	name := foilMarker.ReplaceAllString(strings.TrimSpace(m[2]), "")
	entry := deck.RawEntry{Quantity: qty}

	if cardName, rest, ok := strings.Cut(name, "|"); ok {
		// Forge style: "Name|SET|art".
		name = cardName
		set, _, _ := strings.Cut(rest, "|")
		entry.Set = strings.ToUpper(strings.TrimSpace(set))
	} else if loc := printingSuffix.FindStringSubmatchIndex(name); loc != nil {
		entry.Set = strings.ToUpper(firstNonEmpty(group(name, loc, 1), group(name, loc, 2)))
		entry.CollectorNumber = group(name, loc, 3)
		name = name[:loc[0]]
	}
	entry.Name = strings.TrimSpace(name)
	if entry.Name == "" {
		return deck.RawEntry{}, false
	}
	return entry, true
}

func group(s string, loc []int, n int) string {
	if loc[2*n] < 0 {
		return ""
	}
	return s[loc[2*n]:loc[2*n+1]]
}

func cutFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return s[len(prefix):], true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
