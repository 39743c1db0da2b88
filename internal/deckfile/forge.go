package deckfile

import (
	"bufio"
	"strings"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// ReadForge parses a Forge .dck file. Unknown sections are kept as zone
// labels so the normalizer can report them.
func ReadForge(text string) deck.RawDecklist {
	var out deck.RawDecklist
	section := ""
	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(strings.Trim(line, "[]"))
			continue
		}
		if section == "metadata" {
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			switch strings.ToLower(strings.TrimSpace(key)) {
			case "name":
				out.Title = strings.TrimSpace(value)
			case "description":
				out.Description = strings.TrimSpace(value)
			case "format":
				out.FormatHint = strings.TrimSpace(value)
			}
			continue
		}
		entry, ok := parseEntry(line)
		if !ok {
			out.Skipped = append(out.Skipped, line)
			continue
		}
		entry.Zone = section
		out.Entries = append(out.Entries, entry)
	}
	return out
}

// IsForge reports whether text looks like a Forge .dck file.
func IsForge(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "[metadata]") || strings.Contains(lower, "[main]")
}

// Parse reads text as Forge when it looks like a .dck file and as a
// pasted list otherwise.
func Parse(text string) deck.RawDecklist {
	if IsForge(text) {
		return ReadForge(text)
	}
	return ParseText(text)
}
