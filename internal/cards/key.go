package cards

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var punctuation = strings.NewReplacer(
	"’", "'",
	"‘", "'",
	"“", `"`,
	"”", `"`,
	"–", "-",
	"—", "-",
	"Æ", "Ae",
	"æ", "ae",
)

// Key folds a card name for lookup: diacritics removed, case folded,
// typographic punctuation unified and whitespace collapsed.
func Key(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, punctuation.Replace(name))
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(folded)
	folded = strings.ReplaceAll(folded, " / ", " // ")
	return strings.Join(strings.Fields(folded), " ")
}

// frontFace returns the first face of a split or double-faced name.
func frontFace(name string) (string, bool) {
	front, _, ok := strings.Cut(name, " // ")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(front), true
}
