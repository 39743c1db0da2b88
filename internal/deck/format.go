package deck

import (
	"regexp"
	"strings"
)

// Format is a constructed or limited play format.
type Format string

// Known formats.
const (
	FormatUndefined     Format = "undefined"
	FormatStandard      Format = "standard"
	FormatPioneer       Format = "pioneer"
	FormatModern        Format = "modern"
	FormatLegacy        Format = "legacy"
	FormatVintage       Format = "vintage"
	FormatPauper        Format = "pauper"
	FormatCommander     Format = "commander"
	FormatDuelCommander Format = "duel"
	FormatPauperEDH     Format = "paupercommander"
	FormatOathbreaker   Format = "oathbreaker"
	FormatBrawl         Format = "brawl"
	FormatHistoricBrawl Format = "historicbrawl"
	FormatHistoric      Format = "historic"
	FormatExplorer      Format = "explorer"
	FormatTimeless      Format = "timeless"
	FormatAlchemy       Format = "alchemy"
	FormatPremodern     Format = "premodern"
	FormatPenny         Format = "penny"
	FormatLimited       Format = "limited"
)

type formatKeyword struct {
	format  Format
	pattern *regexp.Regexp
}

// formatVocabulary is checked in order; multi-word formats come before the
// single words they contain.
var formatVocabulary = []formatKeyword{
	{FormatDuelCommander, keyword(`duel\s+commander|duel\s+edh|1v1\s+commander`)},
	{FormatPauperEDH, keyword(`pauper\s+(?:commander|edh)|pdh`)},
	{FormatHistoricBrawl, keyword(`historic\s+brawl`)},
	{FormatPenny, keyword(`penny\s+dreadful`)},
	{FormatOathbreaker, keyword(`oathbreaker`)},
	{FormatCommander, keyword(`commander|c?edh`)},
	{FormatBrawl, keyword(`brawl`)},
	{FormatPremodern, keyword(`premodern|pre-modern`)},
	{FormatStandard, keyword(`standard`)},
	{FormatPioneer, keyword(`pioneer`)},
	{FormatModern, keyword(`modern`)},
	{FormatLegacy, keyword(`legacy`)},
	{FormatVintage, keyword(`vintage`)},
	{FormatPauper, keyword(`pauper`)},
	{FormatHistoric, keyword(`historic`)},
	{FormatExplorer, keyword(`explorer`)},
	{FormatTimeless, keyword(`timeless`)},
	{FormatAlchemy, keyword(`alchemy`)},
	{FormatLimited, keyword(`limited|draft|sealed`)},
}

func keyword(alternatives string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(?:` + alternatives + `)(?:$|[^\p{L}\p{N}])`)
}

var formatAliases = map[string]Format{
	"edh":            FormatCommander,
	"cedh":           FormatCommander,
	"duelcommander":  FormatDuelCommander,
	"duel commander": FormatDuelCommander,
	"pauperedh":      FormatPauperEDH,
	"pauper edh":     FormatPauperEDH,
	"pdh":            FormatPauperEDH,
	"historic brawl": FormatHistoricBrawl,
	"pennydreadful":  FormatPenny,
	"penny dreadful": FormatPenny,
	"draft":          FormatLimited,
	"sealed":         FormatLimited,
	"pre-modern":     FormatPremodern,
	"standardbrawl":  FormatBrawl,
	"standard brawl": FormatBrawl,
	"arena standard": FormatStandard,
}

// ParseFormat maps an explicit format label onto a Format. Unknown labels
// yield FormatUndefined.
func ParseFormat(label string) Format {
	key := strings.ToLower(strings.TrimSpace(label))
	if key == "" {
		return FormatUndefined
	}
	if f, ok := formatAliases[key]; ok {
		return f
	}
	for _, kw := range formatVocabulary {
		if string(kw.format) == key {
			return kw.format
		}
	}
	return FormatUndefined
}

// InferFormat scans free text for the first format keyword in vocabulary
// order.
func InferFormat(texts ...string) Format {
	for _, kw := range formatVocabulary {
		for _, text := range texts {
			if text != "" && kw.pattern.MatchString(text) {
				return kw.format
			}
		}
	}
	return FormatUndefined
}

// Title returns a display form of the format for synthesized deck names.
func (f Format) Title() string {
	switch f {
	case FormatDuelCommander:
		return "Duel Commander"
	case FormatPauperEDH:
		return "Pauper Commander"
	case FormatHistoricBrawl:
		return "Historic Brawl"
	case FormatUndefined, "":
		return ""
	}
	s := string(f)
	return strings.ToUpper(s[:1]) + s[1:]
}

func containsWord(text, word string) bool {
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == '-' || r == '—' || r == '/'
	}) {
		if strings.EqualFold(field, word) {
			return true
		}
	}
	return false
}
