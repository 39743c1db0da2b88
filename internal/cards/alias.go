package cards

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/antzucaro/matchr"
	"gopkg.in/yaml.v3"
)

// aliasFile is the YAML alias table:
//
//	aliases:
//	  bolt: Lightning Bolt
//	  jace tms: Jace, the Mind Sculptor
type aliasFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

// ReadAliases parses an alias table keyed by normalized alias.
func ReadAliases(r io.Reader) (map[string]string, error) {
	var file aliasFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode alias table: %w", err)
	}
	out := make(map[string]string, len(file.Aliases))
	for alias, name := range file.Aliases {
		if alias == "" || name == "" {
			continue
		}
		out[Key(alias)] = name
	}
	return out, nil
}

// ReadAliasFile opens and parses an alias table.
func ReadAliasFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open alias table: %w", err)
	}
	defer f.Close()
	return ReadAliases(f)
}

// DefaultFuzzyThreshold is the Jaro-Winkler similarity a candidate must
// reach.
const DefaultFuzzyThreshold = 0.92

// Fuzzy matches misspelled names against a fixed key set.
type Fuzzy struct {
	keys      []string
	threshold float64
}

// NewFuzzy builds a matcher over normalized keys. The keys are sorted so
// equal scores resolve the same way every run.
func NewFuzzy(keys []string, threshold float64) *Fuzzy {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFuzzyThreshold
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	return &Fuzzy{keys: sorted, threshold: threshold}
}

// Best returns the closest key at or above the threshold.
func (f *Fuzzy) Best(name string) (string, float64, bool) {
	if f == nil {
		return "", 0, false
	}
	target := Key(name)
	var (
		best  string
		score float64
	)
	slack := max(3, len(target)/4)
	for _, k := range f.keys {
		if d := len(k) - len(target); d > slack || -d > slack {
			continue
		}
		s := matchr.JaroWinkler(target, k, false)
		if s > score {
			best, score = k, s
		}
	}
	if score < f.threshold {
		return "", score, false
	}
	return best, score, true
}
