package cards

import (
	"sort"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// Index is a read-only name index. Build it once and share it.
type Index struct {
	byKey map[string]deck.Card
	keys  []string
}

// NewIndex builds an index. Split and double-faced cards are also indexed
// under their front face; a card's full name wins over another card's
// front face.
func NewIndex(cards []deck.Card) *Index {
	idx := &Index{byKey: make(map[string]deck.Card, len(cards))}
	faces := make(map[string]deck.Card)
	for _, c := range cards {
		if c.Name == "" {
			continue
		}
		key := Key(c.Name)
		if _, dup := idx.byKey[key]; !dup {
			idx.byKey[key] = c
		}
		if front, ok := frontFace(c.Name); ok {
			fk := Key(front)
			if _, dup := faces[fk]; !dup {
				faces[fk] = c
			}
		}
	}
	for k, c := range faces {
		if _, taken := idx.byKey[k]; !taken {
			idx.byKey[k] = c
		}
	}
	idx.keys = make([]string, 0, len(idx.byKey))
	for k := range idx.byKey {
		idx.keys = append(idx.keys, k)
	}
	sort.Strings(idx.keys)
	return idx
}

// Lookup finds a card by exact normalized name.
func (i *Index) Lookup(name string) (deck.Card, bool) {
	if i == nil {
		return deck.Card{}, false
	}
	c, ok := i.byKey[Key(name)]
	return c, ok
}

// Len returns the number of indexed keys.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.keys)
}

// Keys returns the sorted index keys.
func (i *Index) Keys() []string {
	if i == nil {
		return nil
	}
	return i.keys
}

// merge adds keys the index does not have yet. Used for cached lookups
// stored under foreign or variant names.
func (i *Index) merge(extra map[string]deck.Card) {
	added := false
	for k, c := range extra {
		if _, ok := i.byKey[k]; ok {
			continue
		}
		i.byKey[k] = c
		i.keys = append(i.keys, k)
		added = true
	}
	if added {
		sort.Strings(i.keys)
	}
}
