package router

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// Kind classifies an input.
type Kind string

// Route kinds.
const (
	KindDecklist    Kind = "decklist"
	KindContainer   Kind = "container"
	KindPlainText   Kind = "plain_text"
	KindUnsupported Kind = "unsupported"
)

// Registration binds a pattern to the adapter that handles it.
type Registration struct {
	Pattern   Pattern
	Kind      Kind
	Adapter   deck.Adapter
	Protected bool

	compiled compiledPattern
	order    int
}

// Specificity describes a registration's rank for display.
func (r Registration) Specificity() string {
	s := r.compiled.specificity()
	return fmt.Sprintf("literals=%d wildcards=%d trailing=%t query=%d host=%d",
		s.literals, s.wildcards, s.trailing, s.queryKeys, s.hostDepth)
}

// Registry holds registrations and answers match queries.
type Registry struct {
	mu   sync.RWMutex
	regs []Registration
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register validates and adds a registration.
func (r *Registry) Register(reg Registration) error {
	if reg.Kind != KindDecklist && reg.Kind != KindContainer {
		return fmt.Errorf("%w: %q has kind %q", ErrInvalidPattern, reg.Pattern.String(), reg.Kind)
	}
	if reg.Adapter == nil {
		return fmt.Errorf("%w: %q has no adapter", ErrInvalidPattern, reg.Pattern.String())
	}
	compiled, err := compile(reg.Pattern)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	reg.compiled = compiled
	reg.order = len(r.regs)
	r.regs = append(r.regs, reg)
	return nil
}

// Match returns every registration matching u, most specific first. Ties
// keep registration order.
func (r *Registry) Match(u *url.URL) []Registration {
	if u == nil {
		return nil
	}
	host := normalizeHost(u.Hostname())
	segments := splitPath(strings.ToLower(u.EscapedPath()))
	query := lowerKeys(u.Query())

	r.mu.RLock()
	var out []Registration
	for _, reg := range r.regs {
		if reg.compiled.matches(host, segments, query) {
			out = append(out, reg)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].compiled.specificity(), out[j].compiled.specificity()
		if a == b {
			return out[i].order < out[j].order
		}
		return a.moreSpecific(b)
	})
	return out
}

// Registrations returns a snapshot in registration order.
func (r *Registry) Registrations() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Registration(nil), r.regs...)
}

func lowerKeys(values url.Values) url.Values {
	out := make(url.Values, len(values))
	for k, v := range values {
		key := strings.ToLower(k)
		out[key] = append(out[key], v...)
	}
	return out
}
