package cards

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/deck-harvester/internal/deck"
	"github.com/JakeFAU/deck-harvester/internal/metrics"
)

// RemoteLookup finds a card the local index does not know.
type RemoteLookup interface {
	Lookup(ctx context.Context, name string) (deck.Card, error)
}

// Resolver implements deck.CardResolver over the staged lookups.
type Resolver struct {
	index   *Index
	remote  RemoteLookup
	cache   *Cache
	aliases map[string]string
	fuzzy   *Fuzzy
	logger  *zap.Logger

	mu      sync.RWMutex
	overlay map[string]deck.Card
	misses  map[string]struct{}
	group   singleflight.Group
}

// ResolverOptions carries the optional stages.
type ResolverOptions struct {
	Remote         RemoteLookup
	Cache          *Cache
	Aliases        map[string]string
	FuzzyThreshold float64
	DisableFuzzy   bool
	Logger         *zap.Logger
}

// NewResolver builds a Resolver over a prebuilt index.
func NewResolver(index *Index, opts ResolverOptions) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		index:   index,
		remote:  opts.Remote,
		cache:   opts.Cache,
		aliases: opts.Aliases,
		logger:  logger.Named("cards"),
		overlay: make(map[string]deck.Card),
		misses:  make(map[string]struct{}),
	}
	if !opts.DisableFuzzy {
		r.fuzzy = NewFuzzy(index.Keys(), opts.FuzzyThreshold)
	}
	return r
}

// Resolve maps name onto a card: local index, remote lookup, alias table,
// then fuzzy match. A total miss returns the raw name with StageMissed and
// deck.ErrCardNotFound.
func (r *Resolver) Resolve(ctx context.Context, name string) (deck.Card, deck.ResolutionStage, error) {
	card, stage, err := r.resolve(ctx, name)
	metrics.ObserveResolution(string(stage))
	return card, stage, err
}

func (r *Resolver) resolve(ctx context.Context, name string) (deck.Card, deck.ResolutionStage, error) {
	if c, ok := r.local(name); ok {
		return c, deck.StageLocal, nil
	}

	if r.remote != nil {
		c, err := r.remoteLookup(ctx, name)
		switch {
		case err == nil:
			return c, deck.StageRemote, nil
		case ctx.Err() != nil:
			return deck.Card{Name: name}, deck.StageMissed, fmt.Errorf("resolve %q: %w", name, ctx.Err())
		case !errors.Is(err, deck.ErrCardNotFound):
			r.logger.Warn("remote card lookup failed", zap.String("name", name), zap.Error(err))
		}
	}

	if target, ok := r.aliases[Key(name)]; ok {
		if c, ok := r.local(target); ok {
			return c, deck.StageAlias, nil
		}
		return deck.Card{Name: target}, deck.StageAlias, nil
	}

	if key, score, ok := r.fuzzy.Best(name); ok {
		if c, ok := r.index.byKey[key]; ok {
			r.logger.Debug("fuzzy card match",
				zap.String("name", name),
				zap.String("match", c.Name),
				zap.Float64("score", score),
			)
			return c, deck.StageFuzzy, nil
		}
	}

	return deck.Card{Name: name}, deck.StageMissed, fmt.Errorf("%w: %q", deck.ErrCardNotFound, name)
}

func (r *Resolver) local(name string) (deck.Card, bool) {
	if c, ok := r.index.Lookup(name); ok {
		return c, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.overlay[Key(name)]
	return c, ok
}

// remoteLookup collapses concurrent lookups of one name and remembers
// hits and misses for the life of the process.
func (r *Resolver) remoteLookup(ctx context.Context, name string) (deck.Card, error) {
	key := Key(name)
	r.mu.RLock()
	_, missed := r.misses[key]
	r.mu.RUnlock()
	if missed {
		return deck.Card{}, fmt.Errorf("%w: %q", deck.ErrCardNotFound, name)
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		c, err := r.remote.Lookup(ctx, name)
		if err != nil {
			if errors.Is(err, deck.ErrCardNotFound) {
				r.mu.Lock()
				r.misses[key] = struct{}{}
				r.mu.Unlock()
			}
			return deck.Card{}, err
		}
		r.remember(ctx, name, c)
		return c, nil
	})
	if err != nil {
		return deck.Card{}, err
	}
	return v.(deck.Card), nil
}

func (r *Resolver) remember(ctx context.Context, name string, c deck.Card) {
	r.mu.Lock()
	r.overlay[Key(name)] = c
	r.overlay[Key(c.Name)] = c
	r.mu.Unlock()
	if r.cache == nil {
		return
	}
	if err := r.cache.PutAs(ctx, name, c); err != nil {
		r.logger.Warn("persist remote card failed", zap.String("name", name), zap.Error(err))
	}
	if Key(name) != Key(c.Name) {
		if err := r.cache.Put(ctx, c); err != nil {
			r.logger.Warn("persist remote card failed", zap.String("name", c.Name), zap.Error(err))
		}
	}
}

// Close releases the SQLite cache, if any.
func (r *Resolver) Close() error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Close()
}
