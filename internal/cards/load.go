package cards

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// LoadOptions selects the card database sources.
type LoadOptions struct {
	BulkPath       string
	CachePath      string
	AliasPath      string
	RemoteEnabled  bool
	RemoteURL      string
	RemoteTimeout  time.Duration
	UserAgent      string
	FuzzyThreshold float64
	Waiter         Waiter
}

// Load builds the process-wide resolver. At least one of BulkPath and
// CachePath must be set. A bulk file is copied into the cache so later
// runs can start from the cache alone.
func Load(ctx context.Context, opts LoadOptions, logger *zap.Logger) (*Resolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BulkPath == "" && opts.CachePath == "" {
		return nil, &deck.ConfigError{Key: "cards.bulk_path", Reason: "a card database is required (set cards.bulk_path or cards.cache_path)"}
	}

	var bulk []deck.Card
	if opts.BulkPath != "" {
		var err error
		bulk, err = ReadBulkFile(opts.BulkPath)
		if err != nil {
			return nil, err
		}
		logger.Info("card bulk file loaded", zap.String("path", opts.BulkPath), zap.Int("cards", len(bulk)))
	}

	var (
		cache  *Cache
		cached map[string]deck.Card
	)
	if opts.CachePath != "" {
		var err error
		cache, err = OpenCache(ctx, opts.CachePath)
		if err != nil {
			return nil, err
		}
		if len(bulk) > 0 {
			if err := cache.PutAll(ctx, bulk); err != nil {
				_ = cache.Close()
				return nil, err
			}
		}
		cached, err = cache.All(ctx)
		if err != nil {
			_ = cache.Close()
			return nil, err
		}
	}

	index := NewIndex(bulk)
	if len(bulk) == 0 {
		cards := make([]deck.Card, 0, len(cached))
		for _, c := range cached {
			cards = append(cards, c)
		}
		sort.Slice(cards, func(i, j int) bool { return cards[i].Name < cards[j].Name })
		index = NewIndex(cards)
	}
	index.merge(cached)
	if index.Len() == 0 {
		if cache != nil {
			_ = cache.Close()
		}
		return nil, &deck.ConfigError{Key: "cards.bulk_path", Reason: "card database is empty"}
	}

	var aliases map[string]string
	if opts.AliasPath != "" {
		var err error
		aliases, err = ReadAliasFile(opts.AliasPath)
		if err != nil {
			if cache != nil {
				_ = cache.Close()
			}
			return nil, err
		}
	}

	var remote RemoteLookup
	if opts.RemoteEnabled {
		remote = NewScryfall(ScryfallConfig{
			BaseURL:   opts.RemoteURL,
			Timeout:   opts.RemoteTimeout,
			UserAgent: opts.UserAgent,
		}, opts.Waiter)
	}

	logger.Info("card index ready",
		zap.Int("keys", index.Len()),
		zap.Int("aliases", len(aliases)),
		zap.Bool("remote", remote != nil),
	)
	return NewResolver(index, ResolverOptions{
		Remote:         remote,
		Cache:          cache,
		Aliases:        aliases,
		FuzzyThreshold: opts.FuzzyThreshold,
		Logger:         logger,
	}), nil
}
