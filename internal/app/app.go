// Package app builds the long-lived harvester services from configuration
// and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/deck-harvester/internal/adapters"
	"github.com/JakeFAU/deck-harvester/internal/api"
	"github.com/JakeFAU/deck-harvester/internal/cards"
	"github.com/JakeFAU/deck-harvester/internal/clock/system"
	"github.com/JakeFAU/deck-harvester/internal/config"
	"github.com/JakeFAU/deck-harvester/internal/deck"
	"github.com/JakeFAU/deck-harvester/internal/fetcher"
	collyfetcher "github.com/JakeFAU/deck-harvester/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/deck-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/deck-harvester/internal/fetcher/retry"
	"github.com/JakeFAU/deck-harvester/internal/harvest"
	"github.com/JakeFAU/deck-harvester/internal/headless/detector"
	"github.com/JakeFAU/deck-harvester/internal/id/uuid"
	"github.com/JakeFAU/deck-harvester/internal/logging"
	"github.com/JakeFAU/deck-harvester/internal/normalize"
	"github.com/JakeFAU/deck-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/deck-harvester/internal/policy/robots"
	"github.com/JakeFAU/deck-harvester/internal/progress"
	"github.com/JakeFAU/deck-harvester/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/deck-harvester/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/deck-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/deck-harvester/internal/router"
	gcsstorage "github.com/JakeFAU/deck-harvester/internal/storage/gcs"
	localstorage "github.com/JakeFAU/deck-harvester/internal/storage/local"
	memorystorage "github.com/JakeFAU/deck-harvester/internal/storage/memory"
	"github.com/JakeFAU/deck-harvester/internal/storage/postgres"
	"github.com/JakeFAU/deck-harvester/internal/telemetry"
	"github.com/JakeFAU/deck-harvester/internal/unshorten"
)

// App holds the shared services for one process. Build it once with New and
// release it with Close.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Router    *router.Router
	Cards     *cards.Resolver
	Harvester *harvest.Harvester
	Status    *sinks.StatusSink
	Hub       *progress.Hub

	closers []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

type options struct {
	logger     *zap.Logger
	fetcher    deck.Fetcher
	registerer prometheus.Registerer
}

// Option overrides a collaborator New would otherwise build from config.
type Option func(*options)

// WithLogger uses logger instead of building one from cfg.Logging.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithFetcher replaces the colly/chromedp fetch chain. Retries and host
// pacing still wrap it.
func WithFetcher(f deck.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithRegisterer registers progress collectors against reg instead of the
// default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// New builds every service named by cfg. It fails fast: anything already
// opened is closed before the error returns.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Config: cfg, Logger: o.logger}
	if a.Logger == nil {
		logger, err := logging.New(cfg.Logging)
		if err != nil {
			return nil, &deck.ConfigError{Key: "logging.level", Reason: err.Error()}
		}
		a.Logger = logger
	}

	if err := a.build(ctx, o); err != nil {
		a.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	a.Logger.Info("application services initialized",
		zap.String("archive_backend", cfg.Archive.Backend),
		zap.Bool("postgres", cfg.Store.PostgresDSN != ""),
		zap.Bool("pubsub", cfg.Publish.Enabled),
		zap.Bool("headless", cfg.Headless.Enabled),
	)
	return a, nil
}

func (a *App) build(ctx context.Context, o options) error {
	cfg := a.Config
	logger := a.Logger

	tracing, err := telemetry.New(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.onClose("tracing", tracing.Shutdown)

	limiter := ratelimit.New(ratelimit.Config{
		MinDelay:   cfg.Fetcher.MinHostDelay,
		HostDelays: hostDelays(cfg),
	})

	base := o.fetcher
	if base == nil {
		base = a.buildFetchChain(limiter)
	}
	var fetch deck.Fetcher = retry.New(
		base,
		retry.NewExponentialPolicy(cfg.Fetcher.MaxAttempts, cfg.Fetcher.BaseDelay, cfg.Fetcher.MaxDelay),
		limiter,
		logger,
	)
	if cfg.Fetcher.RespectRobots {
		agent := cfg.Fetcher.UserAgent
		if agent == "" {
			agent = collyfetcher.DefaultUserAgent
		}
		fetch = robots.NewFetcher(fetch, robots.NewEnforcer(robots.Config{
			UserAgent: agent,
			Timeout:   cfg.Fetcher.Timeout,
			Waiter:    limiter,
		}, logger))
	}

	registry, err := adapters.NewRegistry()
	if err != nil {
		return fmt.Errorf("build adapter registry: %w", err)
	}
	shortener := unshorten.New(unshorten.Config{
		MaxHops:    cfg.Router.Unshorten.MaxHops,
		Timeout:    cfg.Router.Unshorten.Timeout,
		UserAgent:  cfg.Fetcher.UserAgent,
		Shorteners: cfg.Router.Unshorten.Shorteners,
		Waiter:     limiter,
	}, logger)
	a.Router = router.New(registry, shortener, logger)

	resolver, err := cards.Load(ctx, cards.LoadOptions{
		BulkPath:       cfg.Cards.BulkPath,
		CachePath:      cfg.Cards.CachePath,
		AliasPath:      cfg.Cards.AliasPath,
		RemoteEnabled:  cfg.Cards.RemoteEnabled,
		RemoteURL:      cfg.Cards.RemoteURL,
		RemoteTimeout:  cfg.Cards.RemoteTimeout,
		UserAgent:      cfg.Fetcher.UserAgent,
		FuzzyThreshold: cfg.Cards.FuzzyThreshold,
		Waiter:         limiter,
	}, logger.Named("cards"))
	if err != nil {
		return fmt.Errorf("load card database: %w", err)
	}
	a.Cards = resolver
	a.onClose("cards", func(context.Context) error { return resolver.Close() })

	blobs, err := a.buildBlobStore(ctx)
	if err != nil {
		return err
	}
	decks, err := a.buildDeckStore(ctx)
	if err != nil {
		return err
	}
	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		return err
	}

	promSink, err := sinks.NewPrometheusSink(o.registerer)
	if err != nil {
		return fmt.Errorf("register progress metrics: %w", err)
	}
	a.Status = sinks.NewStatusSink(0)
	a.Hub = progress.NewHub(progress.Config{Logger: logger},
		sinks.NewLogSink(logger),
		promSink,
		a.Status,
	)
	a.onClose("progress", a.Hub.Close)

	a.Harvester, err = harvest.New(harvest.Dependencies{
		Router:     a.Router,
		Fetcher:    fetch,
		Normalizer: normalize.New(resolver, logger),
		Blobs:      blobs,
		Decks:      decks,
		Publisher:  publisher,
		Clock:      system.New(),
		IDs:        uuid.NewGenerator(),
		Events:     a.Hub,
		Tracer:     tracing.Tracer(),
	}, harvest.Config{
		MaxDepth:        cfg.Router.MaxDepth,
		MaxChildren:     cfg.Router.MaxChildren,
		ProtectedPolicy: cfg.ProtectedPolicy(),
		ArchiveMode:     cfg.ArchiveMode(),
		ArchivePrefix:   cfg.Archive.Prefix,
		Topic:           cfg.Publish.Topic,
	}, logger)
	if err != nil {
		return fmt.Errorf("build harvester: %w", err)
	}
	return nil
}

func (a *App) buildFetchChain(limiter *ratelimit.Limiter) deck.Fetcher {
	cfg := a.Config
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Fetcher.UserAgent,
		Timeout:     cfg.Fetcher.Timeout,
		MaxBodySize: cfg.Fetcher.MaxBodySize,
	})

	var headless deck.Fetcher = headlessfetcher.NewNoop()
	if !cfg.Headless.Enabled && cfg.ProtectedPolicy() == harvest.ProtectedHeadless {
		a.Logger.Warn("protected_policy is headless but headless.enabled is false; protected sites will fail to fetch")
	}
	if cfg.Headless.Enabled {
		browser, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetcher.UserAgent,
			NavigationTimeout: cfg.Headless.NavigationTimeout,
		})
		if err != nil {
			a.Logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			headless = browser
			a.onClose("headless", func(context.Context) error {
				browser.Close()
				return nil
			})
		}
	}
	return fetcher.NewChain(probe, headless, detector.NewHeuristic(cfg.Headless.MinTextLength), a.Logger).WithWaiter(limiter)
}

func (a *App) buildBlobStore(ctx context.Context) (deck.BlobStore, error) {
	cfg := a.Config.Archive
	switch strings.ToLower(cfg.Backend) {
	case config.BackendLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		return store, nil
	case config.BackendGCS:
		store, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		a.onClose("gcs", func(context.Context) error { return store.Close() })
		return store, nil
	default:
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) buildDeckStore(ctx context.Context) (deck.DeckStore, error) {
	cfg := a.Config.Store
	if cfg.PostgresDSN == "" {
		return memorystorage.NewDeckStore(), nil
	}
	store, err := postgres.NewDeckStore(ctx, postgres.Config{
		DSN:             cfg.PostgresDSN,
		Table:           cfg.Table,
		MaxConns:        cfg.MaxConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("init postgres deck store: %w", err)
	}
	a.onClose("postgres", func(context.Context) error {
		store.Close()
		return nil
	})
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (a *App) buildPublisher(ctx context.Context) (deck.Publisher, error) {
	cfg := a.Config.Publish
	if !cfg.Enabled {
		return memorypublisher.New(), nil
	}
	publisher, err := pubsubpublisher.Open(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub publisher: %w", err)
	}
	a.onClose("pubsub", func(context.Context) error { return publisher.Close() })
	return publisher, nil
}

// Server builds the status API over the app's harvester and status sink.
func (a *App) Server() *api.Server {
	return api.NewServer(a.Status, a.Harvester, a.Router, api.Config{
		APIKey:         a.Config.Server.APIKey,
		RequestTimeout: a.Config.Server.RequestTimeout,
		ReadyChecks: map[string]api.ReadyCheck{
			"cards": func(context.Context) error {
				if a.Cards == nil {
					return errors.New("card database not loaded")
				}
				return nil
			},
		},
	}, a.Logger)
}

func (a *App) onClose(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// OnClose registers fn to run during Close. Closers run in reverse
// registration order, so fn runs before the services built by New.
func (a *App) OnClose(name string, fn func(ctx context.Context) error) {
	a.onClose(name, fn)
}

// Close shuts services down in reverse start order and flushes the logger.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(ctx); err != nil {
			a.Logger.Warn("close failed", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.Logger.Sync()
}

// hostDelays merges per-host overrides with the Scryfall pacing delay.
func hostDelays(cfg config.Config) map[string]time.Duration {
	delays := maps.Clone(cfg.Fetcher.HostDelays)
	if delays == nil {
		delays = map[string]time.Duration{}
	}
	if cfg.Cards.RemoteEnabled && cfg.Cards.RemoteDelay > 0 {
		if u, err := url.Parse(cfg.Cards.RemoteURL); err == nil && u.Hostname() != "" {
			if _, ok := delays[u.Hostname()]; !ok {
				delays[u.Hostname()] = cfg.Cards.RemoteDelay
			}
		}
	}
	return delays
}
