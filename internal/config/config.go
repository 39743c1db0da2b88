// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/deck-harvester/internal/cards"
	"github.com/JakeFAU/deck-harvester/internal/deck"
	"github.com/JakeFAU/deck-harvester/internal/harvest"
	"github.com/JakeFAU/deck-harvester/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. DECKHARVEST_ROUTER_MAX_DEPTH.
const EnvPrefix = "DECKHARVEST"

// SearchPaths are the directories searched for deckharvest.{yaml,json,toml}
// when no explicit path is given.
var SearchPaths = []string{".", "$HOME/.deckharvest", "/etc/deckharvest"}

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging  logging.Config `mapstructure:"logging"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Router   RouterConfig   `mapstructure:"router"`
	Cards    CardsConfig    `mapstructure:"cards"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Store    StoreConfig    `mapstructure:"store"`
	Publish  PublishConfig  `mapstructure:"publish"`
	Server   ServerConfig   `mapstructure:"server"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// FetcherConfig configures plain HTTP fetching, retries and host pacing.
type FetcherConfig struct {
	UserAgent    string                   `mapstructure:"user_agent"`
	Timeout      time.Duration            `mapstructure:"timeout"`
	MaxBodySize  int                      `mapstructure:"max_body_size"`
	MaxAttempts  int                      `mapstructure:"max_attempts"`
	BaseDelay    time.Duration            `mapstructure:"base_delay"`
	MaxDelay     time.Duration            `mapstructure:"max_delay"`
	MinHostDelay time.Duration            `mapstructure:"min_host_delay"`
	HostDelays   map[string]time.Duration `mapstructure:"host_delays"`

	RespectRobots bool `mapstructure:"respect_robots"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	MaxParallel       int           `mapstructure:"max_parallel"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	MinTextLength     int           `mapstructure:"min_text_length"`
}

// RouterConfig governs container recursion, protected sites and unshortening.
type RouterConfig struct {
	MaxDepth        int             `mapstructure:"max_depth"`
	MaxChildren     int             `mapstructure:"max_children"`
	ProtectedPolicy string          `mapstructure:"protected_policy"`
	Unshorten       UnshortenConfig `mapstructure:"unshorten"`
}

// UnshortenConfig bounds redirect following for shortener links.
type UnshortenConfig struct {
	MaxHops    int           `mapstructure:"max_hops"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Shorteners []string      `mapstructure:"shorteners"`
}

// CardsConfig locates the card database and the optional remote lookup.
type CardsConfig struct {
	BulkPath       string        `mapstructure:"bulk_path"`
	CachePath      string        `mapstructure:"cache_path"`
	AliasPath      string        `mapstructure:"alias_path"`
	RemoteEnabled  bool          `mapstructure:"remote_enabled"`
	RemoteURL      string        `mapstructure:"remote_url"`
	RemoteTimeout  time.Duration `mapstructure:"remote_timeout"`
	RemoteDelay    time.Duration `mapstructure:"remote_delay"`
	FuzzyThreshold float64       `mapstructure:"fuzzy_threshold"`
}

// ArchiveConfig selects where fetched documents are kept for triage.
type ArchiveConfig struct {
	Mode    string `mapstructure:"mode"`
	Backend string `mapstructure:"backend"`
	Prefix  string `mapstructure:"prefix"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
}

// StoreConfig controls deck persistence. An empty DSN keeps decks in memory.
type StoreConfig struct {
	PostgresDSN     string        `mapstructure:"postgres_dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PublishConfig holds Pub/Sub notification settings.
type PublishConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// TracingConfig controls OpenTelemetry spans around harvest stages.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Archive backends.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("deckharvest")
		for _, dir := range SearchPaths {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("fetcher.user_agent", "")
	v.SetDefault("fetcher.timeout", 20*time.Second)
	v.SetDefault("fetcher.max_body_size", 8<<20)
	v.SetDefault("fetcher.max_attempts", 3)
	v.SetDefault("fetcher.base_delay", 500*time.Millisecond)
	v.SetDefault("fetcher.max_delay", 8*time.Second)
	v.SetDefault("fetcher.min_host_delay", 2*time.Second)
	v.SetDefault("fetcher.respect_robots", false)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.navigation_timeout", 30*time.Second)
	v.SetDefault("headless.min_text_length", 200)
	v.SetDefault("router.max_depth", 2)
	v.SetDefault("router.max_children", 50)
	v.SetDefault("router.protected_policy", string(harvest.ProtectedAttempt))
	v.SetDefault("router.unshorten.max_hops", 5)
	v.SetDefault("router.unshorten.timeout", 10*time.Second)
	v.SetDefault("cards.bulk_path", "")
	v.SetDefault("cards.cache_path", "")
	v.SetDefault("cards.alias_path", "")
	v.SetDefault("cards.remote_enabled", true)
	v.SetDefault("cards.remote_url", cards.DefaultScryfallURL)
	v.SetDefault("cards.remote_timeout", 10*time.Second)
	v.SetDefault("cards.remote_delay", 100*time.Millisecond)
	v.SetDefault("cards.fuzzy_threshold", 0.92)
	v.SetDefault("archive.mode", string(harvest.ArchiveFailures))
	v.SetDefault("archive.backend", BackendMemory)
	v.SetDefault("archive.prefix", "archive")
	v.SetDefault("archive.base_dir", "")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.table", "decks")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("publish.enabled", false)
	v.SetDefault("publish.project_id", "")
	v.SetDefault("publish.topic", "deck-harvested")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "deckharvest")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Fetcher.Timeout <= 0 {
		return invalid("fetcher.timeout", "must be > 0")
	}
	if c.Fetcher.MaxAttempts <= 0 {
		return invalid("fetcher.max_attempts", "must be > 0")
	}
	if c.Fetcher.MinHostDelay < 0 {
		return invalid("fetcher.min_host_delay", "must not be negative")
	}
	if c.Fetcher.MaxDelay < c.Fetcher.BaseDelay {
		return invalid("fetcher.max_delay", "must be >= fetcher.base_delay")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return invalid("headless.max_parallel", "must be > 0 when headless is enabled")
	}
	if c.Router.MaxChildren < 0 {
		return invalid("router.max_children", "must not be negative")
	}
	if _, err := harvest.ParseProtectedPolicy(c.Router.ProtectedPolicy); err != nil {
		return invalid("router.protected_policy", err.Error())
	}
	if c.Cards.BulkPath == "" && c.Cards.CachePath == "" {
		return invalid("cards.bulk_path", "a bulk card file or cards.cache_path is required")
	}
	if c.Cards.FuzzyThreshold < 0 || c.Cards.FuzzyThreshold > 1 {
		return invalid("cards.fuzzy_threshold", "must be within [0, 1]")
	}
	if _, err := harvest.ParseArchiveMode(c.Archive.Mode); err != nil {
		return invalid("archive.mode", err.Error())
	}
	switch strings.ToLower(c.Archive.Backend) {
	case BackendMemory:
	case BackendLocal:
		if c.Archive.BaseDir == "" {
			return invalid("archive.base_dir", "must be set for the local backend")
		}
	case BackendGCS:
		if c.Archive.Bucket == "" {
			return invalid("archive.bucket", "must be set for the gcs backend")
		}
	default:
		return invalid("archive.backend", fmt.Sprintf("unknown backend %q", c.Archive.Backend))
	}
	if c.Publish.Enabled {
		if c.Publish.ProjectID == "" {
			return invalid("publish.project_id", "must be set when publishing is enabled")
		}
		if c.Publish.Topic == "" {
			return invalid("publish.topic", "must be set when publishing is enabled")
		}
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return invalid("tracing.sample_ratio", "must be within [0, 1]")
	}
	return nil
}

// ProtectedPolicy returns the parsed router.protected_policy.
func (c Config) ProtectedPolicy() harvest.ProtectedPolicy {
	p, _ := harvest.ParseProtectedPolicy(c.Router.ProtectedPolicy)
	return p
}

// ArchiveMode returns the parsed archive.mode.
func (c Config) ArchiveMode() harvest.ArchiveMode {
	m, _ := harvest.ParseArchiveMode(c.Archive.Mode)
	return m
}

func invalid(key, reason string) error {
	return &deck.ConfigError{Key: key, Reason: reason}
}
