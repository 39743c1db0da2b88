// Package postgres persists harvested decks in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

const defaultTable = "decks"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for deck rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// DeckStore writes one row per distinct deck fingerprint.
type DeckStore struct {
	pool  execCloser
	table string
}

// NewDeckStore connects a pool from cfg.
func NewDeckStore(ctx context.Context, cfg Config) (*DeckStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewDeckStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewDeckStoreWithPool constructs a store from an existing pool.
func NewDeckStoreWithPool(pool execCloser, table string) (*DeckStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &DeckStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the deck table when it does not exist.
func (s *DeckStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id           UUID PRIMARY KEY,
	batch_id     UUID NOT NULL,
	fingerprint  TEXT NOT NULL UNIQUE,
	name         TEXT NOT NULL,
	format       TEXT NOT NULL,
	source       TEXT NOT NULL,
	url          TEXT NOT NULL DEFAULT '',
	author       TEXT NOT NULL DEFAULT '',
	card_count   INTEGER NOT NULL,
	entries      JSONB NOT NULL,
	warnings     JSONB NOT NULL,
	harvested_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// SaveDeck implements deck.DeckStore. Rows conflicting on fingerprint are
// left untouched and reported as not saved.
func (s *DeckStore) SaveDeck(ctx context.Context, d deck.Deck, batchID string, harvestedAt time.Time) (bool, error) {
	if d.ID == "" {
		return false, fmt.Errorf("deck id is required")
	}
	entries, err := json.Marshal(d.Entries)
	if err != nil {
		return false, fmt.Errorf("marshal entries: %w", err)
	}
	warnings := d.Warnings
	if warnings == nil {
		warnings = []deck.Warning{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return false, fmt.Errorf("marshal warnings: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	batch_id,
	fingerprint,
	name,
	format,
	source,
	url,
	author,
	card_count,
	entries,
	warnings,
	harvested_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (fingerprint) DO NOTHING`, s.table)
	tag, err := s.pool.Exec(ctx, query,
		d.ID,
		batchID,
		d.Fingerprint(),
		d.Name,
		string(d.Format),
		d.Source,
		d.URL,
		d.Author,
		d.CardCount(),
		entries,
		warningsJSON,
		harvestedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert deck: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Close releases the underlying pool resources.
func (s *DeckStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
