package cards

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/deck-harvester/internal/deck"
)

// Cache persists cards in SQLite so remote hits survive restarts and a
// previously loaded bulk file can be reused without re-reading it.
type Cache struct {
	db *sql.DB
}

// OpenCache opens or creates the cache database at path.
func OpenCache(ctx context.Context, path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open card cache: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	const schema = `
	CREATE TABLE IF NOT EXISTS cards (
		key TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		set_code TEXT NOT NULL DEFAULT '',
		collector_number TEXT NOT NULL DEFAULT '',
		color_identity TEXT NOT NULL DEFAULT '',
		type_line TEXT NOT NULL DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create card cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Put upserts a card keyed by its normalized name.
func (c *Cache) Put(ctx context.Context, card deck.Card) error {
	return c.PutAs(ctx, card.Name, card)
}

// PutAs upserts a card under an extra lookup name, for remote hits found
// by a foreign or variant name.
func (c *Cache) PutAs(ctx context.Context, name string, card deck.Card) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO cards (key, name, set_code, collector_number, color_identity, type_line)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			set_code = excluded.set_code,
			collector_number = excluded.collector_number,
			color_identity = excluded.color_identity,
			type_line = excluded.type_line,
			updated_at = CURRENT_TIMESTAMP`,
		Key(name), card.Name, card.Set, card.CollectorNumber,
		strings.Join(card.ColorIdentity, ","), card.TypeLine,
	)
	if err != nil {
		return fmt.Errorf("cache card %q: %w", name, err)
	}
	return nil
}

// PutAll upserts many cards in one transaction.
func (c *Cache) PutAll(ctx context.Context, cards []deck.Card) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO cards (key, name, set_code, collector_number, color_identity, type_line)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare cache insert: %w", err)
	}
	defer stmt.Close()
	for _, card := range cards {
		if _, err := stmt.ExecContext(ctx, Key(card.Name), card.Name, card.Set, card.CollectorNumber,
			strings.Join(card.ColorIdentity, ","), card.TypeLine); err != nil {
			return fmt.Errorf("cache card %q: %w", card.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache tx: %w", err)
	}
	return nil
}

// Get returns the card stored under name.
func (c *Cache) Get(ctx context.Context, name string) (deck.Card, bool, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT name, set_code, collector_number, color_identity, type_line
		FROM cards WHERE key = ?`, Key(name))
	card, err := scanCard(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return deck.Card{}, false, nil
	case err != nil:
		return deck.Card{}, false, fmt.Errorf("read cached card %q: %w", name, err)
	}
	return card, true, nil
}

// All returns every cached card. Rows stored under alternate names are
// collapsed onto their card name.
func (c *Cache) All(ctx context.Context) (map[string]deck.Card, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT key, name, set_code, collector_number, color_identity, type_line FROM cards`)
	if err != nil {
		return nil, fmt.Errorf("list cached cards: %w", err)
	}
	defer rows.Close()

	out := make(map[string]deck.Card)
	for rows.Next() {
		var (
			key                                 string
			name, set, number, colors, typeLine string
		)
		if err := rows.Scan(&key, &name, &set, &number, &colors, &typeLine); err != nil {
			return nil, fmt.Errorf("scan cached card: %w", err)
		}
		out[key] = buildCard(name, set, number, colors, typeLine)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cached cards: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (deck.Card, error) {
	var name, set, number, colors, typeLine string
	if err := row.Scan(&name, &set, &number, &colors, &typeLine); err != nil {
		return deck.Card{}, err
	}
	return buildCard(name, set, number, colors, typeLine), nil
}

func buildCard(name, set, number, colors, typeLine string) deck.Card {
	card := deck.Card{Name: name, Set: set, CollectorNumber: number, TypeLine: typeLine}
	if colors != "" {
		card.ColorIdentity = strings.Split(colors, ",")
	}
	return card
}
