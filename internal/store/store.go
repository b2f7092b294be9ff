// internal/store/store.go

// Package store persists the watch-list and the per-server detail cache in
// SQLite, and offers a pluggable archive writer for observed listings.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/leader001a/ro-market-crawler-sub002/internal/gnjoy"
	"github.com/leader001a/ro-market-crawler-sub002/internal/monitor"
	"github.com/leader001a/ro-market-crawler-sub002/internal/parser"
)

// Store is the durable companion state: watch-list entries plus parsed
// detail pages keyed by (world code, ssi).
type Store struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	// Single writer keeps SQLite happy under the concurrent scheduler.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS watchlist (
			name     TEXT    NOT NULL,
			server   INTEGER NOT NULL,
			added_at TIMESTAMP NOT NULL,
			PRIMARY KEY (name, server)
		)`,
		`CREATE TABLE IF NOT EXISTS detail_cache (
			server_code INTEGER NOT NULL,
			ssi         TEXT    NOT NULL,
			name        TEXT    NOT NULL,
			attributes  TEXT    NOT NULL,
			cards       TEXT    NOT NULL,
			updated_at  TIMESTAMP NOT NULL,
			PRIMARY KEY (server_code, ssi)
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveWatchlist replaces the persisted watch-list with the given items.
func (s *Store) SaveWatchlist(items []monitor.WatchItem) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin watchlist save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM watchlist`); err != nil {
		return fmt.Errorf("failed to clear watchlist: %w", err)
	}
	for _, it := range items {
		_, err := tx.Exec(
			`INSERT INTO watchlist (name, server, added_at) VALUES (?, ?, ?)`,
			it.Name, int(it.Server), it.AddedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert watch item: %w", err)
		}
	}
	return tx.Commit()
}

// LoadWatchlist reads the persisted watch-list in added order.
func (s *Store) LoadWatchlist() ([]monitor.WatchItem, error) {
	rows, err := s.db.Query(`SELECT name, server, added_at FROM watchlist ORDER BY added_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to load watchlist: %w", err)
	}
	defer rows.Close()

	var items []monitor.WatchItem
	for rows.Next() {
		var (
			it     monitor.WatchItem
			server int
		)
		if err := rows.Scan(&it.Name, &server, &it.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watch item: %w", err)
		}
		it.Server = gnjoy.Server(server)
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetDetail implements market.DetailCache.
func (s *Store) GetDetail(serverCode int, ssi string) (parser.DetailInfo, bool) {
	var (
		info       parser.DetailInfo
		attributes string
		cards      string
	)
	err := s.db.QueryRow(
		`SELECT name, attributes, cards FROM detail_cache WHERE server_code = ? AND ssi = ?`,
		serverCode, ssi,
	).Scan(&info.Name, &attributes, &cards)
	if err != nil {
		return parser.DetailInfo{}, false
	}

	if err := json.Unmarshal([]byte(attributes), &info.Attributes); err != nil {
		return parser.DetailInfo{}, false
	}
	if err := json.Unmarshal([]byte(cards), &info.Cards); err != nil {
		return parser.DetailInfo{}, false
	}
	return info, true
}

// PutDetail implements market.DetailCache.
func (s *Store) PutDetail(serverCode int, ssi string, info parser.DetailInfo) error {
	attributes, err := json.Marshal(info.Attributes)
	if err != nil {
		return err
	}
	cards, err := json.Marshal(info.Cards)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT INTO detail_cache (server_code, ssi, name, attributes, cards, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (server_code, ssi) DO UPDATE SET
		   name = excluded.name,
		   attributes = excluded.attributes,
		   cards = excluded.cards,
		   updated_at = excluded.updated_at`,
		serverCode, ssi, info.Name, string(attributes), string(cards), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert detail: %w", err)
	}
	return nil
}

// PruneDetails drops cached details whose ssi is no longer active for the
// given world code.
func (s *Store) PruneDetails(serverCode int, activeSSIs []string) (int, error) {
	active := make(map[string]bool, len(activeSSIs))
	for _, ssi := range activeSSIs {
		active[ssi] = true
	}

	rows, err := s.db.Query(`SELECT ssi FROM detail_cache WHERE server_code = ?`, serverCode)
	if err != nil {
		return 0, fmt.Errorf("failed to list cached details: %w", err)
	}
	var stale []string
	for rows.Next() {
		var ssi string
		if err := rows.Scan(&ssi); err != nil {
			rows.Close()
			return 0, err
		}
		if !active[ssi] {
			stale = append(stale, ssi)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, ssi := range stale {
		if _, err := s.db.Exec(
			`DELETE FROM detail_cache WHERE server_code = ? AND ssi = ?`,
			serverCode, ssi,
		); err != nil {
			return 0, fmt.Errorf("failed to prune detail: %w", err)
		}
	}
	return len(stale), nil
}
