// Package sqlite provides the durable local store backing the action
// queue, cache store, progression ledger, id remap table, and dead-letter
// list across process restarts.
//
// The store is a single key/value table. Higher layers own their key
// namespaces ("queue/", "cache/", "ledger/", "remap/", "deadletter/") and
// serialize their own records; this package only guarantees durability and
// lexically ordered prefix scans.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_kv_key ON kv(key)`,
	}
}

// ─── DB ─────────────────────────────────────────────────────────────────────

// DB wraps the SQLite handle and implements domain.LocalStore.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies migrations.
// WAL mode keeps enqueue writes from blocking status reads.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &DB{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory opens an in-memory database, used by tests and the CLI's
// read-only commands when no data file exists yet.
func OpenMemory() (*DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &DB{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close closes the underlying handle.
func (s *DB) Close() error {
	return s.db.Close()
}

// ─── LocalStore Operations ──────────────────────────────────────────────────

// ReadKey returns the value and whether the key exists.
func (s *DB) ReadKey(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %q: %w", key, err)
	}
	return value, true, nil
}

// WriteKey stores a value durably before returning.
func (s *DB) WriteKey(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = datetime('now')
	`, key, value)
	if err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}
	return nil
}

// DeleteKey removes a key; deleting an absent key is not an error.
func (s *DB) DeleteKey(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// ListKeys returns all keys with the given prefix, in lexical order.
func (s *DB) ListKeys(prefix string) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT key FROM kv
		WHERE key LIKE ? || '%'
		ORDER BY key
	`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
