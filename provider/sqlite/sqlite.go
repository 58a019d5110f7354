// Package sqlite persists tiles in a local SQLite database through
// mattn/go-sqlite3. It is the durable backend for a single host: restarts keep
// the cache, and several tile stores can share one database file.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"

	pr "github.com/unkn0wn-root/tilecache/provider"
)

// Schema version tracking:
// 1 - kv table keyed by storage key
const currentSchemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY NOT NULL,
	value BLOB NOT NULL
) WITHOUT ROWID;
`

type SQLite struct {
	db     *sql.DB
	closed atomic.Bool
}

var _ pr.Provider = (*SQLite)(nil)

// Open creates or opens the database at path. ":memory:" works for tests but
// is private to the single pooled connection.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema v%d is newer than supported v%d", version, currentSchemaVersion)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func (p *SQLite) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if p.closed.Load() {
		return nil, false, pr.ErrClosed
	}
	var b []byte
	err := p.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (p *SQLite) Set(ctx context.Context, key string, value []byte) error {
	if p.closed.Load() {
		return pr.ErrClosed
	}
	if value == nil {
		value = []byte{}
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (p *SQLite) Del(ctx context.Context, key string) error {
	if p.closed.Load() {
		return pr.ErrClosed
	}
	_, err := p.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	return err
}

// DelPrefix compares raw byte prefixes; LIKE would treat '_' and '%' inside
// tile URLs as wildcards, and substr on TEXT counts characters, not bytes.
func (p *SQLite) DelPrefix(ctx context.Context, prefix string) error {
	if p.closed.Load() {
		return pr.ErrClosed
	}
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM kv WHERE substr(CAST(key AS BLOB), 1, ?) = CAST(? AS BLOB)`, len(prefix), prefix)
	return err
}

// Count reports stored keys under prefix ("" counts everything).
func (p *SQLite) Count(ctx context.Context, prefix string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM kv WHERE substr(CAST(key AS BLOB), 1, ?) = CAST(? AS BLOB)`, len(prefix), prefix).Scan(&n)
	return n, err
}

func (p *SQLite) Close(_ context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.db.Close()
}
