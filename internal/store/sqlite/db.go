// Package sqlite implements the bot, trade and audit stores on an embedded
// SQLite database. It backs local development, paper trading and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS bots (
    id                   TEXT PRIMARY KEY,
    owner_id             TEXT NOT NULL,
    name                 TEXT NOT NULL DEFAULT '',
    exchange_id          TEXT NOT NULL,
    encrypted_api_key    TEXT NOT NULL DEFAULT '',
    encrypted_api_secret TEXT NOT NULL DEFAULT '',
    encrypted_password   TEXT NOT NULL DEFAULT '',
    order_size_percent   REAL,
    webhook_secret       TEXT NOT NULL DEFAULT '',
    enabled              INTEGER NOT NULL DEFAULT 1,
    created_at           INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_bots_owner ON bots (owner_id);

CREATE TABLE IF NOT EXISTS trades (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    bot_id      TEXT NOT NULL,
    external_id TEXT NOT NULL DEFAULT '',
    exchange_id TEXT NOT NULL,
    symbol      TEXT NOT NULL,
    side        TEXT NOT NULL CHECK (side IN ('buy', 'sell')),
    order_type  TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT '',
    size        REAL NOT NULL,
    price       REAL NOT NULL,
    pnl         REAL,
    strategy    TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_bot_symbol_side ON trades (bot_id, symbol, side, created_at);
CREATE INDEX IF NOT EXISTS idx_trades_created_at ON trades (created_at);

CREATE TABLE IF NOT EXISTS audit_log (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    event      TEXT NOT NULL,
    detail     TEXT,
    created_at INTEGER NOT NULL
);
`

// DB wraps the SQL handle.
type DB struct {
	sql *sql.DB
}

// Open opens (and creates if needed) the SQLite database at path. ":memory:"
// gives a private in-memory database.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("sqlite: database path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; also keeps :memory: on one connection
	db.SetConnMaxLifetime(0)
	return &DB{sql: db}, nil
}

// Migrate creates the schema if it does not exist.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.sql.ExecContext(ctx, `PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("sqlite: set journal mode: %w", err)
	}
	if _, err := d.sql.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}

// Ping checks the handle; used by the health endpoint.
func (d *DB) Ping(ctx context.Context) error {
	return d.sql.PingContext(ctx)
}

// Close releases the underlying handle.
func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// SQL returns the raw handle.
func (d *DB) SQL() *sql.DB { return d.sql }

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
