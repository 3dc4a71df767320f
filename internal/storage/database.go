package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Database wraps the sqlx.DB connection.
type Database struct {
	*sqlx.DB
}

// schema defines the database tables.
//
// Optional strings are stored as '' instead of NULL so the UNIQUE constraint
// covers account-wide subscriptions too.
const schema = `
CREATE TABLE IF NOT EXISTS subscriptions (
    id TEXT PRIMARY KEY,
    user_id INTEGER NOT NULL,
    username TEXT NOT NULL,
    repo TEXT NOT NULL DEFAULT '',
    last_commit_sha TEXT NOT NULL DEFAULT '',
    last_check_time DATETIME NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT 1,
    created_at DATETIME NOT NULL,
    UNIQUE(user_id, username, repo)
);

CREATE TABLE IF NOT EXISTS monitor_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    last_global_check DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_user_id ON subscriptions(user_id);
CREATE INDEX IF NOT EXISTS idx_subscriptions_active ON subscriptions(is_active);
`

// NewDatabase opens (or creates) the sqlite file at dbPath and applies the schema.
// A file that exists but is not a readable database yields a *StorageError.
func NewDatabase(dbPath string) (*Database, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, wrapErr("initialize", fmt.Errorf("create database directory: %w", err))
	}

	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, wrapErr("initialize", fmt.Errorf("connect to database: %w", err))
	}

	// Single writer: every store call runs on the one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, wrapErr("initialize", fmt.Errorf("set busy timeout: %w", err))
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, wrapErr("initialize", fmt.Errorf("apply schema: %w", err))
	}

	seed := `INSERT OR IGNORE INTO monitor_state (id, last_global_check) VALUES (1, ?)`
	if _, err := db.Exec(seed, time.Now().UTC()); err != nil {
		db.Close()
		return nil, wrapErr("initialize", fmt.Errorf("seed monitor state: %w", err))
	}

	return &Database{DB: db}, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.DB.Close()
}
