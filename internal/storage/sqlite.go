package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the history database at path and
// ensures required tables exist. The path must be on a local filesystem.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if err := CheckLocalFilesystem(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One CLI process, one writer.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates the history tables and indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS uploads (
  id             TEXT PRIMARY KEY,
  url            TEXT NOT NULL,
  project        TEXT NOT NULL,
  archive_digest TEXT NOT NULL,
  archive_size   INTEGER NOT NULL,
  version        TEXT,
  project_id     TEXT,
  uploaded_at    TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS executions (
  id                TEXT PRIMARY KEY,
  url               TEXT NOT NULL,
  project           TEXT NOT NULL,
  flow              TEXT NOT NULL,
  exec_id           INTEGER NOT NULL,
  jobs              JSON NOT NULL DEFAULT '[]',
  concurrent_option TEXT NOT NULL,
  submitted_at      TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS sessions (
  url        TEXT NOT NULL,
  user       TEXT NOT NULL,
  session_id TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (url, user)
);`,
		`CREATE INDEX IF NOT EXISTS uploads_uploaded_at_idx ON uploads(uploaded_at);`,
		`CREATE INDEX IF NOT EXISTS executions_submitted_at_idx ON executions(submitted_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
