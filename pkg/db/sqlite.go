package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/fadedpez/stemverse/internal/logging"
	"github.com/fadedpez/stemverse/pkg/db/migrations"
	_ "github.com/mattn/go-sqlite3"
)

// BusyTimeout is how long a connection waits on a locked database file
const BusyTimeout = 5 * time.Second

// DSN builds the go-sqlite3 connection string for path. The path is escaped so
// ? and # stay part of the file name. Every transaction begins IMMEDIATE so
// writers serialize on the file lock before reading.
func DSN(path string) string {
	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Set("_busy_timeout", fmt.Sprintf("%d", BusyTimeout.Milliseconds()))
	params.Set("_foreign_keys", "on")
	params.Set("_journal_mode", "WAL")
	return "file:" + (&url.URL{Path: path}).EscapedPath() + "?" + params.Encode()
}

// Open opens the SQLite database at path, creating its directory, and applies
// the embedded schema migrations.
func Open(ctx context.Context, path string, logger *logging.Logger) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	migrator := migrations.NewMigrator(db, migrations.Embedded())
	if logger != nil {
		migrator.WithLogger(logger)
	}
	if _, err := migrator.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	return db, nil
}
