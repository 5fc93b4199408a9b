// Package sqlite provides the embedded single-file backend, the default
// for local batch runs.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"biomecore/internal/infra/persistence/sqlstore"
)

// DefaultPath is used when no database path is configured.
const DefaultPath = "biomecore.db"

// NewStore opens (creating if needed) a SQLite-backed store. Foreign key
// enforcement is off by default in SQLite and must be switched on per
// connection; the schema relies on it for cascading study deletes.
func NewStore(ctx context.Context, path string) (*sqlstore.Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The pragma query parameter applies per connection; a single
	// connection also sidesteps SQLITE_BUSY between the loader's
	// transaction and concurrent reads.
	db.SetMaxOpenConns(1)
	store, err := sqlstore.New(ctx, db, sqlstore.DialectSQLite)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
