// Package postgres provides the Postgres-backed store for shared corpus
// deployments. It mirrors the SQLite backend through the common sqlstore
// implementation.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"biomecore/internal/infra/persistence/sqlstore"
)

const (
	driverName = "pgx"
	// DefaultDSN matches the local development database.
	DefaultDSN = "postgres://localhost/biomecore?sslmode=disable"
)

// NewStore opens a Postgres-backed store, verifying connectivity and
// applying the schema before returning.
func NewStore(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store, err := sqlstore.New(ctx, db, sqlstore.DialectPostgres)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
