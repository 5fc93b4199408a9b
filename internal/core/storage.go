package core

import (
	"context"
	"fmt"
	"os"

	"biomecore/internal/blob"
	fsblob "biomecore/internal/infra/blob/fs"
	memblob "biomecore/internal/infra/blob/memory"
	s3blob "biomecore/internal/infra/blob/s3"
	"biomecore/internal/infra/persistence/memory"
	"biomecore/internal/infra/persistence/postgres"
	"biomecore/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a storage backend using environment
// variables. Defaults to sqlite when unset.
//
//	BIOMECORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	BIOMECORE_SQLITE_PATH: path to sqlite file (default ./biomecore.db)
//	BIOMECORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(ctx context.Context) (PersistentStore, error) {
	driver := os.Getenv("BIOMECORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		return sqlite.NewStore(ctx, os.Getenv("BIOMECORE_SQLITE_PATH"))
	case StoragePostgres:
		return postgres.NewStore(ctx, os.Getenv("BIOMECORE_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenBlobStore selects an artifact archive backend using environment
// variables. An empty BIOMECORE_BLOB_DRIVER disables archival and returns
// a nil store.
//
//	BIOMECORE_BLOB_DRIVER: fs|s3|memory (default: disabled)
//	BIOMECORE_BLOB_FS_ROOT: root directory when driver=fs
//	BIOMECORE_BLOB_S3_*: bucket/region/endpoint when driver=s3
func OpenBlobStore(ctx context.Context) (blob.Store, error) {
	switch blob.Driver(os.Getenv("BIOMECORE_BLOB_DRIVER")) {
	case "":
		return nil, nil
	case blob.DriverFilesystem:
		return fsblob.NewStore(os.Getenv("BIOMECORE_BLOB_FS_ROOT"))
	case blob.DriverS3:
		return s3blob.OpenFromEnv(ctx)
	case blob.DriverMemory:
		return memblob.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", os.Getenv("BIOMECORE_BLOB_DRIVER"))
	}
}
