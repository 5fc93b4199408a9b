package core

import (
	"context"
	"path/filepath"
	"testing"

	"biomecore/internal/blob"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	t.Setenv("BIOMECORE_STORAGE_DRIVER", "memory")
	store, err := OpenPersistentStore(context.Background())
	if err != nil {
		t.Fatalf("OpenPersistentStore: %v", err)
	}
	defer func() { _ = store.Close() }()
	if _, ok, err := store.GetStudy(context.Background(), "none"); err != nil || ok {
		t.Fatalf("GetStudy = %v, %v", ok, err)
	}
}

func TestOpenPersistentStoreSQLiteDefault(t *testing.T) {
	t.Setenv("BIOMECORE_STORAGE_DRIVER", "")
	t.Setenv("BIOMECORE_SQLITE_PATH", filepath.Join(t.TempDir(), "core.db"))
	store, err := OpenPersistentStore(context.Background())
	if err != nil {
		t.Fatalf("OpenPersistentStore: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("BIOMECORE_STORAGE_DRIVER", "oracle")
	if _, err := OpenPersistentStore(context.Background()); err == nil {
		t.Fatal("want error")
	}
}

func TestOpenBlobStore(t *testing.T) {
	t.Setenv("BIOMECORE_BLOB_DRIVER", "")
	store, err := OpenBlobStore(context.Background())
	if err != nil || store != nil {
		t.Fatalf("disabled archive = %v, %v", store, err)
	}

	t.Setenv("BIOMECORE_BLOB_DRIVER", "memory")
	store, err = OpenBlobStore(context.Background())
	if err != nil || store == nil || store.Driver() != blob.DriverMemory {
		t.Fatalf("memory archive = %v, %v", store, err)
	}

	t.Setenv("BIOMECORE_BLOB_DRIVER", "fs")
	t.Setenv("BIOMECORE_BLOB_FS_ROOT", t.TempDir())
	store, err = OpenBlobStore(context.Background())
	if err != nil || store == nil || store.Driver() != blob.DriverFilesystem {
		t.Fatalf("fs archive = %v, %v", store, err)
	}

	t.Setenv("BIOMECORE_BLOB_DRIVER", "ftp")
	if _, err := OpenBlobStore(context.Background()); err == nil {
		t.Fatal("want error")
	}
}
