package fs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"biomecore/internal/blob"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	info, err := s.Put(ctx, "studies/1001/counts.biom", strings.NewReader("payload"),
		blob.PutOptions{ContentType: "application/json", Metadata: map[string]string{"study": "1001"}})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Size != int64(len("payload")) {
		t.Fatalf("size = %d", info.Size)
	}

	got, rc, err := s.Get(ctx, "studies/1001/counts.biom")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "payload" {
		t.Fatalf("content = %q", data)
	}
	if got.ContentType != "application/json" || got.Metadata["study"] != "1001" {
		t.Fatalf("info = %+v", got)
	}
}

func TestPutIsCreateOnly(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if _, err := s.Put(ctx, "k", strings.NewReader("a"), blob.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Put(ctx, "k", strings.NewReader("b"), blob.PutOptions{}); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("want ErrExists, got %v", err)
	}
}

func TestMissingKey(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if _, _, err := s.Get(ctx, "nope"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("Get: want ErrNotFound, got %v", err)
	}
	if ok, err := s.Delete(ctx, "nope"); err != nil || ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
}

func TestDeleteRemovesSidecar(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if _, err := s.Put(ctx, "a/b", strings.NewReader("x"), blob.PutOptions{ContentType: "text/plain"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	ok, err := s.Delete(ctx, "a/b")
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	infos, err := s.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("infos = %+v", infos)
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	for _, key := range []string{"../escape", "/abs", "a/../../b", "."} {
		if _, err := s.Put(ctx, key, strings.NewReader("x"), blob.PutOptions{}); err == nil {
			t.Errorf("Put(%q): want error", key)
		}
	}
}

func TestListByPrefix(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	for _, key := range []string{"studies/2/b", "studies/1/a", "studies/1/c"} {
		if _, err := s.Put(ctx, key, strings.NewReader("x"), blob.PutOptions{}); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}
	infos, err := s.List(ctx, "studies/1/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "studies/1/a" || infos[1].Key != "studies/1/c" {
		t.Fatalf("infos = %+v", infos)
	}
}
