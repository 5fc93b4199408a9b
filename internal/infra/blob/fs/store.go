// Package fs provides the local filesystem archive backend, the default
// for single-operator batch runs.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"biomecore/internal/blob"
)

var _ blob.Store = (*Store)(nil)

// Store archives artifacts as files under a root directory. Each artifact
// gets a sibling ".meta.json" carrying content type and user metadata; keys
// map to relative paths.
type Store struct {
	root string
}

// NewStore creates the root directory if needed.
func NewStore(root string) (*Store, error) {
	if root == "" {
		root = "biomecore-artifacts"
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create archive root: %w", err)
	}
	return &Store{root: root}, nil
}

// Driver reports the backend kind.
func (s *Store) Driver() blob.Driver { return blob.DriverFilesystem }

type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (s *Store) paths(key string) (dataPath, metaPath string, err error) {
	clean := filepath.Clean(strings.ReplaceAll(key, "/", string(filepath.Separator)))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", "", fmt.Errorf("invalid artifact key %q", key)
	}
	dataPath = filepath.Join(s.root, clean)
	return dataPath, dataPath + ".meta.json", nil
}

// Put archives one artifact. Existing keys are rejected.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return blob.Info{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return blob.Info{}, fmt.Errorf("%s: %w", key, blob.ErrExists)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o750); err != nil {
		return blob.Info{}, fmt.Errorf("create artifact dirs: %w", err)
	}
	f, err := os.OpenFile(dataPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return blob.Info{}, fmt.Errorf("create artifact: %w", err)
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dataPath)
		return blob.Info{}, fmt.Errorf("write artifact: %w", err)
	}
	meta, err := json.Marshal(sidecar{ContentType: opts.ContentType, Metadata: opts.Metadata})
	if err == nil {
		err = os.WriteFile(metaPath, meta, 0o640)
	}
	if err != nil {
		_ = os.Remove(dataPath)
		return blob.Info{}, fmt.Errorf("write artifact metadata: %w", err)
	}
	return s.Head(context.Background(), key)
}

// Get returns one artifact's info and an open reader for its content.
func (s *Store) Get(ctx context.Context, key string) (blob.Info, io.ReadCloser, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return blob.Info{}, nil, err
	}
	dataPath, _, err := s.paths(key)
	if err != nil {
		return blob.Info{}, nil, err
	}
	f, err := os.Open(dataPath)
	if err != nil {
		return blob.Info{}, nil, fmt.Errorf("open artifact: %w", err)
	}
	return info, f, nil
}

// Head returns one artifact's info.
func (s *Store) Head(_ context.Context, key string) (blob.Info, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return blob.Info{}, err
	}
	st, err := os.Stat(dataPath)
	if errors.Is(err, os.ErrNotExist) {
		return blob.Info{}, fmt.Errorf("%s: %w", key, blob.ErrNotFound)
	}
	if err != nil {
		return blob.Info{}, fmt.Errorf("stat artifact: %w", err)
	}
	info := blob.Info{Key: key, Size: st.Size(), LastModified: st.ModTime().UTC()}
	if raw, err := os.ReadFile(metaPath); err == nil {
		var sc sidecar
		if err := json.Unmarshal(raw, &sc); err == nil {
			info.ContentType = sc.ContentType
			info.Metadata = sc.Metadata
		}
	}
	return info, nil
}

// Delete removes one artifact and its sidecar, reporting whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return false, err
	}
	err = os.Remove(dataPath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("remove artifact: %w", err)
	}
	_ = os.Remove(metaPath)
	return true, nil
}

// List walks the root and returns infos for every key under prefix,
// ordered by key.
func (s *Store) List(ctx context.Context, prefix string) ([]blob.Info, error) {
	var out []blob.Info
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasSuffix(path, ".meta.json") {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := s.Head(ctx, key)
		if err != nil {
			return err
		}
		out = append(out, info)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
