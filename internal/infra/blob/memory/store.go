// Package memory provides the in-memory archive backend used in tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"biomecore/internal/blob"
)

var _ blob.Store = (*Store)(nil)

type object struct {
	info blob.Info
	data []byte
}

// Store keeps archived artifacts in a map.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
}

// NewStore constructs an empty in-memory archive.
func NewStore() *Store {
	return &Store{objects: make(map[string]object)}
}

// Driver reports the backend kind.
func (s *Store) Driver() blob.Driver { return blob.DriverMemory }

// Put archives one artifact. Existing keys are rejected.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return blob.Info{}, fmt.Errorf("read artifact: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.objects[key]; dup {
		return blob.Info{}, fmt.Errorf("%s: %w", key, blob.ErrExists)
	}
	info := blob.Info{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		Metadata:     cloneMeta(opts.Metadata),
		LastModified: time.Now().UTC(),
	}
	s.objects[key] = object{info: info, data: data}
	return info, nil
}

// Get returns one artifact's info and content.
func (s *Store) Get(_ context.Context, key string) (blob.Info, io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[key]
	if !ok {
		return blob.Info{}, nil, fmt.Errorf("%s: %w", key, blob.ErrNotFound)
	}
	return o.info, io.NopCloser(bytes.NewReader(o.data)), nil
}

// Head returns one artifact's info.
func (s *Store) Head(_ context.Context, key string) (blob.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[key]
	if !ok {
		return blob.Info{}, fmt.Errorf("%s: %w", key, blob.ErrNotFound)
	}
	return o.info, nil
}

// Delete removes one artifact, reporting whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	delete(s.objects, key)
	return ok, nil
}

// List returns infos for every key under prefix, ordered by key.
func (s *Store) List(_ context.Context, prefix string) ([]blob.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []blob.Info
	for key, o := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, o.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func cloneMeta(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
