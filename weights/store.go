package weights

import (
	"context"
	"sync"
)

// Store is the key/value capability the cache persists blobs in.
type Store interface {
	// Get returns the blob stored under version and whether it was present.
	Get(ctx context.Context, version string) ([]byte, bool, error)
	Put(ctx context.Context, version string, blob []byte) error
	Remove(ctx context.Context, version string) error
}

// MemoryStore is a Store backed by a map. It is safe for concurrent use.
type MemoryStore struct {
	blobs map[string][]byte
	mu    sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, version string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[version]
	return blob, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, version string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[version] = append([]byte(nil), blob...)
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, version)
	return nil
}
