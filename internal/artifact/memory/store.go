// Package memory stores artifacts in-memory for tests and development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/skyhookqa/skyhook/internal/artifact"
)

// Store keeps artifact bytes in a map and hands out pseudo URIs.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Save records the artifact and returns a memory:// URI.
func (s *Store) Save(_ context.Context, key artifact.Key, _ string, data []byte) (string, error) {
	if err := key.Validate(); err != nil {
		return "", err
	}
	path := key.Path("")
	s.mu.Lock()
	s.data[path] = append([]byte(nil), data...)
	s.mu.Unlock()
	return fmt.Sprintf("memory://%s", path), nil
}

// Get returns a stored artifact, primarily for test assertions.
func (s *Store) Get(key artifact.Key) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key.Path("")]
	return data, ok
}

// Len reports how many artifacts have been stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
