// Package memstore provides an in-memory LocalStore. It backs unit tests
// and ephemeral sessions (guest mode) where nothing should touch disk.
package memstore

import (
	"sort"
	"strings"
	"sync"
)

// Store is a concurrency-safe in-memory key/value store.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an empty store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// ReadKey returns the value and whether the key exists.
func (s *Store) ReadKey(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// WriteKey stores a copy of value.
func (s *Store) WriteKey(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	return nil
}

// DeleteKey removes a key; deleting an absent key is a no-op.
func (s *Store) DeleteKey(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// ListKeys returns all keys with the given prefix, in lexical order.
func (s *Store) ListKeys(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
