// Package cache implements the TTL-based local cache for read-mostly data
// (posts feed, profiles, leaderboard pages).
//
// The cache is a performance optimization, never a correctness dependency:
// persistence errors degrade to a miss on reads and a no-op on writes, and
// the sync engine must work with the cache empty.
package cache

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/waveline-app/waveline/internal/domain"
)

// Prefix is the key namespace the cache owns in the local store.
const Prefix = "cache/"

// Well-known cache keys used by the facade and sync engine.
const (
	KeyFeed        = "feed"
	KeyLeaderboard = "leaderboard"
)

// ProfileKey returns the cache key for a user's profile.
func ProfileKey(userID string) string { return "profile/" + userID }

// MessagesKey returns the cache key for a conversation.
func MessagesKey(peerID string) string { return "messages/" + peerID }

// Store is the TTL cache over a durable local store. All operations are
// side-effect-isolated per key; there are no cross-key transactions.
type Store struct {
	mu    sync.Mutex
	local domain.LocalStore
	now   func() time.Time
}

// New creates a cache over the given local store.
func New(local domain.LocalStore) *Store {
	return &Store{local: local, now: time.Now}
}

// Put stores value under key with the given TTL.
// Persistence failures are swallowed; the entry is simply not cached.
func (s *Store) Put(key string, value []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry := domain.CacheEntry{
		Data:      value,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[cache] encode %q: %v", key, err)
		return
	}
	if err := s.local.WriteKey(Prefix+key, data); err != nil {
		log.Printf("[cache] write %q: %v", key, err)
	}
}

// PutJSON marshals value and stores it under key.
func (s *Store) PutJSON(key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("[cache] encode %q: %v", key, err)
		return
	}
	s.Put(key, data, ttl)
}

// Get returns the cached value, or misses. A read against an expired entry
// evicts the key and reports a miss — stale data is never returned.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok, err := s.local.ReadKey(Prefix + key)
	if err != nil {
		log.Printf("[cache] read %q: %v", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupt entry: evict and miss.
		s.evict(key)
		return nil, false
	}

	if entry.Expired(s.now()) {
		s.evict(key)
		return nil, false
	}
	return entry.Data, true
}

// GetJSON reads a cached value into out.
func (s *Store) GetJSON(key string, out any) bool {
	data, ok := s.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.Invalidate(key)
		return false
	}
	return true
}

// Invalidate removes a key unconditionally.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evict(key)
}

func (s *Store) evict(key string) {
	if err := s.local.DeleteKey(Prefix + key); err != nil {
		log.Printf("[cache] evict %q: %v", key, err)
	}
}

// SetClock overrides the cache's clock. Tests only.
func (s *Store) SetClock(now func() time.Time) { s.now = now }
