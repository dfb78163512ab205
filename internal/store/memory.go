package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a concurrency-safe in-memory implementation of Store.
// It backs tests; the serving process uses SQLiteStore.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Entry),
	}
}

// Put replaces the entry for key as a whole.
func (s *MemoryStore) Put(_ context.Context, key string, payload any, ttl time.Duration) error {
	if key == "" {
		return errors.New("cache key must not be empty")
	}
	if ttl < 0 {
		return errors.New("ttl must be >= 0")
	}

	raw, err := marshalPayload(payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = Entry{
		Key:       key,
		Payload:   raw,
		FetchedAt: time.Now().UTC(),
		TTL:       ttl,
	}
	return nil
}

// Get returns the latest entry for key, stale or not.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.data[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

// Keys lists all cache keys in ascending order.
func (s *MemoryStore) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Prune deletes entries whose age exceeds their TTL.
func (s *MemoryStore) Prune(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	for k, e := range s.data {
		if !e.Fresh(now) {
			delete(s.data, k)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
