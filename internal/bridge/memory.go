package bridge

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore keeps values in process memory. It is intended for local development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore constructs an empty store. A nil clock uses time.Now.
func NewMemoryStore(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{entries: make(map[string]memoryEntry), now: clock}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key Key) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(key)
}

func (s *MemoryStore) getLocked(key Key) ([]byte, error) {
	id := key.String()
	entry, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if entry.expired(s.now().UTC()) {
		delete(s.entries, id)
		return nil, ErrNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, key Key, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.now().UTC().Add(ttl)
	}
	s.entries[key.String()] = entry
	return nil
}

// Take implements atomic read-and-delete.
func (s *MemoryStore) Take(_ context.Context, key Key) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, err := s.getLocked(key)
	if err != nil {
		return nil, err
	}
	delete(s.entries, key.String())
	return value, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, keys ...Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.entries, key.String())
	}
	return nil
}

// Ping implements Store.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// CleanupExpired drops expired entries and reports how many were removed.
func (s *MemoryStore) CleanupExpired(now time.Time) int {
	now = now.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, including expired ones not yet evicted.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
