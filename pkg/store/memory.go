package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type memoryStore struct {
	data    map[string]memoryItem
	mu      sync.RWMutex
	maxSize int
}

type memoryItem struct {
	value      []byte
	expiration time.Time
	lastAccess time.Time // For LRU eviction
}

// NewMemoryStore creates a process-local store bounded to maxSize
// entries with LRU eviction.
func NewMemoryStore(maxSize int) Store {
	if maxSize <= 0 {
		maxSize = Defaults.MaxLocalSize
	}
	return &memoryStore{
		data:    make(map[string]memoryItem),
		maxSize: maxSize,
	}
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	item, found := s.data[key]
	s.mu.RUnlock()

	if !found {
		return nil, false, nil
	}

	if time.Now().After(item.expiration) {
		s.mu.Lock()
		delete(s.data, key)
		s.mu.Unlock()
		return nil, false, nil
	}

	s.mu.Lock()
	item.lastAccess = time.Now()
	s.data[key] = item
	s.mu.Unlock()

	return item.value, true, nil
}

func (s *memoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = Defaults.TTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists && len(s.data) >= s.maxSize {
		s.evictLRU()
	}

	s.data[key] = memoryItem{
		value:      value,
		expiration: time.Now().Add(ttl),
		lastAccess: time.Now(),
	}
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// evictLRU removes the least recently used item. Caller holds the lock.
func (s *memoryStore) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	for k, entry := range s.data {
		if oldestTime.IsZero() || entry.lastAccess.Before(oldestTime) {
			oldestKey = k
			oldestTime = entry.lastAccess
		}
	}

	if oldestKey != "" {
		slog.Debug("Evicting LRU store item", "key", oldestKey, "lastAccess", oldestTime)
		delete(s.data, oldestKey)
	}
}
