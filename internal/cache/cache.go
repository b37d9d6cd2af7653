// Package cache provides a small key-value store with per-key expiry, used
// to memoize computed availability between requests and restarts.
package cache

import (
	"sync"
	"time"
)

// Store is a key-value store with per-key time-to-live. A zero or negative
// ttl means the entry never expires.
type Store interface {
	// Get returns the value for key, or ok=false when the key is missing
	// or its TTL has elapsed.
	Get(key string) (value string, ok bool)

	// Set stores value under key with the given ttl.
	Set(key, value string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero = no expiry
}

// MemoryStore is an in-process Store. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	// now is injectable for tests.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		// Lazily drop the expired entry.
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return "", false
	}
	return e.value, true
}

func (m *MemoryStore) Set(key, value string, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{value: value, expiresAt: exp}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}
