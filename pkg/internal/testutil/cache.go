package testutil

import (
	"bytes"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/unreviewed/pkg/cache"
)

// MockCache implements cache.Store for testing.
// Entries can be seeded with an arbitrary fetch time.
type MockCache struct {
	entries map[cache.Signature]cache.Entry
	now     func() time.Time
	puts    int
	mu      sync.RWMutex
}

// NewMockCache creates a new MockCache stamping puts with time.Now.
func NewMockCache() *MockCache {
	return &MockCache{
		entries: make(map[cache.Signature]cache.Entry),
		now:     time.Now,
	}
}

// Get retrieves an entry from the cache.
func (m *MockCache) Get(sig cache.Signature) (cache.Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[sig]
	return entry, ok
}

// Put stores payload for sig.
func (m *MockCache) Put(sig cache.Signature, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.puts++
	m.entries[sig] = cache.Entry{
		Signature: sig,
		Payload:   bytes.Clone(payload),
		FetchedAt: m.now(),
	}
	return nil
}

// Seed stores an entry fetched at the given time.
func (m *MockCache) Seed(sig cache.Signature, payload string, fetchedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[sig] = cache.Entry{
		Signature: sig,
		Payload:   []byte(payload),
		FetchedAt: fetchedAt,
	}
}

// SetNow overrides the clock used to stamp puts.
func (m *MockCache) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.now = now
}

// Puts returns the number of Put calls.
func (m *MockCache) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.puts
}

// Len returns the number of entries in the cache.
func (m *MockCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}
