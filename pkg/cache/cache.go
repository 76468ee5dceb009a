// Package cache provides a thread-safe, persistent store of fetched API payloads
// keyed by request signature.
//
// The store records when each payload was fetched but never decides staleness
// itself: callers compare Entry.FetchedAt against their own cutoff.
package cache

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"
)

// Entry holds a fetched payload and the time it was fetched.
// Entries are replaced wholesale and never mutated after creation.
type Entry struct {
	FetchedAt time.Time
	Signature Signature
	Payload   json.RawMessage
}

// Cache is the in-memory tier: a map of entries guarded by a RWMutex.
type Cache struct {
	entries map[string]Entry
	mu      sync.RWMutex
}

// New creates an empty in-memory cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]Entry),
	}
}

// Get retrieves the entry stored for sig.
func (c *Cache) Get(sig Signature) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, exists := c.entries[sig.String()]
	return entry, exists
}

// store replaces the entry for its signature.
func (c *Cache) store(entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Signature.String()] = entry
}

// promote stores entry unless memory already holds one fetched at the same
// time or later, and returns whichever entry memory now holds.
func (c *Cache) promote(entry Entry) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := entry.Signature.String()
	if existing, ok := c.entries[key]; ok && !existing.FetchedAt.Before(entry.FetchedAt) {
		return existing
	}
	c.entries[key] = entry
	return entry
}

// Put stores a copy of payload for sig, stamped with the current time.
func (c *Cache) Put(sig Signature, payload []byte) error {
	c.store(Entry{
		Signature: sig,
		Payload:   bytes.Clone(payload),
		FetchedAt: time.Now(),
	})
	return nil
}

// Len returns the number of entries held in memory.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
