package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	// cacheDirPerms is the permission for cache directories.
	cacheDirPerms = 0o700
	// cacheFilePerms is the permission for cache files.
	cacheFilePerms = 0o600
)

// diskEntry represents a cache entry on disk.
type diskEntry struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
}

// DiskCache provides two-tier caching: in-memory + disk persistence.
// Entries survive across invocations; nothing is ever evicted.
type DiskCache struct {
	*Cache // Embedded in-memory cache

	now      func() time.Time
	cacheDir string
	enabled  bool
}

// NewDiskCache creates a new cache with disk persistence.
// If cacheDir is empty, falls back to memory-only cache.
func NewDiskCache(cacheDir string) (*DiskCache, error) {
	dc := &DiskCache{
		Cache:    New(),
		cacheDir: cacheDir,
		enabled:  cacheDir != "",
		now:      time.Now,
	}

	if dc.enabled {
		cleanPath := filepath.Clean(cacheDir)
		if !filepath.IsAbs(cleanPath) {
			return nil, errors.New("cache directory must be absolute path")
		}

		if err := os.MkdirAll(cleanPath, cacheDirPerms); err != nil {
			slog.Warn("Failed to create cache directory, falling back to memory-only", "component", "cache", "error", err, "path", cleanPath)
			dc.enabled = false
		} else {
			dc.cacheDir = cleanPath
		}
	}

	return dc, nil
}

// Dir returns the disk location of the cache, or "" when memory-only.
func (c *DiskCache) Dir() string {
	if !c.enabled {
		return ""
	}
	return c.cacheDir
}

// HitType indicates where a cache value was found.
type HitType string

const (
	HitMemory HitType = "memory"
	HitDisk   HitType = "disk"
	Miss      HitType = "miss"
)

// Get retrieves an entry from cache (memory first, then disk).
func (c *DiskCache) Get(sig Signature) (Entry, bool) {
	entry, hitType := c.Lookup(sig)
	return entry, hitType != Miss
}

// Lookup retrieves an entry from cache and indicates where it was found.
func (c *DiskCache) Lookup(sig Signature) (Entry, HitType) {
	if entry, found := c.Cache.Get(sig); found {
		return entry, HitMemory
	}

	if !c.enabled {
		return Entry{}, Miss
	}

	key := sig.String()
	var de diskEntry
	if !c.loadFromDisk(key, &de) {
		return Entry{}, Miss
	}

	// sha256 filenames make this unreachable in practice; a mismatch is a miss.
	if de.Key != key {
		slog.Debug("Disk cache key mismatch", "component", "cache", "key", key, "found", de.Key)
		return Entry{}, Miss
	}

	entry := Entry{
		Signature: sig,
		Payload:   de.Payload,
		FetchedAt: de.FetchedAt,
	}
	slog.Debug("Disk cache hit", "component", "cache", "key", key, "fetched_at", de.FetchedAt)

	// Restore to memory with the original fetch time. A Put that landed since
	// the memory miss is newer and wins.
	if kept := c.Cache.promote(entry); !kept.FetchedAt.Equal(entry.FetchedAt) {
		return kept, HitMemory
	}
	return entry, HitDisk
}

// Put stores payload in both memory and disk cache, replacing any previous
// entry for sig. Concurrent writers for the same signature race; the last
// rename wins and readers never observe a partial file.
func (c *DiskCache) Put(sig Signature, payload []byte) error {
	entry := Entry{
		Signature: sig,
		Payload:   bytes.Clone(payload),
		FetchedAt: c.now().Round(0),
	}
	c.Cache.store(entry)

	if !c.enabled {
		return nil
	}

	key := sig.String()
	if err := c.saveToDisk(key, diskEntry{Key: key, Payload: entry.Payload, FetchedAt: entry.FetchedAt}); err != nil {
		return fmt.Errorf("caching %s: %w", key, err)
	}
	slog.Debug("Disk cache write successful", "component", "cache", "key", key)
	return nil
}

// cacheKey generates a SHA256 hash of the key for the filename.
func (*DiskCache) cacheKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

func (c *DiskCache) path(key string) string {
	return filepath.Join(c.cacheDir, c.cacheKey(key)+".json")
}

// loadFromDisk loads a cache entry from disk.
func (c *DiskCache) loadFromDisk(key string, v any) bool {
	path := c.path(key)

	file, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("Failed to open disk cache file", "component", "cache", "error", err, "path", path)
		}
		return false
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Debug("Failed to close disk cache file", "component", "cache", "error", err, "path", path)
		}
	}()

	if err := json.NewDecoder(file).Decode(v); err != nil {
		slog.Debug("Failed to decode disk cache file", "component", "cache", "error", err, "path", path)
		return false
	}

	return true
}

// saveToDisk saves a cache entry to disk atomically. Each writer gets its own
// temp file so concurrent writes never share a partially written file.
func (c *DiskCache) saveToDisk(key string, v any) error {
	path := c.path(key)

	file, err := os.CreateTemp(c.cacheDir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	tmpPath := file.Name()

	if err := file.Chmod(cacheFilePerms); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("setting cache file permissions: %w", err)
	}

	if err := json.NewEncoder(file).Encode(v); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encoding cache data: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing cache file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming cache file: %w", err)
	}

	return nil
}
