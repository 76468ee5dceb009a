// Package fetch serves remote API payloads from the cache when they are fresh
// enough and from the network otherwise.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/codeGROOVE-dev/unreviewed/pkg/cache"
)

// Source performs the network call for a signature.
type Source interface {
	Fetch(ctx context.Context, sig cache.Signature) (json.RawMessage, error)
}

// Cutoff is the staleness boundary for one invocation: entries fetched before
// it are misses. The zero Cutoff means no maximum age was configured and every
// fetch goes to the network.
type Cutoff time.Time

// CutoffFrom returns the cutoff for entries no older than maxAge at now.
// A zero or negative maxAge yields the zero Cutoff.
func CutoffFrom(now time.Time, maxAge time.Duration) Cutoff {
	if maxAge <= 0 {
		return Cutoff{}
	}
	return Cutoff(now.Add(-maxAge))
}

// IsZero reports whether c forces a network refresh.
func (c Cutoff) IsZero() bool {
	return time.Time(c).IsZero()
}

// Fresh reports whether something fetched at fetchedAt may be served.
func (c Cutoff) Fresh(fetchedAt time.Time) bool {
	if c.IsZero() {
		return false
	}
	return !fetchedAt.Before(time.Time(c))
}

// String implements fmt.Stringer.
func (c Cutoff) String() string {
	if c.IsZero() {
		return "none"
	}
	return time.Time(c).Format(time.RFC3339)
}

// Error is returned when the network call for a signature fails.
type Error struct {
	Err       error
	Signature cache.Signature
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.Signature, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Stats counts how fetches were served. Misses are signatures the store had
// no entry for; Stale entries were stored but fetched before the cutoff. Every
// miss and every stale entry costs one network call.
type Stats struct {
	Hits    int64
	Misses  int64
	Stale   int64
	Network int64
	Failed  int64
}

// Fetcher consults a cache store before calling the network.
type Fetcher struct {
	store   cache.Store
	source  Source
	hits    atomic.Int64
	misses  atomic.Int64
	stale   atomic.Int64
	network atomic.Int64
	failed  atomic.Int64
}

// New creates a Fetcher backed by store and source.
func New(store cache.Store, source Source) *Fetcher {
	return &Fetcher{
		store:  store,
		source: source,
	}
}

// Fetch returns the payload for sig: from the store when its entry was fetched
// at or after cutoff, otherwise from exactly one network call whose result
// replaces the stored entry. Network failures are returned as *Error and never
// retried here.
func (f *Fetcher) Fetch(ctx context.Context, sig cache.Signature, cutoff Cutoff) (json.RawMessage, error) {
	entry, found := f.store.Get(sig)
	switch {
	case found && cutoff.Fresh(entry.FetchedAt):
		f.hits.Add(1)
		slog.Debug("Serving cached payload", "component", "fetch", "key", sig.String(), "fetched_at", entry.FetchedAt)
		return entry.Payload, nil
	case found:
		f.stale.Add(1)
	default:
		f.misses.Add(1)
	}

	slog.Debug("Fetching from network", "component", "fetch", "key", sig.String(), "cutoff", cutoff)
	f.network.Add(1)
	payload, err := f.source.Fetch(ctx, sig)
	if err != nil {
		f.failed.Add(1)
		return nil, &Error{Signature: sig, Err: err}
	}

	if err := f.store.Put(sig, payload); err != nil {
		slog.Warn("Failed to store fetched payload", "component", "fetch", "key", sig.String(), "error", err)
	}
	return payload, nil
}

// Stats returns a snapshot of the fetch counters.
func (f *Fetcher) Stats() Stats {
	return Stats{
		Hits:    f.hits.Load(),
		Misses:  f.misses.Load(),
		Stale:   f.stale.Load(),
		Network: f.network.Load(),
		Failed:  f.failed.Load(),
	}
}
