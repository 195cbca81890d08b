package reconcile

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// cachedSnapshot is a snapshot with its build time.
type cachedSnapshot struct {
	snapshot Snapshot
	built    time.Time
}

// SnapshotCache memoizes snapshots per source for a TTL. Concurrent misses
// for the same source share one fetch.
type SnapshotCache struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
	entries map[string]*cachedSnapshot
	sf      singleflight.Group
}

// NewSnapshotCache creates a cache. A zero ttl disables caching but still
// collapses concurrent fetches.
func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*cachedSnapshot),
	}
}

func (c *SnapshotCache) fresh(e *cachedSnapshot) bool {
	return e != nil && c.ttl > 0 && c.now().Sub(e.built) <= c.ttl
}

// Get returns the cached snapshot of src or fetches a new one.
func (c *SnapshotCache) Get(ctx context.Context, src SnapshotSource) (Snapshot, error) {
	key := src.Name()

	// Fast path: check if cache exists and is fresh
	c.mu.RLock()
	entry := c.entries[key]
	c.mu.RUnlock()
	if c.fresh(entry) {
		return entry.snapshot, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Double-check after acquiring singleflight lock
		c.mu.RLock()
		entry := c.entries[key]
		c.mu.RUnlock()
		if c.fresh(entry) {
			return entry.snapshot, nil
		}

		snap, _, err := Load(ctx, src, nil)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = &cachedSnapshot{snapshot: snap, built: c.now()}
		c.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(Snapshot), nil
}

// Invalidate drops the cached snapshot of the named source.
func (c *SnapshotCache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}
