package dataset

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"rainpoint/internal/types"
)

// Cache memoizes parsed Datasets keyed by source identity plus content
// fingerprint. Datasets are immutable once constructed, so a cached entry
// can be shared by any number of concurrent readers; concurrent loads of
// the same source are collapsed into a single parse.
//
// The cache is transparent: repeated Get calls with the same source
// identity return equal results. Invalidation is the caller's
// responsibility, though a changed source fingerprint triggers a rebuild
// on the next Get without explicit invalidation.
type Cache struct {
	loader *Loader
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*types.Dataset // keyed by sourceID

	group singleflight.Group
}

// NewCache creates a Cache over the given loader.
func NewCache(loader *Loader, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		loader:  loader,
		logger:  logger,
		entries: make(map[string]*types.Dataset),
	}
}

// Get returns the Dataset for the given horizon and source, loading and
// caching it if absent or stale. The fingerprint check is a cheap stat/head
// against the source; the parse only runs when the content changed.
func (c *Cache) Get(ctx context.Context, horizon, sourceID string) (*types.Dataset, error) {
	fp, err := c.loader.Fingerprint(ctx, sourceID)
	if err != nil {
		// A source that disappeared must not keep serving its stale parse.
		c.Invalidate(sourceID)
		return nil, err
	}

	c.mu.RLock()
	ds, ok := c.entries[sourceID]
	c.mu.RUnlock()
	if ok && ds.Fingerprint == fp {
		return ds, nil
	}

	// Collapse concurrent loads of the same content into one parse.
	v, err, _ := c.group.Do(sourceID+"@"+fp, func() (any, error) {
		loaded, err := c.loader.Load(ctx, horizon, sourceID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[sourceID] = loaded
		c.mu.Unlock()
		if ok {
			c.logger.Info("dataset cache entry rebuilt",
				"source", sourceID,
				"old_fingerprint", ds.Fingerprint,
				"new_fingerprint", loaded.Fingerprint,
			)
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Dataset), nil
}

// Invalidate drops the cached entry for one source identity.
func (c *Cache) Invalidate(sourceID string) {
	c.mu.Lock()
	delete(c.entries, sourceID)
	c.mu.Unlock()
}

// InvalidateAll drops every cached entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*types.Dataset)
	c.mu.Unlock()
}

// Len returns the number of cached datasets. Intended for tests and the
// health endpoint.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
