// Package cache holds the process-scoped caches of the pipeline: resolved
// geometries, per-address enrichment, upstream responses with TTL, and the
// persisted aggregate counts.
package cache

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
)

// GeometryCache maps a scope descriptor ("zip:85705") to its resolved area.
// Entries never expire; areas are immutable once stored.
type GeometryCache struct {
	mu    sync.RWMutex
	items map[string]*geo.Area
	group singleflight.Group
}

// NewGeometryCache creates an empty cache.
func NewGeometryCache() *GeometryCache {
	return &GeometryCache{items: make(map[string]*geo.Area)}
}

// ScopeKey builds the descriptor for a scope kind and name.
func ScopeKey(kind, name string) string {
	return kind + ":" + strings.ToUpper(strings.Join(strings.Fields(name), " "))
}

// Get returns a cached area.
func (c *GeometryCache) Get(key string) (*geo.Area, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.items[key]
	return a, ok
}

// Put stores an area.
func (c *GeometryCache) Put(key string, a *geo.Area) {
	c.mu.Lock()
	c.items[key] = a
	c.mu.Unlock()
}

// Len returns the number of cached areas.
func (c *GeometryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// GetOrResolve returns the cached area or runs resolve once for concurrent
// callers of the same key. Errors and empty areas are not cached.
func (c *GeometryCache) GetOrResolve(ctx context.Context, key string, resolve func(context.Context) (*geo.Area, error)) (*geo.Area, error) {
	if a, ok := c.Get(key); ok {
		return a, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if a, ok := c.Get(key); ok {
			return a, nil
		}
		a, err := resolve(ctx)
		if err != nil {
			return nil, err
		}
		if !a.IsEmpty() {
			c.Put(key, a)
		}
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*geo.Area), nil
}
