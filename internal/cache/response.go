package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// Forever marks a source whose responses never expire (static catalogs).
const Forever time.Duration = -1

// ResponseKey identifies one upstream response.
type ResponseKey struct {
	Source    string
	Predicate string
	ScopeHash string
}

func (k ResponseKey) String() string {
	return k.Source + "|" + k.Predicate + "|" + k.ScopeHash
}

// ScopeHash returns a short deterministic hash of any JSON-serializable
// scope description.
func ScopeHash(scope any) string {
	data, _ := json.Marshal(scope)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

type responseEntry struct {
	records []types.Lead
	stored  time.Time
	ttl     time.Duration
}

func (e responseEntry) expired(now time.Time) bool {
	return e.ttl != Forever && now.Sub(e.stored) >= e.ttl
}

// ResponseCache caches raw candidate lists per (source, predicate, scope).
type ResponseCache struct {
	mu         sync.RWMutex
	entries    map[ResponseKey]responseEntry
	ttls       map[string]time.Duration
	defaultTTL time.Duration
	group      singleflight.Group
	now        func() time.Time
}

// NewResponseCache creates a cache with a default TTL for volatile sources.
func NewResponseCache(defaultTTL time.Duration) *ResponseCache {
	return &ResponseCache{
		entries:    make(map[ResponseKey]responseEntry),
		ttls:       make(map[string]time.Duration),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// SetTTL overrides the TTL for one source. Use Forever for static catalogs.
func (c *ResponseCache) SetTTL(source string, ttl time.Duration) {
	c.mu.Lock()
	c.ttls[source] = ttl
	c.mu.Unlock()
}

func (c *ResponseCache) ttlFor(source string) time.Duration {
	if ttl, ok := c.ttls[source]; ok {
		return ttl
	}
	return c.defaultTTL
}

// Get returns copies of the cached records if present and fresh.
func (c *ResponseCache) Get(key ResponseKey) ([]types.Lead, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || e.expired(c.now()) {
		return nil, false
	}
	return cloneLeads(e.records), true
}

// Put stores copies of records.
func (c *ResponseCache) Put(key ResponseKey, records []types.Lead) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = responseEntry{
		records: cloneLeads(records),
		stored:  c.now(),
		ttl:     c.ttlFor(key.Source),
	}
}

// GetOrFetch returns cached records or calls fetch, sharing one in-flight
// call among concurrent requests for the same key. Failed fetches are not
// cached. hit reports whether the result came from the cache.
func (c *ResponseCache) GetOrFetch(ctx context.Context, key ResponseKey, fetch func(context.Context) ([]types.Lead, error)) (records []types.Lead, hit bool, err error) {
	if recs, ok := c.Get(key); ok {
		return recs, true, nil
	}
	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		recs, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(key, recs)
		return recs, nil
	})
	if err != nil {
		return nil, false, err
	}
	return cloneLeads(v.([]types.Lead)), false, nil
}

// Prune drops expired entries and returns how many were removed.
func (c *ResponseCache) Prune() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries, fresh or not.
func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func cloneLeads(in []types.Lead) []types.Lead {
	if in == nil {
		return nil
	}
	out := make([]types.Lead, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
