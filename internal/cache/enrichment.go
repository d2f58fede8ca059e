package cache

import (
	"sync"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/address"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// EnrichmentCache stores every field ever obtained for an address, keyed by
// the normalized street line. It has no TTL. Null fields never overwrite
// populated ones.
type EnrichmentCache struct {
	mu          sync.RWMutex
	entries     map[string]*types.Lead
	listingMiss map[string]bool
}

// NewEnrichmentCache creates an empty cache.
func NewEnrichmentCache() *EnrichmentCache {
	return &EnrichmentCache{
		entries:     make(map[string]*types.Lead),
		listingMiss: make(map[string]bool),
	}
}

// Get returns a copy of the entry for addr.
func (c *EnrichmentCache) Get(addr string) (types.Lead, bool) {
	key := address.Key(addr)
	if key == "" {
		return types.Lead{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return types.Lead{}, false
	}
	return e.Clone(), true
}

// Apply fills the lead's missing fields from the cache. It reports whether
// an entry existed.
func (c *EnrichmentCache) Apply(l *types.Lead) bool {
	cached, ok := c.Get(l.Address)
	if !ok {
		return false
	}
	l.FillMissing(&cached)
	return true
}

// Save merges the lead's populated fields into the entry for its address.
func (c *EnrichmentCache) Save(l *types.Lead) {
	key := address.Key(l.Address)
	if key == "" {
		return
	}
	snapshot := l.Clone()
	snapshot.ID = ""

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		e.MergeNonNull(&snapshot)
		return
	}
	c.entries[key] = &snapshot
}

// SaveAll saves every lead.
func (c *EnrichmentCache) SaveAll(leads []*types.Lead) {
	for _, l := range leads {
		c.Save(l)
	}
}

// MarkListingMiss records that the listing provider had nothing for addr.
func (c *EnrichmentCache) MarkListingMiss(addr string) {
	key := address.Key(addr)
	if key == "" {
		return
	}
	c.mu.Lock()
	c.listingMiss[key] = true
	c.mu.Unlock()
}

// ListingMissed reports whether a listing lookup for addr already came back
// empty.
func (c *EnrichmentCache) ListingMissed(addr string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.listingMiss[address.Key(addr)]
}

// Find returns copies of up to limit entries for which match is true.
// limit <= 0 means no limit.
func (c *EnrichmentCache) Find(match func(*types.Lead) bool, limit int) []types.Lead {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []types.Lead
	for _, e := range c.entries {
		if !match(e) {
			continue
		}
		out = append(out, e.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Len returns the number of cached addresses.
func (c *EnrichmentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
