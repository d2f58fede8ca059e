// Package assemble turns an enriched candidate pool into the response body.
package assemble

import (
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// Options control one assembly.
type Options struct {
	// Area is the resolved request area. Leads with a point outside it are
	// dropped.
	Area *geo.Area
	// Bounds is an explicit rectangle, checked in addition to Area.
	Bounds *types.Bounds
	// Filters are re-applied after enrichment; nil skips filtering.
	Filters *types.SearchFilters
	Limit   int
	// Seed fixes the shuffle so identical requests keep identical sets.
	Seed uint64
}

// Assemble filters, de-duplicates, shuffles and truncates leads and
// returns sanitized copies.
func Assemble(leads []*types.Lead, opts Options) []types.Lead {
	m := newMerger(len(leads))
	for _, l := range leads {
		if l == nil || !inArea(l, opts) {
			continue
		}
		if !l.HasPoint() && strings.TrimSpace(l.Address) == "" {
			continue
		}
		if opts.Filters != nil && !Matches(l, opts.Filters) {
			continue
		}
		m.add(l)
	}
	byKey := m.leads()
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}

	// Sorting first makes the seeded shuffle independent of arrival order.
	sort.Strings(keys)
	r := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	r.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	if opts.Limit > 0 && len(keys) > opts.Limit {
		keys = keys[:opts.Limit]
	}

	out := make([]types.Lead, 0, len(keys))
	for _, k := range keys {
		l := byKey[k]
		SanitizeLead(l)
		out = append(out, *l)
	}
	return out
}

func inArea(l *types.Lead, opts Options) bool {
	lat, lon, ok := l.Point()
	if !ok {
		return true
	}
	if opts.Bounds != nil && !opts.Bounds.Contains(lat, lon) {
		return false
	}
	if opts.Area != nil && opts.Area.Kind != geo.AreaAddress && !opts.Area.IsEmpty() {
		return opts.Area.Contains(lat, lon)
	}
	return true
}
