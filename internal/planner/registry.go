// Package planner turns the distress and hot-list filters of a search into
// an AND plan: the most restrictive predicate a source can generate drives
// candidate fetching, and every other predicate verifies candidates in place.
package planner

import (
	"sort"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/adapters"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// Entry describes one filter predicate.
type Entry struct {
	Name string
	Kind types.PredicateKind
	// Rank orders predicates from most to least restrictive.
	Rank int
	// Source is the adapter able to generate candidates for the predicate;
	// empty when it can only verify.
	Source string
	// Needs is the enrichment a candidate must carry before verification.
	Needs string
}

// Primary reports whether the predicate can drive candidate generation.
func (e Entry) Primary() bool { return e.Source != "" }

// registry is ordered by rank.
var registry = []Entry{
	{Name: types.DistressCodeViolations, Kind: types.KindDistress, Source: adapters.SourceViolations},
	{Name: types.DistressPreForeclosure, Kind: types.KindDistress, Needs: types.EnrichedParcel},
	{Name: types.DistressProbate, Kind: types.KindDistress, Needs: types.EnrichedParcel},
	{Name: types.DistressDivorce, Kind: types.KindDistress, Needs: types.EnrichedParcel},
	{Name: types.DistressJudgments, Kind: types.KindDistress, Needs: types.EnrichedParcel},
	{Name: types.DistressLiens, Kind: types.KindDistress, Needs: types.EnrichedParcel},
	{Name: types.HotFSBO, Kind: types.KindHotList, Source: adapters.SourceListings, Needs: types.EnrichedListing},
	{Name: types.HotPriceReduced, Kind: types.KindHotList, Source: adapters.SourceListings, Needs: types.EnrichedListing},
	{Name: types.HotNewListing, Kind: types.KindHotList, Source: adapters.SourceListings, Needs: types.EnrichedListing},
	{Name: types.HotHighDOM, Kind: types.KindHotList, Source: adapters.SourceListings, Needs: types.EnrichedListing},
	{Name: types.DistressUndervalued, Kind: types.KindDistress, Needs: types.EnrichedParcel},
	{Name: types.DistressLongHold, Kind: types.KindDistress, Needs: types.EnrichedParcel},
	{Name: types.DistressAbsentee, Kind: types.KindDistress, Needs: types.EnrichedParcel},
}

var byName = func() map[string]Entry {
	m := make(map[string]Entry, len(registry))
	for i, e := range registry {
		e.Rank = i
		registry[i] = e
		m[e.Name] = e
	}
	return m
}()

// Lookup returns the registry entry for a canonical predicate name.
func Lookup(name string) (Entry, bool) {
	e, ok := byName[name]
	return e, ok
}

// Ranking returns the predicate names from most to least restrictive.
func Ranking() []string {
	out := make([]string, len(registry))
	for i, e := range registry {
		out[i] = e.Name
	}
	return out
}

// IsRecorder reports whether a predicate is verified from recorded
// documents.
func IsRecorder(name string) bool {
	switch name {
	case types.DistressPreForeclosure, types.DistressProbate, types.DistressDivorce,
		types.DistressJudgments, types.DistressLiens:
		return true
	}
	return false
}

// ranked returns the requested distress and hot-list entries in rank order.
func ranked(f *types.SearchFilters) []Entry {
	var out []Entry
	for _, name := range append(append([]string(nil), f.DistressType...), f.HotList...) {
		if e, ok := byName[name]; ok {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}
