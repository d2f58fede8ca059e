package scout

import (
	"context"
	"fmt"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/assemble"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/enrich"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// searchAddress looks a street address up directly, skipping candidate
// generation. Only a property-type restriction applies to the result.
func (s *Service) searchAddress(ctx context.Context, addr string, f *types.SearchFilters) Response {
	found := s.lookup(ctx, addr, f.Limit)
	if len(found) == 0 {
		return Response{Warning: fmt.Sprintf("No parcel found at %s.", addr)}
	}

	leads := make([]*types.Lead, len(found))
	for i := range found {
		leads[i] = &found[i]
	}
	s.engine.Enrich(ctx, leads, enrich.Options{SkipListings: f.SkipHomeharvest, ParcelsOnly: f.SkipEnrichment})

	var kept []*types.Lead
	for _, l := range leads {
		if assemble.MatchesPropertyType(l, f) {
			kept = append(kept, l)
		}
	}
	return Response{Leads: assemble.Assemble(kept, assemble.Options{Limit: f.Limit, Seed: seedOf(f)})}
}

// lookup asks the parcel layer and falls back to the parcel snapshot.
func (s *Service) lookup(ctx context.Context, addr string, limit int) []types.Lead {
	if s.parcels != nil {
		found, err := s.parcels.LookupAddress(ctx, addr, limit)
		if err != nil {
			s.log.Warn("parcel address lookup failed", "address", addr, "err", err)
		}
		if len(found) > 0 {
			return found
		}
	}
	if s.snapshot != nil {
		l, err := s.snapshot.LookupAddress(ctx, addr)
		if err != nil {
			s.log.Warn("parcel snapshot lookup failed", "address", addr, "err", err)
		}
		if l != nil {
			return []types.Lead{*l}
		}
	}
	return nil
}

// LookupParcel returns the enriched lead for one assessor parcel number, or
// nil when the snapshot does not know it.
func (s *Service) LookupParcel(ctx context.Context, apn string) (*types.Lead, error) {
	if s.snapshot == nil {
		return nil, ErrNoSnapshot
	}
	l, err := s.snapshot.LookupParcel(ctx, apn)
	if err != nil || l == nil {
		return nil, err
	}
	s.engine.Enrich(ctx, []*types.Lead{l}, enrich.Options{})
	assemble.SanitizeLead(l)
	return l, nil
}
