// Package gis answers point-in-polygon questions against overlay layers
// (zoning, flood zones, school districts, development overlays,
// neighborhoods, subdivisions) and writes the answers onto leads.
package gis

import (
	"context"
	"strings"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// Layer resolves an attribute for each point. Lookup returns one slice per
// input point, empty when no polygon contains it.
type Layer interface {
	Name() string
	Target() string
	Lookup(ctx context.Context, points []geo.Point) ([][]string, error)
}

// Targets a layer can write to. They double as enrichment provenance flags.
const (
	TargetZoning       = types.EnrichedZoning
	TargetFlood        = types.EnrichedFlood
	TargetSchool       = types.EnrichedSchool
	TargetOverlays     = types.EnrichedOverlays
	TargetNeighborhood = types.EnrichedNbhd
	TargetSubdivision  = types.EnrichedSubdiv
)

// Has reports whether the lead already carries the target field.
func Has(l *types.Lead, target string) bool {
	switch target {
	case TargetZoning:
		return l.Zoning != ""
	case TargetFlood:
		return l.FloodZone != ""
	case TargetSchool:
		return l.SchoolDistrict != ""
	case TargetOverlays:
		return len(l.Overlays) > 0 || l.IsEnriched(TargetOverlays)
	case TargetNeighborhood:
		return l.Neighborhood != ""
	case TargetSubdivision:
		return l.Subdivision != ""
	}
	return false
}

// Apply writes layer values onto the lead. The target is marked enriched even
// when no polygon matched so the lookup is not repeated.
func Apply(l *types.Lead, target string, values []string) {
	l.MarkEnriched(target)
	if len(values) == 0 {
		return
	}
	switch target {
	case TargetZoning:
		l.Zoning = values[0]
	case TargetFlood:
		l.FloodZone = values[0]
	case TargetSchool:
		l.SchoolDistrict = values[0]
	case TargetOverlays:
		for _, v := range values {
			if !containsFold(l.Overlays, v) {
				l.Overlays = append(l.Overlays, v)
			}
		}
	case TargetNeighborhood:
		l.Neighborhood = values[0]
	case TargetSubdivision:
		l.Subdivision = values[0]
	}
}

// valuesOf collects the distinct non-empty field values of matched features.
func valuesOf(features []geo.Feature, field string) []string {
	var out []string
	for _, f := range features {
		v := strings.TrimSpace(f.Attrs[field])
		if v != "" && !containsFold(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
