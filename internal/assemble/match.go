package assemble

import (
	"strings"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// Matches applies the post-enrichment predicates: property type, listing
// status, numeric ranges and feature flags. Distress predicates are the
// planner's job.
func Matches(l *types.Lead, f *types.SearchFilters) bool {
	return MatchesPropertyType(l, f) && matchesStatus(l, f.ListingStatuses) &&
		matchesRanges(l, f.RangePredicates()) && matchesFeatures(l, f)
}

// MatchesPropertyType checks the requested types, or the subtypes when any
// are given. A lead of unknown type never matches a restriction.
func MatchesPropertyType(l *types.Lead, f *types.SearchFilters) bool {
	names := []string(f.PropertySubtypes)
	if len(names) == 0 {
		if f.AllPropertyTypes() {
			return true
		}
		names = f.PropertyTypes
	}
	if l.PropertyUseCode == "" && l.PropertyType == "" {
		return false
	}
	return types.MatchesPropertyType(l.PropertyUseCode, l.PropertyType, names)
}

func matchesStatus(l *types.Lead, statuses []string) bool {
	if len(statuses) == 0 {
		return true
	}
	got := statusKey(l.ListingStatus)
	for _, s := range statuses {
		if statusKey(s) == got {
			return true
		}
	}
	return false
}

func statusKey(s string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), " ", "_")
}

func matchesRanges(l *types.Lead, preds []types.Predicate) bool {
	for _, p := range preds {
		v := rangeValue(l, p.Name)
		if v == nil {
			return false
		}
		if p.Min != nil && *v < *p.Min {
			return false
		}
		if p.Max != nil && *v > *p.Max {
			return false
		}
	}
	return true
}

func rangeValue(l *types.Lead, name string) *float64 {
	fromInt := func(v *int) *float64 {
		if v == nil {
			return nil
		}
		return types.Float(float64(*v))
	}
	switch name {
	case "beds":
		return fromInt(l.Bedrooms)
	case "baths":
		return l.Bathrooms
	case "sqft":
		return fromInt(l.SquareFeet)
	case "year_built":
		return fromInt(l.YearBuilt)
	case "price":
		if l.ListPrice != nil {
			return l.ListPrice
		}
		return l.AssessedValue
	case "lot_acres":
		return l.LotSize
	}
	return nil
}

// matchesFeatures treats a requested true as "must be known true" and a
// requested false as "must not be known true".
func matchesFeatures(l *types.Lead, f *types.SearchFilters) bool {
	check := func(want, got *bool) bool {
		if want == nil {
			return true
		}
		isTrue := got != nil && *got
		if *want {
			return isTrue
		}
		return !isTrue
	}
	return check(f.HasPool, l.HasPool) && check(f.HasGarage, l.HasGarage) && check(f.HasGuestHouse, l.HasGuestHouse)
}
