package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Request limits.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Filter validation errors.
var (
	ErrUnknownField       = errors.New("unknown field in search filters")
	ErrUnknownDistress    = errors.New("unknown distress type")
	ErrUnknownHotList     = errors.New("unknown hot-list filter")
	ErrInvalidBounds      = errors.New("bounds must satisfy west < east and south < north within WGS84 range")
	ErrInvalidRange       = errors.New("range minimum exceeds maximum")
	ErrInvalidLimit       = errors.New("limit must be between 0 and 500")
	ErrInvalidStringField = errors.New("expected a string or a list of strings")
)

// Bounds is a WGS84 rectangle.
type Bounds struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// Validate checks the rectangle is well-formed.
func (b Bounds) Validate() error {
	if b.West >= b.East || b.South >= b.North {
		return ErrInvalidBounds
	}
	if b.West < -180 || b.East > 180 || b.South < -90 || b.North > 90 {
		return ErrInvalidBounds
	}
	return nil
}

// Contains reports whether the point lies inside the rectangle, edges included.
func (b Bounds) Contains(lat, lon float64) bool {
	return lon >= b.West && lon <= b.East && lat >= b.South && lat <= b.North
}

// StringList decodes either a JSON string or a JSON list of strings.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *StringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		if strings.TrimSpace(one) == "" {
			*s = nil
			return nil
		}
		*s = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return ErrInvalidStringField
	}
	*s = many
	return nil
}

// SearchFilters is the request body of a lead search.
type SearchFilters struct {
	ZipCode      string  `json:"zip_code,omitempty"`
	City         string  `json:"city,omitempty"`
	County       string  `json:"county,omitempty"`
	Address      string  `json:"address,omitempty"`
	Neighborhood string  `json:"neighborhood,omitempty"`
	Bounds       *Bounds `json:"bounds,omitempty"`

	DistressType     StringList `json:"distress_type,omitempty"`
	PropertyTypes    StringList `json:"property_types,omitempty"`
	PropertySubtypes StringList `json:"property_subtypes,omitempty"`
	HotList          StringList `json:"hot_list,omitempty"`
	ListingStatuses  StringList `json:"listing_statuses,omitempty"`

	MinBeds      *int     `json:"min_beds,omitempty"`
	MaxBeds      *int     `json:"max_beds,omitempty"`
	MinBaths     *float64 `json:"min_baths,omitempty"`
	MaxBaths     *float64 `json:"max_baths,omitempty"`
	MinSqft      *int     `json:"min_sqft,omitempty"`
	MaxSqft      *int     `json:"max_sqft,omitempty"`
	MinYearBuilt *int     `json:"min_year_built,omitempty"`
	MaxYearBuilt *int     `json:"max_year_built,omitempty"`
	MinPrice     *float64 `json:"min_price,omitempty"`
	MaxPrice     *float64 `json:"max_price,omitempty"`
	MinLotAcres  *float64 `json:"min_lot_acres,omitempty"`
	MaxLotAcres  *float64 `json:"max_lot_acres,omitempty"`

	HasPool       *bool `json:"has_pool,omitempty"`
	HasGarage     *bool `json:"has_garage,omitempty"`
	HasGuestHouse *bool `json:"has_guest_house,omitempty"`

	Limit           int  `json:"limit,omitempty"`
	SkipHomeharvest bool `json:"skip_homeharvest,omitempty"`
	SkipEnrichment  bool `json:"skip_enrichment,omitempty"`
}

// DecodeFilters reads a JSON body, rejecting unknown fields, and normalizes it.
func DecodeFilters(r io.Reader) (SearchFilters, error) {
	var f SearchFilters
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		if strings.HasPrefix(err.Error(), "json: unknown field") {
			return f, fmt.Errorf("%w: %s", ErrUnknownField, strings.TrimPrefix(err.Error(), "json: unknown field "))
		}
		return f, fmt.Errorf("failed to decode search filters: %w", err)
	}
	if err := f.Normalize(); err != nil {
		return f, err
	}
	return f, nil
}

// Normalize canonicalizes names, fills defaults and validates ranges.
func (f *SearchFilters) Normalize() error {
	f.ZipCode = strings.TrimSpace(f.ZipCode)
	f.City = strings.TrimSpace(f.City)
	f.County = strings.TrimSpace(f.County)
	f.Address = strings.TrimSpace(f.Address)
	f.Neighborhood = strings.TrimSpace(f.Neighborhood)

	var distress StringList
	for _, d := range f.DistressType {
		if d == "" || strings.EqualFold(d, "all") {
			continue
		}
		c, ok := CanonicalDistress(d)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownDistress, d)
		}
		if !contains(distress, c) {
			distress = append(distress, c)
		}
	}
	f.DistressType = distress

	var hot StringList
	for _, h := range f.HotList {
		if h == "" {
			continue
		}
		c, ok := CanonicalHotList(h)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownHotList, h)
		}
		if !contains(hot, c) {
			hot = append(hot, c)
		}
	}
	f.HotList = hot

	if f.Bounds != nil {
		if err := f.Bounds.Validate(); err != nil {
			return err
		}
	}
	if f.Limit < 0 || f.Limit > MaxLimit {
		return ErrInvalidLimit
	}
	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}

	checks := []struct {
		name     string
		min, max *float64
	}{
		{"beds", intToFloat(f.MinBeds), intToFloat(f.MaxBeds)},
		{"baths", f.MinBaths, f.MaxBaths},
		{"sqft", intToFloat(f.MinSqft), intToFloat(f.MaxSqft)},
		{"year_built", intToFloat(f.MinYearBuilt), intToFloat(f.MaxYearBuilt)},
		{"price", f.MinPrice, f.MaxPrice},
		{"lot_acres", f.MinLotAcres, f.MaxLotAcres},
	}
	for _, c := range checks {
		if c.min != nil && c.max != nil && *c.min > *c.max {
			return fmt.Errorf("%w: %s", ErrInvalidRange, c.name)
		}
	}
	return nil
}

// AllPropertyTypes reports whether no property-type restriction applies.
func (f *SearchFilters) AllPropertyTypes() bool {
	if len(f.PropertyTypes) == 0 {
		return true
	}
	for _, t := range f.PropertyTypes {
		if strings.EqualFold(strings.TrimSpace(t), "all") {
			return true
		}
	}
	return false
}

// RareFeatures reports whether a rare-feature predicate (pool or garage) is active.
func (f *SearchFilters) RareFeatures() bool {
	return (f.HasPool != nil && *f.HasPool) || (f.HasGarage != nil && *f.HasGarage)
}

// HasDistress reports whether the named canonical distress type was requested.
func (f *SearchFilters) HasDistress(name string) bool {
	return contains(f.DistressType, name)
}

// RangePredicates returns the numeric-range predicates that are set.
func (f *SearchFilters) RangePredicates() []Predicate {
	var out []Predicate
	add := func(name string, min, max *float64) {
		if min == nil && max == nil {
			return
		}
		out = append(out, Predicate{Kind: KindRange, Name: name, Min: min, Max: max})
	}
	add("beds", intToFloat(f.MinBeds), intToFloat(f.MaxBeds))
	add("baths", f.MinBaths, f.MaxBaths)
	add("sqft", intToFloat(f.MinSqft), intToFloat(f.MaxSqft))
	add("year_built", intToFloat(f.MinYearBuilt), intToFloat(f.MaxYearBuilt))
	add("price", f.MinPrice, f.MaxPrice)
	add("lot_acres", f.MinLotAcres, f.MaxLotAcres)
	return out
}

// FeaturePredicates returns the feature-flag predicates that are set.
func (f *SearchFilters) FeaturePredicates() []Predicate {
	var out []Predicate
	add := func(name string, v *bool) {
		if v == nil {
			return
		}
		out = append(out, Predicate{Kind: KindFeature, Name: name, Values: []string{fmt.Sprint(*v)}})
	}
	add("pool", f.HasPool)
	add("garage", f.HasGarage)
	add("guest_house", f.HasGuestHouse)
	return out
}

func intToFloat(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
