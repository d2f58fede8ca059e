// Package geometry resolves human location inputs (zip, city, neighborhood,
// bounds) into areas usable for upstream filtering and containment tests.
package geometry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/address"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/arcgis"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/cache"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/fanout"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/logger"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// ErrUnresolvable is returned when a scope matches nothing upstream.
var ErrUnresolvable = errors.New("scope could not be resolved")

// Layer field names.
const (
	FieldZipCode     = "ZIPCODE"
	FieldZipCity     = "ZIPCITY"
	FieldAddress     = "ADDRESS"
	FieldNbhdName    = "NAME"
	FieldSubdivision = "SUB_NAME"
)

// Layers are the ArcGIS layers the resolver queries.
type Layers struct {
	Address      string
	Zip          string
	Neighborhood string
	Subdivision  string
	NativeWKID   int
}

// Scope is a location request. Zip wins over neighborhood, neighborhood over
// city, city over bounds.
type Scope struct {
	Zip          string
	City         string
	Neighborhood string
	Bounds       *types.Bounds
}

// ScopeFromFilters extracts the scope of a search.
func ScopeFromFilters(f *types.SearchFilters) Scope {
	s := Scope{
		Zip:          address.Zip5(f.ZipCode),
		City:         strings.TrimSpace(f.City),
		Neighborhood: strings.TrimSpace(f.Neighborhood),
		Bounds:       f.Bounds,
	}
	if s.Zip == "" && strings.TrimSpace(f.ZipCode) != "" {
		// Keep the raw value so the warning names it.
		s.Zip = strings.TrimSpace(f.ZipCode)
	}
	return s
}

// IsZero reports whether no location was given.
func (s Scope) IsZero() bool {
	return s.Zip == "" && s.City == "" && s.Neighborhood == "" && s.Bounds == nil
}

// Result is the outcome of a resolution.
type Result struct {
	Area *geo.Area
	// Warning explains an unresolvable scope.
	Warning string
	// AddressQuery is set when a neighborhood name turned out to be a street
	// address; the caller should run an address search instead.
	AddressQuery string
}

// Resolver turns scopes into areas, caching every success.
type Resolver struct {
	gis    *arcgis.Client
	layers Layers
	cities *CityCatalog
	cache  *cache.GeometryCache
	width  int
	log    *logger.Logger
}

// NewResolver creates a resolver.
func NewResolver(gis *arcgis.Client, layers Layers, cities *CityCatalog, gc *cache.GeometryCache, width int, log *logger.Logger) *Resolver {
	if cities == nil {
		cities = DefaultCityCatalog()
	}
	if gc == nil {
		gc = cache.NewGeometryCache()
	}
	if width <= 0 {
		width = 5
	}
	if layers.NativeWKID == 0 {
		layers.NativeWKID = geo.WGS84
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Resolver{gis: gis, layers: layers, cities: cities, cache: gc, width: width, log: log}
}

// Cities exposes the curated catalog.
func (r *Resolver) Cities() *CityCatalog {
	return r.cities
}

// Resolve resolves the most specific location in s. A zero scope yields a
// zero Result.
func (r *Resolver) Resolve(ctx context.Context, s Scope) Result {
	switch {
	case s.Zip != "":
		area, err := r.ResolveZip(ctx, s.Zip)
		return r.wrap(area, err, "zip code "+s.Zip)
	case s.Neighborhood != "":
		if address.HasStreetSuffix(s.Neighborhood) {
			return Result{AddressQuery: s.Neighborhood}
		}
		area, err := r.ResolveNeighborhood(ctx, s.Neighborhood)
		return r.wrap(area, err, "neighborhood "+s.Neighborhood)
	case s.City != "":
		area, err := r.ResolveCity(ctx, s.City)
		return r.wrap(area, err, "city "+s.City)
	case s.Bounds != nil:
		return Result{Area: BoundsArea(*s.Bounds)}
	}
	return Result{}
}

func (r *Resolver) wrap(area *geo.Area, err error, what string) Result {
	if err != nil {
		if !errors.Is(err, ErrUnresolvable) {
			r.log.Warn("geometry resolution failed", "scope", what, "err", err)
		}
		return Result{Warning: fmt.Sprintf("Could not resolve %s; no results returned.", what)}
	}
	return Result{Area: area}
}

// BoundsArea is the passthrough for a rectangular scope.
func BoundsArea(b types.Bounds) *geo.Area {
	env := geo.Envelope{XMin: b.West, YMin: b.South, XMax: b.East, YMax: b.North, WKID: geo.WGS84}
	return &geo.Area{Label: "bounds", Kind: geo.AreaBounds, Envelope: env, Bounds: env}
}

// ResolveZip resolves a five-digit zip from the zip polygon layer.
func (r *Resolver) ResolveZip(ctx context.Context, zip string) (*geo.Area, error) {
	zip5 := address.Zip5(zip)
	if zip5 == "" {
		return nil, fmt.Errorf("%w: invalid zip %q", ErrUnresolvable, zip)
	}
	return r.cache.GetOrResolve(ctx, cache.ScopeKey(geo.AreaZip, zip5), func(ctx context.Context) (*geo.Area, error) {
		area, err := r.polygonArea(ctx, r.layers.Zip, fmt.Sprintf("%s = %s", FieldZipCode, arcgis.Quote(zip5)))
		if err != nil {
			return nil, err
		}
		area.Label, area.Kind, area.Zips = zip5, geo.AreaZip, []string{zip5}
		return area, nil
	})
}

// ResolveCity resolves a city to the union of its member zips.
func (r *Resolver) ResolveCity(ctx context.Context, city string) (*geo.Area, error) {
	return r.cache.GetOrResolve(ctx, cache.ScopeKey(geo.AreaCity, city), func(ctx context.Context) (*geo.Area, error) {
		zips, err := r.CityZips(ctx, city)
		if err != nil {
			return nil, err
		}
		outs := fanout.Gather(ctx, zips, fanout.Options{Width: r.width}, r.ResolveZip)

		area := &geo.Area{
			Label:    strings.ToUpper(city),
			Kind:     geo.AreaCity,
			Envelope: geo.EmptyEnvelope(r.layers.NativeWKID),
			Bounds:   geo.EmptyEnvelope(geo.WGS84),
			Polygon:  geo.NewPolygon(geo.WGS84),
		}
		for _, o := range outs {
			if o.Err != nil || o.Value.IsEmpty() {
				continue
			}
			area.Envelope = area.Envelope.Union(o.Value.Envelope)
			area.Bounds = area.Bounds.Union(o.Value.Bounds)
			area.Polygon.Merge(o.Value.Polygon)
			area.Zips = append(area.Zips, o.Value.Zips...)
		}
		if area.IsEmpty() {
			return nil, fmt.Errorf("%w: city %q", ErrUnresolvable, city)
		}
		sort.Strings(area.Zips)
		return area, nil
	})
}

// CityZips lists the zips of a city: the curated catalog first, otherwise
// the distinct ZIPCODE values the address layer assigns to that ZIPCITY.
func (r *Resolver) CityZips(ctx context.Context, city string) ([]string, error) {
	if zips, ok := r.cities.Zips(city); ok {
		return zips, nil
	}
	fs, err := r.gis.Query(ctx, r.layers.Address, arcgis.Query{
		Where:     fmt.Sprintf("UPPER(%s) = %s", FieldZipCity, arcgis.Quote(strings.ToUpper(strings.TrimSpace(city)))),
		OutFields: []string{FieldZipCode},
		Distinct:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list zips for %s: %w", city, err)
	}
	seen := map[string]bool{}
	var zips []string
	for _, f := range fs.Features {
		z := address.Zip5(arcgis.String(f.Attributes, FieldZipCode))
		if z != "" && !seen[z] {
			seen[z] = true
			zips = append(zips, z)
		}
	}
	if len(zips) == 0 {
		return nil, fmt.Errorf("%w: city %q", ErrUnresolvable, city)
	}
	sort.Strings(zips)
	return zips, nil
}

// ResolveNeighborhood tries the neighborhood-association layer, then the
// finer subdivision layer.
func (r *Resolver) ResolveNeighborhood(ctx context.Context, name string) (*geo.Area, error) {
	return r.cache.GetOrResolve(ctx, cache.ScopeKey(geo.AreaNeighborhood, name), func(ctx context.Context) (*geo.Area, error) {
		upper := strings.ToUpper(strings.TrimSpace(name))
		attempts := []struct{ layer, field string }{
			{r.layers.Neighborhood, FieldNbhdName},
			{r.layers.Subdivision, FieldSubdivision},
		}
		var lastErr error
		for _, a := range attempts {
			if a.layer == "" {
				continue
			}
			area, err := r.polygonArea(ctx, a.layer, fmt.Sprintf("UPPER(%s) = %s", a.field, arcgis.Quote(upper)))
			if err == nil {
				area.Label, area.Kind = upper, geo.AreaNeighborhood
				return area, nil
			}
			lastErr = err
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("%w: neighborhood %q", ErrUnresolvable, name)
		}
		return nil, lastErr
	})
}

// polygonArea queries a polygon layer twice in parallel: once in the native
// reference for the server-side envelope and once in WGS84 for the polygon.
func (r *Resolver) polygonArea(ctx context.Context, layerURL, where string) (*geo.Area, error) {
	srs := []int{r.layers.NativeWKID}
	if r.layers.NativeWKID != geo.WGS84 {
		srs = append(srs, geo.WGS84)
	}
	outs := fanout.Gather(ctx, srs, fanout.Options{}, func(ctx context.Context, sr int) (*arcgis.FeatureSet, error) {
		return r.gis.Query(ctx, layerURL, arcgis.Query{Where: where, OutFields: []string{"*"}, OutSR: sr, ReturnGeometry: true})
	})

	area := &geo.Area{
		Envelope: geo.EmptyEnvelope(r.layers.NativeWKID),
		Bounds:   geo.EmptyEnvelope(geo.WGS84),
		Polygon:  geo.NewPolygon(geo.WGS84),
	}
	var errs []error
	for _, o := range outs {
		if o.Err != nil {
			errs = append(errs, o.Err)
			continue
		}
		sr := srs[o.Index]
		for _, f := range o.Value.Features {
			poly := f.Polygon(sr)
			if sr == r.layers.NativeWKID {
				area.Envelope = area.Envelope.Union(poly.Box)
			}
			if sr == geo.WGS84 {
				area.Polygon.Merge(poly)
				area.Bounds = area.Bounds.Union(poly.Box)
			}
		}
	}
	if len(errs) == len(srs) {
		return nil, errors.Join(errs...)
	}
	if area.IsEmpty() && area.Envelope.IsEmpty() {
		return nil, ErrUnresolvable
	}
	return area, nil
}
