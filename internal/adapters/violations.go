package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/address"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/arcgis"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/fanout"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geometry"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/logger"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// Code-enforcement layer fields.
const (
	FieldViolAddress = "ADDRESS"
	FieldViolZip     = "ZIP"
	FieldViolCase    = "CASE_NUM"
	FieldViolType    = "VIOLATION_TYPE"
	FieldViolDesc    = "DESCRIPTION"
	FieldViolStatus  = "STATUS"
	FieldViolOpened  = "OPEN_DATE"
)

var violationFields = []string{
	arcgis.DefaultOIDField, FieldViolAddress, FieldViolZip, FieldViolCase,
	FieldViolType, FieldViolDesc, FieldViolStatus, FieldViolOpened,
}

// Violations is the municipal code-enforcement layer. It only covers one
// city, so scopes outside that municipality are refused without a call.
type Violations struct {
	gis          *arcgis.Client
	layer        string
	municipality string
	cities       *geometry.CityCatalog
	width        int
	fetchCap     int
	log          *logger.Logger
}

// NewViolations creates the adapter. width is the municipal fan-out width
// and fetchCap the per-scope record cap.
func NewViolations(gis *arcgis.Client, layerURL, municipality string, cities *geometry.CityCatalog, width, fetchCap int, log *logger.Logger) *Violations {
	if cities == nil {
		cities = geometry.DefaultCityCatalog()
	}
	if width <= 0 {
		width = 5
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Violations{
		gis:          gis,
		layer:        layerURL,
		municipality: municipality,
		cities:       cities,
		width:        width,
		fetchCap:     fetchCap,
		log:          log.With("source", SourceViolations),
	}
}

func (v *Violations) Name() string { return SourceViolations }

func (v *Violations) RateLimit() RateLimit { return RateLimit{Concurrency: v.width} }

// Municipality is the city the layer covers.
func (v *Violations) Municipality() string { return v.municipality }

// UnsupportedWarning is the user-facing message for out-of-coverage scopes.
func (v *Violations) UnsupportedWarning() string {
	return fmt.Sprintf("Code violation data is only available for %s.", titleCase(v.municipality))
}

// Supports reports whether the scope lies in the covered municipality.
// Bounds, neighborhoods and addresses are accepted; the layer simply
// returns nothing outside the city.
func (v *Violations) Supports(scope Scope) bool {
	muni := v.cities.Canonical(v.municipality)
	switch {
	case scope.Zip != "":
		return v.cities.HasZip(muni, scope.Zip)
	case scope.City != "":
		return v.cities.Canonical(scope.City) == muni
	case scope.Area != nil && scope.Area.Kind == geo.AreaCity:
		return v.cities.Canonical(scope.Area.Label) == muni
	}
	return true
}

// Fetch implements Adapter. Activities at the same address collapse into
// one lead carrying every violation.
func (v *Violations) Fetch(ctx context.Context, pred types.Predicate, scope Scope, maxRecords int) ([]types.Lead, error) {
	if !v.Supports(scope) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScope, v.UnsupportedWarning())
	}
	if scope.Area == nil {
		return nil, ErrNoArea
	}
	feats, err := v.gis.QueryAll(ctx, v.layer, arcgis.Query{
		OutFields:      violationFields,
		Geometry:       arcgis.EnvelopeGeometry(scope.Area.QueryEnvelope()),
		OutSR:          geo.WGS84,
		ReturnGeometry: true,
	}, v.fetchCap)
	leads := v.consolidate(feats, scope.Area)
	if maxRecords > 0 && len(leads) > maxRecords {
		leads = fanout.Sample(leads, maxRecords)
	}
	if err != nil {
		return leads, fmt.Errorf("failed to query code violations: %w", err)
	}
	v.log.Debug("violations fetched", "activities", len(feats), "addresses", len(leads), "scope", scope.Key())
	return leads, nil
}

func (v *Violations) consolidate(feats []arcgis.Feature, area *geo.Area) []types.Lead {
	var (
		order []string
		byKey = make(map[string]*types.Lead)
	)
	for _, f := range feats {
		a := f.Attributes
		raw := arcgis.String(a, FieldViolAddress)
		key := address.Key(raw)
		if key == "" {
			continue
		}
		x, y, hasPoint := f.Point()
		if hasPoint && !area.Contains(y, x) {
			continue
		}
		l, ok := byKey[key]
		if !ok {
			l = &types.Lead{
				ID:       types.StableID(SourceViolations, key),
				Source:   SourceViolations,
				SourceID: key,
				Address:  address.Normalize(raw),
				City:     strings.ToUpper(v.municipality),
				State:    "AZ",
			}
			if z := address.Zip5(arcgis.String(a, FieldViolZip)); z != "" {
				l.Zip, l.ZipSource = z, types.ZipFromProperty
			}
			if hasPoint {
				l.SetPoint(y, x)
			}
			l.Signals = l.Signals.Add(types.SignalCodeViolation)
			byKey[key] = l
			order = append(order, key)
		}
		l.Violations = append(l.Violations, types.Violation{
			CaseNumber:  arcgis.String(a, FieldViolCase),
			Type:        arcgis.String(a, FieldViolType),
			Description: arcgis.String(a, FieldViolDesc),
			Status:      arcgis.String(a, FieldViolStatus),
			OpenedDate:  arcgis.Date(a, FieldViolOpened),
		})
		l.ViolationCount = len(l.Violations)
	}
	out := make([]types.Lead, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
