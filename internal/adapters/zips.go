package adapters

import (
	"context"
	"fmt"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/address"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/arcgis"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geometry"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// Zips assigns property zips by point-in-polygon against the zip layer.
type Zips struct {
	gis   *arcgis.Client
	layer string
}

// NewZips creates the locator.
func NewZips(gis *arcgis.Client, layerURL string) *Zips {
	return &Zips{gis: gis, layer: layerURL}
}

func (z *Zips) Name() string { return SourceZips }

// NeedsZip reports whether a lead's zip is missing or was copied from the
// owner's mailing address.
func NeedsZip(l *types.Lead) bool {
	if !l.HasPoint() || l.IsEnriched(types.EnrichedZip) {
		return false
	}
	return l.Zip == "" || l.ZipSource == types.ZipFromOwner
}

// Backfill sets the zip of every lead that needs one with a single query
// over the leads' combined extent. It returns how many leads changed.
func (z *Zips) Backfill(ctx context.Context, leads []*types.Lead) (int, error) {
	var (
		todo []*types.Lead
		pts  []geo.Point
	)
	for _, l := range leads {
		if NeedsZip(l) {
			todo = append(todo, l)
			pts = append(pts, geo.Point{Lat: *l.Latitude, Lon: *l.Longitude})
		}
	}
	if len(todo) == 0 {
		return 0, nil
	}

	env := geo.EnvelopeOfPoints(pts).Buffer(0.001)
	fs, err := z.gis.Query(ctx, z.layer, arcgis.Query{
		OutFields:      []string{geometry.FieldZipCode},
		Geometry:       arcgis.EnvelopeGeometry(env),
		OutSR:          geo.WGS84,
		ReturnGeometry: true,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to query zip polygons: %w", err)
	}
	features := make([]geo.Feature, 0, len(fs.Features))
	for _, f := range fs.Features {
		zip := address.Zip5(arcgis.String(f.Attributes, geometry.FieldZipCode))
		if zip == "" {
			continue
		}
		features = append(features, geo.Feature{
			Polygon: f.Polygon(geo.WGS84),
			Attrs:   map[string]string{geometry.FieldZipCode: zip},
		})
	}
	idx := geo.NewIndex(features, 0)

	changed := 0
	for i, l := range todo {
		l.MarkEnriched(types.EnrichedZip)
		f, ok := idx.Lookup(pts[i].Lon, pts[i].Lat)
		if !ok {
			continue
		}
		l.Zip, l.ZipSource = f.Attrs[geometry.FieldZipCode], types.ZipFromSpatial
		changed++
	}
	return changed, nil
}
