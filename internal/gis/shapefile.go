package gis

import (
	"context"
	"fmt"
	"sync"

	shp "github.com/jonas-p/go-shp"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/config"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
)

// ShapefileLayer is a local polygon layer held entirely in memory. When the
// file is stored in a state plane, query points are projected with the
// configured Lambert conformal conic before the containment test.
type ShapefileLayer struct {
	name   string
	path   string
	field  string
	target string
	proj   *geo.LambertConformalConic

	mu    sync.Mutex
	index *geo.Index
}

// NewShapefileLayer creates a layer from its configuration. The file is read
// on first lookup or by Load.
func NewShapefileLayer(cfg config.ShapefileLayer) *ShapefileLayer {
	target := cfg.Target
	if target == "" {
		target = TargetZoning
	}
	name := cfg.Name
	if name == "" {
		name = cfg.Path
	}
	return &ShapefileLayer{name: name, path: cfg.Path, field: cfg.Field, target: target, proj: cfg.Projection}
}

func (s *ShapefileLayer) Name() string   { return s.name }
func (s *ShapefileLayer) Target() string { return s.target }

// Load reads the shapefile once; later calls are no-ops.
func (s *ShapefileLayer) Load() (*geo.Index, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		return s.index, nil
	}
	feats, err := loadShapefile(s.path)
	if err != nil {
		return nil, fmt.Errorf("load shapefile %s: %w", s.path, err)
	}
	s.index = geo.NewIndex(feats, 0)
	return s.index, nil
}

// Lookup implements Layer.
func (s *ShapefileLayer) Lookup(ctx context.Context, points []geo.Point) ([][]string, error) {
	ix, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := make([][]string, len(points))
	for i, p := range points {
		if i%1024 == 0 && ctx.Err() != nil {
			return out, ctx.Err()
		}
		x, y := p.Lon, p.Lat
		if s.proj != nil {
			x, y = s.proj.Forward(p.Lat, p.Lon)
		}
		out[i] = valuesOf(ix.LookupAll(x, y), s.field)
	}
	return out, nil
}

// loadShapefile reads every polygon of the file together with its attribute
// row. Rings keep the file's native (x, y) coordinates.
func loadShapefile(path string) ([]geo.Feature, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	fields := r.Fields()

	var features []geo.Feature
	for r.Next() {
		idx, shape := r.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			continue
		}

		out := geo.NewPolygon(0)
		numParts := len(poly.Parts)
		for partIdx := 0; partIdx < numParts; partIdx++ {
			start := poly.Parts[partIdx]
			end := int32(len(poly.Points))
			if partIdx+1 < numParts {
				end = poly.Parts[partIdx+1]
			}
			ring := make(geo.Ring, 0, int(end-start))
			for i := start; i < end; i++ {
				pt := poly.Points[i]
				ring = append(ring, [2]float64{pt.X, pt.Y})
			}
			out.AddRing(ring)
		}

		attrs := make(map[string]string, len(fields))
		for i, f := range fields {
			attrs[f.String()] = r.ReadAttribute(idx, i)
		}
		features = append(features, geo.Feature{Polygon: out, Attrs: attrs})
	}
	return features, nil
}
