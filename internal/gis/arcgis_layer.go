package gis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/arcgis"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/fanout"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/logger"
)

// Mode selects how an ArcGIS layer is queried.
type Mode int

const (
	// ModeAuto counts the layer once and loads it whole when small enough.
	ModeAuto Mode = iota
	// ModeWhole always loads the layer into memory.
	ModeWhole
	// ModeMultipoint sends batched multipoint intersection queries.
	ModeMultipoint
)

// LayerSpec describes one ArcGIS overlay layer.
type LayerSpec struct {
	Name   string
	URL    string
	Field  string
	Target string
	Mode   Mode
}

// ArcGISLayer is an overlay backed by a remote feature layer.
type ArcGISLayer struct {
	spec      LayerSpec
	gis       *arcgis.Client
	batchSize int
	maxWhole  int
	log       *logger.Logger

	mu      sync.RWMutex
	decided bool
	index   *geo.Index
	group   singleflight.Group
}

// NewArcGISLayer creates a layer. batchSize bounds multipoint queries;
// maxWhole is the largest feature count loaded whole in ModeAuto.
func NewArcGISLayer(spec LayerSpec, gis *arcgis.Client, batchSize, maxWhole int, log *logger.Logger) *ArcGISLayer {
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxWhole <= 0 {
		maxWhole = 2000
	}
	if log == nil {
		log = logger.Discard()
	}
	return &ArcGISLayer{spec: spec, gis: gis, batchSize: batchSize, maxWhole: maxWhole, log: log.With("layer", spec.Name)}
}

func (l *ArcGISLayer) Name() string   { return l.spec.Name }
func (l *ArcGISLayer) Target() string { return l.spec.Target }

// Lookup implements Layer.
func (l *ArcGISLayer) Lookup(ctx context.Context, points []geo.Point) ([][]string, error) {
	out := make([][]string, len(points))
	if len(points) == 0 {
		return out, nil
	}
	ix, err := l.wholeIndex(ctx)
	if err != nil {
		return nil, err
	}
	if ix != nil {
		for i, p := range points {
			out[i] = valuesOf(ix.LookupAll(p.Lon, p.Lat), l.spec.Field)
		}
		return out, nil
	}
	return l.multipoint(ctx, points)
}

// wholeIndex returns the in-memory index, loading it on first use, or nil
// when the layer is queried by multipoint.
func (l *ArcGISLayer) wholeIndex(ctx context.Context) (*geo.Index, error) {
	if l.spec.Mode == ModeMultipoint {
		return nil, nil
	}
	l.mu.RLock()
	decided, ix := l.decided, l.index
	l.mu.RUnlock()
	if decided {
		return ix, nil
	}

	v, err, _ := l.group.Do("load", func() (any, error) {
		whole := l.spec.Mode == ModeWhole
		if !whole {
			n, err := l.gis.QueryCount(ctx, l.spec.URL, arcgis.Query{})
			if err != nil {
				return nil, fmt.Errorf("failed to count %s: %w", l.spec.Name, err)
			}
			whole = n <= l.maxWhole
			l.log.Debug("overlay layer sized", "count", n, "whole", whole)
		}
		var ix *geo.Index
		if whole {
			features, err := l.gis.QueryAll(ctx, l.spec.URL, arcgis.Query{
				OutFields:      []string{l.spec.Field},
				OutSR:          geo.WGS84,
				ReturnGeometry: true,
			}, 0)
			if err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", l.spec.Name, err)
			}
			ix = geo.NewIndex(l.toFeatures(features), 0)
		}
		l.mu.Lock()
		l.decided, l.index = true, ix
		l.mu.Unlock()
		return ix, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*geo.Index), nil
}

// multipoint intersects batches of points with the layer in parallel. The
// parcel-scale layers tolerate load, so batches are not throttled.
func (l *ArcGISLayer) multipoint(ctx context.Context, points []geo.Point) ([][]string, error) {
	type batch struct {
		start  int
		points []geo.Point
	}
	var batches []batch
	start := 0
	for _, chunk := range fanout.Batch(points, l.batchSize) {
		batches = append(batches, batch{start: start, points: chunk})
		start += len(chunk)
	}

	outs := fanout.Gather(ctx, batches, fanout.Options{}, func(ctx context.Context, b batch) ([][]string, error) {
		fs, err := l.gis.Query(ctx, l.spec.URL, arcgis.Query{
			OutFields:      []string{l.spec.Field},
			Geometry:       arcgis.MultipointGeometry(b.points),
			SpatialRel:     arcgis.RelIntersects,
			OutSR:          geo.WGS84,
			ReturnGeometry: true,
		})
		if err != nil {
			return nil, err
		}
		features := l.toFeatures(fs.Features)
		vals := make([][]string, len(b.points))
		for i, p := range b.points {
			var hits []geo.Feature
			for _, f := range features {
				if f.Polygon.Contains(p.Lon, p.Lat) {
					hits = append(hits, f)
				}
			}
			vals[i] = valuesOf(hits, l.spec.Field)
		}
		return vals, nil
	})

	result := make([][]string, len(points))
	var errs []error
	for _, o := range outs {
		if o.Err != nil {
			errs = append(errs, o.Err)
			continue
		}
		copy(result[batches[o.Index].start:], o.Value)
	}
	if len(errs) > 0 {
		if len(errs) == len(batches) {
			return nil, fmt.Errorf("overlay %s: %w", l.spec.Name, errors.Join(errs...))
		}
		l.log.Warn("overlay batches failed", "failed", len(errs), "batches", len(batches), "err", errs[0])
	}
	return result, nil
}

func (l *ArcGISLayer) toFeatures(in []arcgis.Feature) []geo.Feature {
	out := make([]geo.Feature, 0, len(in))
	for _, f := range in {
		poly := f.Polygon(geo.WGS84)
		if poly.IsEmpty() {
			continue
		}
		out = append(out, geo.Feature{
			Polygon: poly,
			Attrs:   map[string]string{l.spec.Field: arcgis.String(f.Attributes, l.spec.Field)},
		})
	}
	return out
}
