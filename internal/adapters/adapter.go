// Package adapters wraps the upstream data sources behind one contract:
// Fetch(predicate, scope, maxRecords). Errors and panics stop at this
// boundary and come back as a Result.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/cache"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/logger"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

var (
	// ErrUnsupportedScope marks a predicate the source cannot answer for
	// the requested scope.
	ErrUnsupportedScope = errors.New("predicate not supported for this scope")
	// ErrAdapterPanic wraps a recovered panic.
	ErrAdapterPanic = errors.New("adapter panicked")
	// ErrNoArea is returned by spatial adapters called without an area.
	ErrNoArea = errors.New("scope has no resolved area")
)

// Source names.
const (
	SourceParcels    = "parcels"
	SourceViolations = "violations"
	SourceListings   = "listings"
	SourceRecorder   = "recorder"
	SourceZips       = "zips"
)

// Scope is the resolved location handed to an adapter.
type Scope struct {
	Area    *geo.Area
	Zip     string
	City    string
	Address string
}

// Key is a deterministic description of the scope used in cache keys.
func (s Scope) Key() string {
	parts := []string{s.Zip, strings.ToUpper(s.City), strings.ToUpper(s.Address)}
	if s.Area != nil {
		parts = append(parts, s.Area.Kind, s.Area.Label, s.Area.QueryEnvelope().String())
	}
	return strings.Join(parts, "|")
}

// Location returns the free-text location for text-keyed providers.
func (s Scope) Location() string {
	switch {
	case s.Address != "":
		return s.Address
	case s.Zip != "":
		return s.Zip
	case s.City != "":
		return s.City + ", AZ"
	case s.Area != nil && len(s.Area.Zips) == 1:
		return s.Area.Zips[0]
	}
	return ""
}

// RateLimit is the declared pacing of a source.
type RateLimit struct {
	// Concurrency is the fan-out width; 0 means unbounded.
	Concurrency int
	// Interval is the minimum gap between calls; 0 means none.
	Interval time.Duration
}

// Adapter is a candidate source.
type Adapter interface {
	Name() string
	RateLimit() RateLimit
	Fetch(ctx context.Context, pred types.Predicate, scope Scope, maxRecords int) ([]types.Lead, error)
}

// Result is what crosses the adapter boundary. Records may be partial when
// Err is set.
type Result struct {
	Source  string
	Records []types.Lead
	Err     error
}

// Unsupported reports whether the failure is a scope mismatch rather than an
// upstream fault.
func (r Result) Unsupported() bool {
	return errors.Is(r.Err, ErrUnsupportedScope)
}

// Safe calls a.Fetch, logging failures and converting panics into errors.
func Safe(ctx context.Context, a Adapter, pred types.Predicate, scope Scope, maxRecords int, log *logger.Logger) (res Result) {
	res.Source = a.Name()
	if log == nil {
		log = logger.Discard()
	}
	defer func() {
		if r := recover(); r != nil {
			res.Records = nil
			res.Err = fmt.Errorf("%w: %s: %v", ErrAdapterPanic, a.Name(), r)
			log.Error("adapter panicked", "source", a.Name(), "predicate", pred.Key(), "panic", r)
		}
	}()

	recs, err := a.Fetch(ctx, pred, scope, maxRecords)
	if err != nil && !errors.Is(err, ErrUnsupportedScope) {
		log.Warn("upstream fetch failed", "source", a.Name(), "predicate", pred.Key(), "partial", len(recs), "err", err)
	}
	res.Records, res.Err = recs, err
	return res
}

type cached struct {
	Adapter
	rc *cache.ResponseCache
}

// WithCache serves repeated fetches of the same (source, predicate, scope)
// from the response cache. Failed fetches are passed through uncached.
func WithCache(a Adapter, rc *cache.ResponseCache) Adapter {
	if rc == nil {
		return a
	}
	return &cached{Adapter: a, rc: rc}
}

func (c *cached) Fetch(ctx context.Context, pred types.Predicate, scope Scope, maxRecords int) ([]types.Lead, error) {
	key := cache.ResponseKey{
		Source:    c.Name(),
		Predicate: pred.Key(),
		ScopeHash: cache.ScopeHash(struct {
			Scope string
			Max   int
		}{scope.Key(), maxRecords}),
	}
	var partial []types.Lead
	recs, _, err := c.rc.GetOrFetch(ctx, key, func(ctx context.Context) ([]types.Lead, error) {
		r, err := c.Adapter.Fetch(ctx, pred, scope, maxRecords)
		if err != nil {
			partial = r
		}
		return r, err
	})
	if err != nil {
		return partial, err
	}
	return recs, nil
}

// leadPoint sets the point of l from a feature, using the polygon centroid
// for parcel polygons.
func leadPoint(l *types.Lead, x, y float64, ok bool, poly *geo.Polygon) {
	if ok {
		l.SetPoint(y, x)
		return
	}
	if cx, cy, ok := poly.Centroid(); ok {
		l.SetPoint(cy, cx)
	}
}
