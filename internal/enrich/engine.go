// Package enrich fills candidate leads from the caches, the parcel layer,
// the listing provider, the GIS overlays and the zip layer, one phase at a
// time with a deadline per phase.
package enrich

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/address"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/cache"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/config"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/fanout"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/gis"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/logger"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// ParcelSource fills owner and parcel fields.
type ParcelSource interface {
	EnrichByPoints(ctx context.Context, leads []*types.Lead) (int, error)
	LookupAddress(ctx context.Context, addr string, limit int) ([]types.Lead, error)
}

// AddressLookup returns the record at one address, or (nil, nil).
type AddressLookup interface {
	LookupAddress(ctx context.Context, addr string) (*types.Lead, error)
}

// ZipSource re-derives property zips spatially.
type ZipSource interface {
	Backfill(ctx context.Context, leads []*types.Lead) (int, error)
}

// Deps are the engine's collaborators. Any source may be nil.
type Deps struct {
	Cache    *cache.EnrichmentCache
	Parcels  ParcelSource
	Snapshot AddressLookup
	Listings AddressLookup
	Layers   []gis.Layer
	Zips     ZipSource
	Limits   config.LimitsConfig
	Log      *logger.Logger
}

// Options adjust one Enrich call.
type Options struct {
	// SkipListings leaves the listing provider alone.
	SkipListings bool
	// ParcelsOnly stops after the parcel phase.
	ParcelsOnly bool
}

// Stats counts what each phase contributed.
type Stats struct {
	CacheHits     int
	Parcels       int
	Listings      int
	ListingMisses int
	Overlays      int
	Zips          int
}

// Engine runs the enrichment phases.
type Engine struct {
	cache    *cache.EnrichmentCache
	parcels  ParcelSource
	snapshot AddressLookup
	listings AddressLookup
	layers   []gis.Layer
	zips     ZipSource
	limits   config.LimitsConfig
	log      *logger.Logger
}

// New creates an engine.
func New(d Deps) *Engine {
	if d.Cache == nil {
		d.Cache = cache.NewEnrichmentCache()
	}
	if d.Log == nil {
		d.Log = logger.Discard()
	}
	return &Engine{
		cache:    d.Cache,
		parcels:  d.Parcels,
		snapshot: d.Snapshot,
		listings: d.Listings,
		layers:   d.Layers,
		zips:     d.Zips,
		limits:   d.Limits,
		log:      d.Log,
	}
}

// Enrich runs every phase over leads in place and saves the result to the
// enrichment cache. A phase that hits its deadline keeps whatever finished;
// a cancelled ctx stops the pipeline at the next phase boundary.
func (e *Engine) Enrich(ctx context.Context, leads []*types.Lead, opts Options) Stats {
	var st Stats
	if len(leads) == 0 {
		return st
	}
	start := time.Now()
	defer func() {
		e.cache.SaveAll(leads)
		e.log.Debug("enrichment finished", "leads", len(leads), "cache_hits", st.CacheHits, "parcels", st.Parcels,
			"listings", st.Listings, "listing_misses", st.ListingMisses, "overlays", st.Overlays, "zips", st.Zips,
			"elapsed", time.Since(start))
	}()

	for _, l := range leads {
		if e.cache.Apply(l) {
			st.CacheHits++
		}
	}

	if ctx.Err() != nil {
		return st
	}
	st.Parcels = e.parcelPhase(ctx, leads)
	for _, l := range leads {
		Derive(l)
	}
	if opts.ParcelsOnly || ctx.Err() != nil {
		return st
	}

	var (
		wg       sync.WaitGroup
		listings []listingResult
		overlays []overlayResult
	)
	if !opts.SkipListings && e.listings != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			listings = e.listingPhase(ctx, leads)
		}()
	}
	if len(e.layers) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			overlays = e.overlayPhase(ctx, leads)
		}()
	}
	wg.Wait()

	for _, r := range listings {
		l := leads[r.index]
		if r.lead == nil {
			e.cache.MarkListingMiss(l.Address)
			st.ListingMisses++
			continue
		}
		l.FillMissing(r.lead)
		l.MarkEnriched(types.EnrichedListing)
		st.Listings++
	}
	for _, r := range overlays {
		for i, idx := range r.indexes {
			gis.Apply(leads[idx], r.target, r.values[i])
		}
		st.Overlays += len(r.indexes)
	}

	if ctx.Err() != nil {
		return st
	}
	if e.zips != nil {
		zctx, cancel := context.WithTimeout(ctx, e.limits.OverlayBase)
		n, err := e.zips.Backfill(zctx, leads)
		cancel()
		if err != nil {
			e.log.Warn("zip backfill failed", "err", err)
		}
		st.Zips = n
	}

	for _, l := range leads {
		Derive(l)
	}
	return st
}

// parcelPhase matches leads with a point against parcel polygons, then
// looks up the rest by address, falling back to the parcel snapshot.
func (e *Engine) parcelPhase(ctx context.Context, leads []*types.Lead) int {
	if e.parcels == nil && e.snapshot == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, e.limits.ParcelPhase)
	defer cancel()

	n := 0
	if e.parcels != nil {
		got, err := e.parcels.EnrichByPoints(ctx, leads)
		if err != nil {
			e.log.Warn("parcel point enrichment incomplete", "matched", got, "err", err)
		}
		n += got
	}

	var byAddr []*types.Lead
	for _, l := range leads {
		if !l.HasPoint() && l.Address != "" && !l.IsEnriched(types.EnrichedParcel) {
			byAddr = append(byAddr, l)
		}
	}
	addrs := make([]string, len(byAddr))
	for i, l := range byAddr {
		addrs[i] = l.Address
	}
	outs := fanout.Gather(ctx, addrs, fanout.Options{}, e.parcelByAddress)
	for _, o := range outs {
		if o.Err != nil {
			e.log.Debug("parcel address lookup failed", "address", addrs[o.Index], "err", o.Err)
			continue
		}
		if o.Value != nil {
			l := byAddr[o.Index]
			l.FillMissing(o.Value)
			l.MarkEnriched(types.EnrichedParcel)
			n++
		}
	}
	return n
}

// parcelByAddress tries the parcel layer and then the snapshot. It returns
// (nil, nil) when neither knows the address.
func (e *Engine) parcelByAddress(ctx context.Context, addr string) (*types.Lead, error) {
	var layerErr error
	if e.parcels != nil {
		found, err := e.parcels.LookupAddress(ctx, addr, 1)
		if len(found) > 0 {
			found[0].ID = ""
			return &found[0], nil
		}
		layerErr = err
	}
	if e.snapshot != nil {
		found, err := e.snapshot.LookupAddress(ctx, addr)
		if found != nil || err != nil {
			return found, err
		}
	}
	return nil, layerErr
}

type listingResult struct {
	index int
	lead  *types.Lead
}

// listingPhase looks up every unenriched address behind the listing
// semaphore. It only reads the leads; results are applied by the caller.
func (e *Engine) listingPhase(ctx context.Context, leads []*types.Lead) []listingResult {
	type job struct {
		index int
		addr  string
		key   string
	}
	var jobs []job
	for i, l := range leads {
		if l.Address == "" || l.IsEnriched(types.EnrichedListing) || e.cache.ListingMissed(l.Address) {
			continue
		}
		jobs = append(jobs, job{index: i, addr: fullAddress(l), key: address.Key(l.Address)})
	}

	outs := fanout.Gather(ctx, jobs, fanout.Options{Width: e.limits.ListingWidth, Timeout: e.limits.ListingPhase}, func(ctx context.Context, j job) (listingResult, error) {
		cctx, cancel := context.WithTimeout(ctx, e.limits.ListingCall)
		defer cancel()
		found, err := e.listings.LookupAddress(cctx, j.addr)
		if err != nil {
			return listingResult{}, err
		}
		// The provider matches loosely; anything at another street is a miss.
		if found != nil && address.Key(found.Address) != j.key {
			found = nil
		}
		return listingResult{index: j.index, lead: found}, nil
	})

	results := make([]listingResult, 0, len(outs))
	failed := 0
	for _, o := range outs {
		if o.Err != nil {
			failed++
			continue
		}
		results = append(results, o.Value)
	}
	if failed > 0 || len(outs) < len(jobs) {
		e.log.Warn("listing enrichment incomplete", "requested", len(jobs), "completed", len(outs)-failed, "failed", failed)
	}
	return results
}

type overlayResult struct {
	target  string
	indexes []int
	values  [][]string
}

type overlayJob struct {
	layer   gis.Layer
	indexes []int
	points  []geo.Point
}

// overlayPhase asks every layer about the leads still missing its field.
// The points are collected up front; results are applied by the caller.
func (e *Engine) overlayPhase(ctx context.Context, leads []*types.Lead) []overlayResult {
	var jobs []overlayJob
	for _, layer := range e.layers {
		j := overlayJob{layer: layer}
		for i, l := range leads {
			lat, lon, ok := l.Point()
			if !ok || gis.Has(l, layer.Target()) || l.IsEnriched(layer.Target()) {
				continue
			}
			j.indexes = append(j.indexes, i)
			j.points = append(j.points, geo.Point{Lat: lat, Lon: lon})
		}
		if len(j.points) > 0 {
			jobs = append(jobs, j)
		}
	}
	if len(jobs) == 0 {
		return nil
	}

	timeout := e.limits.OverlayDeadline(len(jobs))
	outs := fanout.Gather(ctx, jobs, fanout.Options{Timeout: timeout}, func(ctx context.Context, j overlayJob) (overlayResult, error) {
		vals, err := j.layer.Lookup(ctx, j.points)
		if err != nil {
			e.log.Warn("overlay lookup failed", "layer", j.layer.Name(), "points", len(j.points), "err", err)
			return overlayResult{}, err
		}
		return overlayResult{target: j.layer.Target(), indexes: j.indexes, values: vals}, nil
	})

	var results []overlayResult
	for _, o := range outs {
		if o.Err == nil && len(o.Value.values) == len(o.Value.indexes) {
			results = append(results, o.Value)
		}
	}
	if len(outs) < len(jobs) {
		e.log.Warn("overlay enrichment hit deadline", "layers", len(jobs), "completed", len(outs), "deadline", timeout)
	}
	return results
}

// fullAddress is the free-text form sent to the listing provider.
func fullAddress(l *types.Lead) string {
	parts := []string{l.Address}
	if l.City != "" {
		parts = append(parts, l.City)
	}
	state := l.State
	if state == "" {
		state = "AZ"
	}
	parts = append(parts, strings.TrimSpace(state+" "+l.Zip))
	return strings.Join(parts, ", ")
}
