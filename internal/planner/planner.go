package planner

import (
	"context"
	"errors"
	"strings"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/adapters"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/cache"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/config"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/fanout"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geometry"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/logger"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// Warnings returned when a plan cannot be satisfied.
const (
	WarnListingsSkipped   = "Hot-list filters need listing data, which was skipped for this request."
	WarnListingsScope     = "Listing data needs a zip code, city or address."
	WarnSourceUnavailable = "Code violation data is not configured."
)

// Plan is the AND plan of one search.
type Plan struct {
	// Primary drives candidate generation through Source.
	Primary types.Predicate
	Source  string
	// Secondaries verify candidates, most restrictive first.
	Secondaries []types.Predicate
	// Warning is set when no candidate can satisfy the plan.
	Warning string
}

// Needs lists the enrichment the secondaries depend on.
func (p Plan) Needs() []string {
	var out []string
	for _, s := range p.Secondaries {
		e, ok := byName[s.Name]
		if !ok || e.Needs == "" {
			continue
		}
		dup := false
		for _, n := range out {
			dup = dup || n == e.Needs
		}
		if !dup {
			out = append(out, e.Needs)
		}
	}
	return out
}

// Has reports whether the plan contains the named predicate.
func (p Plan) Has(name string) bool {
	if p.Primary.Name == name {
		return true
	}
	for _, s := range p.Secondaries {
		if s.Name == name {
			return true
		}
	}
	return false
}

// Build plans a search. The first predicate in rank order that a source can
// generate becomes the primary; everything else is a secondary. With no
// such predicate the parcel layer generates candidates, pushing down the
// property-type restriction when there is one.
func Build(f *types.SearchFilters) Plan {
	var plan Plan
	entries := ranked(f)
	primary := -1
	for i, e := range entries {
		if !e.Primary() {
			continue
		}
		if e.Source == adapters.SourceListings && f.SkipHomeharvest {
			continue
		}
		primary = i
		break
	}

	if primary >= 0 {
		e := entries[primary]
		plan.Primary = types.Predicate{Kind: e.Kind, Name: e.Name}
		plan.Source = e.Source
	} else {
		plan.Primary = parcelPredicate(f)
		plan.Source = adapters.SourceParcels
	}
	for i, e := range entries {
		if i == primary {
			continue
		}
		if e.Kind == types.KindHotList && f.SkipHomeharvest {
			plan.Warning = WarnListingsSkipped
		}
		plan.Secondaries = append(plan.Secondaries, types.Predicate{Kind: e.Kind, Name: e.Name})
	}
	return plan
}

func parcelPredicate(f *types.SearchFilters) types.Predicate {
	if !f.AllPropertyTypes() {
		vals := append(append([]string(nil), f.PropertyTypes...), f.PropertySubtypes...)
		return types.Predicate{Kind: types.KindPropertyType, Values: vals}
	}
	if f.MinLotAcres != nil || f.MaxLotAcres != nil {
		return types.Predicate{Kind: types.KindRange, Name: "lot_acres", Min: f.MinLotAcres, Max: f.MaxLotAcres}
	}
	return types.Predicate{Kind: types.KindAll}
}

// Comparables lists the parcels of a subdivision.
type Comparables interface {
	Subdivision(ctx context.Context, name string, limit int) ([]types.Lead, error)
}

// Deps are the collaborators of a Planner. Nil adapters mark sources that
// are not configured.
type Deps struct {
	Parcels    adapters.Adapter
	Violations *adapters.Violations
	Listings   adapters.Adapter
	Recorder   *adapters.RecorderAdapter
	Comps      Comparables
	Responses  *cache.ResponseCache
	Counts     *cache.Counts
	Resolver   *geometry.Resolver
	Limits     config.LimitsConfig
	Log        *logger.Logger
}

// Planner executes plans against the adapters.
type Planner struct {
	sources    map[string]adapters.Adapter
	violations *adapters.Violations
	recorder   *adapters.RecorderAdapter
	comps      Comparables
	counts     *cache.Counts
	resolver   *geometry.Resolver
	limits     config.LimitsConfig
	log        *logger.Logger
}

// New wraps every candidate source with the response cache.
func New(d Deps) *Planner {
	if d.Log == nil {
		d.Log = logger.Discard()
	}
	p := &Planner{
		sources:    make(map[string]adapters.Adapter),
		violations: d.Violations,
		recorder:   d.Recorder,
		comps:      d.Comps,
		counts:     d.Counts,
		resolver:   d.Resolver,
		limits:     d.Limits,
		log:        d.Log,
	}
	add := func(a adapters.Adapter) {
		if a != nil {
			p.sources[a.Name()] = adapters.WithCache(a, d.Responses)
		}
	}
	add(d.Parcels)
	if d.Violations != nil {
		add(d.Violations)
	}
	add(d.Listings)
	return p
}

// Candidates generates up to max candidates for the plan's primary. A
// non-empty warning means the primary cannot be satisfied in this scope.
func (p *Planner) Candidates(ctx context.Context, plan Plan, scope adapters.Scope, max int) ([]types.Lead, string) {
	if plan.Warning != "" {
		return nil, plan.Warning
	}
	if p.limits.CandidatePhase > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.limits.CandidatePhase)
		defer cancel()
	}

	a, ok := p.sources[plan.Source]
	if !ok {
		return nil, unavailable(plan.Source)
	}
	if plan.Source == adapters.SourceViolations && !p.violations.Supports(scope) {
		return nil, p.violations.UnsupportedWarning()
	}
	if plan.Source == adapters.SourceViolations && scope.Area != nil && scope.Area.Kind == geo.AreaCity && len(scope.Area.Zips) > 1 {
		return p.fanOut(ctx, a, plan.Primary, scope, max), ""
	}

	res := adapters.Safe(ctx, a, plan.Primary, scope, max, p.log)
	if res.Unsupported() {
		return nil, p.unsupported(plan.Source)
	}
	return res.Records, ""
}

// fanOut splits a city-wide query into one sub-query per member zip behind
// the municipal semaphore, sharing the limit in proportion to the zips'
// historical record counts.
func (p *Planner) fanOut(ctx context.Context, a adapters.Adapter, pred types.Predicate, scope adapters.Scope, max int) []types.Lead {
	zips := scope.Area.Zips
	var shares map[string]int
	if max > 0 && p.counts != nil {
		shares = p.counts.Allocate(a.Name(), zips, max)
	}

	outs := fanout.Gather(ctx, zips, fanout.Options{Width: p.limits.MunicipalWidth}, func(ctx context.Context, zip string) ([]types.Lead, error) {
		n := 0
		if max > 0 {
			n = max
			if shares != nil {
				n = shares[zip]
			}
			if n == 0 {
				return nil, nil
			}
		}
		area, err := p.resolver.ResolveZip(ctx, zip)
		if err != nil {
			return nil, err
		}
		res := adapters.Safe(ctx, a, pred, adapters.Scope{Zip: zip, Area: area}, n, p.log)
		if res.Err == nil && p.counts != nil {
			p.recordCount(a.Name(), zip, len(res.Records), n)
		}
		return res.Records, res.Err
	})

	vals, errs := fanout.Values(outs)
	if len(errs) > 0 {
		p.log.Warn("city fan-out incomplete", "source", a.Name(), "zips", len(zips), "failed", len(errs), "err", errors.Join(errs...))
	}
	seen := make(map[string]bool)
	var merged []types.Lead
	for _, recs := range vals {
		for _, l := range recs {
			if seen[l.ID] {
				continue
			}
			seen[l.ID] = true
			merged = append(merged, l)
		}
	}
	fanout.Shuffle(merged)
	if max > 0 && len(merged) > max {
		merged = merged[:max]
	}
	return merged
}

// recordCount keeps the per-zip estimate current. A full page only proves
// a lower bound.
func (p *Planner) recordCount(dataType, zip string, got, asked int) {
	if asked == 0 || got < asked {
		p.counts.Set(dataType, zip, got)
		return
	}
	if prev, ok := p.counts.Get(dataType, zip); !ok || prev < got {
		p.counts.Set(dataType, zip, got)
	}
}

func (p *Planner) unsupported(source string) string {
	switch source {
	case adapters.SourceViolations:
		return p.violations.UnsupportedWarning()
	case adapters.SourceListings:
		return WarnListingsScope
	}
	return "No " + source + " data is available for this area."
}

func unavailable(source string) string {
	if source == adapters.SourceViolations {
		return WarnSourceUnavailable
	}
	return strings.ToUpper(source[:1]) + source[1:] + " data is not configured."
}
