// Package scout is the lead pipeline: it resolves the request scope, plans
// the AND filters, generates and enriches candidates, verifies them and
// assembles the response.
package scout

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync/atomic"
	"time"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/adapters"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/assemble"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/cache"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/config"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/enrich"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geometry"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/leadbook"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/logger"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/planner"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/progressive"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// AddressSearch finds parcels whose situs address starts with addr.
type AddressSearch interface {
	LookupAddress(ctx context.Context, addr string, limit int) ([]types.Lead, error)
}

// Snapshot is the local parcel copy used when the parcel layer has nothing.
type Snapshot interface {
	LookupAddress(ctx context.Context, addr string) (*types.Lead, error)
	LookupParcel(ctx context.Context, apn string) (*types.Lead, error)
}

// MarketSource supplies the figures behind the market score.
type MarketSource interface {
	Unemployment(ctx context.Context) (adapters.Observation, error)
	PermitsChange(ctx context.Context) (adapters.Observation, error)
	PopulationGrowth(ctx context.Context) (adapters.Observation, error)
	MortgageRate(ctx context.Context) (adapters.Observation, error)
}

// Deps are the service's collaborators. Parcels, Snapshot, Book and Market
// may be nil.
type Deps struct {
	Resolver *geometry.Resolver
	Planner  *planner.Planner
	Engine   *enrich.Engine
	Parcels  AddressSearch
	Snapshot Snapshot
	Cache    *cache.EnrichmentCache
	Book     *leadbook.Book
	Market   MarketSource
	Limits   config.LimitsConfig
	Log      *logger.Logger
}

// Service runs searches.
type Service struct {
	resolver     *geometry.Resolver
	planner      *planner.Planner
	engine       *enrich.Engine
	fetcher      *progressive.Fetcher
	parcels      AddressSearch
	snapshot     Snapshot
	cache        *cache.EnrichmentCache
	book         *leadbook.Book
	market       MarketSource
	limits       config.LimitsConfig
	log          *logger.Logger
	defaultLimit atomic.Int64
}

// Response is the body of a search.
type Response struct {
	Leads   []types.Lead `json:"leads"`
	Warning string       `json:"warning,omitempty"`
}

// New creates a service.
func New(d Deps) *Service {
	if d.Log == nil {
		d.Log = logger.Discard()
	}
	if d.Cache == nil {
		d.Cache = cache.NewEnrichmentCache()
	}
	s := &Service{
		resolver: d.Resolver,
		planner:  d.Planner,
		engine:   d.Engine,
		fetcher:  progressive.New(d.Engine, d.Limits.ProgressiveBatch, d.Log),
		parcels:  d.Parcels,
		snapshot: d.Snapshot,
		cache:    d.Cache,
		book:     d.Book,
		market:   d.Market,
		limits:   d.Limits,
		log:      d.Log,
	}
	s.defaultLimit.Store(types.DefaultLimit)
	return s
}

// Search runs one request. The error is non-nil only for invalid filters;
// everything upstream degrades into missing fields or a warning.
func (s *Service) Search(ctx context.Context, f types.SearchFilters) (Response, error) {
	if f.Limit == 0 {
		f.Limit = s.DefaultLimit()
	}
	if err := f.Normalize(); err != nil {
		return Response{}, err
	}
	if s.limits.Request > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.limits.Request)
		defer cancel()
	}

	start := time.Now()
	resp := s.search(ctx, &f)
	if resp.Leads == nil {
		resp.Leads = []types.Lead{}
	}
	s.log.Info("search finished", "leads", len(resp.Leads), "limit", f.Limit, "warning", resp.Warning,
		"elapsed", time.Since(start), "deadline_hit", ctx.Err() != nil)
	return resp, nil
}

func (s *Service) search(ctx context.Context, f *types.SearchFilters) Response {
	if f.Address != "" {
		return s.searchAddress(ctx, f.Address, f)
	}
	q := geometry.ScopeFromFilters(f)
	res := s.resolver.Resolve(ctx, q)
	switch {
	case res.AddressQuery != "":
		return s.searchAddress(ctx, res.AddressQuery, f)
	case res.Warning != "":
		return Response{Warning: res.Warning}
	}
	scope := adapters.Scope{Area: res.Area, Zip: q.Zip, City: q.City}

	plan := planner.Build(f)
	if plan.Warning != "" {
		return Response{Warning: plan.Warning}
	}
	s.log.Debug("search planned", "primary", plan.Primary.Key(), "source", plan.Source, "secondaries", len(plan.Secondaries), "scope", scope.Key())

	var pool []*types.Lead
	if f.RareFeatures() {
		pool = s.cachedMatches(f, plan, res.Area)
	}
	if len(pool) < f.Limit {
		seen := assemble.NewSeen()
		for _, l := range pool {
			seen.Add(l)
		}
		found, warn := s.collect(ctx, f, plan, scope, seen, f.Limit-len(pool))
		if warn != "" {
			return Response{Warning: warn}
		}
		pool = append(pool, found...)
	}

	return Response{Leads: assemble.Assemble(pool, assemble.Options{
		Area:    res.Area,
		Bounds:  f.Bounds,
		Filters: f,
		Limit:   f.Limit,
		Seed:    seedOf(f),
	})}
}

// collect grows the candidate pool round by round until want leads pass
// every filter, a round brings no property not in seen, or the fetch cap is
// reached. Sources may return fewer records than asked (polygon clipping,
// per-zip allocation), so a short round is not taken as exhaustion.
func (s *Service) collect(ctx context.Context, f *types.SearchFilters, plan planner.Plan, scope adapters.Scope, seen *assemble.Seen, want int) ([]*types.Lead, string) {
	names := append(append([]string(nil), f.PropertyTypes...), f.PropertySubtypes...)
	first := progressive.FetchSize(want, names, s.limits.FetchCap)

	var out []*types.Lead
	for n := range progressive.Rounds(first, s.limits.FetchCap) {
		recs, warn := s.planner.Candidates(ctx, plan, scope, n)
		if warn != "" {
			return nil, warn
		}
		var fresh []*types.Lead
		for i := range recs {
			l := recs[i]
			if seen.Has(&l) {
				continue
			}
			seen.Add(&l)
			fresh = append(fresh, &l)
		}
		if len(fresh) == 0 {
			break
		}

		got, warn := s.process(ctx, f, plan, scope, fresh, want-len(out))
		if warn != "" {
			return nil, warn
		}
		out = append(out, got...)
		s.log.Debug("candidate round finished", "asked", n, "received", len(recs), "new", len(fresh), "matched", len(out), "want", want)
		if len(out) >= want || ctx.Err() != nil {
			break
		}
	}
	return out, ""
}

// process enriches a round of candidates and returns those that pass the
// secondaries and the post-enrichment filters.
func (s *Service) process(ctx context.Context, f *types.SearchFilters, plan planner.Plan, scope adapters.Scope, leads []*types.Lead, want int) ([]*types.Lead, string) {
	var warn string
	filter := func(ctx context.Context, batch []*types.Lead) []*types.Lead {
		if warn != "" {
			return nil
		}
		kept, w := s.planner.Verify(ctx, plan, batch, scope)
		if w != "" {
			warn = w
			return nil
		}
		var out []*types.Lead
		for _, l := range kept {
			if assemble.Matches(l, f) {
				out = append(out, l)
			}
		}
		return out
	}
	opts := enrich.Options{SkipListings: f.SkipHomeharvest}

	switch {
	case f.SkipEnrichment:
		if len(plan.Needs()) > 0 {
			s.engine.Enrich(ctx, leads, enrich.Options{ParcelsOnly: true})
		}
		return filter(ctx, leads), warn
	case f.RareFeatures():
		got, _ := s.fetcher.Until(ctx, leads, filter, want, opts)
		return got, warn
	}
	s.engine.Enrich(ctx, leads, opts)
	return filter(ctx, leads), warn
}

// cachedMatches serves rare-feature requests from leads enriched by earlier
// searches before any upstream is touched.
func (s *Service) cachedMatches(f *types.SearchFilters, plan planner.Plan, area *geo.Area) []*types.Lead {
	wanted := planSignals(plan)
	found := s.cache.Find(func(l *types.Lead) bool {
		lat, lon, ok := l.Point()
		if !ok {
			return false
		}
		if area != nil && !area.IsEmpty() && !area.Contains(lat, lon) {
			return false
		}
		if f.Bounds != nil && !f.Bounds.Contains(lat, lon) {
			return false
		}
		return l.Signals.HasAll(wanted...) && assemble.Matches(l, f)
	}, f.Limit)

	out := make([]*types.Lead, 0, len(found))
	for i := range found {
		l := found[i]
		l.ID = types.StableID(l.Source, assemble.DedupeKey(&l))
		out = append(out, &l)
	}
	if len(out) > 0 {
		s.log.Debug("rare-feature cache hits", "matches", len(out), "limit", f.Limit)
	}
	return out
}

// planSignals lists the signals a lead needs to satisfy every distress and
// hot-list predicate of the plan.
func planSignals(plan planner.Plan) []string {
	var out []string
	for _, p := range append([]types.Predicate{plan.Primary}, plan.Secondaries...) {
		if p.Kind == types.KindDistress || p.Kind == types.KindHotList {
			out = append(out, types.SignalFor(p.Name))
		}
	}
	return out
}

// seedOf derives the shuffle seed from the normalized filters so identical
// requests return identical sets.
func seedOf(f *types.SearchFilters) uint64 {
	h := fnv.New64a()
	_ = json.NewEncoder(h).Encode(f)
	return h.Sum64()
}

// DefaultLimit is the limit applied when a request sets none.
func (s *Service) DefaultLimit() int {
	return int(s.defaultLimit.Load())
}
