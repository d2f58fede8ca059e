package planner

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/adapters"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/address"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/fanout"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

const (
	// LongHoldYears is the minimum ownership span for a long hold.
	LongHoldYears = 10
	// NeighborMiles is the radius of the undervalued comparison.
	NeighborMiles = 0.1
	// MinNeighbors is the fewest valued neighbours an undervalued call needs.
	MinNeighbors = 3
	// violationPrecision rounds coordinates to about 11 m.
	violationPrecision = 4
	// comparableLimit caps the parcels loaded per subdivision.
	comparableLimit = 200
)

// verifyCost orders verification so that in-memory checks thin the pool
// before anything touches the network.
func verifyCost(name string) int {
	switch {
	case name == types.DistressCodeViolations:
		return 1
	case IsRecorder(name):
		return 2
	}
	return 0
}

// Verify keeps the leads that satisfy every secondary predicate and adds the
// matching signals. A non-empty warning means a predicate cannot be
// evaluated in this scope, in which case nothing survives.
func (p *Planner) Verify(ctx context.Context, plan Plan, leads []*types.Lead, scope adapters.Scope) ([]*types.Lead, string) {
	secondaries := append([]types.Predicate(nil), plan.Secondaries...)
	sort.SliceStable(secondaries, func(i, j int) bool {
		return verifyCost(secondaries[i].Name) < verifyCost(secondaries[j].Name)
	})

	var recorderSignals []string
	for _, pred := range secondaries {
		if IsRecorder(pred.Name) {
			recorderSignals = append(recorderSignals, types.SignalFor(pred.Name))
		}
	}

	recorderDone := false
	for _, pred := range secondaries {
		if len(leads) == 0 {
			break
		}
		switch {
		case pred.Name == types.DistressAbsentee:
			leads = keep(leads, types.SignalAbsentee, isAbsentee)
		case pred.Name == types.DistressLongHold:
			now := time.Now()
			leads = keep(leads, types.SignalLongHold, func(l *types.Lead) bool {
				return types.YearsSince(l.LastSaleDate, now) >= LongHoldYears
			})
		case pred.Name == types.DistressUndervalued:
			MarkUndervalued(leads, p.comparables(ctx, leads))
			leads = keep(leads, types.SignalUndervalued, nil)
		case pred.Kind == types.KindHotList:
			leads = keep(leads, types.SignalFor(pred.Name), nil)
		case pred.Name == types.DistressCodeViolations:
			var warn string
			leads, warn = p.verifyViolations(ctx, leads, scope)
			if warn != "" {
				return nil, warn
			}
		case IsRecorder(pred.Name) && !recorderDone:
			recorderDone = true
			leads = p.verifyRecorder(ctx, leads, recorderSignals)
		}
	}
	return leads, ""
}

// keep filters leads by signal. A lead already carrying the signal passes;
// otherwise test decides and a pass adds the signal. A nil test only
// accepts leads that already carry it.
func keep(leads []*types.Lead, signal string, test func(*types.Lead) bool) []*types.Lead {
	out := make([]*types.Lead, 0, len(leads))
	for _, l := range leads {
		if !l.Signals.Has(signal) {
			if test == nil || !test(l) {
				continue
			}
			l.Signals = l.Signals.Add(signal)
		}
		out = append(out, l)
	}
	return out
}

func isAbsentee(l *types.Lead) bool {
	return address.IsAbsentee(l.Address, l.Zip, l.MailingAddress, l.MailingZip)
}

// MarkUndervalued tags every lead whose assessed value sits more than one
// standard deviation below the mean of its valued neighbours. Comparables
// only contribute values; they are never tagged.
func MarkUndervalued(leads []*types.Lead, comps []types.Lead) {
	type valued struct {
		l        *types.Lead
		lat, lon float64
		v        float64
	}
	add := func(pool []valued, l *types.Lead) []valued {
		lat, lon, ok := l.Point()
		if !ok || l.AssessedValue == nil || *l.AssessedValue <= 0 {
			return pool
		}
		return append(pool, valued{l: l, lat: lat, lon: lon, v: *l.AssessedValue})
	}
	var pool []valued
	for _, l := range leads {
		pool = add(pool, l)
	}
	candidates := len(pool)
	for i := range comps {
		pool = add(pool, &comps[i])
	}

	for i, a := range pool[:candidates] {
		var vals []float64
		for j, b := range pool {
			if i != j && geo.DistanceMiles(a.lat, a.lon, b.lat, b.lon) <= NeighborMiles {
				vals = append(vals, b.v)
			}
		}
		if len(vals) < MinNeighbors {
			continue
		}
		mean, std := geo.MeanStd(vals)
		if std > 0 && a.v < mean-std {
			a.l.Signals = a.l.Signals.Add(types.SignalUndervalued)
		}
	}
}

// comparables loads the other parcels of the candidates' subdivisions so a
// thin candidate pool still has neighbours to compare against.
func (p *Planner) comparables(ctx context.Context, leads []*types.Lead) []types.Lead {
	if p.comps == nil {
		return nil
	}
	own := make(map[string]bool, len(leads))
	seen := make(map[string]bool)
	var names []string
	for _, l := range leads {
		if l.ParcelID != "" {
			own[strings.ToUpper(l.ParcelID)] = true
		}
		name := strings.ToUpper(strings.TrimSpace(l.Subdivision))
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}

	outs := fanout.Gather(ctx, names, fanout.Options{Width: p.limits.MunicipalWidth, Timeout: p.limits.ParcelPhase},
		func(ctx context.Context, name string) ([]types.Lead, error) {
			return p.comps.Subdivision(ctx, name, comparableLimit)
		})
	var out []types.Lead
	for _, o := range outs {
		if o.Err != nil {
			p.log.Warn("comparable lookup failed", "subdivision", names[o.Index], "err", o.Err)
			continue
		}
		for _, c := range o.Value {
			if !own[strings.ToUpper(c.ParcelID)] {
				out = append(out, c)
			}
		}
	}
	return out
}

// verifyViolations fetches the scope's violation set once and matches
// candidates by rounded point, falling back to the street address.
func (p *Planner) verifyViolations(ctx context.Context, leads []*types.Lead, scope adapters.Scope) ([]*types.Lead, string) {
	a, ok := p.sources[adapters.SourceViolations]
	if !ok {
		return nil, WarnSourceUnavailable
	}
	if !p.violations.Supports(scope) {
		return nil, p.violations.UnsupportedWarning()
	}

	pred := types.Predicate{Kind: types.KindDistress, Name: types.DistressCodeViolations}
	var found []types.Lead
	if scope.Area != nil && scope.Area.Kind == geo.AreaCity && len(scope.Area.Zips) > 1 {
		found = p.fanOut(ctx, a, pred, scope, 0)
	} else {
		found = adapters.Safe(ctx, a, pred, scope, 0, p.log).Records
	}

	byPoint := make(map[[2]int64]*types.Lead, len(found))
	byAddr := make(map[string]*types.Lead, len(found))
	for i := range found {
		v := &found[i]
		if lat, lon, ok := v.Point(); ok {
			byPoint[geo.RoundKey(lat, lon, violationPrecision)] = v
		}
		if k := address.Key(v.Address); k != "" {
			byAddr[k] = v
		}
	}

	return keep(leads, types.SignalCodeViolation, func(l *types.Lead) bool {
		var v *types.Lead
		if lat, lon, ok := l.Point(); ok {
			v = byPoint[geo.RoundKey(lat, lon, violationPrecision)]
		}
		if v == nil {
			v = byAddr[address.Key(l.Address)]
		}
		if v == nil {
			return false
		}
		if len(l.Violations) == 0 {
			l.Violations = append([]types.Violation(nil), v.Violations...)
			l.ViolationCount = v.ViolationCount
		}
		return true
	}), ""
}

// verifyRecorder looks up owners one at a time until the recorder budget is
// spent. Leads past the budget cannot be verified and are dropped.
func (p *Planner) verifyRecorder(ctx context.Context, leads []*types.Lead, wanted []string) []*types.Lead {
	out := make([]*types.Lead, 0, len(leads))
	spent := 0
	for _, l := range leads {
		if l.IsEnriched(types.EnrichedRecorder) {
			if l.Signals.HasAll(wanted...) {
				out = append(out, l)
			}
			continue
		}
		if p.recorder == nil || spent >= p.limits.RecorderBudget || ctx.Err() != nil {
			continue
		}
		spent++
		ok, err := p.recorder.VerifyLead(ctx, l, wanted...)
		if err != nil {
			p.log.Warn("recorder verification failed", "owner", l.OwnerName, "err", err)
			continue
		}
		if ok {
			out = append(out, l)
		}
	}
	if spent > 0 {
		p.log.Debug("recorder budget used", "spent", spent, "budget", p.limits.RecorderBudget, "verified", len(out))
	}
	return out
}
