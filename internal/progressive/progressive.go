// Package progressive sizes candidate pools and enriches rare-feature pools
// a batch at a time until enough leads survive the filters.
package progressive

import (
	"context"
	"iter"
	"strings"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/enrich"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/logger"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// DefaultMultiplier applies to property types without a measured yield.
const DefaultMultiplier = 2

// multipliers are historical candidates-per-result ratios by property type.
var multipliers = map[string]int{
	strings.ToUpper(types.TypeSingleFamily):      2,
	strings.ToUpper(types.TypeVacantLand):        25,
	strings.ToUpper(types.TypePartiallyComplete): 50,
}

// Multiplier returns the largest ratio among the requested types. With no
// restriction every candidate qualifies and the ratio is 1.
func Multiplier(names []string) int {
	best := 0
	for _, n := range names {
		n = strings.ToUpper(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if n == "ALL" {
			return 1
		}
		m, ok := multipliers[n]
		if !ok {
			m = DefaultMultiplier
		}
		best = max(best, m)
	}
	if best == 0 {
		return 1
	}
	return best
}

// FetchSize is the first candidate request for limit results.
func FetchSize(limit int, names []string, fetchCap int) int {
	n := limit * Multiplier(names)
	if fetchCap > 0 && n > fetchCap {
		n = fetchCap
	}
	return max(n, 1)
}

// Rounds yields candidate-pool sizes, doubling from start up to fetchCap.
// The last size yielded is always fetchCap unless start already exceeds it.
func Rounds(start, fetchCap int) iter.Seq[int] {
	return func(yield func(int) bool) {
		n := max(start, 1)
		for {
			if fetchCap > 0 && n >= fetchCap {
				yield(fetchCap)
				return
			}
			if !yield(n) {
				return
			}
			n *= 2
		}
	}
}

// Enricher fills leads in place.
type Enricher interface {
	Enrich(ctx context.Context, leads []*types.Lead, opts enrich.Options) enrich.Stats
}

// Filter returns the members of batch that satisfy the request.
type Filter func(ctx context.Context, batch []*types.Lead) []*types.Lead

// Fetcher enriches candidate pools a batch at a time.
type Fetcher struct {
	enricher Enricher
	batch    int
	log      *logger.Logger
}

// New creates a fetcher. batch <= 0 uses 25.
func New(e Enricher, batch int, log *logger.Logger) *Fetcher {
	if batch <= 0 {
		batch = 25
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Fetcher{enricher: e, batch: batch, log: log}
}

// Until enriches candidates batch by batch, filtering after each batch, and
// stops as soon as limit leads have passed. It returns the survivors and
// the number of candidates enriched.
func (f *Fetcher) Until(ctx context.Context, candidates []*types.Lead, keep Filter, limit int, opts enrich.Options) ([]*types.Lead, int) {
	var (
		out      []*types.Lead
		enriched int
	)
	for start := 0; start < len(candidates); start += f.batch {
		if limit > 0 && len(out) >= limit {
			break
		}
		if ctx.Err() != nil {
			break
		}
		end := min(start+f.batch, len(candidates))
		batch := candidates[start:end]
		f.enricher.Enrich(ctx, batch, opts)
		enriched += len(batch)
		out = append(out, keep(ctx, batch)...)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	f.log.Debug("progressive fetch finished", "candidates", len(candidates), "enriched", enriched, "matched", len(out), "limit", limit)
	return out, enriched
}
