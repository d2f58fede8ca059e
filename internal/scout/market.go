package scout

import (
	"context"
	"errors"
	"math"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/adapters"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/fanout"
)

// Market score components.
const (
	ComponentUnemployment = "unemployment"
	ComponentPermits      = "permits"
	ComponentPopulation   = "population_growth"
	ComponentMortgage     = "mortgage_rate"
)

// ErrMarketUnavailable means no component could be fetched.
var ErrMarketUnavailable = errors.New("market data is unavailable")

// Component is one scored market figure.
type Component struct {
	Value  float64 `json:"value"`
	Year   int     `json:"year"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// MarketReport is the market-analysis response.
type MarketReport struct {
	Score      float64              `json:"score"`
	Components map[string]Component `json:"components"`
	Missing    []string             `json:"missing,omitempty"`
}

type marketFactor struct {
	name   string
	weight float64
	fetch  func(context.Context) (adapters.Observation, error)
	// score maps the raw value to 0..100.
	score func(float64) float64
}

// linear maps from to 0 and to to 100, clamped; from may exceed to.
func linear(from, to float64) func(float64) float64 {
	return func(v float64) float64 {
		return math.Max(0, math.Min(100, (v-from)/(to-from)*100))
	}
}

// Market scores the metro 0..100: unemployment 25%, permits 25%,
// population growth 40%, mortgage rate 10%. Missing components drop out
// and the remaining weights are rescaled.
func (s *Service) Market(ctx context.Context) (MarketReport, error) {
	if s.market == nil {
		return MarketReport{}, ErrMarketUnavailable
	}
	factors := []marketFactor{
		{ComponentUnemployment, 0.25, s.market.Unemployment, linear(10, 2)},
		{ComponentPermits, 0.25, s.market.PermitsChange, linear(-20, 20)},
		{ComponentPopulation, 0.40, s.market.PopulationGrowth, linear(0, 3)},
		{ComponentMortgage, 0.10, s.market.MortgageRate, linear(8, 3)},
	}
	outs := fanout.Gather(ctx, factors, fanout.Options{}, func(ctx context.Context, f marketFactor) (adapters.Observation, error) {
		return f.fetch(ctx)
	})

	rep := MarketReport{Components: make(map[string]Component)}
	got := make(map[int]bool)
	total, weights := 0.0, 0.0
	for _, o := range outs {
		f := factors[o.Index]
		if o.Err != nil {
			s.log.Warn("market component unavailable", "component", f.name, "err", o.Err)
			continue
		}
		got[o.Index] = true
		sc := f.score(o.Value.Value)
		rep.Components[f.name] = Component{Value: o.Value.Value, Year: o.Value.Year, Score: math.Round(sc*10) / 10, Weight: f.weight}
		total += sc * f.weight
		weights += f.weight
	}
	for i, f := range factors {
		if !got[i] {
			rep.Missing = append(rep.Missing, f.name)
		}
	}
	if weights == 0 {
		return rep, ErrMarketUnavailable
	}
	rep.Score = math.Round(total/weights*10) / 10
	return rep, nil
}
