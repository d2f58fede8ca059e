package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/config"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/httpclient"
)

// ErrNoData means a source had no observations for the requested year.
var ErrNoData = errors.New("no data for year")

// maxFallbackYears bounds how far back a market source will look.
const maxFallbackYears = 3

// MarketSeries identifies the series fetched for one metro area.
type MarketSeries struct {
	StateFIPS    string
	CountyFIPS   string
	Unemployment string
	Permits      string
	Mortgage     string
}

// PimaCounty is the default metro.
var PimaCounty = MarketSeries{
	StateFIPS:    "04",
	CountyFIPS:   "019",
	Unemployment: "LAUCN040190000000003",
	Permits:      "TUCS004BPPRIVSA",
	Mortgage:     "MORTGAGE30US",
}

// Observation is one market figure and the year it came from.
type Observation struct {
	Value float64 `json:"value"`
	Year  int     `json:"year"`
}

// Market fetches the labor, census and FRED figures behind the market score.
type Market struct {
	http      *httpclient.Client
	upstreams config.UpstreamsConfig
	keys      config.KeysConfig
	series    MarketSeries
	now       func() time.Time
}

// NewMarket creates the market sources.
func NewMarket(hc *httpclient.Client, upstreams config.UpstreamsConfig, keys config.KeysConfig, series MarketSeries) *Market {
	return &Market{http: hc, upstreams: upstreams, keys: keys, series: series, now: time.Now}
}

// withFallback tries the current year and then earlier years until one
// has data.
func withFallback(ctx context.Context, start int, fetch func(context.Context, int) (float64, error)) (Observation, error) {
	var errs []error
	for i := 0; i < maxFallbackYears; i++ {
		year := start - i
		v, err := fetch(ctx, year)
		if err == nil {
			return Observation{Value: v, Year: year}, nil
		}
		if ctx.Err() != nil {
			return Observation{}, ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%d: %w", year, err))
	}
	return Observation{}, errors.Join(errs...)
}

type blsResponse struct {
	Status  string `json:"status"`
	Results struct {
		Series []struct {
			Data []struct {
				Year   string `json:"year"`
				Period string `json:"period"`
				Value  string `json:"value"`
			} `json:"data"`
		} `json:"series"`
	} `json:"Results"`
}

// Unemployment returns the annual average unemployment rate in percent.
func (m *Market) Unemployment(ctx context.Context) (Observation, error) {
	return withFallback(ctx, m.now().Year(), func(ctx context.Context, year int) (float64, error) {
		req := map[string]any{
			"seriesid":  []string{m.series.Unemployment},
			"startyear": strconv.Itoa(year),
			"endyear":   strconv.Itoa(year),
		}
		if m.keys.BLS != "" {
			req["registrationkey"] = m.keys.BLS
		}
		var resp blsResponse
		if err := m.http.PostJSON(ctx, m.upstreams.BLSURL, req, &resp); err != nil {
			return 0, err
		}
		var vals []float64
		for _, s := range resp.Results.Series {
			for _, d := range s.Data {
				if d.Year != strconv.Itoa(year) || d.Period == "M13" {
					continue
				}
				if v, err := strconv.ParseFloat(d.Value, 64); err == nil {
					vals = append(vals, v)
				}
			}
		}
		if len(vals) == 0 {
			return 0, ErrNoData
		}
		return mean(vals), nil
	})
}

// population returns the ACS five-year county population.
func (m *Market) population(ctx context.Context, year int) (float64, error) {
	params := url.Values{
		"get": {"B01003_001E"},
		"for": {"county:" + m.series.CountyFIPS},
		"in":  {"state:" + m.series.StateFIPS},
	}
	if m.keys.Census != "" {
		params.Set("key", m.keys.Census)
	}
	var rows [][]string
	endpoint := fmt.Sprintf("%s/%d/acs/acs5", strings.TrimRight(m.upstreams.CensusURL, "/"), year)
	if err := m.http.GetJSON(ctx, endpoint, params, &rows); err != nil {
		return 0, err
	}
	if len(rows) < 2 || len(rows[1]) == 0 {
		return 0, ErrNoData
	}
	v, err := strconv.ParseFloat(rows[1][0], 64)
	if err != nil || v <= 0 {
		return 0, ErrNoData
	}
	return v, nil
}

// PopulationGrowth returns the year-over-year population change in percent
// for the latest year that has both that year and the one before.
func (m *Market) PopulationGrowth(ctx context.Context) (Observation, error) {
	// The ACS five-year release trails the calendar by a year.
	return withFallback(ctx, m.now().Year()-1, func(ctx context.Context, year int) (float64, error) {
		cur, err := m.population(ctx, year)
		if err != nil {
			return 0, err
		}
		prev, err := m.population(ctx, year-1)
		if err != nil {
			return 0, err
		}
		return (cur - prev) / prev * 100, nil
	})
}

type fredResponse struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

func (m *Market) fredYear(ctx context.Context, series string, year int) ([]float64, error) {
	params := url.Values{
		"series_id":         {series},
		"file_type":         {"json"},
		"observation_start": {fmt.Sprintf("%d-01-01", year)},
		"observation_end":   {fmt.Sprintf("%d-12-31", year)},
	}
	if m.keys.FRED != "" {
		params.Set("api_key", m.keys.FRED)
	}
	var resp fredResponse
	if err := m.http.GetJSON(ctx, m.upstreams.FREDURL, params, &resp); err != nil {
		return nil, err
	}
	var vals []float64
	for _, o := range resp.Observations {
		// FRED marks missing observations with ".".
		if v, err := strconv.ParseFloat(o.Value, 64); err == nil {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return nil, ErrNoData
	}
	return vals, nil
}

// PermitsChange returns the year-over-year change in permitted units, in
// percent.
func (m *Market) PermitsChange(ctx context.Context) (Observation, error) {
	return withFallback(ctx, m.now().Year(), func(ctx context.Context, year int) (float64, error) {
		cur, err := m.fredYear(ctx, m.series.Permits, year)
		if err != nil {
			return 0, err
		}
		prev, err := m.fredYear(ctx, m.series.Permits, year-1)
		if err != nil {
			return 0, err
		}
		// Compare monthly averages so a partial current year is not penalized.
		p := mean(prev)
		if p == 0 {
			return 0, ErrNoData
		}
		return (mean(cur) - p) / p * 100, nil
	})
}

// MortgageRate returns the average 30-year fixed rate in percent.
func (m *Market) MortgageRate(ctx context.Context) (Observation, error) {
	return withFallback(ctx, m.now().Year(), func(ctx context.Context, year int) (float64, error) {
		vals, err := m.fredYear(ctx, m.series.Mortgage, year)
		if err != nil {
			return 0, err
		}
		return mean(vals), nil
	})
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
