package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/address"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/fanout"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/httpclient"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/logger"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// Listing types accepted by the aggregator.
const (
	ListingForSale = "for_sale"
	ListingSold    = "sold"
	ListingForRent = "for_rent"
)

// Hot-list thresholds in days on market.
const (
	HighDOMDays    = 60
	NewListingDays = 7
)

// ListingRow is one row from the MLS aggregator sidecar.
type ListingRow struct {
	MLSID         string   `json:"mls_id"`
	Status        string   `json:"status"`
	Street        string   `json:"street"`
	City          string   `json:"city"`
	State         string   `json:"state"`
	ZipCode       string   `json:"zip_code"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	ListPrice     *float64 `json:"list_price"`
	DaysOnMLS     *int     `json:"days_on_mls"`
	Beds          *int     `json:"beds"`
	FullBaths     *int     `json:"full_baths"`
	HalfBaths     *int     `json:"half_baths"`
	Sqft          *int     `json:"sqft"`
	YearBuilt     *int     `json:"year_built"`
	LotSqft       *float64 `json:"lot_sqft"`
	ParkingGarage *float64 `json:"parking_garage"`
	Style         string   `json:"style"`
	AgentName     string   `json:"agent_name"`
	OfficeName    string   `json:"office_name"`
	BrokerName    string   `json:"broker_name"`
	PriceReduced  *bool    `json:"price_reduced"`
	PropertyURL   string   `json:"property_url"`
	Text          string   `json:"text"`
}

var (
	reducedText = regexp.MustCompile(`(?i)\b(price\s+(reduced|reduction|drop|improvement)|reduced\s+price|new\s+price|just\s+reduced)\b`)
	noPoolText  = regexp.MustCompile(`(?i)\bno\s+pool\b`)
	poolText    = regexp.MustCompile(`(?i)\bpool\b`)
	garageText  = regexp.MustCompile(`(?i)\b(garage|carport)\b`)
)

// Classify returns the hot-list signals a row satisfies.
func Classify(r ListingRow) types.Signals {
	var s types.Signals
	if strings.TrimSpace(r.AgentName) == "" && strings.TrimSpace(r.OfficeName) == "" && strings.TrimSpace(r.BrokerName) == "" {
		s = s.Add(types.SignalFSBO)
	}
	if (r.PriceReduced != nil && *r.PriceReduced) || reducedText.MatchString(r.Text) {
		s = s.Add(types.SignalPriceReduced)
	}
	if r.DaysOnMLS != nil {
		if *r.DaysOnMLS >= HighDOMDays {
			s = s.Add(types.SignalHighDOM)
		}
		if *r.DaysOnMLS <= NewListingDays {
			s = s.Add(types.SignalNewListing)
		}
	}
	return s
}

// PoolFromText reads a pool flag from listing remarks. Silence is unknown.
func PoolFromText(text string) *bool {
	switch {
	case noPoolText.MatchString(text):
		return types.Bool(false)
	case poolText.MatchString(text):
		return types.Bool(true)
	}
	return nil
}

// GarageFromParking reads a garage flag from the parking field, falling back
// to the remarks.
func GarageFromParking(spaces *float64, text string) *bool {
	if spaces != nil {
		return types.Bool(*spaces > 0)
	}
	if garageText.MatchString(text) {
		return types.Bool(true)
	}
	return nil
}

// Lead converts the row.
func (r ListingRow) Lead() types.Lead {
	l := types.Lead{
		Source:        SourceListings,
		SourceID:      r.MLSID,
		Address:       address.Normalize(r.Street),
		City:          strings.ToUpper(strings.TrimSpace(r.City)),
		State:         strings.ToUpper(strings.TrimSpace(r.State)),
		ListPrice:     positive(r.ListPrice),
		DaysOnMarket:  r.DaysOnMLS,
		Bedrooms:      r.Beds,
		SquareFeet:    r.Sqft,
		YearBuilt:     r.YearBuilt,
		ListingStatus: strings.ToUpper(r.Status),
		ListingAgent:  strings.TrimSpace(r.AgentName),
		ListingOffice: firstNonEmpty(r.OfficeName, r.BrokerName),
		PriceReduced:  r.PriceReduced,
		PropertyURL:   r.PropertyURL,
		Description:   r.Text,
		HasPool:       PoolFromText(r.Text),
		HasGarage:     GarageFromParking(r.ParkingGarage, r.Text),
	}
	if z := address.Zip5(r.ZipCode); z != "" {
		l.Zip, l.ZipSource = z, types.ZipFromProperty
	}
	if r.Latitude != nil && r.Longitude != nil {
		l.SetPoint(*r.Latitude, *r.Longitude)
	}
	if r.FullBaths != nil || r.HalfBaths != nil {
		baths := 0.0
		if r.FullBaths != nil {
			baths += float64(*r.FullBaths)
		}
		if r.HalfBaths != nil {
			baths += 0.5 * float64(*r.HalfBaths)
		}
		l.Bathrooms = types.Float(baths)
	}
	if r.LotSqft != nil && *r.LotSqft > 0 {
		l.LotSize = types.Float(*r.LotSqft / 43560)
	}
	if r.Style != "" {
		l.SetExtra("style", r.Style)
	}
	key := r.MLSID
	if key == "" {
		key = address.Key(r.Street) + "|" + address.Zip5(r.ZipCode)
	}
	l.ID = types.StableID(SourceListings, key)
	for _, s := range Classify(r) {
		l.Signals = l.Signals.Add(s)
	}
	l.MarkEnriched(types.EnrichedListing)
	return l
}

// Listings queries the MLS aggregator sidecar.
type Listings struct {
	http     *httpclient.Client
	baseURL  string
	width    int
	pageSize int
	log      *logger.Logger
}

// NewListings creates the adapter; width is the fan-out width for
// address lookups.
func NewListings(hc *httpclient.Client, baseURL string, width int, log *logger.Logger) *Listings {
	if width <= 0 {
		width = 10
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Listings{
		http:     hc,
		baseURL:  strings.TrimRight(baseURL, "/"),
		width:    width,
		pageSize: 200,
		log:      log.With("source", SourceListings),
	}
}

func (a *Listings) Name() string { return SourceListings }

func (a *Listings) RateLimit() RateLimit { return RateLimit{Concurrency: a.width} }

// Rows streams the aggregator's answer for a location. The body is decoded
// one row at a time, so a consumer that stops early never decodes the rest.
func (a *Listings) Rows(ctx context.Context, location, listingType string, limit int) iter.Seq2[ListingRow, error] {
	return func(yield func(ListingRow, error) bool) {
		params := url.Values{
			"location":     {location},
			"listing_type": {listingType},
		}
		if limit > 0 {
			params.Set("limit", strconv.Itoa(limit))
		}
		body, err := a.http.Get(ctx, a.baseURL+"/listings", params)
		if err != nil {
			yield(ListingRow{}, fmt.Errorf("listing search %q: %w", location, err))
			return
		}
		dec := json.NewDecoder(bytes.NewReader(body))
		if tok, err := dec.Token(); err != nil || tok != json.Delim('[') {
			yield(ListingRow{}, fmt.Errorf("listing search %q: expected a JSON array", location))
			return
		}
		for dec.More() {
			var row ListingRow
			if err := dec.Decode(&row); err != nil {
				yield(ListingRow{}, fmt.Errorf("failed to decode listing row: %w", err))
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Fetch implements Adapter. Hot-list predicates keep only rows carrying the
// matching signal; other predicates return every row in scope.
func (a *Listings) Fetch(ctx context.Context, pred types.Predicate, scope Scope, maxRecords int) ([]types.Lead, error) {
	loc := scope.Location()
	if loc == "" {
		return nil, fmt.Errorf("%w: listing search needs a zip, city or address", ErrUnsupportedScope)
	}
	listingType := ListingForSale
	if pred.Kind == types.KindScope && len(pred.Values) > 0 {
		listingType = pred.Values[0]
	}
	want := ""
	if pred.Kind == types.KindHotList {
		want = types.SignalFor(pred.Name)
	}

	var leads []types.Lead
	for row, err := range a.Rows(ctx, loc, listingType, a.pageSize) {
		if err != nil {
			return leads, err
		}
		l := row.Lead()
		if want != "" && !l.Signals.Has(want) {
			continue
		}
		if lat, lon, ok := l.Point(); ok && scope.Area != nil && !scope.Area.Contains(lat, lon) {
			continue
		}
		leads = append(leads, l)
	}
	if maxRecords > 0 && len(leads) > maxRecords {
		leads = fanout.Sample(leads, maxRecords)
	}
	return leads, nil
}

// LookupAddress returns the first for-sale listing at an address, or
// (nil, nil) when there is none.
func (a *Listings) LookupAddress(ctx context.Context, addr string) (*types.Lead, error) {
	for row, err := range a.Rows(ctx, addr, ListingForSale, 1) {
		if err != nil {
			return nil, err
		}
		l := row.Lead()
		return &l, nil
	}
	return nil, nil
}

func positive(v *float64) *float64 {
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
