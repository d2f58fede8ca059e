package scout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/address"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/adapters"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/arcgis"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/arcgis/arcgistest"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/config"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/leadbook"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

type fixture struct {
	zips       *arcgistest.Layer
	parcels    *arcgistest.Layer
	violations *arcgistest.Layer
	listings   *fakeListings
	rt         *Runtime
	cfg        *config.Config
}

// fakeListings stands in for the MLS sidecar. Rows are keyed by the zip or
// city a search sends, or by the street key of an address lookup.
type fakeListings struct {
	mu    sync.Mutex
	rows  map[string][]adapters.ListingRow
	calls atomic.Int64
}

func (f *fakeListings) add(location string, rows ...adapters.ListingRow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[location] = append(f.rows[location], rows...)
}

func (f *fakeListings) Calls() int { return int(f.calls.Load()) }

func (f *fakeListings) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	if r.URL.Path != "/listings" {
		http.NotFound(w, r)
		return
	}
	loc := r.URL.Query().Get("location")
	f.mu.Lock()
	rows, ok := f.rows[loc]
	if !ok {
		street, _, _ := strings.Cut(loc, ",")
		rows = f.rows[address.Key(street)]
	}
	f.mu.Unlock()
	if rows == nil {
		rows = []adapters.ListingRow{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}

func listingRow(mls, street string, lon, lat float64, agent, text string) adapters.ListingRow {
	return adapters.ListingRow{
		MLSID:     mls,
		Status:    "FOR_SALE",
		Street:    street,
		City:      "Tucson",
		State:     "AZ",
		ZipCode:   "85705",
		Latitude:  &lat,
		Longitude: &lon,
		AgentName: agent,
		Text:      text,
	}
}

func parcel(id float64, apn, situs string, lon, lat float64, mail, mailZip string) arcgis.Feature {
	return arcgistest.BoxFeature(lon-0.0005, lat-0.0005, lon+0.0005, lat+0.0005, map[string]any{
		"OBJECTID":   id,
		"PARCEL":     apn,
		"ADDRESS_OL": situs,
		"ZIP":        "85705",
		"OWNER_NAME": "OWNER " + apn,
		"MAIL_ADDR":  mail,
		"MAIL_ZIP":   mailZip,
		"PARCEL_USE": "0131",
		"FCV":        180000.0,
	})
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		zips: &arcgistest.Layer{Features: []arcgis.Feature{
			arcgistest.BoxFeature(-111.0, 32.2, -110.9, 32.3, map[string]any{"OBJECTID": 1.0, "ZIPCODE": "85705"}),
			arcgistest.BoxFeature(-111.05, 31.8, -110.95, 31.9, map[string]any{"OBJECTID": 2.0, "ZIPCODE": "85614"}),
		}},
		parcels: &arcgistest.Layer{Features: []arcgis.Feature{
			parcel(1, "115-01-001", "927 N PERRY AVE", -110.95, 32.25, "PO BOX 9", "85001"),
			parcel(2, "115-01-002", "1010 N 5TH AVE", -110.94, 32.26, "1010 N 5TH AVE", "85705"),
		}},
		violations: &arcgistest.Layer{Features: []arcgis.Feature{
			arcgistest.PointFeature(-110.95, 32.25, map[string]any{"OBJECTID": 1.0, "ADDRESS": "927 N PERRY AVE", "ZIP": "85705", "CASE_NUM": "C1", "VIOLATION_TYPE": "JUNK"}),
			arcgistest.PointFeature(-110.94, 32.26, map[string]any{"OBJECTID": 2.0, "ADDRESS": "1010 N 5TH AVE", "ZIP": "85705", "CASE_NUM": "C2", "VIOLATION_TYPE": "WEEDS"}),
		}},
	}
	srv := arcgistest.NewServer(map[string]*arcgistest.Layer{
		"/zips": f.zips, "/parcels": f.parcels, "/violations": f.violations,
	})
	t.Cleanup(srv.Close)
	f.listings = &fakeListings{rows: make(map[string][]adapters.ListingRow)}
	sidecar := httptest.NewServer(f.listings)
	t.Cleanup(sidecar.Close)

	dir := t.TempDir()
	cfg := config.Default()
	cfg.Retry = config.RetryPolicy{MaxAttempts: 1, BackoffMultiplier: 1, TimeoutSec: 5}
	cfg.Cache.CountsPath = filepath.Join(dir, "counts.json")
	cfg.LeadBookPath = filepath.Join(dir, "leads.json")
	cfg.Recorder.CookieJarPath = ""
	cfg.Upstreams = config.UpstreamsConfig{
		ZipLayer:       srv.LayerURL("/zips"),
		ParcelLayer:    srv.LayerURL("/parcels"),
		ViolationLayer: srv.LayerURL("/violations"),
		ListingURL:     sidecar.URL,
		NativeWKID:     geo.WGS84,
	}
	f.cfg = cfg
	f.open(t)
	return f
}

// open (re)builds the runtime over the fixture's layers.
func (f *fixture) open(t *testing.T) {
	t.Helper()
	rt, err := Open(context.Background(), f.cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	f.rt = rt
}

func ids(leads []types.Lead) []string {
	out := make([]string, len(leads))
	for i, l := range leads {
		out[i] = l.ID
	}
	return out
}

func TestSearchViolationsInZip(t *testing.T) {
	fx := newFixture(t)
	resp, err := fx.rt.Service.Search(context.Background(), types.SearchFilters{
		ZipCode:      "85705",
		DistressType: types.StringList{types.DistressCodeViolations},
		Limit:        10,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Warning)
	require.Len(t, resp.Leads, 2)
	for _, l := range resp.Leads {
		assert.True(t, l.Signals.Has(types.SignalCodeViolation), l.Address)
		assert.NotEmpty(t, l.ParcelID, l.Address)
		assert.True(t, l.IsEnriched(types.EnrichedParcel), l.Address)
	}
}

func TestSearchViolationAndAbsentee(t *testing.T) {
	fx := newFixture(t)
	resp, err := fx.rt.Service.Search(context.Background(), types.SearchFilters{
		ZipCode:      "85705",
		DistressType: types.StringList{types.DistressCodeViolations, types.DistressAbsentee},
		Limit:        10,
	})
	require.NoError(t, err)
	require.Len(t, resp.Leads, 1)
	l := resp.Leads[0]
	assert.Equal(t, "927 N PERRY AVE", l.Address)
	assert.Equal(t, "115-01-001", l.ParcelID)
	assert.True(t, l.Signals.HasAll(types.SignalCodeViolation, types.SignalAbsentee))
}

func TestSearchIsRepeatableAndCached(t *testing.T) {
	fx := newFixture(t)
	f := types.SearchFilters{ZipCode: "85705", DistressType: types.StringList{types.DistressCodeViolations}, Limit: 1}

	first, err := fx.rt.Service.Search(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, first.Leads, 1)
	violationCalls, parcelCalls := fx.violations.Calls(), fx.parcels.Calls()

	second, err := fx.rt.Service.Search(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, ids(first.Leads), ids(second.Leads))
	assert.Equal(t, violationCalls, fx.violations.Calls())
	assert.Equal(t, parcelCalls, fx.parcels.Calls())
}

func TestSearchViolationsOutsideMunicipalityWarns(t *testing.T) {
	fx := newFixture(t)
	resp, err := fx.rt.Service.Search(context.Background(), types.SearchFilters{
		City:         "Green Valley",
		DistressType: types.StringList{types.DistressCodeViolations},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Leads)
	assert.NotNil(t, resp.Leads)
	assert.Equal(t, "Code violation data is only available for Tucson.", resp.Warning)
	assert.Zero(t, fx.violations.Calls())
}

func TestSearchUnknownZipWarns(t *testing.T) {
	fx := newFixture(t)
	resp, err := fx.rt.Service.Search(context.Background(), types.SearchFilters{ZipCode: "85999"})
	require.NoError(t, err)
	assert.Empty(t, resp.Leads)
	assert.Contains(t, resp.Warning, "85999")
	assert.Zero(t, fx.parcels.Calls())
}

func TestSearchRejectsUnknownDistress(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.rt.Service.Search(context.Background(), types.SearchFilters{DistressType: types.StringList{"haunted"}})
	assert.ErrorIs(t, err, types.ErrUnknownDistress)
}

func TestSearchAddress(t *testing.T) {
	fx := newFixture(t)
	resp, err := fx.rt.Service.Search(context.Background(), types.SearchFilters{Address: "927 N Perry Avenue, Tucson, AZ"})
	require.NoError(t, err)
	require.Len(t, resp.Leads, 1)
	assert.Equal(t, "115-01-001", resp.Leads[0].ParcelID)
	assert.Zero(t, fx.violations.Calls())

	resp, err = fx.rt.Service.Search(context.Background(), types.SearchFilters{Address: "1 Nowhere Rd"})
	require.NoError(t, err)
	assert.Empty(t, resp.Leads)
	assert.Equal(t, "No parcel found at 1 Nowhere Rd.", resp.Warning)
}

func TestSearchAddressPropertyTypeMismatch(t *testing.T) {
	fx := newFixture(t)
	resp, err := fx.rt.Service.Search(context.Background(), types.SearchFilters{
		Address:       "927 N Perry Ave",
		PropertyTypes: types.StringList{types.TypeCondo},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Leads)
}

func TestSearchRequestDeadline(t *testing.T) {
	fx := newFixture(t)
	fx.violations.Delay = 2 * time.Second
	fx.rt.Service.limits.Request = 200 * time.Millisecond

	start := time.Now()
	resp, err := fx.rt.Service.Search(context.Background(), types.SearchFilters{
		ZipCode:      "85705",
		DistressType: types.StringList{types.DistressCodeViolations},
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.NotNil(t, resp.Leads)
}

func TestRareFeatureServedFromCache(t *testing.T) {
	fx := newFixture(t)
	pool := types.Lead{Source: adapters.SourceParcels, Address: "931 N PERRY AVE", Zip: "85705", PropertyUseCode: "0131", HasPool: types.Bool(true)}
	pool.SetPoint(32.251, -110.949)
	fx.rt.Cache.Save(&pool)

	resp, err := fx.rt.Service.Search(context.Background(), types.SearchFilters{ZipCode: "85705", HasPool: types.Bool(true), Limit: 1})
	require.NoError(t, err)
	require.Len(t, resp.Leads, 1)
	assert.Equal(t, "931 N PERRY AVE", resp.Leads[0].Address)
	assert.NotEmpty(t, resp.Leads[0].ID)
	assert.Zero(t, fx.parcels.Calls())
}

func addresses(leads []types.Lead) []string {
	out := make([]string, len(leads))
	for i, l := range leads {
		out[i] = l.Address
	}
	return out
}

func TestSearchFSBOAbsentee(t *testing.T) {
	fx := newFixture(t)
	fsbo := listingRow("M1", "927 N Perry Ave", -110.95, 32.25, "", "Owner will carry")
	fsbo.PropertyURL = "https://listings.example/927-n-perry-ave"
	fx.listings.add("85705", fsbo, listingRow("M2", "1010 N 5th Ave", -110.94, 32.26, "Jane Agent", ""))

	resp, err := fx.rt.Service.Search(context.Background(), types.SearchFilters{
		ZipCode:      "85705",
		HotList:      types.StringList{types.HotFSBO},
		DistressType: types.StringList{types.DistressAbsentee},
		Limit:        10,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Warning)
	require.Len(t, resp.Leads, 1)
	l := resp.Leads[0]
	assert.Equal(t, "927 N PERRY AVE", l.Address)
	assert.Equal(t, "115-01-001", l.ParcelID)
	assert.True(t, l.Signals.HasAll(types.SignalFSBO, types.SignalAbsentee), l.Signals)
	assert.Equal(t, "https://listings.example/927-n-perry-ave", l.PropertyURL)
}

func TestRepeatedPoolSearchSkipsKnownListingMisses(t *testing.T) {
	fx := newFixture(t)
	fx.listings.add(address.Key("927 N PERRY AVE"), listingRow("M4", "927 N Perry Ave", -110.95, 32.25, "Jane Agent", "Heated pool and spa"))
	f := types.SearchFilters{ZipCode: "85705", HasPool: types.Bool(true), Limit: 2}

	first, err := fx.rt.Service.Search(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, []string{"927 N PERRY AVE"}, addresses(first.Leads))
	firstCalls := fx.listings.Calls()
	require.Positive(t, firstCalls)

	second, err := fx.rt.Service.Search(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, []string{"927 N PERRY AVE"}, addresses(second.Leads))
	assert.Less(t, fx.listings.Calls()-firstCalls, firstCalls)
}

func TestCachedLeadWithoutParcelIsNotRepeated(t *testing.T) {
	fx := newFixture(t)
	cached := types.Lead{Source: adapters.SourceListings, Address: "927 N PERRY AVE", Zip: "85705", PropertyUseCode: "0131", HasPool: types.Bool(true)}
	cached.SetPoint(32.25, -110.95)
	fx.rt.Cache.Save(&cached)
	fx.listings.add(address.Key("1010 N 5TH AVE"), listingRow("M3", "1010 N 5th Ave", -110.94, 32.26, "Jane Agent", "Diving pool"))

	resp, err := fx.rt.Service.Search(context.Background(), types.SearchFilters{ZipCode: "85705", HasPool: types.Bool(true), Limit: 3})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"927 N PERRY AVE", "1010 N 5TH AVE"}, addresses(resp.Leads))
}

// A triangular zip clips about half of every envelope query, so most
// rounds come back short of what was asked.
func TestSearchWidensPastClippedRounds(t *testing.T) {
	for run := 0; run < 5; run++ {
		fx := newFixture(t)
		ring := [][2]float64{{-111.0, 32.2}, {-110.9, 32.2}, {-111.0, 32.3}, {-111.0, 32.2}}
		fx.zips.Features[0] = arcgis.Feature{
			Attributes: map[string]any{"OBJECTID": 1.0, "ZIPCODE": "85705"},
			Geometry:   &arcgis.FeatureGeometry{Rings: [][][2]float64{ring}},
		}
		var fs []arcgis.Feature
		for i := 0; i < 10; i++ {
			fs = append(fs,
				parcel(float64(i+1), fmt.Sprintf("120-01-%03d", i), fmt.Sprintf("%d W ELM ST", 100+i), -110.99+0.002*float64(i), 32.21, "", ""),
				parcel(float64(i+101), fmt.Sprintf("120-02-%03d", i), fmt.Sprintf("%d E OAK ST", 100+i), -110.92+0.002*float64(i), 32.29, "", ""),
			)
		}
		fx.parcels.Features = fs

		resp, err := fx.rt.Service.Search(context.Background(), types.SearchFilters{ZipCode: "85705", Limit: 5})
		require.NoError(t, err)
		require.Len(t, resp.Leads, 5, "run %d", run)
		for _, l := range resp.Leads {
			assert.True(t, strings.HasSuffix(l.Address, "W ELM ST"), l.Address)
		}
	}
}

type stubMarket struct{}

func (stubMarket) Unemployment(context.Context) (adapters.Observation, error) {
	return adapters.Observation{Value: 6, Year: 2024}, nil
}

func (stubMarket) PermitsChange(context.Context) (adapters.Observation, error) {
	return adapters.Observation{}, errors.New("census down")
}

func (stubMarket) PopulationGrowth(context.Context) (adapters.Observation, error) {
	return adapters.Observation{Value: 1.5, Year: 2023}, nil
}

func (stubMarket) MortgageRate(context.Context) (adapters.Observation, error) {
	return adapters.Observation{Value: 5.5, Year: 2024}, nil
}

func TestMarketRescalesMissingComponents(t *testing.T) {
	s := New(Deps{Market: stubMarket{}})
	rep, err := s.Market(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 50.0, rep.Score, 0.01)
	assert.Equal(t, []string{ComponentPermits}, rep.Missing)
	require.Contains(t, rep.Components, ComponentPopulation)
	assert.Equal(t, 2023, rep.Components[ComponentPopulation].Year)
	assert.InDelta(t, 50.0, rep.Components[ComponentUnemployment].Score, 0.01)
}

func TestMarketUnavailable(t *testing.T) {
	_, err := New(Deps{}).Market(context.Background())
	assert.ErrorIs(t, err, ErrMarketUnavailable)
}

func TestLinearScore(t *testing.T) {
	unemployment := linear(10, 2)
	assert.Equal(t, 100.0, unemployment(1))
	assert.Equal(t, 0.0, unemployment(12))
	assert.InDelta(t, 75.0, unemployment(4), 1e-9)
	permits := linear(-20, 20)
	assert.InDelta(t, 50.0, permits(0), 1e-9)
}

func TestSettings(t *testing.T) {
	s := New(Deps{})
	assert.Equal(t, types.DefaultLimit, s.Settings().DefaultLimit)

	got, err := s.UpdateSettings(Settings{LogLevel: "debug", DefaultLimit: 20})
	require.NoError(t, err)
	assert.Equal(t, Settings{LogLevel: "debug", DefaultLimit: 20}, got)

	_, err = s.UpdateSettings(Settings{LogLevel: "loud"})
	assert.ErrorIs(t, err, ErrInvalidSettings)
	_, err = s.UpdateSettings(Settings{DefaultLimit: types.MaxLimit + 1})
	assert.ErrorIs(t, err, ErrInvalidSettings)
	assert.Equal(t, 20, s.DefaultLimit())
}

func TestImport(t *testing.T) {
	book, err := leadbook.Load(filepath.Join(t.TempDir(), "leads.json"))
	require.NoError(t, err)
	s := New(Deps{Book: book})

	res, err := s.Import(context.Background(), []types.Lead{
		{Address: "927 N PERRY AVE", OwnerName: "SMITH JOHN"},
		{Address: "927 n perry avenue"},
	})
	require.NoError(t, err)
	assert.Equal(t, leadbook.ImportResult{Added: 1, Merged: 1}, res)
	assert.Len(t, s.SavedLeads(), 1)

	cached, ok := s.cache.Get("927 N Perry Ave")
	require.True(t, ok)
	assert.Equal(t, "SMITH JOHN", cached.OwnerName)

	_, err = New(Deps{}).Import(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoLeadBook)
}

func TestLookupParcelWithoutSnapshot(t *testing.T) {
	_, err := New(Deps{}).LookupParcel(context.Background(), "115-01-001")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}
