package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/config"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/httpclient"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

const listingRows = `[
 {"mls_id": "A1", "status": "FOR_SALE", "street": "927 N Perry Ave", "city": "Tucson", "state": "AZ", "zip_code": "85705",
  "latitude": 32.25, "longitude": -110.95, "list_price": 250000, "days_on_mls": 3, "full_baths": 1, "half_baths": 1,
  "lot_sqft": 7000, "parking_garage": 2, "text": "Sparkling pool and a new roof."},
 {"mls_id": "A2", "status": "FOR_SALE", "street": "931 N Perry Ave", "city": "Tucson", "state": "AZ", "zip_code": "85705",
  "latitude": 32.25, "longitude": -110.948, "list_price": 199000, "days_on_mls": 95, "agent_name": "Pat Agent",
  "office_name": "Desert Realty", "text": "Price reduced! No pool."},
 {"mls_id": "A3", "status": "FOR_SALE", "street": "1 Far Away Rd", "city": "Tucson", "state": "AZ", "zip_code": "85739",
  "latitude": 32.5, "longitude": -110.5, "days_on_mls": 20, "agent_name": "Lee", "office_name": "Big Co", "price_reduced": true}
]`

type sidecarLog struct {
	mu        sync.Mutex
	locations []string
}

func (s *sidecarLog) add(loc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locations = append(s.locations, loc)
}

func (s *sidecarLog) Locations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.locations...)
}

func listingServer(t *testing.T, body string) (*Listings, *sidecarLog) {
	t.Helper()
	log := &sidecarLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.add(r.URL.Query().Get("location"))
		if r.URL.Path != "/listings" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewListings(httpclient.New(testPolicy, nil), srv.URL, 10, nil), log
}

func TestClassify(t *testing.T) {
	var rows []ListingRow
	require.NoError(t, json.Unmarshal([]byte(listingRows), &rows))

	assert.Equal(t, types.Signals{types.SignalFSBO, types.SignalNewListing}, Classify(rows[0]))
	assert.Equal(t, types.Signals{types.SignalPriceReduced, types.SignalHighDOM}, Classify(rows[1]))
	assert.Equal(t, types.Signals{types.SignalPriceReduced}, Classify(rows[2]))
}

func TestListingRowLead(t *testing.T) {
	var rows []ListingRow
	require.NoError(t, json.Unmarshal([]byte(listingRows), &rows))

	l := rows[0].Lead()
	assert.Equal(t, "927 N PERRY AVE", l.Address)
	assert.Equal(t, "85705", l.Zip)
	assert.Equal(t, 1.5, *l.Bathrooms)
	assert.InDelta(t, 0.1607, *l.LotSize, 0.001)
	assert.True(t, *l.HasPool)
	assert.True(t, *l.HasGarage)
	assert.True(t, l.IsEnriched(types.EnrichedListing))
	assert.Equal(t, types.StableID(SourceListings, "A1"), l.ID)

	l = rows[1].Lead()
	assert.False(t, *l.HasPool)
	assert.Nil(t, l.HasGarage)
	assert.Equal(t, "Desert Realty", l.ListingOffice)
}

func TestListingsFetchHotList(t *testing.T) {
	a, sidecar := listingServer(t, listingRows)
	pred := types.Predicate{Kind: types.KindHotList, Name: types.HotPriceReduced}

	leads, err := a.Fetch(context.Background(), pred, Scope{Zip: "85705", Area: perryBlock}, 10)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "931 N PERRY AVE", leads[0].Address)
	assert.Equal(t, []string{"85705"}, sidecar.Locations())

	_, err = a.Fetch(context.Background(), pred, Scope{Area: perryBlock}, 10)
	assert.ErrorIs(t, err, ErrUnsupportedScope)
}

func TestListingsLookupReadsFirstRowOnly(t *testing.T) {
	a, _ := listingServer(t, listingRows)
	l, err := a.LookupAddress(context.Background(), "927 N Perry Ave, Tucson, AZ 85705")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "927 N PERRY AVE", l.Address)

	empty, _ := listingServer(t, `[]`)
	l, err = empty.LookupAddress(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.Nil(t, l)

	bad, _ := listingServer(t, `{"error": "blocked"}`)
	_, err = bad.LookupAddress(context.Background(), "nowhere")
	assert.Error(t, err)
}

func TestRowsStopsEarly(t *testing.T) {
	a, _ := listingServer(t, `[{"mls_id": "1"}, {"mls_id": "2"}, not json at all`)
	n := 0
	for row, err := range a.Rows(context.Background(), "85705", ListingForSale, 0) {
		require.NoError(t, err)
		assert.Equal(t, "1", row.MLSID)
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestClassifyDocument(t *testing.T) {
	cases := []struct {
		docType string
		signal  string
		deed    bool
	}{
		{"NOTICE OF TRUSTEE'S SALE", types.SignalPreForeclosure, false},
		{"Lis Pendens", types.SignalPreForeclosure, false},
		{"JUDGMENT LIEN", types.SignalJudgment, false},
		{"FEDERAL TAX LIEN", types.SignalLien, false},
		{"RELEASE OF LIEN", "", false},
		{"DECREE OF DISSOLUTION", types.SignalDivorce, false},
		{"AFFIDAVIT OF SUCCESSION", types.SignalProbate, false},
		{"BENEFICIARY DEED", types.SignalProbate, true},
		{"WARRANTY DEED", "", true},
		{"DEED OF TRUST", "", false},
		{"TRUSTEE'S DEED", types.SignalPreForeclosure, true},
		{"EASEMENT", "", false},
	}
	for _, c := range cases {
		signal, deed := ClassifyDocument(c.docType)
		assert.Equal(t, c.signal, signal, c.docType)
		assert.Equal(t, c.deed, deed, c.docType)
	}
}

type fakeRecorder struct {
	docs  map[string][]types.Document
	calls int
}

func (f *fakeRecorder) SearchByDocType(context.Context, string, time.Time, time.Time) ([]types.Document, error) {
	return nil, nil
}

func (f *fakeRecorder) SearchBySequence(context.Context, string) ([]types.Document, error) {
	return nil, nil
}

func (f *fakeRecorder) SearchByName(_ context.Context, name string, _, _ time.Time) ([]types.Document, error) {
	f.calls++
	return f.docs[name], nil
}

func (f *fakeRecorder) DownloadDocument(context.Context, string) ([]byte, error) { return nil, nil }

func TestVerifyLead(t *testing.T) {
	rec := &fakeRecorder{docs: map[string][]types.Document{
		"SMITH JOHN": {
			{Sequence: "1", DocType: "WARRANTY DEED", RecordedAt: "2009-04-01"},
			{Sequence: "2", DocType: "WARRANTY DEED", RecordedAt: "2012-06-15"},
			{Sequence: "3", DocType: "FEDERAL TAX LIEN", RecordedAt: "2023-01-10"},
			{Sequence: "4", DocType: "EASEMENT", RecordedAt: "2015-01-10"},
		},
	}}
	r := NewRecorderAdapter(rec, 0, nil)

	l := &types.Lead{OwnerName: "SMITH JOHN"}
	ok, err := r.VerifyLead(context.Background(), l, types.SignalLien)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, l.Documents, 3)
	assert.Equal(t, "2012-06-15", l.LastSaleDate)
	assert.True(t, l.IsEnriched(types.EnrichedRecorder))

	ok, err = r.VerifyLead(context.Background(), l, types.SignalProbate)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, l.Documents, 3)

	ok, err = r.VerifyLead(context.Background(), &types.Lead{}, types.SignalLien)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, rec.calls)
}

func TestRecorderPacing(t *testing.T) {
	rec := &fakeRecorder{}
	r := NewRecorderAdapter(rec, 50*time.Millisecond, nil)
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := r.VerifyLead(context.Background(), &types.Lead{OwnerName: "X"})
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRecorderAdapter(rec, time.Hour, nil).VerifyLead(ctx, &types.Lead{OwnerName: "X"})
	assert.Error(t, err)
}

func TestRecorderClientPersistsCookies(t *testing.T) {
	var sawCookie atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil && c.Value == "abc" {
			sawCookie.Store(true)
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/", Expires: time.Now().Add(time.Hour)})
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{"documents": []types.Document{{Sequence: "20230100001", DocType: "LIEN", Grantor: body["name"]}}})
	}))
	defer srv.Close()

	jarPath := filepath.Join(t.TempDir(), "cookies", "jar.json")
	c, err := NewRecorderClient(srv.URL, jarPath, testPolicy, nil)
	require.NoError(t, err)
	docs, err := c.SearchByName(context.Background(), "SMITH JOHN", time.Time{}, time.Now())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "SMITH JOHN", docs[0].Grantor)
	assert.False(t, sawCookie.Load())

	data, err := os.ReadFile(jarPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "abc")

	// A fresh client replays the saved session.
	c2, err := NewRecorderClient(srv.URL, jarPath, testPolicy, nil)
	require.NoError(t, err)
	_, err = c2.SearchBySequence(context.Background(), "20230100001")
	require.NoError(t, err)
	assert.True(t, sawCookie.Load())
}

func TestMarketFallsBackOneYearAtATime(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/fred", func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("observation_start")
		obs := []map[string]string{}
		switch {
		case r.URL.Query().Get("series_id") == "MORTGAGE30US" && start[:4] == "2025":
			obs = append(obs, map[string]string{"date": "2025-01-01", "value": "6.5"}, map[string]string{"date": "2025-02-01", "value": "7.5"})
		case r.URL.Query().Get("series_id") == "TUCS004BPPRIVSA" && start[:4] == "2024":
			obs = append(obs, map[string]string{"date": "2024-01-01", "value": "110"})
		case r.URL.Query().Get("series_id") == "TUCS004BPPRIVSA" && start[:4] == "2023":
			obs = append(obs, map[string]string{"date": "2023-01-01", "value": "100"}, map[string]string{"date": "2023-02-01", "value": "."})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"observations": obs})
	})
	mux.HandleFunc("/bls", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "REQUEST_SUCCEEDED", "Results": map[string]any{"series": []any{}}})
	})
	mux.HandleFunc("/census/", func(w http.ResponseWriter, r *http.Request) {
		year := strings.Split(strings.TrimPrefix(r.URL.Path, "/census/"), "/")[0]
		pops := map[string]string{"2023": "1050000", "2022": "1030000"}
		p, ok := pops[year]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode([][]string{{"B01003_001E", "state", "county"}, {p, "04", "019"}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := NewMarket(httpclient.New(testPolicy, nil), config.UpstreamsConfig{
		BLSURL:    srv.URL + "/bls",
		CensusURL: srv.URL + "/census",
		FREDURL:   srv.URL + "/fred",
	}, config.KeysConfig{}, PimaCounty)
	m.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	rate, err := m.MortgageRate(ctx)
	require.NoError(t, err)
	assert.Equal(t, Observation{Value: 7, Year: 2025}, rate)

	permits, err := m.PermitsChange(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2024, permits.Year)
	assert.InDelta(t, 10, permits.Value, 1e-9)

	growth, err := m.PopulationGrowth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2023, growth.Year)
	assert.InDelta(t, 1.9417, growth.Value, 1e-3)

	_, err = m.Unemployment(ctx)
	assert.ErrorIs(t, err, ErrNoData)
}
