package adapters

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/arcgis"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/arcgis/arcgistest"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/cache"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/config"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/httpclient"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

var testPolicy = config.RetryPolicy{MaxAttempts: 1, BackoffMultiplier: 1, TimeoutSec: 5}

func newGIS(t *testing.T, layers map[string]*arcgistest.Layer) (*arcgis.Client, *arcgistest.Server) {
	t.Helper()
	srv := arcgistest.NewServer(layers)
	t.Cleanup(srv.Close)
	return arcgis.NewClient(httpclient.New(testPolicy, nil)), srv
}

func boxArea(west, south, east, north float64) *geo.Area {
	env := geo.Envelope{XMin: west, YMin: south, XMax: east, YMax: north, WKID: geo.WGS84}
	return &geo.Area{Label: "bounds", Kind: geo.AreaBounds, Envelope: env, Bounds: env}
}

type stubAdapter struct {
	calls atomic.Int32
	fetch func() ([]types.Lead, error)
}

func (s *stubAdapter) Name() string { return "stub" }
func (s *stubAdapter) RateLimit() RateLimit { return RateLimit{} }
func (s *stubAdapter) Fetch(context.Context, types.Predicate, Scope, int) ([]types.Lead, error) {
	s.calls.Add(1)
	return s.fetch()
}

func TestSafeRecoversPanic(t *testing.T) {
	a := &stubAdapter{fetch: func() ([]types.Lead, error) { panic("boom") }}
	res := Safe(context.Background(), a, types.Predicate{Kind: types.KindAll}, Scope{}, 10, nil)
	assert.Equal(t, "stub", res.Source)
	assert.ErrorIs(t, res.Err, ErrAdapterPanic)
	assert.Nil(t, res.Records)
}

func TestSafeKeepsPartialRecords(t *testing.T) {
	a := &stubAdapter{fetch: func() ([]types.Lead, error) {
		return []types.Lead{{Address: "1 A ST"}}, errors.New("page 2 failed")
	}}
	res := Safe(context.Background(), a, types.Predicate{Kind: types.KindAll}, Scope{}, 10, nil)
	require.Error(t, res.Err)
	assert.Len(t, res.Records, 1)
	assert.False(t, res.Unsupported())

	a.fetch = func() ([]types.Lead, error) { return nil, ErrUnsupportedScope }
	res = Safe(context.Background(), a, types.Predicate{Kind: types.KindAll}, Scope{}, 10, nil)
	assert.True(t, res.Unsupported())
}

func TestWithCacheServesRepeats(t *testing.T) {
	a := &stubAdapter{fetch: func() ([]types.Lead, error) {
		return []types.Lead{{Address: "1 A ST"}}, nil
	}}
	c := WithCache(a, cache.NewResponseCache(time.Minute))
	pred := types.Predicate{Kind: types.KindDistress, Name: types.DistressCodeViolations}
	scope := Scope{Zip: "85705"}

	for i := 0; i < 3; i++ {
		recs, err := c.Fetch(context.Background(), pred, scope, 10)
		require.NoError(t, err)
		require.Len(t, recs, 1)
	}
	assert.EqualValues(t, 1, a.calls.Load())

	_, err := c.Fetch(context.Background(), pred, Scope{Zip: "85713"}, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, a.calls.Load())
}

func TestWithCacheDoesNotCacheFailures(t *testing.T) {
	fail := true
	a := &stubAdapter{fetch: func() ([]types.Lead, error) {
		if fail {
			return []types.Lead{{Address: "PARTIAL"}}, errors.New("timeout")
		}
		return []types.Lead{{Address: "1 A ST"}, {Address: "2 A ST"}}, nil
	}}
	c := WithCache(a, cache.NewResponseCache(time.Minute))
	pred := types.Predicate{Kind: types.KindAll}

	recs, err := c.Fetch(context.Background(), pred, Scope{Zip: "85705"}, 10)
	require.Error(t, err)
	assert.Len(t, recs, 1)

	fail = false
	recs, err = c.Fetch(context.Background(), pred, Scope{Zip: "85705"}, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.EqualValues(t, 2, a.calls.Load())
}

func TestScopeLocation(t *testing.T) {
	assert.Equal(t, "927 N PERRY AVE", Scope{Address: "927 N PERRY AVE", Zip: "85705"}.Location())
	assert.Equal(t, "85705", Scope{Zip: "85705", City: "Tucson"}.Location())
	assert.Equal(t, "Tucson, AZ", Scope{City: "Tucson"}.Location())
	assert.Equal(t, "85614", Scope{Area: &geo.Area{Zips: []string{"85614"}}}.Location())
	assert.Empty(t, Scope{Area: boxArea(0, 0, 1, 1)}.Location())
}
