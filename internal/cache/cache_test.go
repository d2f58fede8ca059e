package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

func TestGeometryCacheResolvesOnce(t *testing.T) {
	c := NewGeometryCache()
	var calls int32
	resolve := func(context.Context) (*geo.Area, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(10 * time.Millisecond)
		return &geo.Area{Label: "85705", Bounds: geo.Envelope{XMin: -111, YMin: 32, XMax: -110.9, YMax: 32.3}}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := c.GetOrResolve(context.Background(), ScopeKey("zip", "85705"), resolve)
			assert.NoError(t, err)
			assert.Equal(t, "85705", a.Label)
		}()
	}
	wg.Wait()
	_, err := c.GetOrResolve(context.Background(), ScopeKey("zip", " 85705 "), resolve)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGeometryCacheSkipsEmptyAndErrors(t *testing.T) {
	c := NewGeometryCache()
	_, err := c.GetOrResolve(context.Background(), "city:NOWHERE", func(context.Context) (*geo.Area, error) {
		return &geo.Area{Bounds: geo.EmptyEnvelope(geo.WGS84)}, nil
	})
	require.NoError(t, err)
	_, err = c.GetOrResolve(context.Background(), "zip:00000", func(context.Context) (*geo.Area, error) {
		return nil, errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestEnrichmentCacheMergeNeverNullsOut(t *testing.T) {
	c := NewEnrichmentCache()
	c.Save(&types.Lead{Address: "927 N Perry Avenue", OwnerName: "SMITH JOHN", HasPool: types.Bool(true)})
	c.Save(&types.Lead{Address: "927 N PERRY AVE", Zoning: "R-2"})

	got, ok := c.Get("927 n perry av, Tucson AZ 85705")
	require.True(t, ok)
	assert.Equal(t, "SMITH JOHN", got.OwnerName)
	assert.Equal(t, "R-2", got.Zoning)
	require.NotNil(t, got.HasPool)
	assert.True(t, *got.HasPool)
	assert.Equal(t, 1, c.Len())
}

func TestEnrichmentCacheApplyKeepsFreshFields(t *testing.T) {
	c := NewEnrichmentCache()
	c.Save(&types.Lead{Address: "1 MAIN ST", OwnerName: "OLD OWNER", Zoning: "R-1"})

	l := types.Lead{ID: "abc", Address: "1 Main Street", OwnerName: "NEW OWNER"}
	assert.True(t, c.Apply(&l))
	assert.Equal(t, "abc", l.ID)
	assert.Equal(t, "NEW OWNER", l.OwnerName)
	assert.Equal(t, "R-1", l.Zoning)

	other := types.Lead{Address: "2 MAIN ST"}
	assert.False(t, c.Apply(&other))
}

func TestEnrichmentCacheReturnsCopies(t *testing.T) {
	c := NewEnrichmentCache()
	c.Save(&types.Lead{Address: "1 MAIN ST", Overlays: []string{"A"}})
	got, _ := c.Get("1 MAIN ST")
	got.Overlays[0] = "mutated"
	again, _ := c.Get("1 MAIN ST")
	assert.Equal(t, "A", again.Overlays[0])
}

func TestEnrichmentCacheFindAndListingMiss(t *testing.T) {
	c := NewEnrichmentCache()
	c.Save(&types.Lead{Address: "1 A ST", HasPool: types.Bool(true)})
	c.Save(&types.Lead{Address: "2 A ST", HasPool: types.Bool(false)})
	c.Save(&types.Lead{Address: "3 A ST", HasPool: types.Bool(true)})

	pools := c.Find(func(l *types.Lead) bool { return l.HasPool != nil && *l.HasPool }, 0)
	assert.Len(t, pools, 2)
	assert.Len(t, c.Find(func(*types.Lead) bool { return true }, 1), 1)

	assert.False(t, c.ListingMissed("4 A ST"))
	c.MarkListingMiss("4 A Street")
	assert.True(t, c.ListingMissed("4 A ST"))
}

func TestResponseCacheTTL(t *testing.T) {
	c := NewResponseCache(30 * time.Minute)
	c.SetTTL("zips", Forever)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	volatile := ResponseKey{Source: "violations", Predicate: "distress:CODE VIOLATIONS", ScopeHash: ScopeHash("85705")}
	static := ResponseKey{Source: "zips", Predicate: "all", ScopeHash: ScopeHash("85705")}
	c.Put(volatile, []types.Lead{{Address: "1 A ST"}})
	c.Put(static, []types.Lead{{Address: "2 A ST"}})

	now = now.Add(29 * time.Minute)
	_, ok := c.Get(volatile)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(volatile)
	assert.False(t, ok)
	_, ok = c.Get(static)
	assert.True(t, ok)

	assert.Equal(t, 1, c.Prune())
	assert.Equal(t, 1, c.Len())
}

func TestResponseCacheGetOrFetch(t *testing.T) {
	c := NewResponseCache(time.Minute)
	key := ResponseKey{Source: "parcels", Predicate: "all", ScopeHash: ScopeHash(map[string]string{"zip": "85705"})}
	var calls int32
	fetch := func(context.Context) ([]types.Lead, error) {
		atomic.AddInt32(&calls, 1)
		return []types.Lead{{Address: "1 A ST"}}, nil
	}

	recs, hit, err := c.GetOrFetch(context.Background(), key, fetch)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, recs, 1)

	recs[0].Address = "mutated"
	recs, hit, err = c.GetOrFetch(context.Background(), key, fetch)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "1 A ST", recs[0].Address)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	failing := ResponseKey{Source: "parcels", Predicate: "x"}
	_, _, err = c.GetOrFetch(context.Background(), failing, func(context.Context) ([]types.Lead, error) {
		return nil, errors.New("down")
	})
	assert.Error(t, err)
	_, ok := c.Get(failing)
	assert.False(t, ok)
}

func TestScopeHashDeterministic(t *testing.T) {
	a := ScopeHash(map[string]any{"zip": "85705", "limit": 50})
	b := ScopeHash(map[string]any{"limit": 50, "zip": "85705"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, ScopeHash(map[string]any{"zip": "85706"}))
	assert.Len(t, a, 16)
}

func TestCountsRoundTripAndAllocate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "zip_counts.json")
	c, err := LoadCounts(path)
	require.NoError(t, err)

	c.Set("violations", "85705", 300)
	c.Set("violations", "85713", 100)
	require.NoError(t, c.Flush())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"_updated"`)

	loaded, err := LoadCounts(path)
	require.NoError(t, err)
	n, ok := loaded.Get("violations", "85705")
	require.True(t, ok)
	assert.Equal(t, 300, n)

	alloc := loaded.Allocate("violations", []string{"85705", "85713", "85719"}, 100)
	assert.Equal(t, 100, alloc["85705"]+alloc["85713"]+alloc["85719"])
	assert.Greater(t, alloc["85705"], alloc["85713"])
	assert.Equal(t, 50, alloc["85705"])

	even := loaded.Allocate("unknown", []string{"a", "b", "c"}, 10)
	assert.Equal(t, 10, even["a"]+even["b"]+even["c"])
}

func TestWarmFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parcels.txt")
	content := "PARCEL|ADDRESS|CITY|ZIP|OWNER|MAIL_ADDR|MAIL_ZIP|USE_CODE|SQFT|POOL|LAT|LON\n" +
		"11501001A|927 N PERRY AV|TUCSON|85705|SMITH JOHN|PO BOX 1|85701|0181|1,450|Y|32.23|-110.98\n" +
		"11501002B|931 N PERRY AV|TUCSON|85705|DOE JANE|931 N PERRY AVE|85705|0100|1200|N||\n" +
		"|||||||||||\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ec := NewEnrichmentCache()
	n, err := WarmFromFile(context.Background(), path, ec)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, ok := ec.Get("927 N PERRY AVE")
	require.True(t, ok)
	assert.Equal(t, "11501001A", got.ParcelID)
	assert.Equal(t, types.TypeGuestHouse, got.PropertyType)
	assert.True(t, *got.HasGuestHouse)
	assert.True(t, *got.HasPool)
	assert.Equal(t, 1450, *got.SquareFeet)
	assert.True(t, got.HasPoint())

	other, ok := ec.Get("931 N PERRY AVE")
	require.True(t, ok)
	assert.False(t, other.HasPoint())
}
