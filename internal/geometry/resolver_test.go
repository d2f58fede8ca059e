package geometry

import (
	"context"
	"testing"

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

type fixture struct {
	srv      *arcgistest.Server
	zips     *arcgistest.Layer
	addrs    *arcgistest.Layer
	nbhds    *arcgistest.Layer
	subdivs  *arcgistest.Layer
	resolver *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		zips: &arcgistest.Layer{Features: []arcgis.Feature{
			arcgistest.BoxFeature(-111.0, 32.2, -110.9, 32.3, map[string]any{"OBJECTID": 1.0, "ZIPCODE": "85705"}),
			arcgistest.BoxFeature(-110.9, 32.1, -110.8, 32.2, map[string]any{"OBJECTID": 2.0, "ZIPCODE": "85713"}),
			arcgistest.BoxFeature(-111.1, 31.8, -111.0, 31.9, map[string]any{"OBJECTID": 3.0, "ZIPCODE": "85614"}),
			arcgistest.BoxFeature(-111.0, 31.9, -110.9, 32.0, map[string]any{"OBJECTID": 4.0, "ZIPCODE": "85622"}),
			arcgistest.BoxFeature(-112.0, 32.5, -111.9, 32.6, map[string]any{"OBJECTID": 5.0, "ZIPCODE": "85634"}),
		}},
		addrs: &arcgistest.Layer{Features: []arcgis.Feature{
			arcgistest.PointFeature(-111.95, 32.55, map[string]any{"OBJECTID": 1.0, "ADDRESS": "10 MAIN ST", "ZIPCODE": "85634", "ZIPCITY": "SELLS"}),
			arcgistest.PointFeature(-111.94, 32.56, map[string]any{"OBJECTID": 2.0, "ADDRESS": "12 MAIN ST", "ZIPCODE": "85634", "ZIPCITY": "SELLS"}),
			arcgistest.PointFeature(-110.95, 32.25, map[string]any{"OBJECTID": 3.0, "ADDRESS": "927 N PERRY AVE", "ZIPCODE": "85705", "ZIPCITY": "TUCSON"}),
		}},
		nbhds: &arcgistest.Layer{Features: []arcgis.Feature{
			arcgistest.BoxFeature(-110.97, 32.22, -110.94, 32.26, map[string]any{"OBJECTID": 1.0, "NAME": "BARRIO BLUE MOON"}),
		}},
		subdivs: &arcgistest.Layer{Features: []arcgis.Feature{
			arcgistest.BoxFeature(-110.85, 32.15, -110.84, 32.16, map[string]any{"OBJECTID": 1.0, "SUB_NAME": "CASA DEL SOL"}),
			arcgistest.BoxFeature(-110.83, 32.15, -110.82, 32.16, map[string]any{"OBJECTID": 2.0, "SUB_NAME": "CASA GRANDE ESTATES"}),
		}},
	}
	f.srv = arcgistest.NewServer(map[string]*arcgistest.Layer{
		"/zips": f.zips, "/addresses": f.addrs, "/nbhd": f.nbhds, "/subdiv": f.subdivs,
	})
	t.Cleanup(f.srv.Close)

	policy := config.RetryPolicy{MaxAttempts: 1, BackoffMultiplier: 1, TimeoutSec: 5}
	gis := arcgis.NewClient(httpclient.New(policy, nil))
	f.resolver = NewResolver(gis, Layers{
		Address:      f.srv.LayerURL("/addresses"),
		Zip:          f.srv.LayerURL("/zips"),
		Neighborhood: f.srv.LayerURL("/nbhd"),
		Subdivision:  f.srv.LayerURL("/subdiv"),
		NativeWKID:   geo.ArizonaCentralFt,
	}, nil, cache.NewGeometryCache(), 5, nil)
	return f
}

func TestResolveZipQueriesBothReferencesAndCaches(t *testing.T) {
	f := newFixture(t)
	res := f.resolver.Resolve(context.Background(), Scope{Zip: "85705"})
	require.NotNil(t, res.Area)
	assert.Empty(t, res.Warning)
	assert.Equal(t, []string{"85705"}, res.Area.Zips)
	assert.True(t, res.Area.Contains(32.25, -110.95))
	assert.False(t, res.Area.Contains(32.15, -110.85))
	assert.Equal(t, geo.ArizonaCentralFt, res.Area.Envelope.WKID)
	assert.Equal(t, 2, f.zips.Calls())

	srs := map[string]bool{}
	for _, form := range f.zips.Forms() {
		srs[form["outSR"]] = true
	}
	assert.True(t, srs["4326"])
	assert.True(t, srs["2868"])

	f.resolver.Resolve(context.Background(), Scope{Zip: "85705-1234"})
	assert.Equal(t, 2, f.zips.Calls())
}

func TestResolveUnknownZipWarns(t *testing.T) {
	f := newFixture(t)
	res := f.resolver.Resolve(context.Background(), Scope{Zip: "99999"})
	assert.Nil(t, res.Area)
	assert.Contains(t, res.Warning, "99999")
}

func TestResolveCityFromCatalog(t *testing.T) {
	f := newFixture(t)
	res := f.resolver.Resolve(context.Background(), Scope{City: "Green Valley"})
	require.NotNil(t, res.Area)
	assert.Equal(t, []string{"85614", "85622"}, res.Area.Zips)
	assert.True(t, res.Area.Contains(31.85, -111.05))
	assert.True(t, res.Area.Contains(31.95, -110.95))
	assert.False(t, res.Area.Contains(32.25, -110.95))
	assert.Equal(t, 0, f.addrs.Calls())
}

func TestResolveCityFallsBackToZipCity(t *testing.T) {
	f := newFixture(t)
	res := f.resolver.Resolve(context.Background(), Scope{City: "Sells"})
	require.NotNil(t, res.Area)
	assert.Equal(t, []string{"85634"}, res.Area.Zips)
	assert.Equal(t, 1, f.addrs.Calls())
	assert.Equal(t, "true", f.addrs.Forms()[0]["returnDistinctValues"])
}

func TestResolveNeighborhoodFallsBackToSubdivision(t *testing.T) {
	f := newFixture(t)
	res := f.resolver.Resolve(context.Background(), Scope{Neighborhood: "Barrio Blue Moon"})
	require.NotNil(t, res.Area)
	assert.Equal(t, 0, f.subdivs.Calls())

	res = f.resolver.Resolve(context.Background(), Scope{Neighborhood: "casa del sol"})
	require.NotNil(t, res.Area)
	assert.True(t, res.Area.Contains(32.155, -110.845))
	assert.Greater(t, f.subdivs.Calls(), 0)
}

func TestNeighborhoodWithStreetSuffixIsAddress(t *testing.T) {
	f := newFixture(t)
	res := f.resolver.Resolve(context.Background(), Scope{Neighborhood: "927 N Perry Ave"})
	assert.Nil(t, res.Area)
	assert.Equal(t, "927 N Perry Ave", res.AddressQuery)
	assert.Equal(t, 0, f.nbhds.Calls())
}

func TestBoundsPassthrough(t *testing.T) {
	f := newFixture(t)
	res := f.resolver.Resolve(context.Background(), Scope{Bounds: &types.Bounds{West: -111, South: 32, East: -110, North: 33}})
	require.NotNil(t, res.Area)
	assert.True(t, res.Area.Contains(32.5, -110.5))
	assert.False(t, res.Area.Contains(33.5, -110.5))
}

func TestZeroScope(t *testing.T) {
	f := newFixture(t)
	assert.True(t, Scope{}.IsZero())
	res := f.resolver.Resolve(context.Background(), Scope{})
	assert.Nil(t, res.Area)
	assert.Empty(t, res.Warning)
}

func TestSuggest(t *testing.T) {
	f := newFixture(t)
	got, err := f.resolver.Suggest(context.Background(), "casa", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, SuggestSubdivision, got[0].Kind)

	got, err = f.resolver.Suggest(context.Background(), "927", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "927 N PERRY AVE", got[0].Text)
	assert.Equal(t, "85705", got[0].Zip)

	got, err = f.resolver.Suggest(context.Background(), "c", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCityCatalog(t *testing.T) {
	c := DefaultCityCatalog()
	zips, ok := c.Zips("TUCSON, AZ")
	require.True(t, ok)
	assert.Contains(t, zips, "85705")
	assert.True(t, c.HasZip("Casas Adobes", "85713"))
	assert.False(t, c.HasZip("tucson", "85614"))
	_, ok = c.Zips("Phoenix")
	assert.False(t, ok)
}
