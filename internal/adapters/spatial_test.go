package adapters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/arcgis"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/arcgis/arcgistest"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

func parcel(id float64, west, south float64, attrs map[string]any) arcgis.Feature {
	attrs["OBJECTID"] = id
	return arcgistest.BoxFeature(west, south, west+0.001, south+0.001, attrs)
}

func parcelLayer() *arcgistest.Layer {
	return &arcgistest.Layer{Features: []arcgis.Feature{
		parcel(1, -110.950, 32.250, map[string]any{"PARCEL": "115-01-001", "ADDRESS_OL": "927 N PERRY AVE", "ZIP": "85705", "OWNER_NAME": "SMITH JOHN", "MAIL_ADDR": "PO BOX 12", "MAIL_ZIP": "85001", "PARCEL_USE": "0131", "GISACRES": 0.16, "FCV": 185000.0}),
		parcel(2, -110.948, 32.250, map[string]any{"PARCEL": "115-01-002", "ADDRESS_OL": "931 N PERRY AVE", "ZIP": "85705", "PARCEL_USE": "0131", "GISACRES": 0.2}),
		parcel(3, -110.946, 32.250, map[string]any{"PARCEL": "115-01-003", "ADDRESS_OL": "935 N PERRY AVE", "MAIL_ZIP": "85719", "PARCEL_USE": "0141"}),
		parcel(4, -110.944, 32.250, map[string]any{"PARCEL": "115-01-004", "ADDRESS_OL": "939 N PERRY AVE", "ZIP": "85705", "PARCEL_USE": "0131", "GISACRES": 2.5}),
		parcel(5, -110.942, 32.250, map[string]any{"PARCEL": "115-01-005", "ADDRESS_OL": "943 N PERRY AVE", "ZIP": "85705", "PARCEL_USE": "0131"}),
		parcel(6, -110.500, 32.500, map[string]any{"PARCEL": "999-99-999", "ADDRESS_OL": "1 FAR AWAY RD", "ZIP": "85739", "PARCEL_USE": "0131"}),
	}}
}

var perryBlock = boxArea(-110.96, 32.24, -110.93, 32.26)

func TestParcelsFetchSamplesIDsInBatches(t *testing.T) {
	layer := parcelLayer()
	gis, srv := newGIS(t, map[string]*arcgistest.Layer{"/parcels": layer})
	p := NewParcels(gis, srv.LayerURL("/parcels"), 2, nil)

	leads, err := p.Fetch(context.Background(), types.Predicate{Kind: types.KindAll}, Scope{Area: perryBlock}, 3)
	require.NoError(t, err)
	assert.Len(t, leads, 3)
	// One id query plus two attribute batches.
	assert.Equal(t, 3, layer.Calls())
	assert.Equal(t, "true", layer.Forms()[0]["returnIdsOnly"])
	for _, l := range leads {
		assert.True(t, l.HasPoint())
		assert.True(t, perryBlock.Contains(*l.Latitude, *l.Longitude))
		assert.NotEqual(t, "999-99-999", l.ParcelID)
	}
}

func TestParcelsFetchPushesDownFilters(t *testing.T) {
	layer := parcelLayer()
	gis, srv := newGIS(t, map[string]*arcgistest.Layer{"/parcels": layer})
	p := NewParcels(gis, srv.LayerURL("/parcels"), 50, nil)

	condos, err := p.Fetch(context.Background(), types.Predicate{Kind: types.KindPropertyType, Values: []string{types.TypeCondo}}, Scope{Area: perryBlock}, 0)
	require.NoError(t, err)
	require.Len(t, condos, 1)
	assert.Equal(t, "935 N PERRY AVE", condos[0].Address)
	assert.Equal(t, "85719", condos[0].Zip)
	assert.Equal(t, types.ZipFromOwner, condos[0].ZipSource)

	big, err := p.Fetch(context.Background(), types.Predicate{Kind: types.KindRange, Name: "lot_acres", Min: types.Float(1)}, Scope{Area: perryBlock}, 0)
	require.NoError(t, err)
	require.Len(t, big, 1)
	assert.Equal(t, "115-01-004", big[0].ParcelID)
}

func TestParcelsFetchNeedsArea(t *testing.T) {
	p := NewParcels(nil, "", 0, nil)
	_, err := p.Fetch(context.Background(), types.Predicate{Kind: types.KindAll}, Scope{}, 10)
	assert.ErrorIs(t, err, ErrNoArea)
}

func TestParcelsEnrichByPoints(t *testing.T) {
	layer := parcelLayer()
	gis, srv := newGIS(t, map[string]*arcgistest.Layer{"/parcels": layer})
	p := NewParcels(gis, srv.LayerURL("/parcels"), 50, nil)

	inside := &types.Lead{ID: "v1", Address: "927 N PERRY AVE", Source: SourceViolations}
	inside.SetPoint(32.2505, -110.9495)
	nowhere := &types.Lead{ID: "v2", Address: "1 NOWHERE"}
	nowhere.SetPoint(31.0, -109.0)
	noPoint := &types.Lead{ID: "v3", Address: "NO POINT"}

	n, err := p.EnrichByPoints(context.Background(), []*types.Lead{inside, nowhere, noPoint})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, layer.Calls())
	assert.Equal(t, "v1", inside.ID)
	assert.Equal(t, SourceViolations, inside.Source)
	assert.Equal(t, "SMITH JOHN", inside.OwnerName)
	assert.Equal(t, "PO BOX 12", inside.MailingAddress)
	assert.Equal(t, "0131", inside.PropertyUseCode)
	assert.True(t, inside.IsEnriched(types.EnrichedParcel))
	assert.Empty(t, nowhere.OwnerName)

	// Already enriched leads are skipped.
	n, err = p.EnrichByPoints(context.Background(), []*types.Lead{inside})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, layer.Calls())
}

func TestParcelsLookupAddress(t *testing.T) {
	layer := parcelLayer()
	gis, srv := newGIS(t, map[string]*arcgistest.Layer{"/parcels": layer})
	p := NewParcels(gis, srv.LayerURL("/parcels"), 50, nil)

	got, err := p.LookupAddress(context.Background(), "931 N. Perry Avenue", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "115-01-002", got[0].ParcelID)
}

func violationLayer() *arcgistest.Layer {
	return &arcgistest.Layer{Features: []arcgis.Feature{
		arcgistest.PointFeature(-110.95, 32.25, map[string]any{"OBJECTID": 1.0, "ADDRESS": "927 N Perry Ave", "ZIP": "85705", "CASE_NUM": "C1", "VIOLATION_TYPE": "JUNK", "STATUS": "OPEN", "OPEN_DATE": 1.7e12}),
		arcgistest.PointFeature(-110.95, 32.25, map[string]any{"OBJECTID": 2.0, "ADDRESS": "927 N PERRY AVENUE", "ZIP": "85705", "CASE_NUM": "C2", "VIOLATION_TYPE": "WEEDS", "STATUS": "OPEN"}),
		arcgistest.PointFeature(-110.94, 32.25, map[string]any{"OBJECTID": 3.0, "ADDRESS": "939 N PERRY AVE", "ZIP": "85705", "CASE_NUM": "C3", "VIOLATION_TYPE": "ROOF"}),
		arcgistest.PointFeature(-110.94, 32.25, map[string]any{"OBJECTID": 4.0, "ADDRESS": "", "CASE_NUM": "C4"}),
	}}
}

func TestViolationsConsolidateByAddress(t *testing.T) {
	layer := violationLayer()
	gis, srv := newGIS(t, map[string]*arcgistest.Layer{"/violations": layer})
	v := NewViolations(gis, srv.LayerURL("/violations"), "TUCSON", nil, 5, 100, nil)

	leads, err := v.Fetch(context.Background(), types.Predicate{Kind: types.KindDistress, Name: types.DistressCodeViolations}, Scope{Zip: "85705", Area: perryBlock}, 0)
	require.NoError(t, err)
	require.Len(t, leads, 2)

	byAddr := map[string]types.Lead{}
	for _, l := range leads {
		byAddr[l.Address] = l
	}
	perry := byAddr["927 N PERRY AVE"]
	assert.Equal(t, 2, perry.ViolationCount)
	require.Len(t, perry.Violations, 2)
	assert.Equal(t, "C1", perry.Violations[0].CaseNumber)
	assert.NotEmpty(t, perry.Violations[0].OpenedDate)
	assert.True(t, perry.Signals.Has(types.SignalCodeViolation))
	assert.Equal(t, types.ZipFromProperty, perry.ZipSource)
	assert.Equal(t, 1, byAddr["939 N PERRY AVE"].ViolationCount)
}

func TestViolationsOutsideMunicipalityMakesNoCall(t *testing.T) {
	layer := violationLayer()
	gis, srv := newGIS(t, map[string]*arcgistest.Layer{"/violations": layer})
	v := NewViolations(gis, srv.LayerURL("/violations"), "TUCSON", nil, 5, 100, nil)

	for _, scope := range []Scope{
		{City: "Green Valley", Area: perryBlock},
		{Zip: "85614", Area: perryBlock},
		{Area: &geo.Area{Label: "Sahuarita", Kind: geo.AreaCity, Bounds: perryBlock.Bounds}},
	} {
		_, err := v.Fetch(context.Background(), types.Predicate{Kind: types.KindDistress, Name: types.DistressCodeViolations}, scope, 10)
		assert.ErrorIs(t, err, ErrUnsupportedScope)
	}
	assert.Zero(t, layer.Calls())
	assert.Equal(t, "Code violation data is only available for Tucson.", v.UnsupportedWarning())
	assert.True(t, v.Supports(Scope{City: "tucson, az"}))
	assert.True(t, v.Supports(Scope{Area: perryBlock}))
}

func TestZipsBackfill(t *testing.T) {
	layer := &arcgistest.Layer{Features: []arcgis.Feature{
		arcgistest.BoxFeature(-111.0, 32.2, -110.9, 32.3, map[string]any{"OBJECTID": 1.0, "ZIPCODE": "85705"}),
		arcgistest.BoxFeature(-110.9, 32.1, -110.8, 32.2, map[string]any{"OBJECTID": 2.0, "ZIPCODE": "85713"}),
	}}
	gis, srv := newGIS(t, map[string]*arcgistest.Layer{"/zips": layer})
	z := NewZips(gis, srv.LayerURL("/zips"))

	owner := &types.Lead{Zip: "85001", ZipSource: types.ZipFromOwner}
	owner.SetPoint(32.25, -110.95)
	missing := &types.Lead{}
	missing.SetPoint(32.15, -110.85)
	property := &types.Lead{Zip: "85705", ZipSource: types.ZipFromProperty}
	property.SetPoint(32.15, -110.85)

	n, err := z.Backfill(context.Background(), []*types.Lead{owner, missing, property})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, layer.Calls())
	assert.Equal(t, "85705", owner.Zip)
	assert.Equal(t, types.ZipFromSpatial, owner.ZipSource)
	assert.Equal(t, "85713", missing.Zip)
	assert.Equal(t, "85705", property.Zip)

	n, err = z.Backfill(context.Background(), []*types.Lead{owner, missing})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, layer.Calls())
}
