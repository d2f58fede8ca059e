package adapters

import (
	"context"
	"errors"
	"fmt"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/address"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/arcgis"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/fanout"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/logger"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// Parcel layer fields.
const (
	FieldParcel      = "PARCEL"
	FieldSitus       = "ADDRESS_OL"
	FieldSitusCity   = "JURIS_OL"
	FieldSitusZip    = "ZIP"
	FieldOwner       = "OWNER_NAME"
	FieldMailAddr    = "MAIL_ADDR"
	FieldMailCity    = "MAIL_CITY"
	FieldMailState   = "MAIL_STATE"
	FieldMailZip     = "MAIL_ZIP"
	FieldUseCode     = "PARCEL_USE"
	FieldSqft        = "SQFT"
	FieldYearBuilt   = "YEAR_BUILT"
	FieldBedrooms    = "BEDROOMS"
	FieldBathrooms   = "BATHROOMS"
	FieldAcres       = "GISACRES"
	FieldFullCash    = "FCV"
	FieldSaleDate    = "SALE_DATE"
	FieldSalePrice   = "SALE_PRICE"
	FieldSubdivision = "SUB_NAME"
)

var parcelFields = []string{
	arcgis.DefaultOIDField, FieldParcel, FieldSitus, FieldSitusCity, FieldSitusZip,
	FieldOwner, FieldMailAddr, FieldMailCity, FieldMailState, FieldMailZip,
	FieldUseCode, FieldSqft, FieldYearBuilt, FieldBedrooms, FieldBathrooms,
	FieldAcres, FieldFullCash, FieldSaleDate, FieldSalePrice, FieldSubdivision,
}

// Parcels is the county parcel layer. Candidates are generated in two steps:
// object IDs by envelope, then attributes for a random sample of those IDs
// in parallel batches. Sampling keeps a small limit from clustering in one
// corner of a large scope.
type Parcels struct {
	gis       *arcgis.Client
	layer     string
	batchSize int
	log       *logger.Logger
}

// NewParcels creates the adapter.
func NewParcels(gis *arcgis.Client, layerURL string, batchSize int, log *logger.Logger) *Parcels {
	if batchSize <= 0 {
		batchSize = 50
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Parcels{gis: gis, layer: layerURL, batchSize: batchSize, log: log.With("source", SourceParcels)}
}

func (p *Parcels) Name() string { return SourceParcels }

// RateLimit is unbounded; the parcel layer tolerates load.
func (p *Parcels) RateLimit() RateLimit { return RateLimit{} }

// Fetch implements Adapter.
func (p *Parcels) Fetch(ctx context.Context, pred types.Predicate, scope Scope, maxRecords int) ([]types.Lead, error) {
	if scope.Area == nil {
		if scope.Address != "" {
			return p.LookupAddress(ctx, scope.Address, maxRecords)
		}
		return nil, ErrNoArea
	}
	ids, err := p.gis.QueryIDs(ctx, p.layer, arcgis.Query{
		Where:    parcelWhere(pred),
		Geometry: arcgis.EnvelopeGeometry(scope.Area.QueryEnvelope()),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list parcel ids: %w", err)
	}
	if maxRecords > 0 {
		ids = fanout.Sample(ids, maxRecords)
	}
	leads, err := p.ByIDs(ctx, ids)
	kept := leads[:0]
	for _, l := range leads {
		if lat, lon, ok := l.Point(); ok && !scope.Area.Contains(lat, lon) {
			continue
		}
		kept = append(kept, l)
	}
	return kept, err
}

// ByIDs fetches full attributes for object IDs in parallel batches.
func (p *Parcels) ByIDs(ctx context.Context, ids []int64) ([]types.Lead, error) {
	batches := fanout.Batch(ids, p.batchSize)
	outs := fanout.Gather(ctx, batches, fanout.Options{}, func(ctx context.Context, batch []int64) ([]types.Lead, error) {
		fs, err := p.gis.Query(ctx, p.layer, arcgis.Query{
			ObjectIDs:      batch,
			OutFields:      parcelFields,
			OutSR:          geo.WGS84,
			ReturnGeometry: true,
		})
		if err != nil {
			return nil, err
		}
		leads := make([]types.Lead, 0, len(fs.Features))
		for _, f := range fs.Features {
			if l, ok := parcelLead(f); ok {
				leads = append(leads, l)
			}
		}
		return leads, nil
	})

	vals, errs := fanout.Values(outs)
	var leads []types.Lead
	for _, v := range vals {
		leads = append(leads, v...)
	}
	if len(errs) > 0 {
		return leads, fmt.Errorf("%d of %d parcel batches failed: %w", len(errs), len(batches), errors.Join(errs...))
	}
	return leads, nil
}

// EnrichByPoints fills owner, mailing and parcel fields on leads that have a
// point but lack them, by multipoint intersection in parallel batches.
// Matches are applied once the batches are gathered, so a batch that misses
// the deadline never touches its leads. It returns how many leads matched.
func (p *Parcels) EnrichByPoints(ctx context.Context, leads []*types.Lead) (int, error) {
	var todo []*types.Lead
	for _, l := range leads {
		if l.HasPoint() && !l.IsEnriched(types.EnrichedParcel) && (l.ParcelID == "" || l.OwnerName == "" || l.MailingAddress == "") {
			todo = append(todo, l)
		}
	}
	if len(todo) == 0 {
		return 0, nil
	}

	batches := fanout.Batch(todo, p.batchSize)
	points := make([][]geo.Point, len(batches))
	for b, batch := range batches {
		points[b] = make([]geo.Point, len(batch))
		for i, l := range batch {
			points[b][i] = geo.Point{Lat: *l.Latitude, Lon: *l.Longitude}
		}
	}

	idx := make([]int, len(batches))
	for i := range idx {
		idx[i] = i
	}
	outs := fanout.Gather(ctx, idx, fanout.Options{}, func(ctx context.Context, b int) ([]*types.Lead, error) {
		pts := points[b]
		fs, err := p.gis.Query(ctx, p.layer, arcgis.Query{
			OutFields:      parcelFields,
			Geometry:       arcgis.MultipointGeometry(pts),
			SpatialRel:     arcgis.RelIntersects,
			OutSR:          geo.WGS84,
			ReturnGeometry: true,
		})
		if err != nil {
			return nil, err
		}
		type parcel struct {
			lead types.Lead
			poly *geo.Polygon
		}
		parcels := make([]parcel, 0, len(fs.Features))
		for _, f := range fs.Features {
			if l, ok := parcelLead(f); ok {
				parcels = append(parcels, parcel{lead: l, poly: f.Polygon(geo.WGS84)})
			}
		}
		matches := make([]*types.Lead, len(pts))
		for i, pt := range pts {
			for _, pc := range parcels {
				if pc.poly.ContainsPoint(pt) || samePoint(&pc.lead, pt) {
					src := pc.lead
					src.ID = ""
					matches[i] = &src
					break
				}
			}
		}
		return matches, nil
	})

	total := 0
	var errs []error
	for _, o := range outs {
		if o.Err != nil {
			errs = append(errs, o.Err)
			continue
		}
		for i, src := range o.Value {
			if src == nil {
				continue
			}
			l := batches[o.Index][i]
			l.FillMissing(src)
			l.MarkEnriched(types.EnrichedParcel)
			total++
		}
	}
	if len(errs) > 0 {
		return total, fmt.Errorf("%d of %d parcel enrichment batches failed: %w", len(errs), len(batches), errors.Join(errs...))
	}
	return total, nil
}

// LookupAddress finds parcels whose situs address starts with the
// normalized street line.
func (p *Parcels) LookupAddress(ctx context.Context, addr string, limit int) ([]types.Lead, error) {
	key := address.Key(addr)
	if key == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	fs, err := p.gis.Query(ctx, p.layer, arcgis.Query{
		Where:          arcgis.LikePrefix(FieldSitus, key),
		OutFields:      parcelFields,
		OutSR:          geo.WGS84,
		ReturnGeometry: true,
		RecordCount:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", key, err)
	}
	var leads []types.Lead
	for _, f := range fs.Features {
		if l, ok := parcelLead(f); ok {
			leads = append(leads, l)
		}
	}
	return leads, nil
}

// parcelWhere pushes property-type and lot-size predicates down to the layer.
func parcelWhere(pred types.Predicate) string {
	switch pred.Kind {
	case types.KindPropertyType:
		if codes := types.UseCodesFor(pred.Values); len(codes) > 0 {
			return arcgis.InList(FieldUseCode, codes)
		}
	case types.KindRange:
		if pred.Name != "lot_acres" {
			break
		}
		var clauses []string
		if pred.Min != nil {
			clauses = append(clauses, fmt.Sprintf("%s >= %g", FieldAcres, *pred.Min))
		}
		if pred.Max != nil {
			clauses = append(clauses, fmt.Sprintf("%s <= %g", FieldAcres, *pred.Max))
		}
		return arcgis.And(clauses...)
	}
	return "1=1"
}

func parcelLead(f arcgis.Feature) (types.Lead, bool) {
	a := f.Attributes
	apn := arcgis.String(a, FieldParcel)
	situs := arcgis.String(a, FieldSitus)
	if apn == "" && situs == "" {
		return types.Lead{}, false
	}
	l := types.Lead{
		ID:              types.StableID(SourceParcels, apn+"|"+situs),
		Source:          SourceParcels,
		SourceID:        apn,
		ParcelID:        apn,
		Address:         address.Normalize(situs),
		City:            arcgis.String(a, FieldSitusCity),
		State:           "AZ",
		OwnerName:       arcgis.String(a, FieldOwner),
		MailingAddress:  arcgis.String(a, FieldMailAddr),
		MailingCity:     arcgis.String(a, FieldMailCity),
		MailingState:    arcgis.String(a, FieldMailState),
		MailingZip:      address.Zip5(arcgis.String(a, FieldMailZip)),
		PropertyUseCode: arcgis.String(a, FieldUseCode),
		SquareFeet:      arcgis.IntPtr(a, FieldSqft),
		YearBuilt:       arcgis.IntPtr(a, FieldYearBuilt),
		Bedrooms:        arcgis.IntPtr(a, FieldBedrooms),
		Bathrooms:       arcgis.PositivePtr(a, FieldBathrooms),
		LotSize:         arcgis.PositivePtr(a, FieldAcres),
		AssessedValue:   arcgis.PositivePtr(a, FieldFullCash),
		LastSaleDate:    arcgis.Date(a, FieldSaleDate),
		LastSalePrice:   arcgis.PositivePtr(a, FieldSalePrice),
		Subdivision:     arcgis.String(a, FieldSubdivision),
	}
	if z := address.Zip5(arcgis.String(a, FieldSitusZip)); z != "" {
		l.Zip, l.ZipSource = z, types.ZipFromProperty
	} else if l.MailingZip != "" {
		l.Zip, l.ZipSource = l.MailingZip, types.ZipFromOwner
	}
	x, y, ok := f.Point()
	leadPoint(&l, x, y, ok, f.Polygon(geo.WGS84))
	l.MarkEnriched(types.EnrichedParcel)
	return l, true
}

func samePoint(l *types.Lead, p geo.Point) bool {
	lat, lon, ok := l.Point()
	return ok && geo.RoundKey(lat, lon, 6) == geo.RoundKey(p.Lat, p.Lon, 6)
}
