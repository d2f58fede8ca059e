// Package arcgis is a small client for ArcGIS REST feature-layer queries.
package arcgis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/httpclient"
)

// ErrService is returned when a layer answers 200 with an error document.
var ErrService = errors.New("arcgis service error")

// DefaultOIDField is the object-id field used for pagination.
const DefaultOIDField = "OBJECTID"

// maxPages bounds OBJECTID pagination so a misbehaving layer cannot loop.
const maxPages = 500

// Spatial relationships.
const (
	RelIntersects = "esriSpatialRelIntersects"
	RelContains   = "esriSpatialRelContains"
	RelWithin     = "esriSpatialRelWithin"
)

// Geometry is a query geometry: either an envelope or a set of points.
type Geometry struct {
	Envelope *geo.Envelope
	Points   [][2]float64
	WKID     int
}

// EnvelopeGeometry wraps an envelope.
func EnvelopeGeometry(env geo.Envelope) *Geometry {
	return &Geometry{Envelope: &env, WKID: env.WKID}
}

// MultipointGeometry wraps WGS84 (lat, lon) points as a multipoint.
func MultipointGeometry(points []geo.Point) *Geometry {
	g := &Geometry{WKID: geo.WGS84, Points: make([][2]float64, 0, len(points))}
	for _, p := range points {
		g.Points = append(g.Points, [2]float64{p.Lon, p.Lat})
	}
	return g
}

func (g *Geometry) typeName() string {
	if g.Envelope != nil {
		return "esriGeometryEnvelope"
	}
	return "esriGeometryMultipoint"
}

func (g *Geometry) encode() (string, error) {
	sr := map[string]int{"wkid": g.WKID}
	var v any
	if g.Envelope != nil {
		v = map[string]any{
			"xmin": g.Envelope.XMin, "ymin": g.Envelope.YMin,
			"xmax": g.Envelope.XMax, "ymax": g.Envelope.YMax,
			"spatialReference": sr,
		}
	} else {
		v = map[string]any{"points": g.Points, "spatialReference": sr}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode geometry: %w", err)
	}
	return string(b), nil
}

// Query describes one layer query.
type Query struct {
	Where          string
	OutFields      []string
	Geometry       *Geometry
	SpatialRel     string
	OutSR          int
	ReturnGeometry bool
	ObjectIDs      []int64
	OrderBy        string
	RecordCount    int
	Distinct       bool
	OIDField       string
}

func (q Query) oidField() string {
	if q.OIDField != "" {
		return q.OIDField
	}
	return DefaultOIDField
}

func (q Query) form() (url.Values, error) {
	v := url.Values{}
	v.Set("f", "json")
	where := q.Where
	if where == "" {
		where = "1=1"
	}
	v.Set("where", where)
	if len(q.OutFields) > 0 {
		v.Set("outFields", strings.Join(q.OutFields, ","))
	} else {
		v.Set("outFields", "*")
	}
	if q.Geometry != nil {
		g, err := q.Geometry.encode()
		if err != nil {
			return nil, err
		}
		v.Set("geometry", g)
		v.Set("geometryType", q.Geometry.typeName())
		v.Set("inSR", strconv.Itoa(q.Geometry.WKID))
		rel := q.SpatialRel
		if rel == "" {
			rel = RelIntersects
		}
		v.Set("spatialRel", rel)
	}
	outSR := q.OutSR
	if outSR == 0 {
		outSR = geo.WGS84
	}
	v.Set("outSR", strconv.Itoa(outSR))
	v.Set("returnGeometry", strconv.FormatBool(q.ReturnGeometry))
	if len(q.ObjectIDs) > 0 {
		ids := make([]string, len(q.ObjectIDs))
		for i, id := range q.ObjectIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		v.Set("objectIds", strings.Join(ids, ","))
	}
	if q.OrderBy != "" {
		v.Set("orderByFields", q.OrderBy)
	}
	if q.RecordCount > 0 {
		v.Set("resultRecordCount", strconv.Itoa(q.RecordCount))
	}
	if q.Distinct {
		v.Set("returnDistinctValues", "true")
	}
	return v, nil
}

// FeatureGeometry is a returned geometry: a point or polygon rings.
type FeatureGeometry struct {
	X     *float64       `json:"x,omitempty"`
	Y     *float64       `json:"y,omitempty"`
	Rings [][][2]float64 `json:"rings,omitempty"`
}

// Feature is a returned row.
type Feature struct {
	Attributes map[string]any   `json:"attributes"`
	Geometry   *FeatureGeometry `json:"geometry,omitempty"`
}

// Point returns (x, y) for a point feature.
func (f Feature) Point() (x, y float64, ok bool) {
	if f.Geometry == nil || f.Geometry.X == nil || f.Geometry.Y == nil {
		return 0, 0, false
	}
	return *f.Geometry.X, *f.Geometry.Y, true
}

// Polygon converts the rings of a polygon feature.
func (f Feature) Polygon(wkid int) *geo.Polygon {
	p := geo.NewPolygon(wkid)
	if f.Geometry == nil {
		return p
	}
	for _, r := range f.Geometry.Rings {
		p.AddRing(geo.Ring(r))
	}
	return p
}

// FeatureSet is a query response.
type FeatureSet struct {
	Features              []Feature `json:"features"`
	ExceededTransferLimit bool      `json:"exceededTransferLimit"`
}

type serviceError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

type envelope struct {
	FeatureSet
	ObjectIDFieldName string        `json:"objectIdFieldName"`
	ObjectIDs         []int64       `json:"objectIds"`
	Count             *int          `json:"count"`
	Error             *serviceError `json:"error"`
}

// Client queries ArcGIS feature layers.
type Client struct {
	http *httpclient.Client
}

// NewClient wraps an HTTP client.
func NewClient(hc *httpclient.Client) *Client {
	return &Client{http: hc}
}

func (c *Client) post(ctx context.Context, layerURL string, form url.Values) (*envelope, error) {
	var out envelope
	if err := c.http.PostForm(ctx, strings.TrimRight(layerURL, "/")+"/query", form, &out); err != nil {
		return nil, err
	}
	if out.Error != nil {
		return nil, fmt.Errorf("%w: %d %s %s", ErrService, out.Error.Code, out.Error.Message, strings.Join(out.Error.Details, "; "))
	}
	return &out, nil
}

// Query runs a single attribute/spatial query.
func (c *Client) Query(ctx context.Context, layerURL string, q Query) (*FeatureSet, error) {
	form, err := q.form()
	if err != nil {
		return nil, err
	}
	out, err := c.post(ctx, layerURL, form)
	if err != nil {
		return nil, err
	}
	return &out.FeatureSet, nil
}

// QueryIDs returns the object IDs matching the query.
func (c *Client) QueryIDs(ctx context.Context, layerURL string, q Query) ([]int64, error) {
	form, err := q.form()
	if err != nil {
		return nil, err
	}
	form.Set("returnIdsOnly", "true")
	form.Del("outFields")
	form.Del("returnGeometry")
	out, err := c.post(ctx, layerURL, form)
	if err != nil {
		return nil, err
	}
	return out.ObjectIDs, nil
}

// QueryCount returns the number of rows matching the query.
func (c *Client) QueryCount(ctx context.Context, layerURL string, q Query) (int, error) {
	form, err := q.form()
	if err != nil {
		return 0, err
	}
	form.Set("returnCountOnly", "true")
	out, err := c.post(ctx, layerURL, form)
	if err != nil {
		return 0, err
	}
	if out.Count == nil {
		return 0, nil
	}
	return *out.Count, nil
}

// QueryAll pages through a query by OBJECTID > last_max, which survives
// layers where resultOffset is unsupported or unstable. maxRecords <= 0
// means no cap.
func (c *Client) QueryAll(ctx context.Context, layerURL string, q Query, maxRecords int) ([]Feature, error) {
	oid := q.oidField()
	base := q.Where
	if base == "" {
		base = "1=1"
	}
	q.OrderBy = oid + " ASC"
	if !containsField(q.OutFields, oid) && len(q.OutFields) > 0 {
		q.OutFields = append(append([]string(nil), q.OutFields...), oid)
	}

	var (
		all     []Feature
		lastMax int64 = -1
	)
	for page := 0; page < maxPages; page++ {
		q.Where = fmt.Sprintf("(%s) AND %s > %d", base, oid, lastMax)
		fs, err := c.Query(ctx, layerURL, q)
		if err != nil {
			if len(all) > 0 {
				return all, fmt.Errorf("pagination stopped after %d records: %w", len(all), err)
			}
			return nil, err
		}
		if len(fs.Features) == 0 {
			break
		}
		next := lastMax
		for _, f := range fs.Features {
			if id, ok := Int64(f.Attributes, oid); ok && id > next {
				next = id
			}
		}
		all = append(all, fs.Features...)
		if maxRecords > 0 && len(all) >= maxRecords {
			return all[:maxRecords], nil
		}
		if !fs.ExceededTransferLimit || next == lastMax {
			break
		}
		lastMax = next
	}
	return all, nil
}

func containsField(fields []string, f string) bool {
	for _, x := range fields {
		if strings.EqualFold(x, f) || x == "*" {
			return true
		}
	}
	return false
}
