// Package arcgistest serves in-memory ArcGIS feature layers for tests.
package arcgistest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/arcgis"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geo"
)

// Layer is a fake feature layer. Point features carry Geometry.X/Y; polygon
// features carry Geometry.Rings.
type Layer struct {
	Features       []arcgis.Feature
	MaxRecordCount int
	Delay          time.Duration
	Fail           bool

	mu    sync.Mutex
	calls int32
	forms []map[string]string
}

// Server serves one or more layers keyed by path ("/parcels").
type Server struct {
	*httptest.Server
	layers map[string]*Layer
}

// NewServer starts a server for the given layers.
func NewServer(layers map[string]*Layer) *Server {
	s := &Server{layers: layers}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// LayerURL returns the layer URL for path.
func (s *Server) LayerURL(path string) string {
	return s.Server.URL + path
}

// Calls returns how many queries a layer received.
func (l *Layer) Calls() int {
	return int(atomic.LoadInt32(&l.calls))
}

// Forms returns the submitted query parameters.
func (l *Layer) Forms() []map[string]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]map[string]string(nil), l.forms...)
}

// PointFeature builds a point feature.
func PointFeature(lon, lat float64, attrs map[string]any) arcgis.Feature {
	return arcgis.Feature{Attributes: attrs, Geometry: &arcgis.FeatureGeometry{X: &lon, Y: &lat}}
}

// BoxFeature builds a rectangular polygon feature.
func BoxFeature(west, south, east, north float64, attrs map[string]any) arcgis.Feature {
	ring := [][2]float64{{west, south}, {east, south}, {east, north}, {west, north}, {west, south}}
	return arcgis.Feature{Attributes: attrs, Geometry: &arcgis.FeatureGeometry{Rings: [][][2]float64{ring}}}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/query")
	layer, ok := s.layers[path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	layer.serve(w, r)
}

func (l *Layer) serve(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&l.calls, 1)
	form := map[string]string{}
	for k := range r.Form {
		form[k] = r.Form.Get(k)
	}
	l.mu.Lock()
	l.forms = append(l.forms, form)
	l.mu.Unlock()

	if l.Delay > 0 {
		select {
		case <-time.After(l.Delay):
		case <-r.Context().Done():
			return
		}
	}
	if l.Fail {
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 500, "message": "Unable to complete operation."}})
		return
	}

	matched := l.match(form)

	w.Header().Set("Content-Type", "application/json")
	switch {
	case form["returnCountOnly"] == "true":
		_ = json.NewEncoder(w).Encode(map[string]any{"count": len(matched)})
		return
	case form["returnIdsOnly"] == "true":
		ids := make([]int64, 0, len(matched))
		for _, f := range matched {
			if id, ok := arcgis.Int64(f.Attributes, arcgis.DefaultOIDField); ok {
				ids = append(ids, id)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"objectIdFieldName": arcgis.DefaultOIDField, "objectIds": ids})
		return
	}

	if form["returnDistinctValues"] == "true" {
		matched = distinct(matched, strings.Split(form["outFields"], ","))
	}

	limit := l.MaxRecordCount
	if limit <= 0 {
		limit = 1000
	}
	if n, err := strconv.Atoi(form["resultRecordCount"]); err == nil && n > 0 && n < limit {
		limit = n
	}
	exceeded := false
	if len(matched) > limit {
		matched = matched[:limit]
		exceeded = true
	}
	out := make([]arcgis.Feature, len(matched))
	for i, f := range matched {
		out[i] = arcgis.Feature{Attributes: f.Attributes}
		if form["returnGeometry"] == "true" {
			out[i].Geometry = f.Geometry
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"features": out, "exceededTransferLimit": exceeded})
}

func (l *Layer) match(form map[string]string) []arcgis.Feature {
	var ids map[int64]bool
	if s := form["objectIds"]; s != "" {
		ids = map[int64]bool{}
		for _, p := range strings.Split(s, ",") {
			if id, err := strconv.ParseInt(p, 10, 64); err == nil {
				ids[id] = true
			}
		}
	}
	filter := parseGeometry(form["geometry"])

	var out []arcgis.Feature
	for _, f := range l.Features {
		if ids != nil {
			id, _ := arcgis.Int64(f.Attributes, arcgis.DefaultOIDField)
			if !ids[id] {
				continue
			}
		}
		if !evalWhere(form["where"], f.Attributes) {
			continue
		}
		if filter != nil && !filter(f) {
			continue
		}
		out = append(out, f)
	}
	if strings.HasPrefix(form["orderByFields"], arcgis.DefaultOIDField) {
		sort.SliceStable(out, func(i, j int) bool {
			a, _ := arcgis.Int64(out[i].Attributes, arcgis.DefaultOIDField)
			b, _ := arcgis.Int64(out[j].Attributes, arcgis.DefaultOIDField)
			return a < b
		})
	}
	return out
}

func distinct(features []arcgis.Feature, fields []string) []arcgis.Feature {
	seen := map[string]bool{}
	var out []arcgis.Feature
	for _, f := range features {
		attrs := map[string]any{}
		var key []string
		for _, fld := range fields {
			attrs[fld] = f.Attributes[fld]
			key = append(key, arcgis.String(f.Attributes, fld))
		}
		k := strings.Join(key, "|")
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, arcgis.Feature{Attributes: attrs})
	}
	return out
}

func parseGeometry(s string) func(arcgis.Feature) bool {
	if s == "" {
		return nil
	}
	var g struct {
		XMin   *float64     `json:"xmin"`
		YMin   float64      `json:"ymin"`
		XMax   float64      `json:"xmax"`
		YMax   float64      `json:"ymax"`
		Points [][2]float64 `json:"points"`
	}
	if err := json.Unmarshal([]byte(s), &g); err != nil {
		return nil
	}
	if g.XMin != nil {
		env := geo.Envelope{XMin: *g.XMin, YMin: g.YMin, XMax: g.XMax, YMax: g.YMax}
		return func(f arcgis.Feature) bool {
			if x, y, ok := f.Point(); ok {
				return env.Contains(x, y)
			}
			return f.Polygon(0).Box.Intersects(env)
		}
	}
	return func(f arcgis.Feature) bool {
		poly := f.Polygon(0)
		x, y, isPoint := f.Point()
		for _, p := range g.Points {
			if isPoint && abs(p[0]-x) < 1e-9 && abs(p[1]-y) < 1e-9 {
				return true
			}
			if !poly.IsEmpty() && poly.Contains(p[0], p[1]) {
				return true
			}
		}
		return false
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

var (
	reCompare = regexp.MustCompile(`^(\w+)\s*(>=|<=|>|<|=|<>)\s*(-?[\d.]+|'(?:[^']|'')*')$`)
	reIn      = regexp.MustCompile(`^(\w+)\s+IN\s*\((.*)\)$`)
	reLike    = regexp.MustCompile(`^UPPER\((\w+)\)\s*(?:LIKE|=)\s*'((?:[^']|'')*)'$`)
)

// evalWhere understands the subset of SQL the adapters emit: AND-joined
// comparisons, IN lists and UPPER(field) LIKE/= 'literal'. Anything else
// matches.
func evalWhere(where string, attrs map[string]any) bool {
	for _, clause := range splitAnd(where) {
		if !evalClause(clause, attrs) {
			return false
		}
	}
	return true
}

func evalClause(c string, attrs map[string]any) bool {
	c = stripParens(strings.TrimSpace(c))
	if c == "" || c == "1=1" {
		return true
	}
	if parts := splitAnd(c); len(parts) > 1 {
		return evalWhere(c, attrs)
	}
	if m := reLike.FindStringSubmatch(c); m != nil {
		pattern := strings.ReplaceAll(m[2], "''", "'")
		val := strings.ToUpper(arcgis.String(attrs, m[1]))
		if strings.HasSuffix(pattern, "%") && strings.HasPrefix(pattern, "%") {
			return strings.Contains(val, strings.Trim(pattern, "%"))
		}
		if strings.HasSuffix(pattern, "%") {
			return strings.HasPrefix(val, strings.TrimSuffix(pattern, "%"))
		}
		return val == pattern
	}
	if m := reIn.FindStringSubmatch(c); m != nil {
		val := arcgis.String(attrs, m[1])
		for _, item := range strings.Split(m[2], ",") {
			item = strings.TrimSpace(item)
			item = strings.ReplaceAll(strings.Trim(item, "'"), "''", "'")
			if strings.EqualFold(val, item) {
				return true
			}
		}
		return false
	}
	if m := reCompare.FindStringSubmatch(c); m != nil {
		lit := m[3]
		if strings.HasPrefix(lit, "'") {
			want := strings.ReplaceAll(strings.Trim(lit, "'"), "''", "'")
			got := arcgis.String(attrs, m[1])
			switch m[2] {
			case "=":
				return strings.EqualFold(got, want)
			case "<>":
				return !strings.EqualFold(got, want)
			}
			return true
		}
		want, _ := strconv.ParseFloat(lit, 64)
		got, ok := arcgis.Float(attrs, m[1])
		if !ok {
			return false
		}
		switch m[2] {
		case ">":
			return got > want
		case ">=":
			return got >= want
		case "<":
			return got < want
		case "<=":
			return got <= want
		case "=":
			return got == want
		case "<>":
			return got != want
		}
	}
	return true
}

func stripParens(s string) string {
	for strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") && balanced(s[1:len(s)-1]) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func balanced(s string) bool {
	depth := 0
	inQuote := false
	for _, r := range s {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case inQuote:
		case r == '(':
			depth++
		case r == ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

func splitAnd(s string) []string {
	var parts []string
	depth := 0
	inQuote := false
	start := 0
	upper := strings.ToUpper(s)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'':
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && strings.HasPrefix(upper[i:], " AND "):
			parts = append(parts, s[start:i])
			start = i + 5
			i += 4
		}
	}
	return append(parts, s[start:])
}
