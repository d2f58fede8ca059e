package geo

import (
	"math"
)

// Ring is a closed sequence of [x, y] vertices.
type Ring [][2]float64

// Polygon is a possibly multi-part polygon. Holes are simply additional
// rings: containment uses the even-odd rule across all rings.
type Polygon struct {
	Rings []Ring   `json:"rings"`
	Box   Envelope `json:"-"`
}

// NewPolygon builds a polygon and computes its bounding box.
func NewPolygon(wkid int, rings ...Ring) *Polygon {
	p := &Polygon{Box: EmptyEnvelope(wkid)}
	for _, r := range rings {
		p.AddRing(r)
	}
	return p
}

// AddRing appends a ring and extends the bounding box.
func (p *Polygon) AddRing(r Ring) {
	if len(r) == 0 {
		return
	}
	p.Rings = append(p.Rings, r)
	for _, v := range r {
		p.Box = p.Box.Extend(v[0], v[1])
	}
}

// Merge appends every ring of o. Used to build the union polygon of a city
// from its member zips, which never overlap.
func (p *Polygon) Merge(o *Polygon) {
	if o == nil {
		return
	}
	for _, r := range o.Rings {
		p.AddRing(r)
	}
}

// IsEmpty reports whether the polygon has no rings.
func (p *Polygon) IsEmpty() bool {
	return p == nil || len(p.Rings) == 0
}

// Contains reports whether (x, y) is inside the polygon.
func (p *Polygon) Contains(x, y float64) bool {
	if p.IsEmpty() || !p.Box.Contains(x, y) {
		return false
	}
	inside := false
	for _, ring := range p.Rings {
		if pointInRing(x, y, ring) {
			inside = !inside
		}
	}
	return inside
}

// ContainsPoint tests a WGS84 point against a WGS84 polygon.
func (p *Polygon) ContainsPoint(pt Point) bool {
	return p.Contains(pt.Lon, pt.Lat)
}

// pointInRing is the ray-casting test. Rings from shapefiles and ArcGIS are
// closed, but closure is not required.
func pointInRing(x, y float64, ring Ring) bool {
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if ((yi > y) != (yj > y)) && (x < (xj-xi)*(y-yi)/(yj-yi)+xi) {
			inside = !inside
		}
		j = i
	}
	return inside
}

// Centroid returns the vertex average of the first ring; good enough for
// labelling and for seeding bounds.
func (p *Polygon) Centroid() (x, y float64, ok bool) {
	if p.IsEmpty() || len(p.Rings[0]) == 0 {
		return 0, 0, false
	}
	var sx, sy float64
	for _, v := range p.Rings[0] {
		sx += v[0]
		sy += v[1]
	}
	n := float64(len(p.Rings[0]))
	return sx / n, sy / n, true
}

// RoundKey returns a lookup key for a coordinate rounded to the given number
// of decimals. Four decimals is roughly 11 m.
func RoundKey(lat, lon float64, decimals int) [2]int64 {
	scale := math.Pow(10, float64(decimals))
	return [2]int64{int64(math.Round(lat * scale)), int64(math.Round(lon * scale))}
}
