// Package geo holds the geometry primitives used by the pipeline: envelopes,
// polygons, a grid spatial index and the state-plane projection.
package geo

import (
	"fmt"
	"math"
)

// Well-known spatial reference IDs.
const (
	WGS84 = 4326
	// ArizonaCentralFt is NAD83 / Arizona Central (International feet), the
	// native reference of the county layers.
	ArizonaCentralFt = 2868
)

// Envelope is an axis-aligned rectangle in a declared spatial reference.
type Envelope struct {
	XMin float64 `json:"xmin"`
	YMin float64 `json:"ymin"`
	XMax float64 `json:"xmax"`
	YMax float64 `json:"ymax"`
	WKID int     `json:"wkid"`
}

// EmptyEnvelope returns an envelope that unions as the identity.
func EmptyEnvelope(wkid int) Envelope {
	return Envelope{
		XMin: math.Inf(1), YMin: math.Inf(1),
		XMax: math.Inf(-1), YMax: math.Inf(-1),
		WKID: wkid,
	}
}

// IsEmpty reports whether the envelope covers nothing.
func (e Envelope) IsEmpty() bool {
	return e.XMin > e.XMax || e.YMin > e.YMax ||
		math.IsInf(e.XMin, 0) || math.IsInf(e.YMin, 0)
}

// Contains reports whether (x, y) lies inside, edges included.
func (e Envelope) Contains(x, y float64) bool {
	return x >= e.XMin && x <= e.XMax && y >= e.YMin && y <= e.YMax
}

// Intersects reports whether two envelopes overlap.
func (e Envelope) Intersects(o Envelope) bool {
	return e.XMin <= o.XMax && o.XMin <= e.XMax && e.YMin <= o.YMax && o.YMin <= e.YMax
}

// Union returns the smallest envelope covering both.
func (e Envelope) Union(o Envelope) Envelope {
	if o.IsEmpty() {
		return e
	}
	if e.IsEmpty() {
		return o
	}
	return Envelope{
		XMin: math.Min(e.XMin, o.XMin),
		YMin: math.Min(e.YMin, o.YMin),
		XMax: math.Max(e.XMax, o.XMax),
		YMax: math.Max(e.YMax, o.YMax),
		WKID: e.WKID,
	}
}

// Extend grows the envelope to include (x, y).
func (e Envelope) Extend(x, y float64) Envelope {
	return e.Union(Envelope{XMin: x, YMin: y, XMax: x, YMax: y, WKID: e.WKID})
}

// Buffer grows the envelope by d on every side.
func (e Envelope) Buffer(d float64) Envelope {
	if e.IsEmpty() {
		return e
	}
	return Envelope{XMin: e.XMin - d, YMin: e.YMin - d, XMax: e.XMax + d, YMax: e.YMax + d, WKID: e.WKID}
}

// String renders the envelope as "xmin,ymin,xmax,ymax".
func (e Envelope) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", e.XMin, e.YMin, e.XMax, e.YMax)
}

// EnvelopeOfPoints returns the WGS84 envelope covering all (lat, lon) pairs.
func EnvelopeOfPoints(points []Point) Envelope {
	env := EmptyEnvelope(WGS84)
	for _, p := range points {
		env = env.Extend(p.Lon, p.Lat)
	}
	return env
}

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
