package geo

// Area is a resolved geographic scope: a native-reference envelope for
// server-side filtering plus a WGS84 extent and optional polygon for
// client-side containment.
type Area struct {
	Label    string   `json:"label"`
	Kind     string   `json:"kind"`
	Envelope Envelope `json:"envelope"`
	Bounds   Envelope `json:"bounds"`
	Polygon  *Polygon `json:"-"`
	Zips     []string `json:"zips,omitempty"`
}

// Area kinds.
const (
	AreaZip          = "zip"
	AreaCity         = "city"
	AreaNeighborhood = "neighborhood"
	AreaBounds       = "bounds"
	AreaAddress      = "address"
)

// IsEmpty reports whether the area resolved to nothing.
func (a *Area) IsEmpty() bool {
	return a == nil || (a.Bounds.IsEmpty() && a.Polygon.IsEmpty())
}

// Contains tests a WGS84 point against the polygon when one is known,
// otherwise against the WGS84 extent.
func (a *Area) Contains(lat, lon float64) bool {
	if a == nil {
		return false
	}
	if !a.Polygon.IsEmpty() {
		return a.Polygon.Contains(lon, lat)
	}
	return a.Bounds.Contains(lon, lat)
}

// QueryEnvelope returns the envelope to send upstream: the native one when
// known, else the WGS84 extent.
func (a *Area) QueryEnvelope() Envelope {
	if !a.Envelope.IsEmpty() {
		return a.Envelope
	}
	return a.Bounds
}
