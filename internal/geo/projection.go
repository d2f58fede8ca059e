package geo

import "math"

// LambertConformalConic projects WGS84 lat/lon onto a two-parallel Lambert
// conformal conic state plane. Local shapefile layers are stored in such a
// plane, so points are projected before point-in-polygon testing.
type LambertConformalConic struct {
	FalseEasting  float64 `mapstructure:"false_easting" yaml:"false_easting"`
	FalseNorthing float64 `mapstructure:"false_northing" yaml:"false_northing"`
	OriginLat     float64 `mapstructure:"origin_lat" yaml:"origin_lat"`
	Parallel1     float64 `mapstructure:"parallel_1" yaml:"parallel_1"`
	Parallel2     float64 `mapstructure:"parallel_2" yaml:"parallel_2"`
	CentralMerid  float64 `mapstructure:"central_meridian" yaml:"central_meridian"`
	UnitsPerMeter float64 `mapstructure:"units_per_meter" yaml:"units_per_meter"`

	n, f, rho0 float64
}

const (
	semiMajorM = 6378137.0        // NAD83 semi-major axis (metres)
	e2NAD83    = 0.00669438002290 // NAD83 eccentricity squared

	// USSurveyFootPerMeter converts metres to US survey feet.
	USSurveyFootPerMeter = 3.2808333333333334
)

// NewLambertConformalConic precomputes the projection constants.
func NewLambertConformalConic(p LambertConformalConic) *LambertConformalConic {
	if p.UnitsPerMeter == 0 {
		p.UnitsPerMeter = 1
	}
	phi1 := p.Parallel1 * math.Pi / 180
	phi2 := p.Parallel2 * math.Pi / 180
	phi0 := p.OriginLat * math.Pi / 180

	m1, m2 := lccM(phi1), lccM(phi2)
	t1, t2, t0 := lccT(phi1), lccT(phi2), lccT(phi0)

	p.n = math.Log(m1/m2) / math.Log(t1/t2)
	a := semiMajorM * p.UnitsPerMeter
	p.f = a * m1 / (p.n * math.Pow(t1, p.n))
	p.rho0 = p.f * math.Pow(t0, p.n)
	return &p
}

// Forward converts WGS84 degrees to projected (x, y) = (easting, northing).
func (p *LambertConformalConic) Forward(latDeg, lonDeg float64) (x, y float64) {
	phi := latDeg * math.Pi / 180
	lambda := lonDeg * math.Pi / 180
	lambda0 := p.CentralMerid * math.Pi / 180

	rho := p.f * math.Pow(lccT(phi), p.n)
	theta := p.n * (lambda - lambda0)

	x = rho*math.Sin(theta) + p.FalseEasting
	y = p.rho0 - rho*math.Cos(theta) + p.FalseNorthing
	return x, y
}

func lccM(phi float64) float64 {
	return math.Cos(phi) / math.Sqrt(1-e2NAD83*math.Sin(phi)*math.Sin(phi))
}

func lccT(phi float64) float64 {
	e := math.Sqrt(e2NAD83)
	return math.Tan(math.Pi/4-phi/2) / math.Pow((1-e*math.Sin(phi))/(1+e*math.Sin(phi)), e/2)
}
