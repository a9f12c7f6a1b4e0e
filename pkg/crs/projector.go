package crs

import (
	"math"

	"github.com/utiliqc/spanqc/pkg/errors"
)

// Projector converts WGS84 latitude/longitude (degrees) into the planar
// coordinates of a target CRS, in that CRS's own linear unit. It is a pure
// function of the parsed CRS; safe for concurrent use.
type Projector struct {
	crs     *CRS
	project func(latRad, lonRad float64) (xMeters, yMeters float64)

	// false offsets in layer units, applied after unit conversion
	falseEasting  float64
	falseNorthing float64
	metersPerUnit float64
}

// NewProjector builds a Projector for the given CRS.
// Unsupported projections return errors.ErrUnsupported.
func NewProjector(c *CRS) (*Projector, error) {
	if c.Geographic {
		return &Projector{
			crs:           c,
			metersPerUnit: 1,
			project: func(latRad, lonRad float64) (float64, float64) {
				return lonRad * 180 / math.Pi, latRad * 180 / math.Pi
			},
		}, nil
	}

	p := &Projector{
		crs:           c,
		falseEasting:  c.Param("false_easting", 0),
		falseNorthing: c.Param("false_northing", 0),
		metersPerUnit: c.MetersPerUnit,
	}

	switch normalizeProjectionName(c.Projection) {
	case "lambert_conformal_conic", "lambert_conformal_conic_2sp", "lambert_conformal_conic_1sp":
		p.project = newLambertConformalConic(c)
	case "transverse_mercator":
		p.project = newTransverseMercator(c)
	default:
		return nil, errors.NewParseError("wkt", "",
			"unsupported projection "+c.Projection+": "+errors.ErrUnsupported.Error(), errors.ErrUnsupported)
	}
	return p, nil
}

// Load parses a .prj file and builds a Projector for it.
func Load(prjPath string) (*Projector, error) {
	c, err := ParseFile(prjPath)
	if err != nil {
		return nil, err
	}
	return NewProjector(c)
}

// Project converts a WGS84 point to planar layer coordinates.
func (p *Projector) Project(latDeg, lonDeg float64) (x, y float64) {
	xm, ym := p.project(latDeg*math.Pi/180, lonDeg*math.Pi/180)
	if p.crs.Geographic {
		return xm, ym
	}
	return p.falseEasting + xm/p.metersPerUnit, p.falseNorthing + ym/p.metersPerUnit
}

// CRS returns the projector's parsed CRS.
func (p *Projector) CRS() *CRS {
	return p.crs
}

func normalizeProjectionName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			out = append(out, r+('a'-'A'))
		case r == ' ' || r == '(' || r == ')':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

// newLambertConformalConic returns the forward LCC projection (2SP, or 1SP
// when only one standard parallel is present). Formulas are the standard
// ellipsoidal series; output is in meters relative to the false origin.
func newLambertConformalConic(c *CRS) func(lat, lon float64) (float64, float64) {
	a := c.SemiMajor
	e2 := eccentricitySquared(c.InvFlattening)
	e := math.Sqrt(e2)

	deg := math.Pi / 180
	lat0 := c.Param("latitude_of_origin", 0) * deg
	lon0 := c.Param("central_meridian", 0) * deg
	lat1 := c.Param("standard_parallel_1", c.Param("latitude_of_origin", 0)) * deg
	lat2 := lat1
	if c.HasParam("standard_parallel_2") {
		lat2 = c.Param("standard_parallel_2", 0) * deg
	}

	m := func(lat float64) float64 {
		s := math.Sin(lat)
		return math.Cos(lat) / math.Sqrt(1-e2*s*s)
	}
	t := func(lat float64) float64 {
		s := math.Sin(lat)
		return math.Tan(math.Pi/4-lat/2) / math.Pow((1-e*s)/(1+e*s), e/2)
	}

	m1, m2 := m(lat1), m(lat2)
	t0, t1, t2 := t(lat0), t(lat1), t(lat2)

	var n float64
	if lat1 == lat2 {
		n = math.Sin(lat1)
	} else {
		n = (math.Log(m1) - math.Log(m2)) / (math.Log(t1) - math.Log(t2))
	}
	f := m1 / (n * math.Pow(t1, n))
	rho0 := a * f * math.Pow(t0, n)

	return func(lat, lon float64) (float64, float64) {
		rho := a * f * math.Pow(t(lat), n)
		theta := n * (lon - lon0)
		return rho * math.Sin(theta), rho0 - rho*math.Cos(theta)
	}
}

// newTransverseMercator returns the forward TM projection. Output is in
// meters relative to the false origin.
func newTransverseMercator(c *CRS) func(lat, lon float64) (float64, float64) {
	a := c.SemiMajor
	e2 := eccentricitySquared(c.InvFlattening)
	ep2 := e2 / (1 - e2)

	deg := math.Pi / 180
	lat0 := c.Param("latitude_of_origin", 0) * deg
	lon0 := c.Param("central_meridian", 0) * deg
	k0 := c.Param("scale_factor", 1)

	// Meridional arc length from the equator.
	mArc := func(lat float64) float64 {
		e4 := e2 * e2
		e6 := e4 * e2
		return a * ((1-e2/4-3*e4/64-5*e6/256)*lat -
			(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*lat) +
			(15*e4/256+45*e6/1024)*math.Sin(4*lat) -
			(35*e6/3072)*math.Sin(6*lat))
	}
	m0 := mArc(lat0)

	return func(lat, lon float64) (float64, float64) {
		sin := math.Sin(lat)
		cos := math.Cos(lat)
		tan := math.Tan(lat)

		nu := a / math.Sqrt(1-e2*sin*sin)
		tt := tan * tan
		cc := ep2 * cos * cos
		aa := (lon - lon0) * cos
		aa2 := aa * aa
		aa3 := aa2 * aa

		x := k0 * nu * (aa +
			(1-tt+cc)*aa3/6 +
			(5-18*tt+tt*tt+72*cc-58*ep2)*aa3*aa2/120)
		y := k0 * (mArc(lat) - m0 +
			nu*tan*(aa2/2+
				(5-tt+9*cc+4*cc*cc)*aa2*aa2/24+
				(61-58*tt+tt*tt+600*cc-330*ep2)*aa3*aa3/720))
		return x, y
	}
}

func eccentricitySquared(invFlattening float64) float64 {
	if invFlattening == 0 {
		return 0 // sphere
	}
	f := 1 / invFlattening
	return f * (2 - f)
}
