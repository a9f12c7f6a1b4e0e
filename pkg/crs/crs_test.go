package crs

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utiliqc/spanqc/pkg/errors"
)

// nebraskaWKT is the state-plane system the OPPD line layers ship with.
const nebraskaWKT = `PROJCS["NAD_1983_StatePlane_Nebraska_FIPS_2600_Feet",GEOGCS["GCS_North_American_1983",DATUM["D_North_American_1983",SPHEROID["GRS_1980",6378137.0,298.257222101]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Lambert_Conformal_Conic"],PARAMETER["False_Easting",1640416.666666667],PARAMETER["False_Northing",0.0],PARAMETER["Central_Meridian",-100.0],PARAMETER["Standard_Parallel_1",40.0],PARAMETER["Standard_Parallel_2",43.0],PARAMETER["Latitude_Of_Origin",39.83333333333334],UNIT["Foot_US",0.3048006096012192]]`

const utmWKT = `PROJCS["WGS_1984_UTM_Zone_14N",GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]],PROJECTION["Transverse_Mercator"],PARAMETER["False_Easting",500000.0],PARAMETER["False_Northing",0.0],PARAMETER["Central_Meridian",-99.0],PARAMETER["Scale_Factor",0.9996],PARAMETER["Latitude_Of_Origin",0.0],UNIT["Meter",1.0]]`

func TestParseProjectedWKT(t *testing.T) {
	c, err := Parse(nebraskaWKT)
	require.NoError(t, err)

	assert.Equal(t, "NAD_1983_StatePlane_Nebraska_FIPS_2600_Feet", c.Name)
	assert.False(t, c.Geographic)
	assert.Equal(t, "Lambert_Conformal_Conic", c.Projection)
	assert.InDelta(t, 6378137.0, c.SemiMajor, 1e-6)
	assert.InDelta(t, 298.257222101, c.InvFlattening, 1e-9)
	// The linear unit must be the PROJCS's own, not the degree unit
	// nested inside GEOGCS.
	assert.InDelta(t, 0.3048006096012192, c.MetersPerUnit, 1e-15)
	assert.InDelta(t, 1640416.666666667, c.Param("false_easting", 0), 1e-6)
	assert.InDelta(t, 43.0, c.Param("standard_parallel_2", 0), 1e-9)
}

func TestParseGeographicWKT(t *testing.T) {
	c, err := Parse(`GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`)
	require.NoError(t, err)
	assert.True(t, c.Geographic)
	assert.InDelta(t, 6378137.0, c.SemiMajor, 1e-6)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse(`LOCAL_CS["none"]`)
	require.Error(t, err)

	_, err = Parse(`PROJCS["x",GEOGCS["g",DATUM["d",SPHEROID["s",1,2]]],PROJECTION["Cassini_Soldner"],UNIT["Meter",1.0]]`)
	require.Error(t, err)
	// Unknown projection surfaces only at projector construction.
	c, err := Parse(`PROJCS["x",GEOGCS["g",DATUM["d",SPHEROID["s",6378137.0,298.0]]],PROJECTION["Cassini_Soldner"],UNIT["Meter",1.0]]`)
	require.NoError(t, err)
	_, err = NewProjector(c)
	assert.True(t, errors.IsUnsupported(err))
}

func TestLambertProjectionOrigin(t *testing.T) {
	c, err := Parse(nebraskaWKT)
	require.NoError(t, err)
	p, err := NewProjector(c)
	require.NoError(t, err)

	// The projection origin lands on the false origin.
	x, y := p.Project(39.83333333333334, -100.0)
	assert.InDelta(t, 1640416.666666667, x, 0.01)
	assert.InDelta(t, 0.0, y, 0.01)

	// Moving north increases northing; moving east increases easting.
	_, yN := p.Project(41.0, -100.0)
	assert.Greater(t, yN, y)
	xE, _ := p.Project(39.83333333333334, -99.0)
	assert.Greater(t, xE, x)

	// One degree of latitude is ~364,000 ft in Nebraska; sanity-band it.
	assert.InDelta(t, 425000, yN, 3000) // 41.0 is ~1.1667 deg north of origin
}

func TestTransverseMercatorKnownPoint(t *testing.T) {
	c, err := Parse(utmWKT)
	require.NoError(t, err)
	p, err := NewProjector(c)
	require.NoError(t, err)

	// Central meridian at the equator is exactly the false origin.
	x, y := p.Project(0, -99.0)
	assert.InDelta(t, 500000, x, 1e-6)
	assert.InDelta(t, 0, y, 1e-6)

	// A point one degree east: easting offset ~= cos(lat)*111.3 km * k0.
	x1, _ := p.Project(0, -98.0)
	assert.InDelta(t, 500000+111275, x1, 150)

	// Omaha-ish point stays inside the zone's plausible band.
	xo, yo := p.Project(41.26, -96.0)
	assert.Greater(t, xo, 500000.0)
	assert.Less(t, xo, 800000.0)
	assert.InDelta(t, 4.57e6, yo, 3e4)
}

func TestProjectorGeographicPassThrough(t *testing.T) {
	c := &CRS{Geographic: true}
	p, err := NewProjector(c)
	require.NoError(t, err)
	x, y := p.Project(41.5, -96.25)
	assert.InDelta(t, -96.25, x, 1e-12)
	assert.InDelta(t, 41.5, y, 1e-12)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layer.prj")
	require.NoError(t, os.WriteFile(path, []byte(nebraskaWKT), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Lambert_Conformal_Conic", p.CRS().Projection)

	_, err = Load(filepath.Join(dir, "missing.prj"))
	require.Error(t, err)
}

func TestEccentricity(t *testing.T) {
	// GRS80 first eccentricity squared.
	assert.InDelta(t, 0.0066943800229, eccentricitySquared(298.257222101), 1e-12)
	assert.Equal(t, 0.0, eccentricitySquared(0))
	assert.False(t, math.Signbit(eccentricitySquared(298.0)))
}
