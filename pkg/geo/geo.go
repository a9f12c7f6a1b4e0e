// Package geo provides the small amount of geometry the reconciliation
// engine needs: spherical bearings between surveyed coordinates, angular
// differences on the compass circle, and planar point-to-segment distances
// for shapefile matching.
package geo

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// TwoPi is the full circle in radians.
const TwoPi = 2 * math.Pi

// NormalizeAngle maps any angle in radians into [0, 2*pi).
func NormalizeAngle(theta float64) float64 {
	theta = math.Mod(theta, TwoPi)
	if theta < 0 {
		theta += TwoPi
	}
	return theta
}

// BearingRad returns the initial bearing from point 1 to point 2 in radians,
// in [0, 2*pi) with 0 = geographic north. Uses the spherical formula; inputs
// are WGS84 degrees.
func BearingRad(lat1Deg, lon1Deg, lat2Deg, lon2Deg float64) float64 {
	lat1 := lat1Deg * math.Pi / 180
	lon1 := lon1Deg * math.Pi / 180
	lat2 := lat2Deg * math.Pi / 180
	lon2 := lon2Deg * math.Pi / 180
	dlon := lon2 - lon1
	x := math.Sin(dlon) * math.Cos(lat2)
	y := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dlon)
	return NormalizeAngle(math.Atan2(x, y))
}

// AngleDiff returns the smallest difference between two angles in radians,
// in [0, pi].
func AngleDiff(a, b float64) float64 {
	d := math.Abs(NormalizeAngle(a) - NormalizeAngle(b))
	if d > math.Pi {
		d = TwoPi - d
	}
	return d
}

// SegmentDist2 returns the squared distance from point p to the segment a-b.
// A degenerate segment (a == b) degrades to point distance.
func SegmentDist2(p, a, b r2.Vec) float64 {
	ab := r2.Sub(b, a)
	len2 := r2.Norm2(ab)
	if len2 == 0 {
		return r2.Norm2(r2.Sub(p, a))
	}
	t := r2.Dot(r2.Sub(p, a), ab) / len2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	proj := r2.Add(a, r2.Scale(t, ab))
	return r2.Norm2(r2.Sub(p, proj))
}

// PolylineDist2 returns the minimum squared distance from point p to the
// polyline. A single-point polyline degrades to point distance; an empty
// one returns +Inf.
func PolylineDist2(p r2.Vec, points []r2.Vec) float64 {
	switch len(points) {
	case 0:
		return math.Inf(1)
	case 1:
		return r2.Norm2(r2.Sub(p, points[0]))
	}
	best := math.Inf(1)
	for i := 1; i < len(points); i++ {
		if d := SegmentDist2(p, points[i-1], points[i]); d < best {
			best = d
		}
	}
	return best
}
