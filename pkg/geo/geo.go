// Package geo provides the great-circle and planar primitives the
// correction pipeline is built on. All functions are pure.
package geo

import (
	"fmt"
	"math"

	"racepulse/pkg/model"
)

// Point represents a geographic coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6371000

// Validate rejects coordinates outside the valid lat/lon ranges.
func Validate(p Point) error {
	if math.Abs(p.Lat) > 90 || math.Abs(p.Lon) > 180 {
		return fmt.Errorf("%w: coordinate out of range (%.6f, %.6f)", model.ErrInvalidInput, p.Lat, p.Lon)
	}
	return nil
}

// Distance calculates the Haversine distance between two points in meters.
func Distance(p1, p2 Point) float64 {
	dLat := (p2.Lat - p1.Lat) * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadius * c
}

// Bearing calculates the initial bearing (forward azimuth) from p1 to p2 in degrees [0, 360).
func Bearing(p1, p2 Point) float64 {
	lat1 := p1.Lat * (math.Pi / 180.0)
	lat2 := p2.Lat * (math.Pi / 180.0)
	dLon := (p2.Lon - p1.Lon) * (math.Pi / 180.0)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	brng := math.Atan2(y, x)

	return math.Mod(brng*(180.0/math.Pi)+360.0, 360.0)
}

// NormalizeAngle normalizes an angle difference to the range [-180, 180].
func NormalizeAngle(angleDeg float64) float64 {
	for angleDeg > 180 {
		angleDeg -= 360
	}
	for angleDeg < -180 {
		angleDeg += 360
	}
	return angleDeg
}

// BearingDiff returns the smallest absolute angle between two bearings, in [0, 180].
func BearingDiff(b1, b2 float64) float64 {
	return math.Abs(NormalizeAngle(b1 - b2))
}

// Interpolate returns the point at the given ratio along the straight line
// from a to b. Elevation interpolates linearly when both endpoints have one.
func Interpolate(a, b Point, ratio float64) Point {
	return Point{
		Lat: a.Lat + (b.Lat-a.Lat)*ratio,
		Lon: a.Lon + (b.Lon-a.Lon)*ratio,
	}
}

// InterpolateElevation interpolates between two optional elevations.
// Returns nil when either side is missing.
func InterpolateElevation(a, b *float64, ratio float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	ele := *a + (*b-*a)*ratio
	return &ele
}
