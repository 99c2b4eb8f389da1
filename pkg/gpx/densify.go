package gpx

import (
	"fmt"
	"math"

	"racepulse/pkg/geo"
	"racepulse/pkg/model"
)

// Default spacing parameters in meters.
const (
	DefaultSpacing   = 100.0
	DefaultCPSpacing = 1000.0
	MinRouteDistance = 10.0
)

// BuildPolyline densifies the waypoint list at the given spacing and
// classifies the checkpoint markers. The returned points carry accumulated
// distanceFromStart; the second return value is the total course distance.
func BuildPolyline(wps []Waypoint, spacing, cpSpacing float64) ([]model.RoutePoint, float64, error) {
	if spacing <= 0 {
		spacing = DefaultSpacing
	}
	if cpSpacing <= 0 {
		cpSpacing = DefaultCPSpacing
	}

	dense := densify(wps, spacing)

	total := dense[len(dense)-1].DistanceFromStart
	if total < MinRouteDistance {
		return nil, 0, fmt.Errorf("%w: total route distance %.1fm below %.0fm minimum", model.ErrInvalidInput, total, MinRouteDistance)
	}

	classify(dense, total, spacing, cpSpacing)
	return dense, total, nil
}

// densify walks consecutive waypoint pairs and inserts interpolated points
// so no gap exceeds spacing. Source points denser than spacing pass through
// untouched.
func densify(wps []Waypoint, spacing float64) []model.RoutePoint {
	var (
		points []model.RoutePoint
		dist   float64
	)

	// Accumulate distance over the emitted polyline so distanceFromStart is
	// strictly increasing regardless of interpolation rounding.
	push := func(wp Waypoint) {
		if len(points) > 0 {
			prev := points[len(points)-1]
			dist += geo.Distance(
				geo.Point{Lat: prev.Latitude, Lon: prev.Longitude},
				geo.Point{Lat: wp.Lat, Lon: wp.Lon})
		}
		points = append(points, model.RoutePoint{
			Latitude:          wp.Lat,
			Longitude:         wp.Lon,
			Elevation:         wp.Elevation,
			DistanceFromStart: dist,
			Sequence:          len(points),
			Kind:              model.KindInterpolated,
		})
	}

	push(wps[0])
	for i := 1; i < len(wps); i++ {
		a, b := wps[i-1], wps[i]
		pa := geo.Point{Lat: a.Lat, Lon: a.Lon}
		pb := geo.Point{Lat: b.Lat, Lon: b.Lon}
		d := geo.Distance(pa, pb)
		if d == 0 {
			continue
		}

		steps := int(math.Ceil(d / spacing))
		for s := 1; s < steps; s++ {
			ratio := float64(s) / float64(steps)
			mid := geo.Interpolate(pa, pb, ratio)
			push(Waypoint{
				Lat:       mid.Lat,
				Lon:       mid.Lon,
				Elevation: geo.InterpolateElevation(a.Elevation, b.Elevation, ratio),
			})
		}
		push(b)
	}
	return points
}

// classify marks the start, finish and intermediate checkpoints. A point
// becomes CP{n} when its distanceFromStart lands within the spacing
// tolerance of a cpSpacing multiple; each n is used at most once.
func classify(points []model.RoutePoint, total, spacing, cpSpacing float64) {
	cpIndex := 0
	points[0].Kind = model.KindStart
	points[0].CheckpointID = model.CheckpointStart
	points[0].CheckpointIndex = cpIndex
	cpIndex++

	seen := map[int]bool{0: true}
	last := len(points) - 1
	for i := 1; i < last; i++ {
		dfs := points[i].DistanceFromStart
		if math.Mod(dfs, cpSpacing) >= spacing {
			continue
		}
		n := int(math.Floor(dfs / cpSpacing))
		if n == 0 || seen[n] {
			continue
		}
		seen[n] = true
		points[i].Kind = model.KindCheckpoint
		points[i].CheckpointID = fmt.Sprintf("CP%d", n)
		points[i].CheckpointIndex = cpIndex
		cpIndex++
	}

	points[last].Kind = model.KindFinish
	points[last].CheckpointID = model.CheckpointFinish
	points[last].CheckpointIndex = cpIndex
}
