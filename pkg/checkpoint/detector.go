// Package checkpoint detects first-time entries into checkpoint radii and
// derives segment and cumulative durations from the crossing timestamps.
package checkpoint

import (
	"sort"

	"racepulse/pkg/geo"
	"racepulse/pkg/model"
)

// DefaultRadius is the checkpoint entry radius in meters.
const DefaultRadius = 30.0

// Position is a timestamped corrected position.
type Position struct {
	Lat          float64
	Lng          float64
	TimestampSec int64
}

// Detector compares previous and current positions against checkpoint radii.
type Detector struct {
	radius float64
}

// NewDetector creates a detector; radius <= 0 selects the default.
func NewDetector(radius float64) *Detector {
	if radius <= 0 {
		radius = DefaultRadius
	}
	return &Detector{radius: radius}
}

// Detect returns the checkpoints the participant entered for the first time
// with this sample, ordered by checkpoint index. passed holds checkpoints
// already recorded for this participant; those never re-fire.
//
// A crossing fires when the current position is inside the radius and the
// previous position was outside it. With no previous position, the first
// sample inside the radius counts as a crossing.
func (d *Detector) Detect(prev *model.PreviousPosition, cur Position, route *model.Route, passed map[string]bool) []model.Crossing {
	curPt := geo.Point{Lat: cur.Lat, Lon: cur.Lng}

	var crossings []model.Crossing
	for _, cp := range route.Checkpoints() {
		if passed[cp.CheckpointID] {
			continue
		}
		cpPt := geo.Point{Lat: cp.Latitude, Lon: cp.Longitude}
		if geo.Distance(curPt, cpPt) > d.radius {
			continue
		}
		if prev != nil {
			prevPt := geo.Point{Lat: prev.Lat, Lon: prev.Lng}
			if geo.Distance(prevPt, cpPt) <= d.radius {
				// Still inside from before: not a new entry
				continue
			}
		}
		crossings = append(crossings, model.Crossing{
			CheckpointID:    cp.CheckpointID,
			CheckpointIndex: cp.CheckpointIndex,
			PassTimeSec:     cur.TimestampSec,
		})
	}

	sort.Slice(crossings, func(i, j int) bool {
		return crossings[i].CheckpointIndex < crossings[j].CheckpointIndex
	})
	return crossings
}
