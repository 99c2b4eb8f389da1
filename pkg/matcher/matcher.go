// Package matcher snaps corrected GPS positions onto a prepared route
// polyline and derives progress and quality metrics from the match.
package matcher

import (
	"sync"

	"racepulse/pkg/geo"
	"racepulse/pkg/model"
)

// Defaults for the matching heuristics.
const (
	// DefaultThreshold is the max distance to the route (meters) for a
	// position to count as matched.
	DefaultThreshold = 50.0

	// DefaultBearingWeight converts degrees of heading misalignment into
	// meters of penalty when ranking candidate segments.
	DefaultBearingWeight = 0.05
)

// Matcher snaps positions onto routes. The zero value is not usable; create
// one with New.
type Matcher struct {
	threshold     float64
	bearingWeight float64

	mu      sync.RWMutex
	indexes map[routeKey]*segmentIndex
}

type routeKey struct {
	eventID       int64
	eventDetailID int64
	createdAt     int64
}

// New creates a matcher. Zero arguments select the defaults.
func New(threshold, bearingWeight float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if bearingWeight <= 0 {
		bearingWeight = DefaultBearingWeight
	}
	return &Matcher{
		threshold:     threshold,
		bearingWeight: bearingWeight,
		indexes:       make(map[routeKey]*segmentIndex),
	}
}

// Match finds the route segment closest to the sample, weighting heading
// alignment, and returns the snapped position with progress metrics.
func (m *Matcher) Match(lat, lng, bearingDeg float64, route *model.Route) model.MatchResult {
	p := geo.Point{Lat: lat, Lon: lng}
	idx := m.indexFor(route)

	best := candidate{segment: -1}
	for _, i := range idx.candidates(p) {
		a := geo.Point{Lat: route.Points[i].Latitude, Lon: route.Points[i].Longitude}
		b := geo.Point{Lat: route.Points[i+1].Latitude, Lon: route.Points[i+1].Longitude}

		proj := geo.PointToSegment(p, a, b)
		segBearing := geo.Bearing(a, b)
		diff := geo.BearingDiff(bearingDeg, segBearing)
		score := proj.Distance + m.bearingWeight*diff

		if best.segment < 0 || score < best.score ||
			(score == best.score && (proj.Distance < best.proj.Distance ||
				(proj.Distance == best.proj.Distance && i < best.segment))) {
			best = candidate{segment: i, score: score, proj: proj, segBearing: segBearing, bearingDiff: diff}
		}
	}

	if best.segment < 0 {
		return model.MatchResult{CurrentBearing: bearingDeg}
	}

	pa := route.Points[best.segment]
	pb := route.Points[best.segment+1]
	dfs := pa.DistanceFromStart + best.proj.T*(pb.DistanceFromStart-pa.DistanceFromStart)

	progress := 0.0
	if route.TotalDistance > 0 {
		progress = dfs / route.TotalDistance
	}

	return model.MatchResult{
		Matched:           best.proj.Distance <= m.threshold,
		MatchedLat:        best.proj.Foot.Lat,
		MatchedLng:        best.proj.Foot.Lon,
		DistanceToRoute:   best.proj.Distance,
		NearestIndex:      best.segment,
		RouteBearing:      best.segBearing,
		CurrentBearing:    bearingDeg,
		BearingDifference: best.bearingDiff,
		RouteProgress:     progress,
		DistanceFromStart: dfs,
		MatchScore:        best.score,
	}
}

type candidate struct {
	segment     int
	score       float64
	proj        geo.SegmentProjection
	segBearing  float64
	bearingDiff float64
}

// Evict drops the cached segment index for a route that was deleted or
// replaced.
func (m *Matcher) Evict(eventID, eventDetailID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.indexes {
		if k.eventID == eventID && k.eventDetailID == eventDetailID {
			delete(m.indexes, k)
		}
	}
}

// indexFor returns the segment index for the route, building it on first
// use. Route snapshots are immutable, so CreatedAt disambiguates re-uploads.
func (m *Matcher) indexFor(route *model.Route) *segmentIndex {
	key := routeKey{route.EventID, route.EventDetailID, route.CreatedAt.UnixNano()}

	m.mu.RLock()
	idx, ok := m.indexes[key]
	m.mu.RUnlock()
	if ok {
		return idx
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Double check
	if idx, ok = m.indexes[key]; ok {
		return idx
	}
	// A re-upload under the same key leaves the stale index behind; drop it.
	for k := range m.indexes {
		if k.eventID == route.EventID && k.eventDetailID == route.EventDetailID {
			delete(m.indexes, k)
		}
	}
	idx = newSegmentIndex(route)
	m.indexes[key] = idx
	return idx
}
