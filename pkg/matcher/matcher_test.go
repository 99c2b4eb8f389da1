package matcher

import (
	"math"
	"testing"
	"time"

	"racepulse/pkg/model"
)

// straightRoute builds a due-north polyline with points every ~100m.
func straightRoute(points int) *model.Route {
	const stepDeg = 100.0 / 111320.0
	r := &model.Route{EventID: 1, EventDetailID: 1, CreatedAt: time.Now()}
	for i := 0; i < points; i++ {
		r.Points = append(r.Points, model.RoutePoint{
			Latitude:          37.0 + float64(i)*stepDeg,
			Longitude:         127.0,
			DistanceFromStart: float64(i) * 100,
			Sequence:          i,
			Kind:              model.KindInterpolated,
		})
	}
	r.TotalDistance = float64(points-1) * 100
	return r
}

func TestMatchOnPolylineIsIdempotent(t *testing.T) {
	m := New(0, 0)
	route := straightRoute(11) // 1km

	// A point already on the polyline must come back unchanged
	p := route.Points[5]
	res := m.Match(p.Latitude, p.Longitude, 0, route)

	if !res.Matched {
		t.Fatal("on-route point not matched")
	}
	if res.DistanceToRoute > 0.01 {
		t.Errorf("DistanceToRoute = %v, want 0", res.DistanceToRoute)
	}
	if math.Abs(res.MatchedLat-p.Latitude) > 1e-9 || math.Abs(res.MatchedLng-p.Longitude) > 1e-9 {
		t.Errorf("matched point moved: (%v, %v)", res.MatchedLat, res.MatchedLng)
	}
	wantProgress := p.DistanceFromStart / route.TotalDistance
	if math.Abs(res.RouteProgress-wantProgress) > 1e-6 {
		t.Errorf("RouteProgress = %v, want %v", res.RouteProgress, wantProgress)
	}
}

func TestMatchSnapsNearbyPoint(t *testing.T) {
	m := New(0, 0)
	route := straightRoute(11)

	// 20m east of the 500m mark
	const lngOffset = 20.0 / (111320.0 * 0.7986) // cos(37deg)
	res := m.Match(route.Points[5].Latitude, 127.0+lngOffset, 0, route)

	if !res.Matched {
		t.Fatalf("point 20m off course not matched: %+v", res)
	}
	if math.Abs(res.DistanceToRoute-20) > 2 {
		t.Errorf("DistanceToRoute = %v, want ~20", res.DistanceToRoute)
	}
	if math.Abs(res.DistanceFromStart-500) > 20 {
		t.Errorf("DistanceFromStart = %v, want ~500", res.DistanceFromStart)
	}
}

func TestMatchThreshold(t *testing.T) {
	m := New(50, 0)
	route := straightRoute(11)

	// ~80m east: beyond the 50m threshold but still reported
	const lngOffset = 80.0 / (111320.0 * 0.7986)
	res := m.Match(route.Points[5].Latitude, 127.0+lngOffset, 0, route)

	if res.Matched {
		t.Errorf("point 80m off course matched (dist=%v)", res.DistanceToRoute)
	}
	if res.DistanceToRoute < 50 {
		t.Errorf("DistanceToRoute = %v, want > 50", res.DistanceToRoute)
	}
}

func TestMatchBearingWeightBreaksNearTies(t *testing.T) {
	// Out-and-back course: northbound leg and southbound leg share the
	// same corridor ~30m apart. The sample heading decides the leg.
	const stepDeg = 100.0 / 111320.0
	const sepDeg = 30.0 / (111320.0 * 0.7986)
	r := &model.Route{EventID: 2, EventDetailID: 2, CreatedAt: time.Now()}
	for i := 0; i <= 10; i++ { // north at lng 127.0
		r.Points = append(r.Points, model.RoutePoint{
			Latitude: 37.0 + float64(i)*stepDeg, Longitude: 127.0,
			DistanceFromStart: float64(i) * 100, Sequence: i,
		})
	}
	for i := 1; i <= 10; i++ { // south at lng 127.0 + sep
		r.Points = append(r.Points, model.RoutePoint{
			Latitude: 37.0 + float64(10-i)*stepDeg, Longitude: 127.0 + sepDeg,
			DistanceFromStart: 1000 + float64(i)*100, Sequence: 10 + i,
		})
	}
	r.TotalDistance = 2000

	m := New(50, 1.0) // strong heading weight to make the preference decisive

	// Sample halfway between the legs, heading north
	midLng := 127.0 + sepDeg/2
	north := m.Match(37.0+5*stepDeg, midLng, 0, r)
	south := m.Match(37.0+5*stepDeg, midLng, 180, r)

	if north.DistanceFromStart > 1000 {
		t.Errorf("northbound sample matched return leg (dfs=%v)", north.DistanceFromStart)
	}
	if south.DistanceFromStart < 1000 {
		t.Errorf("southbound sample matched outbound leg (dfs=%v)", south.DistanceFromStart)
	}
}

func TestMatchFarOffCourseFallsBack(t *testing.T) {
	m := New(50, 0)
	route := straightRoute(11)

	// 5km east of the course: H3 disk is empty there, exhaustive scan
	// still produces the nearest segment.
	res := m.Match(37.0, 127.06, 0, route)
	if res.Matched {
		t.Error("point 5km off course reported as matched")
	}
	if res.DistanceToRoute < 4000 {
		t.Errorf("DistanceToRoute = %v, want several km", res.DistanceToRoute)
	}
}

func TestEvictDropsIndex(t *testing.T) {
	m := New(0, 0)
	route := straightRoute(11)
	m.Match(37.0, 127.0, 0, route)

	m.mu.RLock()
	before := len(m.indexes)
	m.mu.RUnlock()
	if before != 1 {
		t.Fatalf("index count = %d, want 1", before)
	}

	m.Evict(route.EventID, route.EventDetailID)
	m.mu.RLock()
	after := len(m.indexes)
	m.mu.RUnlock()
	if after != 0 {
		t.Errorf("index count after Evict = %d, want 0", after)
	}
}
