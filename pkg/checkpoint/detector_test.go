package checkpoint

import (
	"testing"
	"time"

	"racepulse/pkg/model"
)

// courseWithCP builds a 1km course with one intermediate checkpoint at 500m.
func courseWithCP() *model.Route {
	const stepDeg = 100.0 / 111320.0
	r := &model.Route{EventID: 1, EventDetailID: 1, CreatedAt: time.Now()}
	for i := 0; i <= 10; i++ {
		p := model.RoutePoint{
			Latitude:          37.0 + float64(i)*stepDeg,
			Longitude:         127.0,
			DistanceFromStart: float64(i) * 100,
			Sequence:          i,
			Kind:              model.KindInterpolated,
		}
		switch i {
		case 0:
			p.Kind = model.KindStart
			p.CheckpointID = model.CheckpointStart
			p.CheckpointIndex = 0
		case 5:
			p.Kind = model.KindCheckpoint
			p.CheckpointID = "CP1"
			p.CheckpointIndex = 1
		case 10:
			p.Kind = model.KindFinish
			p.CheckpointID = model.CheckpointFinish
			p.CheckpointIndex = 2
		}
		r.Points = append(r.Points, p)
	}
	r.TotalDistance = 1000
	return r
}

// metersNorth converts a northward offset to a latitude near the course.
func metersNorth(m float64) float64 {
	return 37.0 + m/111320.0
}

func TestDetectFirstEntry(t *testing.T) {
	d := NewDetector(30)
	route := courseWithCP()

	// Previous fix 80m before CP1, current fix 10m before it: inside radius
	prev := &model.PreviousPosition{Lat: metersNorth(420), Lng: 127.0, TimestampSec: 100}
	cur := Position{Lat: metersNorth(490), Lng: 127.0, TimestampSec: 160}

	crossings := d.Detect(prev, cur, route, nil)
	if len(crossings) != 1 {
		t.Fatalf("got %d crossings, want 1", len(crossings))
	}
	c := crossings[0]
	if c.CheckpointID != "CP1" || c.CheckpointIndex != 1 || c.PassTimeSec != 160 {
		t.Errorf("crossing = %+v", c)
	}
}

func TestDetectRepeatedEntryDoesNotRefire(t *testing.T) {
	d := NewDetector(30)
	route := courseWithCP()

	// Sample A at 29m from CP1 fired already; sample B at 5m must not.
	prev := &model.PreviousPosition{Lat: metersNorth(471), Lng: 127.0, TimestampSec: 160}
	cur := Position{Lat: metersNorth(495), Lng: 127.0, TimestampSec: 170}

	crossings := d.Detect(prev, cur, route, map[string]bool{"CP1": true})
	if len(crossings) != 0 {
		t.Fatalf("recorded checkpoint re-fired: %+v", crossings)
	}

	// Even without the recorded flag, prev inside the radius means no new entry
	crossings = d.Detect(prev, cur, route, nil)
	if len(crossings) != 0 {
		t.Fatalf("lingering inside the radius fired again: %+v", crossings)
	}
}

func TestDetectNoPreviousPositionCounts(t *testing.T) {
	d := NewDetector(30)
	route := courseWithCP()

	// Very first fix lands on the start line
	cur := Position{Lat: 37.0, Lng: 127.0, TimestampSec: 50}
	crossings := d.Detect(nil, cur, route, nil)
	if len(crossings) != 1 || crossings[0].CheckpointID != model.CheckpointStart {
		t.Fatalf("first sample inside start radius did not count: %+v", crossings)
	}
}

func TestDetectOrderedByIndex(t *testing.T) {
	// Degenerate tiny course where one sample covers start and CP1
	d := NewDetector(1000)
	route := courseWithCP()

	cur := Position{Lat: metersNorth(400), Lng: 127.0, TimestampSec: 10}
	crossings := d.Detect(nil, cur, route, nil)
	if len(crossings) < 2 {
		t.Fatalf("got %d crossings, want >= 2", len(crossings))
	}
	for i := 1; i < len(crossings); i++ {
		if crossings[i].CheckpointIndex <= crossings[i-1].CheckpointIndex {
			t.Errorf("crossings out of order: %+v", crossings)
		}
	}
}

func TestDetectOutsideRadius(t *testing.T) {
	d := NewDetector(30)
	route := courseWithCP()

	cur := Position{Lat: metersNorth(440), Lng: 127.0, TimestampSec: 10} // 60m short of CP1
	if crossings := d.Detect(nil, cur, route, nil); len(crossings) != 0 {
		t.Fatalf("crossing fired outside the radius: %+v", crossings)
	}
}
