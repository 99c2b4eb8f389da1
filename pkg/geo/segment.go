package geo

import "github.com/paulmach/orb"

// SegmentProjection is the result of projecting a point onto a segment.
type SegmentProjection struct {
	Distance float64 // meters from the point to the foot
	T        float64 // projection parameter along the segment, clamped to [0, 1]
	Foot     Point   // closest point on the segment
}

// PointToSegment projects p onto the segment (a, b). The projection itself is
// planar in degree space, which is fine at per-sample scale; the returned
// distance to the foot is Haversine so callers get meters.
func PointToSegment(p, a, b Point) SegmentProjection {
	op := orb.Point{p.Lon, p.Lat}
	oa := orb.Point{a.Lon, a.Lat}
	ob := orb.Point{b.Lon, b.Lat}

	dx := ob[0] - oa[0]
	dy := ob[1] - oa[1]

	if dx == 0 && dy == 0 {
		// Segment is a point
		return SegmentProjection{Distance: Distance(p, a), T: 0, Foot: a}
	}

	t := ((op[0]-oa[0])*dx + (op[1]-oa[1])*dy) / (dx*dx + dy*dy)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	foot := Point{
		Lat: oa[1] + t*dy,
		Lon: oa[0] + t*dx,
	}
	return SegmentProjection{
		Distance: Distance(p, foot),
		T:        t,
		Foot:     foot,
	}
}
