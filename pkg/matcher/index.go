package matcher

import (
	"github.com/uber/h3-go/v4"

	"racepulse/pkg/geo"
	"racepulse/pkg/model"
)

// Index resolution 9 has ~174m average edge length, comfortably above the
// 100m densification spacing, so each segment lands in one or two cells.
const (
	indexResolution = 9
	indexDiskSize   = 2
)

// segmentIndex buckets polyline segments by the H3 cell of their endpoints
// so a match call only projects onto segments near the sample. When H3
// fails or the sample's neighborhood is empty (way off course), callers get
// the exhaustive segment list instead.
type segmentIndex struct {
	cells    map[h3.Cell][]int
	all      []int
	segments int
}

func newSegmentIndex(route *model.Route) *segmentIndex {
	n := len(route.Points) - 1
	idx := &segmentIndex{
		cells:    make(map[h3.Cell][]int),
		all:      make([]int, n),
		segments: n,
	}
	for i := 0; i < n; i++ {
		idx.all[i] = i
		for _, p := range []model.RoutePoint{route.Points[i], route.Points[i+1]} {
			cell, err := h3.LatLngToCell(h3.LatLng{Lat: p.Latitude, Lng: p.Longitude}, indexResolution)
			if err != nil {
				continue
			}
			ids := idx.cells[cell]
			if len(ids) == 0 || ids[len(ids)-1] != i {
				idx.cells[cell] = append(ids, i)
			}
		}
	}
	return idx
}

// candidates returns the segment ids to project the point onto.
func (idx *segmentIndex) candidates(p geo.Point) []int {
	cell, err := h3.LatLngToCell(h3.LatLng{Lat: p.Lat, Lng: p.Lon}, indexResolution)
	if err != nil {
		return idx.all
	}
	disk, err := h3.GridDisk(cell, indexDiskSize)
	if err != nil {
		return idx.all
	}

	seen := make(map[int]struct{})
	var out []int
	for _, c := range disk {
		for _, i := range idx.cells[c] {
			if _, dup := seen[i]; dup {
				continue
			}
			seen[i] = struct{}{}
			out = append(out, i)
		}
	}
	if len(out) == 0 {
		return idx.all
	}
	return out
}
