// Package gpx turns an uploaded GPX file into the densified polyline the
// matcher and checkpoint detector run against.
package gpx

import (
	"bytes"
	"fmt"

	tgpx "github.com/tkrajina/gpxgo/gpx"

	"racepulse/pkg/geo"
	"racepulse/pkg/model"
)

// MaxFileSize is the upload cap for course files.
const MaxFileSize = 10 << 20 // 10 MB

// Waypoint is one source point before densification.
type Waypoint struct {
	Lat       float64
	Lon       float64
	Elevation *float64
}

// Parse reads GPX bytes and returns the ordered waypoint list. Tracks are
// preferred, with all segments concatenated; routes are the fallback when
// the file carries no track.
func Parse(data []byte) ([]Waypoint, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty GPX file", model.ErrInvalidInput)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("%w: GPX file exceeds %d bytes", model.ErrInvalidInput, MaxFileSize)
	}
	if !looksLikeGPX(data) {
		return nil, fmt.Errorf("%w: missing XML/GPX header", model.ErrInvalidInput)
	}

	doc, err := tgpx.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed GPX: %v", model.ErrInvalidInput, err)
	}

	var wps []Waypoint
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				wps = append(wps, toWaypoint(p))
			}
		}
	}
	if len(wps) == 0 {
		// No track: fall back to routes
		for _, rte := range doc.Routes {
			for _, p := range rte.Points {
				wps = append(wps, toWaypoint(p))
			}
		}
	}

	if len(wps) < 2 {
		return nil, fmt.Errorf("%w: route needs at least 2 waypoints, got %d", model.ErrInvalidInput, len(wps))
	}
	for _, wp := range wps {
		if err := geo.Validate(geo.Point{Lat: wp.Lat, Lon: wp.Lon}); err != nil {
			return nil, err
		}
	}
	return wps, nil
}

func toWaypoint(p tgpx.GPXPoint) Waypoint {
	wp := Waypoint{Lat: p.Latitude, Lon: p.Longitude}
	// Negative elevations are treated as missing sensor data
	if !p.Elevation.Null() && p.Elevation.Value() >= 0 {
		ele := p.Elevation.Value()
		wp.Elevation = &ele
	}
	return wp
}

// looksLikeGPX does a cheap header sniff before handing the bytes to the
// XML parser, so random uploads fail fast.
func looksLikeGPX(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.Contains(head, []byte("<?xml")) || bytes.Contains(head, []byte("<gpx"))
}
