package geo

import (
	"math"
	"testing"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		p1   Point
		p2   Point
		want float64
	}{
		{
			name: "Same Point",
			p1:   Point{Lat: 37.5, Lon: 127.0},
			p2:   Point{Lat: 37.5, Lon: 127.0},
			want: 0,
		},
		{
			name: "London to Paris",
			p1:   Point{Lat: 51.5074, Lon: -0.1278},
			p2:   Point{Lat: 48.8566, Lon: 2.3522},
			want: 344000, // Approx 344km
		},
		{
			name: "Equator 1 degree",
			p1:   Point{Lat: 0, Lon: 0},
			p2:   Point{Lat: 0, Lon: 1},
			want: 111319, // Approx 111km
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.p1, tt.p2)
			// Allow 1% margin of error due to float precision/earth radius var
			margin := tt.want * 0.01
			if math.Abs(got-tt.want) > margin && tt.want != 0 {
				t.Errorf("Distance() = %v, want %v (+/- %v)", got, tt.want, margin)
			}
		})
	}
}

func TestBearing(t *testing.T) {
	tests := []struct {
		name string
		p1   Point
		p2   Point
		want float64
	}{
		{name: "Due North", p1: Point{Lat: 0, Lon: 0}, p2: Point{Lat: 1, Lon: 0}, want: 0},
		{name: "Due East", p1: Point{Lat: 0, Lon: 0}, p2: Point{Lat: 0, Lon: 1}, want: 90},
		{name: "Due South", p1: Point{Lat: 1, Lon: 0}, p2: Point{Lat: 0, Lon: 0}, want: 180},
		{name: "Due West", p1: Point{Lat: 0, Lon: 1}, p2: Point{Lat: 0, Lon: 0}, want: 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bearing(tt.p1, tt.p2)
			if math.Abs(got-tt.want) > 0.5 {
				t.Errorf("Bearing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBearingDiff(t *testing.T) {
	tests := []struct {
		name   string
		b1, b2 float64
		want   float64
	}{
		{name: "Equal", b1: 90, b2: 90, want: 0},
		{name: "Wraparound", b1: 350, b2: 10, want: 20},
		{name: "Opposite", b1: 0, b2: 180, want: 180},
		{name: "Simple", b1: 45, b2: 90, want: 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BearingDiff(tt.b1, tt.b2); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("BearingDiff(%v, %v) = %v, want %v", tt.b1, tt.b2, got, tt.want)
			}
		})
	}
}

func TestPointToSegment(t *testing.T) {
	a := Point{Lat: 0, Lon: 0}
	b := Point{Lat: 0, Lon: 1}

	t.Run("Midpoint projection", func(t *testing.T) {
		p := Point{Lat: 0.001, Lon: 0.5}
		proj := PointToSegment(p, a, b)
		if math.Abs(proj.T-0.5) > 1e-6 {
			t.Errorf("T = %v, want 0.5", proj.T)
		}
		// 0.001 deg of latitude is about 111m
		if math.Abs(proj.Distance-111.3) > 2 {
			t.Errorf("Distance = %v, want ~111.3", proj.Distance)
		}
	})

	t.Run("Clamp before start", func(t *testing.T) {
		p := Point{Lat: 0, Lon: -0.5}
		proj := PointToSegment(p, a, b)
		if proj.T != 0 {
			t.Errorf("T = %v, want 0", proj.T)
		}
		if proj.Foot != a {
			t.Errorf("Foot = %v, want %v", proj.Foot, a)
		}
	})

	t.Run("Clamp after end", func(t *testing.T) {
		p := Point{Lat: 0, Lon: 1.5}
		proj := PointToSegment(p, a, b)
		if proj.T != 1 {
			t.Errorf("T = %v, want 1", proj.T)
		}
	})

	t.Run("Degenerate segment", func(t *testing.T) {
		proj := PointToSegment(Point{Lat: 1, Lon: 0}, a, a)
		if proj.T != 0 || proj.Foot != a {
			t.Errorf("degenerate projection = %+v", proj)
		}
	})

	t.Run("On the segment", func(t *testing.T) {
		p := Point{Lat: 0, Lon: 0.25}
		proj := PointToSegment(p, a, b)
		if proj.Distance > 1e-6 {
			t.Errorf("Distance = %v, want 0", proj.Distance)
		}
	})
}

func TestValidate(t *testing.T) {
	if err := Validate(Point{Lat: 37.5, Lon: 127.0}); err != nil {
		t.Errorf("valid point rejected: %v", err)
	}
	if err := Validate(Point{Lat: 91, Lon: 0}); err == nil {
		t.Error("lat 91 accepted")
	}
	if err := Validate(Point{Lat: 0, Lon: -181}); err == nil {
		t.Error("lon -181 accepted")
	}
}

func TestInterpolate(t *testing.T) {
	a := Point{Lat: 0, Lon: 0}
	b := Point{Lat: 2, Lon: 4}
	mid := Interpolate(a, b, 0.5)
	if mid.Lat != 1 || mid.Lon != 2 {
		t.Errorf("Interpolate() = %v, want {1 2}", mid)
	}

	e1, e2 := 100.0, 200.0
	if ele := InterpolateElevation(&e1, &e2, 0.25); ele == nil || *ele != 125 {
		t.Errorf("InterpolateElevation() = %v, want 125", ele)
	}
	if ele := InterpolateElevation(&e1, nil, 0.25); ele != nil {
		t.Errorf("InterpolateElevation() with missing side = %v, want nil", ele)
	}
}
