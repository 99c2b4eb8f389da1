package route

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"racepulse/pkg/db"
	"racepulse/pkg/model"
	"racepulse/pkg/store"
)

// lineGPX builds a GPX track running due north from (37, 127).
func lineGPX(lengthMeters float64, step float64) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><gpx version="1.1" creator="test"><trk><trkseg>`)
	for d := 0.0; d <= lengthMeters; d += step {
		fmt.Fprintf(&b, `<trkpt lat="%.7f" lon="127.0"><ele>50</ele></trkpt>`, 37.0+d/111320.0)
	}
	b.WriteString(`</trkseg></trk></gpx>`)
	return []byte(b.String())
}

func newTestStore(t *testing.T, archive *db.DB) *Store {
	t.Helper()
	mem := store.NewMemory()
	t.Cleanup(func() { mem.Close() })
	return NewStore(mem, archive, Options{})
}

func TestLoadAndGet(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	summary, err := s.Load(ctx, 1, 10, lineGPX(2500, 250))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if summary.EventID != 1 || summary.EventDetailID != 10 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.TotalDistance < 2400 || summary.TotalDistance > 2600 {
		t.Errorf("total distance = %v, want ~2500", summary.TotalDistance)
	}

	route, err := s.Get(ctx, 1, 10)
	if err != nil || route == nil {
		t.Fatalf("Get() = %v, %v", route, err)
	}
	if route.Points[0].CheckpointID != model.CheckpointStart {
		t.Errorf("first point = %+v", route.Points[0])
	}
	last := route.Points[len(route.Points)-1]
	if last.CheckpointID != model.CheckpointFinish {
		t.Errorf("last point = %+v", last)
	}
}

func TestGetByEventID(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if _, err := s.Load(ctx, 7, 70, lineGPX(1000, 100)); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	route, err := s.GetByEventID(ctx, 7)
	if err != nil || route == nil {
		t.Fatalf("GetByEventID() = %v, %v", route, err)
	}
	if route.EventDetailID != 70 {
		t.Errorf("detail = %d, want 70", route.EventDetailID)
	}
	if r, _ := s.GetByEventID(ctx, 8); r != nil {
		t.Errorf("unknown event returned %+v", r)
	}
}

func TestInvalidUploadLeavesExistingRoutes(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	if _, err := s.Load(ctx, 1, 10, lineGPX(1000, 100)); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if _, err := s.Load(ctx, 2, 20, []byte("not a gpx file at all")); err == nil {
		t.Fatal("garbage upload accepted")
	}

	if route, _ := s.Get(ctx, 1, 10); route == nil {
		t.Error("existing route lost after failed upload")
	}
	if route, _ := s.Get(ctx, 2, 20); route != nil {
		t.Error("failed upload left a route behind")
	}
}

func TestReplaceNotifiesAndSwapsAtomically(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	var evicted []int64
	s.OnReplace(func(eventID, eventDetailID int64) {
		evicted = append(evicted, eventDetailID)
	})

	s.Load(ctx, 1, 10, lineGPX(1000, 100))
	if len(evicted) != 0 {
		t.Fatalf("first upload evicted: %v", evicted)
	}

	s.Load(ctx, 1, 10, lineGPX(2000, 100))
	if len(evicted) != 1 || evicted[0] != 10 {
		t.Errorf("evictions = %v, want [10]", evicted)
	}

	route, _ := s.Get(ctx, 1, 10)
	if route.TotalDistance < 1900 {
		t.Errorf("stale route served: total = %v", route.TotalDistance)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	s.Load(ctx, 1, 10, lineGPX(1000, 100))
	if err := s.Delete(ctx, 1, 10); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if route, _ := s.Get(ctx, 1, 10); route != nil {
		t.Errorf("route survived delete: %+v", route)
	}
	if route, _ := s.GetByEventID(ctx, 1); route != nil {
		t.Errorf("event index survived delete: %+v", route)
	}
}

func TestRewarmFromArchive(t *testing.T) {
	d, err := db.Init(filepath.Join(t.TempDir(), "routes.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	ctx := context.Background()

	first := newTestStore(t, d)
	if _, err := first.Load(ctx, 1, 10, lineGPX(1000, 100)); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// A fresh instance with an empty store recovers from the archive.
	second := newTestStore(t, d)
	n, err := second.Rewarm(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Rewarm() = %d, %v; want 1", n, err)
	}
	route, _ := second.Get(ctx, 1, 10)
	if route == nil || route.TotalDistance < 900 {
		t.Errorf("rewarmed route = %+v", route)
	}
}
