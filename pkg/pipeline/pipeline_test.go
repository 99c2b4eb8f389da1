package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"racepulse/pkg/leaderboard"
	"racepulse/pkg/location"
	"racepulse/pkg/model"
	"racepulse/pkg/route"
	"racepulse/pkg/store"
)

const eventStart = int64(1_700_000_000)

// latAt converts meters north of 37.0 into a latitude on the test course.
func latAt(meters float64) float64 {
	return 37.0 + meters/111320.0
}

// northGPX builds a GPX track running due north from (37, 127).
func northGPX(lengthMeters, step float64) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><gpx version="1.1" creator="test"><trk><trkseg>`)
	for d := 0.0; d <= lengthMeters; d += step {
		fmt.Fprintf(&b, `<trkpt lat="%.7f" lon="127.0"></trkpt>`, latAt(d))
	}
	b.WriteString(`</trkseg></trk></gpx>`)
	return []byte(b.String())
}

type rig struct {
	pipeline *Pipeline
	routes   *route.Store
	board    *leaderboard.Engine
	kv       store.Store
}

// newRig wires a pipeline over an in-memory store. cpSpacing places
// intermediate checkpoints on uploaded courses.
func newRig(t *testing.T, cpSpacing float64) *rig {
	t.Helper()
	mem := store.NewMemory()
	t.Cleanup(func() { mem.Close() })

	routes := route.NewStore(mem, nil, route.Options{CPSpacing: cpSpacing})
	locations := location.NewStore(mem, 0)
	board := leaderboard.New(mem, 0)
	p := New(routes, locations, mem, board, nil, Config{EventStartSec: eventStart})
	routes.OnReplace(p.Matcher().Evict)

	return &rig{pipeline: p, routes: routes, board: board, kv: mem}
}

func sampleAt(meters float64, tsSec int64) model.GPSSample {
	return model.GPSSample{Lat: latAt(meters), Lng: 127.0, Timestamp: tsSec}
}

func request(userID int64, samples ...model.GPSSample) *model.CorrectionRequest {
	return &model.CorrectionRequest{UserID: userID, EventID: 1, EventDetailID: 1, GPSData: samples}
}

func TestEmptyBatchRejected(t *testing.T) {
	r := newRig(t, 0)
	_, err := r.pipeline.Correct(context.Background(), request(1))
	if !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestInvalidCoordinateRejected(t *testing.T) {
	r := newRig(t, 0)
	_, err := r.pipeline.Correct(context.Background(), request(1, model.GPSSample{Lat: 91, Lng: 0, Timestamp: eventStart}))
	if !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

// A 1km straight course with one checkpoint at 500m: a runner progressing
// from 0 to 600m crosses start and CP1, and the board scores the crossing.
func TestStraightCourseCrossing(t *testing.T) {
	r := newRig(t, 500)
	ctx := context.Background()

	if _, err := r.routes.Load(ctx, 1, 1, northGPX(1000, 100)); err != nil {
		t.Fatalf("route load failed: %v", err)
	}

	var allCrossings []model.Crossing
	for i := 0; i <= 6; i++ {
		ts := eventStart + int64(i)*60
		resp, err := r.pipeline.Correct(ctx, request(7, sampleAt(float64(i)*100, ts)))
		if err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
		allCrossings = append(allCrossings, resp.CheckpointReaches...)
	}

	var cp1 *model.Crossing
	for i := range allCrossings {
		if allCrossings[i].CheckpointID == "CP1" {
			if cp1 != nil {
				t.Fatal("CP1 crossed twice")
			}
			cp1 = &allCrossings[i]
		}
	}
	if cp1 == nil {
		t.Fatalf("CP1 never crossed; crossings = %+v", allCrossings)
	}
	if cp1.PassTimeSec != eventStart+5*60 {
		t.Errorf("pass time = %d, want %d", cp1.PassTimeSec, eventStart+5*60)
	}
	if cp1.SegmentDurationSec == nil || cp1.CumulativeDurationSec == nil {
		t.Fatalf("durations missing: %+v", cp1)
	}

	// Board score encodes (cpIndex=1, cumulative).
	top, err := r.board.TopN(ctx, 1, 1, 10)
	if err != nil || len(top) != 1 {
		t.Fatalf("TopN() = %+v, %v", top, err)
	}
	want := leaderboard.Score(1, *cp1.CumulativeDurationSec)
	if top[0].Score != want {
		t.Errorf("score = %v, want %v", top[0].Score, want)
	}
}

// A stationary participant with noisy samples converges near the true
// position and reports the derived confidence.
func TestStationaryNoisyBatch(t *testing.T) {
	r := newRig(t, 0)
	ctx := context.Background()

	acc, spd := 10.0, 0.0
	var samples []model.GPSSample
	for i := 0; i < 20; i++ {
		// Deterministic pseudo-noise, about 10m amplitude
		noiseLat := 8.0 * math.Sin(float64(i)*2.3) / 111320.0
		noiseLng := 8.0 * math.Cos(float64(i)*1.7) / 111320.0
		samples = append(samples, model.GPSSample{
			Lat: 37.5 + noiseLat, Lng: 127.0 + noiseLng,
			Accuracy: &acc, Speed: &spd,
			Timestamp: eventStart + int64(i),
		})
	}

	resp, err := r.pipeline.Correct(ctx, request(3, samples...))
	if err != nil {
		t.Fatalf("Correct() failed: %v", err)
	}

	dLat := (resp.Latitude - 37.5) * 111320.0
	dLng := (resp.Longitude - 127.0) * 111320.0
	if dist := math.Hypot(dLat, dLng); dist > 3 {
		t.Errorf("corrected position %.1fm off, want <= 3m", dist)
	}
	if resp.MatchingQuality.Matched {
		t.Error("matched without any route")
	}
	if resp.NearestRoutePoint != nil {
		t.Errorf("nearest route point without route: %+v", resp.NearestRoutePoint)
	}
	if c := resp.MatchingQuality.GPSConfidence; c == nil || math.Abs(*c-0.73) > 0.001 {
		t.Errorf("confidence = %v, want 0.73", c)
	}
}

// Lingering inside a checkpoint radius must not refire the crossing.
func TestRepeatedRadiusEntry(t *testing.T) {
	r := newRig(t, 500)
	ctx := context.Background()

	if _, err := r.routes.Load(ctx, 1, 1, northGPX(1000, 100)); err != nil {
		t.Fatalf("route load failed: %v", err)
	}

	// 29m short of the 500m checkpoint
	resp, err := r.pipeline.Correct(ctx, request(9, sampleAt(471, eventStart+100)))
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if !hasCrossing(resp.CheckpointReaches, "CP1") {
		t.Fatalf("first entry did not fire: %+v", resp.CheckpointReaches)
	}

	// 5m short: still inside, no new crossing
	resp, err = r.pipeline.Correct(ctx, request(9, sampleAt(495, eventStart+110)))
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if hasCrossing(resp.CheckpointReaches, "CP1") {
		t.Fatal("second sample refired the crossing")
	}

	// The stored pass time stays the first one.
	times, err := r.kv.HGetAll(ctx, store.CheckpointTimesKey(9, 1, 1))
	if err != nil {
		t.Fatalf("HGetAll failed: %v", err)
	}
	if times["CP1"] != fmt.Sprint(eventStart+100) {
		t.Errorf("stored pass time = %q, want %d", times["CP1"], eventStart+100)
	}
}

// With no route loaded the call still succeeds in degraded form.
func TestMissingRoute(t *testing.T) {
	r := newRig(t, 0)
	ctx := context.Background()

	req := &model.CorrectionRequest{
		UserID: 5, EventID: 42, EventDetailID: 1,
		GPSData: []model.GPSSample{{Lat: 37.5, Lng: 127.0, Timestamp: eventStart}},
	}
	resp, err := r.pipeline.Correct(ctx, req)
	if err != nil {
		t.Fatalf("Correct() failed: %v", err)
	}

	if resp.Latitude != 37.5 || resp.Longitude != 127.0 {
		t.Errorf("single raw sample not echoed: %v, %v", resp.Latitude, resp.Longitude)
	}
	if resp.MatchingQuality.Matched || len(resp.CheckpointReaches) != 0 {
		t.Errorf("degraded response carries route data: %+v", resp)
	}

	// First call lands on the board in bucket zero.
	top, err := r.board.TopN(ctx, 42, 1, 10)
	if err != nil || len(top) != 1 {
		t.Fatalf("TopN() = %+v, %v", top, err)
	}
	if top[0].Score != leaderboard.Score(0, 0) {
		t.Errorf("score = %v, want bucket zero", top[0].Score)
	}
}

// Concurrent calls for one participant serialise: one crossing only, and
// the monotone accumulators survive both orders.
func TestConcurrentSameParticipant(t *testing.T) {
	r := newRig(t, 500)
	ctx := context.Background()

	if _, err := r.routes.Load(ctx, 1, 1, northGPX(1000, 100)); err != nil {
		t.Fatalf("route load failed: %v", err)
	}

	var wg sync.WaitGroup
	for _, ts := range []int64{eventStart + 100, eventStart + 105} {
		wg.Add(1)
		go func(ts int64) {
			defer wg.Done()
			if _, err := r.pipeline.Correct(ctx, request(11, sampleAt(490, ts))); err != nil {
				t.Errorf("Correct() failed: %v", err)
			}
		}(ts)
	}
	wg.Wait()

	times, err := r.kv.HGetAll(ctx, store.CheckpointTimesKey(11, 1, 1))
	if err != nil {
		t.Fatalf("HGetAll failed: %v", err)
	}
	if _, ok := times["CP1"]; !ok {
		t.Fatal("no crossing recorded")
	}
	if len(times) != 1 {
		t.Errorf("cpTimes = %v, want exactly one CP1 entry", times)
	}
}

// Participant slots idle past the location TTL are reclaimed; active ones
// survive the sweep.
func TestStaleParticipantStateSwept(t *testing.T) {
	r := newRig(t, 0)
	ctx := context.Background()

	if _, err := r.pipeline.Correct(ctx, request(21, sampleAt(0, eventStart))); err != nil {
		t.Fatalf("Correct() failed: %v", err)
	}
	if _, ok := r.pipeline.participants.Load("21:1:1"); !ok {
		t.Fatal("participant slot not created")
	}

	// Jump past the idle TTL, then touch a second participant
	r.pipeline.now = func() time.Time {
		return time.Now().Add(location.DefaultTTL + time.Hour)
	}
	if _, err := r.pipeline.Correct(ctx, request(22, sampleAt(0, eventStart))); err != nil {
		t.Fatalf("Correct() failed: %v", err)
	}

	r.pipeline.sweepStale()

	if _, ok := r.pipeline.participants.Load("21:1:1"); ok {
		t.Error("stale slot survived the sweep")
	}
	if _, ok := r.pipeline.participants.Load("22:1:1"); !ok {
		t.Error("fresh slot was swept")
	}
}

func hasCrossing(crossings []model.Crossing, id string) bool {
	for _, c := range crossings {
		if c.CheckpointID == id {
			return true
		}
	}
	return false
}
