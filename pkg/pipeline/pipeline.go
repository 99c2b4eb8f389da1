// Package pipeline runs one correction call end to end: filter the raw
// batch, snap it onto the course, detect crossings, time segments and
// publish the participant's new state.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"racepulse/pkg/checkpoint"
	"racepulse/pkg/geo"
	"racepulse/pkg/kalman"
	"racepulse/pkg/leaderboard"
	"racepulse/pkg/location"
	"racepulse/pkg/logging"
	"racepulse/pkg/matcher"
	"racepulse/pkg/model"
	"racepulse/pkg/route"
	"racepulse/pkg/store"
	"racepulse/pkg/tracker"
)

// DefaultStoreTimeout bounds every external store call. On timeout the call
// degrades instead of failing.
const DefaultStoreTimeout = 200 * time.Millisecond

// Config tunes the pipeline. Zero values select the defaults.
type Config struct {
	Kalman           kalman.Config
	CheckpointRadius float64
	MatchThreshold   float64
	BearingWeight    float64
	EventStartSec    int64
	StoreTimeout     time.Duration
}

// Pipeline coordinates the correction components. Safe for concurrent use;
// calls for the same participant are serialised internally.
type Pipeline struct {
	routes    *route.Store
	locations *location.Store
	kv        store.KV
	board     *leaderboard.Engine
	matcher   *matcher.Matcher
	detector  *checkpoint.Detector
	timer     *checkpoint.Timer
	stats     *tracker.Tracker
	cfg       Config

	participants sync.Map // participant key -> *participantState
	calls        atomic.Int64

	now func() time.Time
}

// participantState carries the per-participant serialisation lock and the
// heading smoother. Entries idle past the location TTL are swept.
type participantState struct {
	mu       sync.Mutex
	track    *geo.TrackBuffer
	lastUsed atomic.Int64 // unix seconds
}

// New wires a pipeline from its components. stats may be nil.
func New(routes *route.Store, locations *location.Store, kv store.KV, board *leaderboard.Engine, stats *tracker.Tracker, cfg Config) *Pipeline {
	if cfg.Kalman == (kalman.Config{}) {
		cfg.Kalman = kalman.DefaultConfig()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if stats == nil {
		stats = tracker.New()
	}
	return &Pipeline{
		routes:    routes,
		locations: locations,
		kv:        kv,
		board:     board,
		matcher:   matcher.New(cfg.MatchThreshold, cfg.BearingWeight),
		detector:  checkpoint.NewDetector(cfg.CheckpointRadius),
		timer:     checkpoint.NewTimer(cfg.EventStartSec),
		stats:     stats,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Matcher exposes the internal matcher so the route store can evict its
// segment indexes on re-upload.
func (p *Pipeline) Matcher() *matcher.Matcher { return p.matcher }

// Correct processes one batch of raw samples. A response is produced
// whenever the batch itself is valid; failures in ancillary state writes
// are logged and absorbed.
func (p *Pipeline) Correct(ctx context.Context, req *model.CorrectionRequest) (*model.CorrectionResponse, error) {
	course := tracker.Key(req.EventID, req.EventDetailID)

	if len(req.GPSData) == 0 {
		p.stats.TrackInvalidBatch(course)
		return nil, fmt.Errorf("%w: empty GPS batch", model.ErrInvalidInput)
	}
	for i, s := range req.GPSData {
		if err := geo.Validate(geo.Point{Lat: s.Lat, Lon: s.Lng}); err != nil {
			p.stats.TrackInvalidBatch(course)
			return nil, fmt.Errorf("%w: sample %d: %v", model.ErrInvalidInput, i, err)
		}
	}

	callID := uuid.NewString()
	log := slog.With("call", callID, "user", req.UserID, "event", req.EventID, "detail", req.EventDetailID)
	p.stats.TrackCorrection(course)

	// Route fetch failures degrade to unmatched mode.
	courseRoute, err := p.fetchRoute(ctx, req.EventID, req.EventDetailID)
	if err != nil {
		log.Warn("route fetch degraded", "error", err)
		p.stats.TrackStoreFailure(course)
		courseRoute = nil
	}

	// Fold the batch through a fresh filter.
	filter := kalman.New(p.cfg.Kalman)
	var lastConfidence float64
	for _, s := range req.GPSData {
		lastConfidence = kalman.Confidence(s.Accuracy, s.Speed)
		filter.Update(s.Lat, s.Lng, s.Altitude, lastConfidence)
	}
	correctedLat, correctedLng, correctedAlt := filter.Position()

	last := req.GPSData[len(req.GPSData)-1]
	rawTimeSec, ok := ParseTimestamp(last.Timestamp)
	if !ok {
		rawTimeSec = p.now().Unix()
		log.Warn("unparseable timestamp, using wall clock", "value", last.Timestamp)
	}

	if p.calls.Add(1)%sweepEvery == 0 {
		p.sweepStale()
	}

	// Everything from the previous-position read to the location write is
	// serialised per participant.
	st := p.state(req.UserID, req.EventID, req.EventDetailID)
	st.mu.Lock()
	defer st.mu.Unlock()

	prevPos, err := p.fetchPrevPos(ctx, req)
	if err != nil {
		log.Warn("previous position degraded", "error", err)
		p.stats.TrackStoreFailure(course)
		prevPos = nil
	}

	var match *model.MatchResult
	var crossings []model.Crossing
	bestIdx, bestCum := 0, int64(-1)

	if courseRoute != nil {
		m := p.matcher.Match(correctedLat, correctedLng, p.heading(st, req, last, prevPos, correctedLat, correctedLng), courseRoute)
		match = &m
		logging.TraceDefault("matched sample", "call", callID, "matched", m.Matched, "distance", m.DistanceToRoute, "score", m.MatchScore)
		if m.Matched {
			p.stats.TrackMatched(course)
		} else {
			p.stats.TrackUnmatched(course)
		}

		passed, history := p.loadPassState(ctx, req, courseRoute, log, course)
		cur := checkpoint.Position{Lat: p.positionLat(m, correctedLat), Lng: p.positionLng(m, correctedLng), TimestampSec: rawTimeSec}
		crossings = p.detector.Detect(prevPos, cur, courseRoute, passed)
		crossings = p.recordPassTimes(ctx, req, crossings, log, course)
		records := p.timer.Apply(crossings, history, p.now().Unix())
		p.persistSegments(ctx, req, records, log, course)
		p.stats.TrackCrossings(course, len(crossings))

		bestIdx, bestCum = bestProgress(history, crossings)
	} else {
		p.stats.TrackUnmatched(course)
	}

	finalLat, finalLng := correctedLat, correctedLng
	if match != nil && match.Matched {
		finalLat, finalLng = match.MatchedLat, match.MatchedLng
	}

	// Accumulators fold over the previous stored location.
	var prevLoc *model.ParticipantLocation
	err = p.storeCall(ctx, func(c context.Context) error {
		var e error
		prevLoc, e = p.locations.Location(c, req.EventID, req.EventDetailID, req.UserID)
		return e
	})
	if err != nil {
		log.Warn("location read degraded", "error", err)
		p.stats.TrackStoreFailure(course)
		prevLoc = nil
	}
	distCovered, cumTime := location.Advance(prevLoc, finalLat, finalLng, rawTimeSec, match)

	loc := &model.ParticipantLocation{
		UserID:        req.UserID,
		EventID:       req.EventID,
		EventDetailID: req.EventDetailID,
		RawLat:        last.Lat,
		RawLng:        last.Lng,
		RawAlt:        last.Altitude,
		RawAccuracy:   last.Accuracy,
		RawSpeed:      last.Speed,
		RawHeading:    last.Heading,
		RawTimeSec:    rawTimeSec,
		CorrectedLat:  finalLat,
		CorrectedLng:  finalLng,
		CorrectedAlt:  correctedAlt,

		DistanceCovered:   distCovered,
		CumulativeTimeSec: cumTime,
		LastUpdatedSec:    p.now().Unix(),
	}
	if err := p.storeCall(ctx, func(c context.Context) error { return p.locations.SaveLocation(c, loc) }); err != nil {
		log.Warn("location write degraded", "error", err)
		p.stats.TrackStoreFailure(course)
	}

	newPrev := &model.PreviousPosition{Lat: finalLat, Lng: finalLng, Alt: correctedAlt, TimestampSec: rawTimeSec}
	if match != nil && match.Matched {
		dfs := match.DistanceFromStart
		newPrev.DistanceFromStart = &dfs
	}
	if err := p.storeCall(ctx, func(c context.Context) error {
		return p.locations.SavePrevPos(c, req.UserID, req.EventID, req.EventDetailID, newPrev)
	}); err != nil {
		log.Warn("previous position write degraded", "error", err)
		p.stats.TrackStoreFailure(course)
	}

	// Rank on the furthest checkpoint ever reached; before the first
	// crossing the elapsed time alone ranks within bucket zero.
	if bestCum < 0 {
		bestIdx, bestCum = 0, cumTime
	}
	if err := p.storeCall(ctx, func(c context.Context) error {
		return p.board.Update(c, req.EventID, req.EventDetailID, req.UserID, bestIdx, bestCum)
	}); err != nil {
		log.Warn("leaderboard update degraded", "error", err)
		p.stats.TrackStoreFailure(course)
	}

	return p.buildResponse(req, last, finalLat, finalLng, correctedAlt, crossings, match, lastConfidence), nil
}

func (p *Pipeline) buildResponse(req *model.CorrectionRequest, last model.GPSSample, lat, lng float64, alt *float64, crossings []model.Crossing, match *model.MatchResult, confidence float64) *model.CorrectionResponse {
	strength := CorrectionStrength(last.Lat, last.Lng, lat, lng)

	conf := confidence
	quality := model.MatchingQuality{
		Matched:            match != nil && match.Matched,
		CorrectionStrength: strength,
		GPSConfidence:      &conf,
	}
	if match != nil {
		quality.MatchScore = match.MatchScore
		bd := match.BearingDifference
		quality.BearingDifference = &bd
	}
	_, quality.QualityGrade = grade(match, &conf, strength)

	resp := &model.CorrectionResponse{
		UserID:            req.UserID,
		EventID:           req.EventID,
		EventDetailID:     req.EventDetailID,
		Latitude:          lat,
		Longitude:         lng,
		Altitude:          alt,
		Timestamp:         last.Timestamp,
		CheckpointReaches: crossings,
		MatchingQuality:   quality,
	}
	if resp.CheckpointReaches == nil {
		resp.CheckpointReaches = []model.Crossing{}
	}
	if match != nil && match.Matched {
		resp.NearestRoutePoint = &model.NearestRoutePoint{
			Lat:               match.MatchedLat,
			Lng:               match.MatchedLng,
			DistanceToPoint:   match.DistanceToRoute,
			DistanceFromStart: match.DistanceFromStart,
			RouteProgress:     match.RouteProgress,
			RouteBearing:      match.RouteBearing,
		}
	}
	return resp
}

// headingWindow is how many samples the ground-track smoother spans.
const headingWindow = 5

// heading picks the best available bearing for the final sample. The
// device heading wins when present; otherwise the batch is folded through
// the participant's track buffer, seeded with the bearing from the
// previous corrected position.
func (p *Pipeline) heading(st *participantState, req *model.CorrectionRequest, last model.GPSSample, prev *model.PreviousPosition, lat, lng float64) float64 {
	fallback := 0.0
	if prev != nil {
		fallback = geo.Bearing(geo.Point{Lat: prev.Lat, Lon: prev.Lng}, geo.Point{Lat: lat, Lon: lng})
	}

	smoothed := fallback
	for _, s := range req.GPSData {
		smoothed = st.track.Push(geo.Point{Lat: s.Lat, Lon: s.Lng}, fallback)
	}

	if last.Heading != nil {
		return geo.NormalizeAngle(*last.Heading)
	}
	return smoothed
}

func (p *Pipeline) positionLat(m model.MatchResult, correctedLat float64) float64 {
	if m.Matched {
		return m.MatchedLat
	}
	return correctedLat
}

func (p *Pipeline) positionLng(m model.MatchResult, correctedLng float64) float64 {
	if m.Matched {
		return m.MatchedLng
	}
	return correctedLng
}

// loadPassState rebuilds the participant's recorded crossings: which
// checkpoints fired already and their timing context.
func (p *Pipeline) loadPassState(ctx context.Context, req *model.CorrectionRequest, courseRoute *model.Route, log *slog.Logger, course string) (map[string]bool, []checkpoint.PassRecord) {
	var times map[string]string
	err := p.storeCall(ctx, func(c context.Context) error {
		var e error
		times, e = p.kv.HGetAll(c, store.CheckpointTimesKey(req.UserID, req.EventID, req.EventDetailID))
		return e
	})
	if err != nil {
		log.Warn("checkpoint times read degraded", "error", err)
		p.stats.TrackStoreFailure(course)
		return nil, nil
	}
	if len(times) == 0 {
		return nil, nil
	}

	var segments map[string]string
	err = p.storeCall(ctx, func(c context.Context) error {
		var e error
		segments, e = p.kv.HGetAll(c, store.SegmentRecordsKey(req.UserID, req.EventID, req.EventDetailID))
		return e
	})
	if err != nil {
		log.Warn("segment records read degraded", "error", err)
		p.stats.TrackStoreFailure(course)
		segments = nil
	}

	passed := make(map[string]bool, len(times))
	var history []checkpoint.PassRecord
	for _, cp := range courseRoute.Checkpoints() {
		raw, ok := times[cp.CheckpointID]
		if !ok {
			continue
		}
		passed[cp.CheckpointID] = true

		passTime, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		rec := checkpoint.PassRecord{CheckpointIndex: cp.CheckpointIndex, PassTimeSec: passTime}
		if raw, ok := segments[cp.CheckpointID+"_cumulative"]; ok {
			if cum, err := strconv.ParseInt(raw, 10, 64); err == nil {
				rec.CumulativeSec = &cum
			}
		}
		history = append(history, rec)
	}
	return passed, history
}

// recordPassTimes persists pass times with first-crossing-wins semantics and
// drops crossings that lost the race to a concurrent call.
func (p *Pipeline) recordPassTimes(ctx context.Context, req *model.CorrectionRequest, crossings []model.Crossing, log *slog.Logger, course string) []model.Crossing {
	if len(crossings) == 0 {
		return crossings
	}
	key := store.CheckpointTimesKey(req.UserID, req.EventID, req.EventDetailID)
	kept := crossings[:0]
	for _, c := range crossings {
		var wrote bool
		err := p.storeCall(ctx, func(cc context.Context) error {
			var e error
			wrote, e = p.kv.HSetNX(cc, key, c.CheckpointID, strconv.FormatInt(c.PassTimeSec, 10))
			return e
		})
		if err != nil {
			log.Warn("pass time write degraded", "checkpoint", c.CheckpointID, "error", err)
			p.stats.TrackStoreFailure(course)
			// Keep the crossing in the response; the store converges later.
			kept = append(kept, c)
			continue
		}
		if wrote {
			kept = append(kept, c)
		}
	}
	return kept
}

func (p *Pipeline) persistSegments(ctx context.Context, req *model.CorrectionRequest, records map[string]model.SegmentRecord, log *slog.Logger, course string) {
	if len(records) == 0 {
		return
	}
	fields := make(map[string]string, len(records)*2)
	for cpID, rec := range records {
		if rec.SegmentDurationSec != nil {
			fields[cpID+"_duration"] = strconv.FormatInt(*rec.SegmentDurationSec, 10)
		}
		if rec.CumulativeDurationSec != nil {
			fields[cpID+"_cumulative"] = strconv.FormatInt(*rec.CumulativeDurationSec, 10)
		}
	}
	if len(fields) == 0 {
		return
	}
	key := store.SegmentRecordsKey(req.UserID, req.EventID, req.EventDetailID)
	if err := p.storeCall(ctx, func(c context.Context) error {
		return p.kv.HSet(c, key, fields, location.DefaultTTL)
	}); err != nil {
		log.Warn("segment records write degraded", "error", err)
		p.stats.TrackStoreFailure(course)
	}
}

// bestProgress returns the furthest checkpoint across history and fresh
// crossings with its cumulative time, or (0, -1) when nothing was recorded.
func bestProgress(history []checkpoint.PassRecord, crossings []model.Crossing) (int, int64) {
	bestIdx, bestCum := 0, int64(-1)
	found := false
	for _, h := range history {
		if !found || h.CheckpointIndex > bestIdx {
			found = true
			bestIdx = h.CheckpointIndex
			bestCum = 0
			if h.CumulativeSec != nil {
				bestCum = *h.CumulativeSec
			}
		}
	}
	for _, c := range crossings {
		if !found || c.CheckpointIndex > bestIdx {
			found = true
			bestIdx = c.CheckpointIndex
			bestCum = 0
			if c.CumulativeDurationSec != nil {
				bestCum = *c.CumulativeDurationSec
			}
		}
	}
	if !found {
		return 0, -1
	}
	return bestIdx, bestCum
}

func (p *Pipeline) fetchRoute(ctx context.Context, eventID, eventDetailID int64) (*model.Route, error) {
	cctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	return p.routes.Get(cctx, eventID, eventDetailID)
}

func (p *Pipeline) fetchPrevPos(ctx context.Context, req *model.CorrectionRequest) (*model.PreviousPosition, error) {
	cctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	return p.locations.PrevPos(cctx, req.UserID, req.EventID, req.EventDetailID)
}

// storeCall runs one store operation under the per-call timeout.
func (p *Pipeline) storeCall(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	return fn(cctx)
}

// sweepEvery is the correction-call interval between state sweeps.
const sweepEvery = 1 << 12

// state returns the participant's slot, refreshing its idle clock.
func (p *Pipeline) state(userID, eventID, eventDetailID int64) *participantState {
	key := fmt.Sprintf("%d:%d:%d", userID, eventID, eventDetailID)
	v, _ := p.participants.LoadOrStore(key, &participantState{track: geo.NewTrackBuffer(headingWindow)})
	st := v.(*participantState)
	st.lastUsed.Store(p.now().Unix())
	return st
}

// sweepStale drops participant slots idle past the location TTL, so a
// process serving successive events does not grow without bound. TryLock
// skips any slot that is somehow still held.
func (p *Pipeline) sweepStale() {
	cutoff := p.now().Add(-location.DefaultTTL).Unix()
	p.participants.Range(func(key, v any) bool {
		st := v.(*participantState)
		if st.lastUsed.Load() >= cutoff {
			return true
		}
		if st.mu.TryLock() {
			p.participants.Delete(key)
			st.mu.Unlock()
		}
		return true
	})
}
