// Package location persists the per-participant last-known state and the
// previous corrected position between correction calls.
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"racepulse/pkg/geo"
	"racepulse/pkg/model"
	"racepulse/pkg/store"
)

// DefaultTTL expires stale participant state a day after the last write.
const DefaultTTL = 24 * time.Hour

// Store reads and writes participant state through the KV layer.
type Store struct {
	kv  store.KV
	ttl time.Duration
}

// NewStore creates a store; ttl <= 0 selects the default.
func NewStore(kv store.KV, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: kv, ttl: ttl}
}

// Location returns the participant's last-known state, or nil when none
// exists yet.
func (s *Store) Location(ctx context.Context, eventID, eventDetailID, userID int64) (*model.ParticipantLocation, error) {
	data, ok, err := s.kv.Get(ctx, store.LocationKey(eventID, eventDetailID, userID))
	if err != nil || !ok {
		return nil, err
	}
	var loc model.ParticipantLocation
	if err := json.Unmarshal(data, &loc); err != nil {
		return nil, fmt.Errorf("decode location: %w", err)
	}
	return &loc, nil
}

// SaveLocation overwrites the participant's state and refreshes its TTL.
func (s *Store) SaveLocation(ctx context.Context, loc *model.ParticipantLocation) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("encode location: %w", err)
	}
	key := store.LocationKey(loc.EventID, loc.EventDetailID, loc.UserID)
	return s.kv.Set(ctx, key, data, s.ttl)
}

// PrevPos returns the corrected position of the previous call, or nil.
func (s *Store) PrevPos(ctx context.Context, userID, eventID, eventDetailID int64) (*model.PreviousPosition, error) {
	data, ok, err := s.kv.Get(ctx, store.PrevPosKey(userID, eventID, eventDetailID))
	if err != nil || !ok {
		return nil, err
	}
	var pos model.PreviousPosition
	if err := json.Unmarshal(data, &pos); err != nil {
		return nil, fmt.Errorf("decode previous position: %w", err)
	}
	return &pos, nil
}

// SavePrevPos overwrites the previous-position marker.
func (s *Store) SavePrevPos(ctx context.Context, userID, eventID, eventDetailID int64, pos *model.PreviousPosition) error {
	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("encode previous position: %w", err)
	}
	return s.kv.Set(ctx, store.PrevPosKey(userID, eventID, eventDetailID), data, s.ttl)
}

// Advance folds one corrected sample into the participant's accumulators.
// Distance covered only ever grows: with a previous state it grows by the
// corrected-to-corrected hop, otherwise it seeds from the on-route distance
// when the sample matched. Elapsed time grows by the raw timestamp delta,
// clamped at zero so out-of-order batches cannot rewind the clock.
func Advance(prev *model.ParticipantLocation, correctedLat, correctedLng float64, rawTimeSec int64, match *model.MatchResult) (distanceCovered float64, cumulativeTimeSec int64) {
	if prev == nil {
		if match != nil && match.Matched {
			return match.DistanceFromStart, 0
		}
		return 0, 0
	}

	hop := geo.Distance(
		geo.Point{Lat: prev.CorrectedLat, Lon: prev.CorrectedLng},
		geo.Point{Lat: correctedLat, Lon: correctedLng},
	)
	distanceCovered = prev.DistanceCovered + hop

	cumulativeTimeSec = prev.CumulativeTimeSec
	if dt := rawTimeSec - prev.RawTimeSec; dt > 0 {
		cumulativeTimeSec += dt
	}
	return distanceCovered, cumulativeTimeSec
}
