// Package leaderboard keeps the live ranking per event detail. Ordering
// prioritises the furthest checkpoint reached; cumulative time to reach it
// breaks ties inside a checkpoint bucket.
package leaderboard

import (
	"context"
	"math"
	"strconv"
	"time"

	"racepulse/pkg/model"
	"racepulse/pkg/store"
)

// ScoreBucket is the per-checkpoint score width. Any plausible cumulative
// time (< 100h) fits inside one bucket.
const ScoreBucket = 360000

// DefaultTTL keeps a board alive for a week past its last update.
const DefaultTTL = 7 * 24 * time.Hour

// Engine is the leaderboard over an ordered-set store.
type Engine struct {
	sets store.OrderedSet
	ttl  time.Duration
}

// New creates an engine; ttl <= 0 selects the default.
func New(sets store.OrderedSet, ttl time.Duration) *Engine {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Engine{sets: sets, ttl: ttl}
}

// Score is the reported composite: cpIndex*ScoreBucket + cumulativeSec.
func Score(cpIndex int, cumulativeSec int64) float64 {
	return float64(cpIndex)*ScoreBucket + float64(cumulativeSec)
}

// storedScore is what actually goes into the ordered set. The set sorts
// ascending with rank 1 first, and a further checkpoint must always beat a
// nearer one, so the checkpoint term is negated: more checkpoints pushes
// the stored value down, more elapsed time pushes it up within the bucket.
func storedScore(cpIndex int, cumulativeSec int64) float64 {
	return float64(-cpIndex)*ScoreBucket + float64(cumulativeSec)
}

// decodeStored splits a stored value back into (cpIndex, cumulativeSec).
// Valid cumulative times are below ScoreBucket, so the bucket is
// recoverable from the stored value alone.
func decodeStored(stored float64) (int, int64) {
	cpIndex := int(math.Ceil(-stored / ScoreBucket))
	cumulative := int64(stored + float64(cpIndex)*ScoreBucket)
	return cpIndex, cumulative
}

// Update overwrites the participant's score and refreshes the board TTL.
func (e *Engine) Update(ctx context.Context, eventID, eventDetailID, userID int64, cpIndex int, cumulativeSec int64) error {
	key := store.LeaderboardKey(eventID, eventDetailID)
	member := strconv.FormatInt(userID, 10)
	return e.sets.Add(ctx, key, member, storedScore(cpIndex, cumulativeSec), e.ttl)
}

// TopN returns the best n entries, rank 1 first. Entries carry the
// reported score form.
func (e *Engine) TopN(ctx context.Context, eventID, eventDetailID int64, n int) ([]model.LeaderboardEntry, error) {
	members, err := e.sets.TopN(ctx, store.LeaderboardKey(eventID, eventDetailID), n)
	if err != nil {
		return nil, err
	}
	entries := make([]model.LeaderboardEntry, 0, len(members))
	for i, m := range members {
		userID, err := strconv.ParseInt(m.ID, 10, 64)
		if err != nil {
			continue
		}
		cpIndex, cumulative := decodeStored(m.Score)
		entries = append(entries, model.LeaderboardEntry{
			UserID: userID,
			Score:  Score(cpIndex, cumulative),
			Rank:   i + 1,
		})
	}
	return entries, nil
}

// Rank returns the participant's 1-based position, or false when the
// participant has no score yet.
func (e *Engine) Rank(ctx context.Context, eventID, eventDetailID, userID int64) (int, bool, error) {
	return e.sets.Rank(ctx, store.LeaderboardKey(eventID, eventDetailID), strconv.FormatInt(userID, 10))
}
