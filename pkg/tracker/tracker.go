// Package tracker counts correction pipeline outcomes per course.
package tracker

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Tracker tracks pipeline statistics per course.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*CourseStats
}

// CourseStats holds metrics for one (event, event detail) pair.
// Fields are accessed atomically.
type CourseStats struct {
	Corrections   int64
	Matched       int64
	Unmatched     int64
	Crossings     int64
	StoreFailures int64
	InvalidBatch  int64
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*CourseStats),
	}
}

// Key builds the course label used in snapshots.
func Key(eventID, eventDetailID int64) string {
	return fmt.Sprintf("%d:%d", eventID, eventDetailID)
}

// getStats returns the stats object for a course, creating it if needed.
func (t *Tracker) getStats(course string) *CourseStats {
	t.mu.RLock()
	s, ok := t.stats[course]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stats[course]; ok {
		return s
	}
	s = &CourseStats{}
	t.stats[course] = s
	return s
}

// TrackCorrection increments the correction call counter.
func (t *Tracker) TrackCorrection(course string) {
	atomic.AddInt64(&t.getStats(course).Corrections, 1)
}

func (t *Tracker) TrackMatched(course string) {
	atomic.AddInt64(&t.getStats(course).Matched, 1)
}

func (t *Tracker) TrackUnmatched(course string) {
	atomic.AddInt64(&t.getStats(course).Unmatched, 1)
}

func (t *Tracker) TrackCrossings(course string, n int) {
	atomic.AddInt64(&t.getStats(course).Crossings, int64(n))
}

func (t *Tracker) TrackStoreFailure(course string) {
	atomic.AddInt64(&t.getStats(course).StoreFailures, 1)
}

func (t *Tracker) TrackInvalidBatch(course string) {
	atomic.AddInt64(&t.getStats(course).InvalidBatch, 1)
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]CourseStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]CourseStats)
	for k, v := range t.stats {
		result[k] = CourseStats{
			Corrections:   atomic.LoadInt64(&v.Corrections),
			Matched:       atomic.LoadInt64(&v.Matched),
			Unmatched:     atomic.LoadInt64(&v.Unmatched),
			Crossings:     atomic.LoadInt64(&v.Crossings),
			StoreFailures: atomic.LoadInt64(&v.StoreFailures),
			InvalidBatch:  atomic.LoadInt64(&v.InvalidBatch),
		}
	}
	return result
}
