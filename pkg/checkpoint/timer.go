package checkpoint

import (
	"sort"
	"time"

	"racepulse/pkg/model"
)

// MaxSegmentDuration rejects implausible splits; anything longer is
// recorded as unknown while the pass time itself is kept.
const MaxSegmentDuration = 24 * time.Hour

// StartFallback is how far back the segment anchor reaches when no official
// event start time was configured.
const StartFallback = 12 * time.Hour

// PassRecord is an already-persisted crossing used as timing context.
type PassRecord struct {
	CheckpointIndex int
	PassTimeSec     int64
	CumulativeSec   *int64
}

// Timer computes segment and cumulative durations for fresh crossings.
type Timer struct {
	eventStartSec int64
}

// NewTimer creates a timer anchored at the event's official start time
// (unix seconds). Zero means no configured start; the anchor then falls
// back to now minus StartFallback at computation time.
func NewTimer(eventStartSec int64) *Timer {
	return &Timer{eventStartSec: eventStartSec}
}

// Apply fills SegmentDurationSec and CumulativeDurationSec on each crossing
// in index order and returns the segment records to persist, keyed by
// checkpoint id. history holds the participant's previously recorded
// crossings; crossings earlier in the same call feed the later ones.
func (t *Timer) Apply(crossings []model.Crossing, history []PassRecord, nowSec int64) map[string]model.SegmentRecord {
	if len(crossings) == 0 {
		return nil
	}

	anchor := t.eventStartSec
	if anchor <= 0 {
		anchor = nowSec - int64(StartFallback/time.Second)
	}

	ctx := make([]PassRecord, len(history))
	copy(ctx, history)
	sort.Slice(ctx, func(i, j int) bool { return ctx[i].CheckpointIndex < ctx[j].CheckpointIndex })

	records := make(map[string]model.SegmentRecord, len(crossings))
	for i := range crossings {
		c := &crossings[i]

		// Latest prior crossing below this index
		var prev *PassRecord
		for j := range ctx {
			if ctx[j].CheckpointIndex < c.CheckpointIndex {
				prev = &ctx[j]
			}
		}

		base := anchor
		var prevCumulative *int64
		if prev != nil {
			base = prev.PassTimeSec
			prevCumulative = prev.CumulativeSec
		}

		seg := c.PassTimeSec - base
		maxSec := int64(MaxSegmentDuration / time.Second)
		if seg >= 0 && seg <= maxSec {
			c.SegmentDurationSec = &seg
			cum := seg
			if prevCumulative != nil {
				cum += *prevCumulative
			}
			c.CumulativeDurationSec = &cum
		}
		// Negative or implausible durations leave both nil; the pass time
		// is still persisted by the caller.

		records[c.CheckpointID] = model.SegmentRecord{
			SegmentDurationSec:    c.SegmentDurationSec,
			CumulativeDurationSec: c.CumulativeDurationSec,
		}

		ctx = append(ctx, PassRecord{
			CheckpointIndex: c.CheckpointIndex,
			PassTimeSec:     c.PassTimeSec,
			CumulativeSec:   c.CumulativeDurationSec,
		})
		sort.Slice(ctx, func(a, b int) bool { return ctx[a].CheckpointIndex < ctx[b].CheckpointIndex })
	}
	return records
}
