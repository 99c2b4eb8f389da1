package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"racepulse/pkg/tracker"
)

// StatsHandler reports pipeline counters and process diagnostics.
type StatsHandler struct {
	tracker *tracker.Tracker
	started time.Time
}

func NewStatsHandler(t *tracker.Tracker) *StatsHandler {
	return &StatsHandler{tracker: t, started: time.Now()}
}

type CourseStatsDTO struct {
	Corrections   int64 `json:"corrections"`
	Matched       int64 `json:"matched"`
	Unmatched     int64 `json:"unmatched"`
	Crossings     int64 `json:"crossings"`
	StoreFailures int64 `json:"store_failures"`
	InvalidBatch  int64 `json:"invalid_batches"`
	MatchRate     int64 `json:"match_rate"`
}

type ProcessStats struct {
	UptimeSec  int64  `json:"uptime_sec"`
	Goroutines int    `json:"goroutines"`
	MemoryMB   uint64 `json:"memory_mb"`
}

type StatsResponse struct {
	Process ProcessStats              `json:"process"`
	Courses map[string]CourseStatsDTO `json:"courses"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := StatsResponse{
		Process: ProcessStats{
			UptimeSec:  int64(time.Since(h.started).Seconds()),
			Goroutines: runtime.NumGoroutine(),
			MemoryMB:   mem.Alloc / 1024 / 1024,
		},
		Courses: make(map[string]CourseStatsDTO),
	}

	for course, stats := range snapshot {
		total := stats.Matched + stats.Unmatched
		matchRate := int64(0)
		if total > 0 {
			matchRate = (stats.Matched * 100) / total
		}
		resp.Courses[course] = CourseStatsDTO{
			Corrections:   stats.Corrections,
			Matched:       stats.Matched,
			Unmatched:     stats.Unmatched,
			Crossings:     stats.Crossings,
			StoreFailures: stats.StoreFailures,
			InvalidBatch:  stats.InvalidBatch,
			MatchRate:     matchRate,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
