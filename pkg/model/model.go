package model

import "time"

// PointKind classifies a point on the densified route polyline.
type PointKind string

const (
	KindStart        PointKind = "start"
	KindInterpolated PointKind = "interpolated"
	KindCheckpoint   PointKind = "checkpoint"
	KindFinish       PointKind = "finish"
)

// Checkpoint IDs for the two fixed course markers.
const (
	CheckpointStart  = "START"
	CheckpointFinish = "FINISH"
)

// RoutePoint is one point of the densified course polyline.
type RoutePoint struct {
	Latitude          float64   `json:"lat"`
	Longitude         float64   `json:"lng"`
	Elevation         *float64  `json:"elevation,omitempty"`
	DistanceFromStart float64   `json:"distance_from_start"` // meters, accumulated along the densified polyline
	Sequence          int       `json:"sequence"`
	Kind              PointKind `json:"kind"`
	CheckpointID      string    `json:"checkpoint_id,omitempty"`
	CheckpointIndex   int       `json:"checkpoint_index,omitempty"`
}

// Route is a prepared course: densified polyline plus checkpoint catalogue.
type Route struct {
	EventID       int64        `json:"event_id"`
	EventDetailID int64        `json:"event_detail_id"`
	Points        []RoutePoint `json:"points"`
	TotalDistance float64      `json:"total_distance"` // meters
	CreatedAt     time.Time    `json:"created_at"`
}

// Checkpoints returns the course markers (start, intermediates, finish) in
// checkpoint-index order. Interpolated points are skipped.
func (r *Route) Checkpoints() []RoutePoint {
	var cps []RoutePoint
	for _, p := range r.Points {
		if p.Kind != KindInterpolated {
			cps = append(cps, p)
		}
	}
	return cps
}

// RouteSummary is the reduced view returned after loading a route.
type RouteSummary struct {
	EventID         int64     `json:"event_id"`
	EventDetailID   int64     `json:"event_detail_id"`
	PointCount      int       `json:"point_count"`
	CheckpointCount int       `json:"checkpoint_count"`
	TotalDistance   float64   `json:"total_distance"`
	CreatedAt       time.Time `json:"created_at"`
}

// Summary builds the summary view of a route.
func (r *Route) Summary() RouteSummary {
	return RouteSummary{
		EventID:         r.EventID,
		EventDetailID:   r.EventDetailID,
		PointCount:      len(r.Points),
		CheckpointCount: len(r.Checkpoints()),
		TotalDistance:   r.TotalDistance,
		CreatedAt:       r.CreatedAt,
	}
}

// GPSSample is one raw GPS reading from a participant device.
// Timestamp accepts unix seconds, unix millis or RFC3339 (see pipeline).
type GPSSample struct {
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	Timestamp any      `json:"timestamp"`
}

// ParticipantLocation is the per-participant last-known state.
// Written only by the correction pipeline.
type ParticipantLocation struct {
	UserID        int64 `json:"user_id"`
	EventID       int64 `json:"event_id"`
	EventDetailID int64 `json:"event_detail_id"`

	RawLat      float64  `json:"raw_lat"`
	RawLng      float64  `json:"raw_lng"`
	RawAlt      *float64 `json:"raw_alt,omitempty"`
	RawAccuracy *float64 `json:"raw_accuracy,omitempty"`
	RawSpeed    *float64 `json:"raw_speed,omitempty"`
	RawHeading  *float64 `json:"raw_heading,omitempty"`
	RawTimeSec  int64    `json:"raw_time_sec"`

	CorrectedLat float64  `json:"corrected_lat"`
	CorrectedLng float64  `json:"corrected_lng"`
	CorrectedAlt *float64 `json:"corrected_alt,omitempty"`

	DistanceCovered   float64 `json:"distance_covered"` // meters, monotone
	CumulativeTimeSec int64   `json:"cumulative_time_sec"`
	LastUpdatedSec    int64   `json:"last_updated_sec"`
}

// PreviousPosition is the corrected position of the previous correction call.
type PreviousPosition struct {
	Lat               float64  `json:"lat"`
	Lng               float64  `json:"lng"`
	Alt               *float64 `json:"alt,omitempty"`
	TimestampSec      int64    `json:"timestamp_sec"`
	DistanceFromStart *float64 `json:"distance_from_start,omitempty"`
}

// Crossing is the first entry of a participant into a checkpoint radius.
type Crossing struct {
	CheckpointID    string `json:"checkpointId"`
	CheckpointIndex int    `json:"checkpointIndex"`
	PassTimeSec     int64  `json:"passTime"`

	// Filled in by the segment timer; nil when the duration was rejected.
	SegmentDurationSec    *int64 `json:"segmentDurationSec"`
	CumulativeDurationSec *int64 `json:"cumulativeDurationSec"`
}

// SegmentRecord holds the timing result for one checkpoint crossing.
type SegmentRecord struct {
	SegmentDurationSec    *int64 `json:"segment_duration_sec"`
	CumulativeDurationSec *int64 `json:"cumulative_duration_sec"`
}

// MatchResult is the outcome of snapping a corrected position onto a route.
type MatchResult struct {
	Matched           bool    `json:"matched"`
	MatchedLat        float64 `json:"matched_lat"`
	MatchedLng        float64 `json:"matched_lng"`
	DistanceToRoute   float64 `json:"distance_to_route"` // meters
	NearestIndex      int     `json:"nearest_index"`
	RouteBearing      float64 `json:"route_bearing"`
	CurrentBearing    float64 `json:"current_bearing"`
	BearingDifference float64 `json:"bearing_difference"` // [0, 180]
	RouteProgress     float64 `json:"route_progress"`     // [0, 1]
	DistanceFromStart float64 `json:"distance_from_start"`
	MatchScore        float64 `json:"match_score"`
}

// LeaderboardEntry pairs a participant with their composite score.
type LeaderboardEntry struct {
	UserID int64   `json:"user_id"`
	Score  float64 `json:"score"`
	Rank   int     `json:"rank"`
}

// CorrectionRequest is one correction call: a batch of raw samples for a
// participant on a course.
type CorrectionRequest struct {
	UserID        int64       `json:"userId"`
	EventID       int64       `json:"eventId"`
	EventDetailID int64       `json:"eventDetailId"`
	GPSData       []GPSSample `json:"gpsData"`
}

// NearestRoutePoint describes where on the course the sample landed.
type NearestRoutePoint struct {
	Lat               float64 `json:"lat"`
	Lng               float64 `json:"lng"`
	DistanceToPoint   float64 `json:"distanceToPoint"`
	DistanceFromStart float64 `json:"distanceFromStart"`
	RouteProgress     float64 `json:"routeProgress"`
	RouteBearing      float64 `json:"routeBearing"`
}

// QualityGrade is the ordinal summary of match confidence.
type QualityGrade string

const (
	GradeExcellent QualityGrade = "EXCELLENT"
	GradeGood      QualityGrade = "GOOD"
	GradeFair      QualityGrade = "FAIR"
	GradePoor      QualityGrade = "POOR"
)

// MatchingQuality reports how trustworthy the corrected position is.
type MatchingQuality struct {
	Matched            bool         `json:"matched"`
	MatchScore         float64      `json:"matchScore"`
	BearingDifference  *float64     `json:"bearingDifference"`
	GPSConfidence      *float64     `json:"gpsConfidence"`
	CorrectionStrength float64      `json:"correctionStrength"` // [0, 1]
	QualityGrade       QualityGrade `json:"qualityGrade"`
}

// CorrectionResponse echoes the corrected position plus everything derived
// from it during the call.
type CorrectionResponse struct {
	UserID        int64 `json:"userId"`
	EventID       int64 `json:"eventId"`
	EventDetailID int64 `json:"eventDetailId"`

	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude"`
	Timestamp any      `json:"timestamp"`

	CheckpointReaches []Crossing         `json:"checkpointReaches"`
	NearestRoutePoint *NearestRoutePoint `json:"nearestRoutePoint,omitempty"`
	MatchingQuality   MatchingQuality    `json:"matchingQuality"`
}
