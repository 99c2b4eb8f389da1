package kalman

// Confidence bounds. Every per-sample confidence is clamped into this range
// so the measurement noise scaling stays finite.
const (
	MinConfidence = 0.1
	MaxConfidence = 1.0
)

// Confidence derives a [0.1, 1.0] trust value for one sample from its
// reported accuracy (meters) and speed (m/s). Missing values fall back to
// the middle of their tables.
func Confidence(accuracy, speed *float64) float64 {
	acc := 0.5
	if accuracy != nil {
		acc = confidenceByAccuracy(*accuracy)
	}
	spd := 0.9
	if speed != nil {
		spd = confidenceBySpeed(*speed)
	}

	c := 0.7*acc + 0.3*spd
	if c < MinConfidence {
		return MinConfidence
	}
	if c > MaxConfidence {
		return MaxConfidence
	}
	return c
}

func confidenceByAccuracy(m float64) float64 {
	switch {
	case m <= 3:
		return 1.0
	case m <= 5:
		return 0.9
	case m <= 10:
		return 0.7
	case m <= 20:
		return 0.5
	default:
		return 0.3
	}
}

func confidenceBySpeed(ms float64) float64 {
	switch {
	case ms < 0.5:
		return 0.8
	case ms < 1:
		return 0.9
	case ms < 5:
		return 1.0
	case ms < 15:
		return 0.95
	default:
		return 0.8
	}
}
