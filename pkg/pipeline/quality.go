package pipeline

import (
	"racepulse/pkg/geo"
	"racepulse/pkg/model"
)

// CorrectionStrength buckets the raw-to-corrected displacement into [0, 1].
// Small displacements mean the filter barely intervened.
func CorrectionStrength(rawLat, rawLng, correctedLat, correctedLng float64) float64 {
	d := geo.Distance(
		geo.Point{Lat: rawLat, Lon: rawLng},
		geo.Point{Lat: correctedLat, Lon: correctedLng},
	)
	switch {
	case d < 1:
		return 0.1
	case d < 5:
		return 0.3
	case d < 15:
		return 0.6
	case d < 50:
		return 0.8
	default:
		return 1.0
	}
}

// grade composes the 0..100 quality score: match presence weighs 40, match
// score 30 (inverse), GPS confidence 20, correction strength 10 (small
// corrections score higher).
func grade(match *model.MatchResult, confidence *float64, strength float64) (float64, model.QualityGrade) {
	score := 0.0
	if match != nil && match.Matched {
		score += 40

		s := match.MatchScore / 100
		if s > 1 {
			s = 1
		}
		score += 30 * (1 - s)
	}
	if confidence != nil {
		score += 20 * *confidence
	}
	score += 10 * (1 - strength)

	switch {
	case score >= 85:
		return score, model.GradeExcellent
	case score >= 70:
		return score, model.GradeGood
	case score >= 50:
		return score, model.GradeFair
	default:
		return score, model.GradePoor
	}
}
