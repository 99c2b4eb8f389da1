// Package kalman implements the accuracy-weighted 3-D filter the correction
// pipeline folds a GPS batch into. Three independent scalar filters (lat,
// lng, altitude), scalar math only.
package kalman

// Config holds filter noise parameters.
type Config struct {
	// ProcessNoiseLatLng (Q) in degrees^2 per step for the horizontal axes.
	ProcessNoiseLatLng float64

	// ProcessNoiseAlt (Q) in m^2 per step for the altitude axis.
	ProcessNoiseAlt float64

	// MeasurementNoise (R) base value. Scaled per step by the sample
	// confidence: r/confidence on lat/lng, r*4/confidence on altitude.
	MeasurementNoise float64

	// InitialCovariance (P) is the starting uncertainty per axis.
	InitialCovariance float64
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		ProcessNoiseLatLng: 1e-6,
		ProcessNoiseAlt:    0.1,
		MeasurementNoise:   5,
		InitialCovariance:  1,
	}
}

// axis is one scalar Kalman filter.
type axis struct {
	x           float64 // state estimate
	p           float64 // estimate covariance
	q           float64 // process noise
	initialized bool
}

func (a *axis) update(z, r float64) {
	if !a.initialized {
		a.x = z
		a.initialized = true
		return
	}
	// Predict
	a.p += a.q
	// Update
	k := a.p / (a.p + r)
	a.x += k * (z - a.x)
	a.p *= 1 - k
}

// Filter3D estimates a position from a sequence of noisy GPS samples.
// State is per correction call and never shared between goroutines.
type Filter3D struct {
	cfg     Config
	lat     axis
	lng     axis
	alt     axis
	updates int
}

// New creates a filter with the given configuration.
func New(cfg Config) *Filter3D {
	f := &Filter3D{cfg: cfg}
	f.lat = axis{p: cfg.InitialCovariance, q: cfg.ProcessNoiseLatLng}
	f.lng = axis{p: cfg.InitialCovariance, q: cfg.ProcessNoiseLatLng}
	f.alt = axis{p: cfg.InitialCovariance, q: cfg.ProcessNoiseAlt}
	return f
}

// Update folds one sample into the filter. confidence must be in [0.1, 1.0];
// out-of-range values are clamped. The altitude axis is skipped when alt is
// nil, preserving the prior altitude estimate.
func (f *Filter3D) Update(lat, lng float64, alt *float64, confidence float64) {
	if confidence < MinConfidence {
		confidence = MinConfidence
	} else if confidence > MaxConfidence {
		confidence = MaxConfidence
	}

	r := f.cfg.MeasurementNoise / confidence
	f.lat.update(lat, r)
	f.lng.update(lng, r)
	if alt != nil {
		f.alt.update(*alt, f.cfg.MeasurementNoise*4/confidence)
	}
	f.updates++
}

// Position returns the current estimate. The altitude is nil until at least
// one sample carried one.
func (f *Filter3D) Position() (lat, lng float64, alt *float64) {
	lat, lng = f.lat.x, f.lng.x
	if f.alt.initialized {
		a := f.alt.x
		alt = &a
	}
	return lat, lng, alt
}

// Uncertainty returns the per-axis estimate variances.
func (f *Filter3D) Uncertainty() (varLat, varLng float64, varAlt *float64) {
	varLat, varLng = f.lat.p, f.lng.p
	if f.alt.initialized {
		v := f.alt.p
		varAlt = &v
	}
	return varLat, varLng, varAlt
}

// Updates reports how many samples have been folded in.
func (f *Filter3D) Updates() int {
	return f.updates
}
