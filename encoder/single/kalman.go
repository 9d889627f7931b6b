package single

// kalmanFilter is a scalar Kalman filter used to smooth pulse interval
// measurements. q is the process noise covariance, r the measurement noise
// covariance.
type kalmanFilter struct {
	q float64
	r float64
	x float64 // current estimate
	p float64 // estimation error covariance

	primed bool
}

func newKalmanFilter(q, r float64) *kalmanFilter {
	return &kalmanFilter{q: q, r: r, p: 1.0}
}

// Update folds in a new measurement and returns the updated estimate.
func (kf *kalmanFilter) Update(measurement float64) float64 {
	if !kf.primed {
		// Seed with the first measurement instead of converging from zero.
		kf.x = measurement
		kf.primed = true
		return kf.x
	}

	kf.p += kf.q
	k := kf.p / (kf.p + kf.r)
	kf.x += k * (measurement - kf.x)
	kf.p = (1 - k) * kf.p
	return kf.x
}

// Reset forgets all prior measurements.
func (kf *kalmanFilter) Reset() {
	kf.x = 0
	kf.p = 1.0
	kf.primed = false
}
