package forecast

import "sync"

const defaultSmoothing = 0.3

// DemandEstimate is the current and next-horizon request rate estimate.
type DemandEstimate struct {
	Current float64
	Next    float64
}

// DemandEstimator smooths an observed request rate with exponential
// weighting: rate ← α·(count/window) + (1−α)·rate.
type DemandEstimator struct {
	smoothing float64

	mu   sync.Mutex
	rate *float64
}

// NewDemandEstimator builds an estimator with the given smoothing factor.
// A zero smoothing defaults to 0.3.
func NewDemandEstimator(smoothing float64) *DemandEstimator {
	if smoothing <= 0 {
		smoothing = defaultSmoothing
	}
	return &DemandEstimator{smoothing: smoothing}
}

// Update folds a new observation of request_count over window_seconds into
// the smoothed rate. No-op when windowSeconds <= 0.
func (d *DemandEstimator) Update(requestCount int, windowSeconds float64) {
	if windowSeconds <= 0 {
		return
	}
	observed := float64(requestCount) / windowSeconds

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rate == nil {
		d.rate = &observed
		return
	}
	next := d.smoothing*observed + (1-d.smoothing)*(*d.rate)
	d.rate = &next
}

// Forecast returns the current rate for both the current and next horizon —
// the estimator does not yet distinguish them.
func (d *DemandEstimator) Forecast() DemandEstimate {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rate == nil {
		return DemandEstimate{}
	}
	return DemandEstimate{Current: *d.rate, Next: *d.rate}
}
