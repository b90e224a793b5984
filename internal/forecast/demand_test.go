package forecast

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDemandEstimatorEmptyBeforeUpdate(t *testing.T) {
	d := NewDemandEstimator(0.3)
	est := d.Forecast()
	assert.Equal(t, 0.0, est.Current)
	assert.Equal(t, 0.0, est.Next)
}

func TestDemandEstimatorFirstUpdateSetsRateDirectly(t *testing.T) {
	d := NewDemandEstimator(0.3)
	d.Update(30, 60) // 0.5 req/s
	est := d.Forecast()
	assert.InDelta(t, 0.5, est.Current, 1e-9)
	assert.InDelta(t, 0.5, est.Next, 1e-9)
}

func TestDemandEstimatorSmoothsSubsequentUpdates(t *testing.T) {
	d := NewDemandEstimator(0.3)
	d.Update(30, 60) // rate = 0.5
	d.Update(60, 60) // observed = 1.0 -> rate = 0.3*1.0 + 0.7*0.5 = 0.65
	est := d.Forecast()
	assert.InDelta(t, 0.65, est.Current, 1e-9)
}

func TestDemandEstimatorIgnoresNonPositiveWindow(t *testing.T) {
	d := NewDemandEstimator(0.3)
	d.Update(10, 0)
	assert.Equal(t, 0.0, d.Forecast().Current)
}
