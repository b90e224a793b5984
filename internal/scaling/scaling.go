// Package scaling derives a ScalingDirective — the processing throttle
// factor and per-component replica ceilings — from the credit ledger
// balance and the current carbon forecast.
package scaling

import (
	"math"

	"github.com/greenroute/carbonsched/pkg/models"
)

const (
	defaultMinThrottle     = 0.2
	defaultIntensityFloor  = 150.0
	defaultIntensityCeiling = 350.0
)

func clamp(v, low, high float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

// FromState computes a ScalingDirective from the ledger balance, the
// scheduler config's credit band, the current forecast snapshot, and the
// per-component replica bounds. minThrottle/intensityFloor/intensityCeiling
// default to 0.2/150/350 when zero-valued, matching the reference defaults.
func FromState(
	creditBalance float64,
	config models.SchedulerConfig,
	forecast *models.ForecastSnapshot,
	componentBounds map[string]models.ComponentBounds,
	minThrottle, intensityFloor, intensityCeiling float64,
) models.ScalingDirective {
	if minThrottle == 0 {
		minThrottle = defaultMinThrottle
	}
	if intensityFloor == 0 {
		intensityFloor = defaultIntensityFloor
	}
	if intensityCeiling == 0 {
		intensityCeiling = defaultIntensityCeiling
	}

	span := config.CreditMax - config.CreditMin
	var creditsRatio float64
	if span <= 0 {
		creditsRatio = 1.0
	} else {
		creditsRatio = clamp((creditBalance-config.CreditMin)/span, 0, 1)
	}

	var peak float64
	havePeak := false
	if forecast != nil {
		if forecast.IntensityNow != nil {
			peak = *forecast.IntensityNow
			havePeak = true
		}
		if forecast.IntensityNext != nil && (!havePeak || *forecast.IntensityNext > peak) {
			peak = *forecast.IntensityNext
			havePeak = true
		}
	}

	var intensityRatio float64
	if havePeak && intensityCeiling > intensityFloor {
		norm := (intensityCeiling - peak) / (intensityCeiling - intensityFloor)
		intensityRatio = clamp(norm, 0, 1)
	} else {
		intensityRatio = 1.0
	}

	throttle := clamp(math.Min(creditsRatio, intensityRatio), minThrottle, 1.0)

	ceilings := map[string]int{}
	for component, bounds := range componentBounds {
		scaled := int(math.Round(float64(bounds.Max) * throttle))
		if bounds.Min != nil && scaled < *bounds.Min {
			scaled = *bounds.Min
		}
		if scaled < 0 {
			scaled = 0
		}
		if scaled > bounds.Max {
			scaled = bounds.Max
		}
		ceilings[component] = scaled
	}

	return models.ScalingDirective{
		Throttle:       throttle,
		CreditsRatio:   creditsRatio,
		IntensityRatio: intensityRatio,
		Ceilings:       ceilings,
	}
}
