package policy

import (
	"sync"

	"github.com/greenroute/carbonsched/internal/ledger"
	"github.com/greenroute/carbonsched/pkg/models"
)

// ForecastAwareGlobal combines carbon trend, demand trend, a cumulative
// emissions budget, and an extended look-ahead over the forecast schedule
// into a single additive adjustment on top of credit-greedy.
//
// The cumulative carbon counter is a direct accumulation of the chosen
// flavour's CarbonIntensity field (dimensionless, same units as
// FlavourProfile.CarbonIntensity) — never scaled by grid intensity. Callers
// must invoke Observe after each completed request.
type ForecastAwareGlobal struct {
	*CreditGreedy

	mu               sync.Mutex
	cumulativeCarbon float64
	requestCount     int
}

func NewForecastAwareGlobal(l *ledger.Ledger) *ForecastAwareGlobal {
	return &ForecastAwareGlobal{CreditGreedy: NewCreditGreedy(l)}
}

func (p *ForecastAwareGlobal) Name() string { return "forecast-aware-global" }

// Observe records that a completed request was served by the named
// flavour, accumulating its carbon intensity into the emissions budget.
func (p *ForecastAwareGlobal) Observe(flavourName string, flavours []models.FlavourProfile) {
	for _, f := range flavours {
		if f.Name == flavourName {
			p.mu.Lock()
			p.cumulativeCarbon += f.CarbonIntensity
			p.requestCount++
			p.mu.Unlock()
			return
		}
	}
}

// Reset clears the cumulative emissions budget.
func (p *ForecastAwareGlobal) Reset() {
	p.mu.Lock()
	p.cumulativeCarbon = 0
	p.requestCount = 0
	p.mu.Unlock()
}

func (p *ForecastAwareGlobal) snapshotEmissions() (float64, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cumulativeCarbon, p.requestCount
}

func (p *ForecastAwareGlobal) Evaluate(flavours []models.FlavourProfile, forecast *models.ForecastSnapshot) (models.PolicyResult, error) {
	sorted := enabledSorted(flavours)
	if len(sorted) == 0 {
		return models.PolicyResult{}, ErrNoFlavoursEnabled
	}

	base, err := p.CreditGreedy.Evaluate(flavours, forecast)
	if err != nil {
		return models.PolicyResult{}, err
	}
	if forecast == nil {
		return base, nil
	}

	carbonAdj := p.carbonTrendAdjustment(forecast)
	demandAdj := p.demandAdjustment(forecast)
	emissionsAdj := p.emissionsBudgetAdjustment(forecast)
	lookaheadAdj := p.lookaheadAdjustment(forecast)

	total := 0.35*carbonAdj + 0.25*demandAdj + 0.25*emissionsAdj + 0.15*lookaheadAdj
	total = clamp(total, -0.5, 0.5)

	weights := p.applyAdjustment(base.Weights, total, sorted)
	avg := avgPrecision(weights, sorted)

	cumCarbon, reqCount := p.snapshotEmissions()
	avgCarbonPerReq := 0.0
	if reqCount > 0 {
		avgCarbonPerReq = cumCarbon / float64(reqCount)
	}

	diag := models.PolicyDiagnostics{}
	for k, v := range base.Diagnostics {
		diag[k] = v
	}
	diag["carbon_adjustment"] = carbonAdj
	diag["demand_adjustment"] = demandAdj
	diag["emissions_adjustment"] = emissionsAdj
	diag["lookahead_adjustment"] = lookaheadAdj
	diag["total_adjustment"] = total
	diag["cumulative_carbon_gco2"] = cumCarbon
	diag["request_count"] = float64(reqCount)
	diag["avg_carbon_per_request"] = avgCarbonPerReq

	return models.PolicyResult{Weights: weights, AvgPrecision: avg, Diagnostics: diag}, nil
}

func (p *ForecastAwareGlobal) carbonTrendAdjustment(forecast *models.ForecastSnapshot) float64 {
	if forecast.IntensityNow == nil || forecast.IntensityNext == nil {
		return 0
	}
	current := *forecast.IntensityNow
	next := *forecast.IntensityNext
	if current <= 0 {
		return 0
	}
	trend := (next - current) / current
	switch {
	case trend > 0.2:
		return -0.8
	case trend > 0.05:
		return -0.4
	case trend < -0.2:
		return 0.8
	case trend < -0.05:
		return 0.4
	default:
		return trend * 2.0
	}
}

func (p *ForecastAwareGlobal) demandAdjustment(forecast *models.ForecastSnapshot) float64 {
	if forecast.DemandNow == nil || forecast.DemandNext == nil {
		return 0
	}
	current := *forecast.DemandNow
	next := *forecast.DemandNext
	if current <= 0 {
		return 0
	}
	ratio := next / current
	switch {
	case ratio > 1.5:
		return -0.6
	case ratio > 1.2:
		return -0.3
	case ratio < 0.7:
		return 0.4
	case ratio < 0.85:
		return 0.2
	default:
		return 0
	}
}

func (p *ForecastAwareGlobal) emissionsBudgetAdjustment(forecast *models.ForecastSnapshot) float64 {
	cumCarbon, reqCount := p.snapshotEmissions()
	if reqCount < 10 {
		return 0
	}
	if forecast.IntensityNow == nil || *forecast.IntensityNow <= 0 {
		return 0
	}
	currentIntensity := *forecast.IntensityNow
	avgCarbonPerReq := cumCarbon / float64(reqCount)

	switch {
	case avgCarbonPerReq > currentIntensity*1.2:
		return 0.5
	case avgCarbonPerReq > currentIntensity*1.05:
		return 0.2
	case avgCarbonPerReq < currentIntensity*0.8:
		return -0.3
	default:
		return 0
	}
}

func (p *ForecastAwareGlobal) lookaheadAdjustment(forecast *models.ForecastSnapshot) float64 {
	if len(forecast.Schedule) == 0 || forecast.IntensityNow == nil {
		return 0
	}
	current := *forecast.IntensityNow
	if current <= 0 {
		return 0
	}

	points := forecast.Schedule
	if len(points) > 6 {
		points = points[:6]
	}
	if len(points) < 2 {
		return 0
	}

	var validForecasts []float64
	for _, pt := range points {
		if pt.Forecast != nil && *pt.Forecast > 0 {
			validForecasts = append(validForecasts, *pt.Forecast)
		}
	}
	if len(validForecasts) == 0 {
		return 0
	}

	var sum, min, max float64
	for i, v := range validForecasts {
		sum += v
		if i == 0 || v < min {
			min = v
		}
		if i == 0 || v > max {
			max = v
		}
	}
	avgFuture := sum / float64(len(validForecasts))
	futureRatio := avgFuture / current

	switch {
	case min < current*0.6:
		return -0.5
	case max > current*1.4:
		return 0.6
	case futureRatio > 1.3:
		return 0.4
	case futureRatio > 1.1:
		return 0.2
	case futureRatio < 0.8:
		return -0.3
	case futureRatio < 0.9:
		return -0.15
	default:
		return 0
	}
}

func (p *ForecastAwareGlobal) applyAdjustment(baseWeights map[string]float64, adjustment float64, sorted []models.FlavourProfile) map[string]float64 {
	if adjustment < 0.01 && adjustment > -0.01 {
		return baseWeights
	}

	baselineName := sorted[0].Name
	weights := make(map[string]float64, len(baseWeights))
	for k, v := range baseWeights {
		weights[k] = v
	}

	if adjustment > 0 {
		baselineWeight := weights[baselineName]
		reduction := baselineWeight * adjustment * 0.8
		if cap := baselineWeight - 0.1; reduction > cap {
			reduction = cap
		}
		if reduction > 0 {
			weights[baselineName] = baselineWeight - reduction
			if weights[baselineName] < 0.1 {
				weights[baselineName] = 0.1
			}

			others := sorted[1:]
			if len(others) > 0 {
				scores := make([]float64, len(others))
				var scoreSum float64
				for i, f := range others {
					scores[i] = carbonScore(sorted[0], f)
					scoreSum += scores[i]
				}
				if scoreSum == 0 {
					scoreSum = float64(len(scores))
				}
				for i, f := range others {
					weights[f.Name] = weights[f.Name] + reduction*(scores[i]/scoreSum)
				}
			}
		}
	} else {
		increase := -adjustment * 0.5
		var otherTotal float64
		for name, w := range weights {
			if name != baselineName {
				otherTotal += w
			}
		}
		if otherTotal > 0.2 {
			reductionFactor := 1 - increase/otherTotal
			if reductionFactor < 0.5 {
				reductionFactor = 0.5
			}
			var reclaimed float64
			for name, w := range weights {
				if name == baselineName {
					continue
				}
				newWeight := w * reductionFactor
				if newWeight < 0.05 {
					newWeight = 0.05
				}
				reclaimed += w - newWeight
				weights[name] = newWeight
			}
			weights[baselineName] = weights[baselineName] + reclaimed
		}
	}

	return normalise(weights)
}
