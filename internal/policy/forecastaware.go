package policy

import (
	"github.com/greenroute/carbonsched/internal/ledger"
	"github.com/greenroute/carbonsched/pkg/models"
)

// ForecastAware adjusts the credit-greedy allowance based on the expected
// carbon intensity trend.
type ForecastAware struct {
	*CreditGreedy
}

func NewForecastAware(l *ledger.Ledger) *ForecastAware {
	return &ForecastAware{CreditGreedy: NewCreditGreedy(l)}
}

func (p *ForecastAware) Name() string { return "forecast-aware" }

func (p *ForecastAware) Evaluate(flavours []models.FlavourProfile, forecast *models.ForecastSnapshot) (models.PolicyResult, error) {
	base, err := p.CreditGreedy.Evaluate(flavours, forecast)
	if err != nil {
		return models.PolicyResult{}, err
	}
	if forecast == nil || forecast.IntensityNow == nil || forecast.IntensityNext == nil {
		return base, nil
	}

	now := *forecast.IntensityNow
	next := *forecast.IntensityNext
	trend := next - now

	denom := now
	if denom < 1e-6 {
		denom = 1e-6
	}

	var adjustment float64
	switch {
	case trend > 0:
		adjustment = -min(0.3, trend/denom*0.5)
	case trend < 0:
		adjustment = min(0.3, -trend/denom*0.5)
	}

	sortedFlavours := enabledSorted(flavours)
	argmax := argmaxWeight(base.Weights, sortedFlavours)
	weights := make(map[string]float64, len(base.Weights))
	for name, w := range base.Weights {
		if name == argmax {
			weights[name] = clamp(w-adjustment, 0, 1)
		} else {
			weights[name] = clamp(w+adjustment, 0, 1)
		}
	}
	weights = normalise(weights)

	avg := avgPrecision(weights, sortedFlavours)

	diag := models.PolicyDiagnostics{}
	for k, v := range base.Diagnostics {
		diag[k] = v
	}
	diag["trend"] = trend
	diag["adjustment"] = adjustment

	return models.PolicyResult{Weights: weights, AvgPrecision: avg, Diagnostics: diag}, nil
}

// argmaxWeight returns the name with the highest weight, breaking ties by
// flavour order (first occurrence wins) so evaluate stays deterministic.
func argmaxWeight(weights map[string]float64, order []models.FlavourProfile) string {
	var best string
	var bestVal float64
	first := true
	for _, f := range order {
		w, ok := weights[f.Name]
		if !ok {
			continue
		}
		if first || w > bestVal {
			best = f.Name
			bestVal = w
			first = false
		}
	}
	return best
}
