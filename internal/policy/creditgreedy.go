package policy

import (
	"github.com/greenroute/carbonsched/internal/ledger"
	"github.com/greenroute/carbonsched/pkg/models"
)

// CreditGreedy spends credit on greener flavours while keeping the realised
// error within target.
type CreditGreedy struct {
	ledger *ledger.Ledger
}

// NewCreditGreedy builds the baseline policy.
func NewCreditGreedy(l *ledger.Ledger) *CreditGreedy { return &CreditGreedy{ledger: l} }

func (p *CreditGreedy) Name() string { return "credit-greedy" }

func (p *CreditGreedy) Evaluate(flavours []models.FlavourProfile, forecast *models.ForecastSnapshot) (models.PolicyResult, error) {
	sorted := enabledSorted(flavours)
	if len(sorted) == 0 {
		return models.PolicyResult{}, ErrNoFlavoursEnabled
	}
	baseline := sorted[0]

	baseAllowance := clamp(1-normalisedCredit(p.ledger), 0, 1)
	if p.ledger.Balance() > 0 && p.ledger.CreditMax() > 0 {
		debtRatio := clamp(p.ledger.Balance()/p.ledger.CreditMax(), 0, 1)
		factor := 1 - 0.5*debtRatio
		if factor < 0.2 {
			factor = 0.2
		}
		baseAllowance *= factor
	}

	carbonMultiplier := 1.0
	var carbonRatioVal *float64
	var carbonNow *float64
	if forecast != nil && forecast.IntensityNow != nil {
		now := *forecast.IntensityNow
		carbonNow = &now
		cr := carbonRatio(now)
		carbonRatioVal = &cr
		carbonMultiplier = 0.6 + 0.8*cr
	}

	allowance := clamp(baseAllowance*carbonMultiplier, 0, 0.95)

	weights := map[string]float64{baseline.Name: 1 - allowance}
	greener := sorted[1:]
	if len(greener) > 0 {
		scores := make([]float64, len(greener))
		var scoreSum float64
		for i, f := range greener {
			scores[i] = carbonScore(baseline, f)
			scoreSum += scores[i]
		}
		if scoreSum == 0 {
			scoreSum = float64(len(scores))
		}
		for i, f := range greener {
			weights[f.Name] = allowance * (scores[i] / scoreSum)
		}
	}

	weights = normalise(weights)
	avg := avgPrecision(weights, sorted)

	diag := models.PolicyDiagnostics{
		"credit_balance":    p.ledger.Balance(),
		"base_allowance":    baseAllowance,
		"carbon_multiplier": carbonMultiplier,
		"allowance":         allowance,
		"avg_precision":     avg,
		"normalised_credit": normalisedCredit(p.ledger),
	}
	if carbonNow != nil {
		diag["carbon_now"] = *carbonNow
	}
	if carbonRatioVal != nil {
		diag["carbon_ratio"] = *carbonRatioVal
	}

	return models.PolicyResult{Weights: weights, AvgPrecision: avg, Diagnostics: diag}, nil
}
