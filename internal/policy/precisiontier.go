package policy

import (
	"github.com/greenroute/carbonsched/internal/ledger"
	"github.com/greenroute/carbonsched/pkg/models"
)

// PrecisionTier maintains a target average precision by splitting traffic
// across three precision tiers, shifting share between them as the ledger
// balance moves.
type PrecisionTier struct {
	ledger *ledger.Ledger
}

func NewPrecisionTier(l *ledger.Ledger) *PrecisionTier { return &PrecisionTier{ledger: l} }

func (p *PrecisionTier) Name() string { return "precision-tier" }

func (p *PrecisionTier) Evaluate(flavours []models.FlavourProfile, _ *models.ForecastSnapshot) (models.PolicyResult, error) {
	sorted := enabledSorted(flavours)
	if len(sorted) == 0 {
		return models.PolicyResult{}, ErrNoFlavoursEnabled
	}

	var tier1, tier2, tier3 []models.FlavourProfile
	for _, f := range sorted {
		switch {
		case f.Precision >= 0.95:
			tier1 = append(tier1, f)
		case f.Precision >= 0.8:
			tier2 = append(tier2, f)
		default:
			tier3 = append(tier3, f)
		}
	}

	allowance := allowanceFromLedger(p.ledger)

	primaryShare := 1 - allowance
	if primaryShare < 0.3 {
		primaryShare = 0.3
	}
	secondaryShare := allowance * 0.6
	if secondaryShare > 0.5 {
		secondaryShare = 0.5
	}
	tertiaryShare := allowance - secondaryShare
	if tertiaryShare < 0 {
		tertiaryShare = 0
	}

	weights := map[string]float64{}
	assignTier := func(tier []models.FlavourProfile, share float64) {
		n := len(tier)
		if n == 0 {
			return
		}
		for _, f := range tier {
			weights[f.Name] = share / float64(n)
		}
	}
	assignTier(tier1, primaryShare)
	assignTier(tier2, secondaryShare)
	assignTier(tier3, tertiaryShare)

	if len(weights) == 0 {
		best := sorted[0]
		for _, f := range sorted {
			if f.Precision > best.Precision {
				best = f
			}
		}
		weights[best.Name] = 1.0
	}

	weights = normalise(weights)
	avg := avgPrecision(weights, sorted)

	diag := models.PolicyDiagnostics{
		"allowance":      allowance,
		"tier_1_share":   primaryShare,
		"tier_2_share":   secondaryShare,
		"tier_3_share":   tertiaryShare,
	}
	return models.PolicyResult{Weights: weights, AvgPrecision: avg, Diagnostics: diag}, nil
}
