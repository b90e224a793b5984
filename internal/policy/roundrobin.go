package policy

import (
	"github.com/greenroute/carbonsched/internal/ledger"
	"github.com/greenroute/carbonsched/pkg/models"
)

// RoundRobin splits traffic evenly across every enabled flavour, ignoring
// credit and forecast entirely.
type RoundRobin struct{}

func NewRoundRobin(*ledger.Ledger) *RoundRobin { return &RoundRobin{} }

func (p *RoundRobin) Name() string { return "round-robin" }

func (p *RoundRobin) Evaluate(flavours []models.FlavourProfile, _ *models.ForecastSnapshot) (models.PolicyResult, error) {
	sorted := enabledSorted(flavours)
	if len(sorted) == 0 {
		return models.PolicyResult{}, ErrNoFlavoursEnabled
	}

	share := 1.0 / float64(len(sorted))
	weights := make(map[string]float64, len(sorted))
	var precisionSum float64
	for _, f := range sorted {
		weights[f.Name] = share
		precisionSum += f.Precision
	}

	diag := models.PolicyDiagnostics{"num_flavours": float64(len(sorted))}
	return models.PolicyResult{Weights: weights, AvgPrecision: precisionSum / float64(len(sorted)), Diagnostics: diag}, nil
}
