package policy

import (
	"github.com/greenroute/carbonsched/internal/ledger"
	"github.com/greenroute/carbonsched/pkg/models"
)

// P100 always routes all traffic to the highest-precision enabled
// flavour, ignoring both credit and forecast. It is the carbon-blind
// baseline used to measure savings from every other policy.
type P100 struct{}

func NewP100(*ledger.Ledger) *P100 { return &P100{} }

func (p *P100) Name() string { return "p100" }

func (p *P100) Evaluate(flavours []models.FlavourProfile, _ *models.ForecastSnapshot) (models.PolicyResult, error) {
	sorted := enabledSorted(flavours)
	if len(sorted) == 0 {
		return models.PolicyResult{}, ErrNoFlavoursEnabled
	}
	best := sorted[0]
	for _, f := range sorted {
		if f.Precision > best.Precision {
			best = f
		}
	}

	diag := models.PolicyDiagnostics{"selected_flavour": best.Precision}
	return models.PolicyResult{
		Weights:      map[string]float64{best.Name: 1.0},
		AvgPrecision: best.Precision,
		Diagnostics:  diag,
	}, nil
}
