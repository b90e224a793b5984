package policy

import (
	"math/rand"
	"sync"
	"time"

	"github.com/greenroute/carbonsched/internal/ledger"
	"github.com/greenroute/carbonsched/pkg/models"
)

// Random assigns independent uniform weights to every enabled flavour. It
// is the one policy exempt from the idempotence invariant.
type Random struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewRandom(*ledger.Ledger) *Random {
	return &Random{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (p *Random) Name() string { return "random" }

func (p *Random) Evaluate(flavours []models.FlavourProfile, _ *models.ForecastSnapshot) (models.PolicyResult, error) {
	sorted := enabledSorted(flavours)
	if len(sorted) == 0 {
		return models.PolicyResult{}, ErrNoFlavoursEnabled
	}

	p.mu.Lock()
	raw := make([]float64, len(sorted))
	var total float64
	for i := range sorted {
		raw[i] = p.rnd.Float64()
		total += raw[i]
	}
	p.mu.Unlock()

	if total == 0 {
		total = 1
	}

	weights := make(map[string]float64, len(sorted))
	var avg float64
	for i, f := range sorted {
		w := raw[i] / total
		weights[f.Name] = w
		avg += f.Precision * w
	}

	return models.PolicyResult{Weights: weights, AvgPrecision: avg, Diagnostics: models.PolicyDiagnostics{}}, nil
}
