// Package policy implements the family of interchangeable scheduling
// policies. Every policy is a pure function of (flavours, forecast) plus
// the credit ledger it was constructed with.
package policy

import (
	"errors"
	"sort"

	"github.com/greenroute/carbonsched/internal/ledger"
	"github.com/greenroute/carbonsched/pkg/models"
)

// ErrNoFlavoursEnabled is returned by Evaluate when every input flavour is
// disabled (or the input is empty).
var ErrNoFlavoursEnabled = errors.New("policy: no flavours enabled")

// Policy is the capability set shared by every named strategy.
type Policy interface {
	Name() string
	Evaluate(flavours []models.FlavourProfile, forecast *models.ForecastSnapshot) (models.PolicyResult, error)
}

// Builder constructs a fresh Policy bound to the given ledger.
type Builder func(l *ledger.Ledger) Policy

var registry = map[string]Builder{
	"credit-greedy":                   func(l *ledger.Ledger) Policy { return NewCreditGreedy(l) },
	"forecast-aware":                  func(l *ledger.Ledger) Policy { return NewForecastAware(l) },
	"forecast-aware-global":           func(l *ledger.Ledger) Policy { return NewForecastAwareGlobal(l) },
	"forecast-aware-global-no-throttle": func(l *ledger.Ledger) Policy { return NewForecastAwareGlobalNoThrottle(l) },
	"precision-tier":                  func(l *ledger.Ledger) Policy { return NewPrecisionTier(l) },
	"round-robin":                     func(l *ledger.Ledger) Policy { return NewRoundRobin(l) },
	"random":                          func(l *ledger.Ledger) Policy { return NewRandom(l) },
	"p100":                            func(l *ledger.Ledger) Policy { return NewP100(l) },
}

// Build constructs the named policy, falling back to credit-greedy for an
// unknown name (mirrors the reference implementation's _build_policy).
func Build(name string, l *ledger.Ledger) Policy {
	if b, ok := registry[name]; ok {
		return b(l)
	}
	return NewCreditGreedy(l)
}

// Known reports whether name is a registered policy.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

func enabledSorted(flavours []models.FlavourProfile) []models.FlavourProfile {
	out := make([]models.FlavourProfile, 0, len(flavours))
	for _, f := range flavours {
		if f.Enabled {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Precision > out[j].Precision })
	return out
}

func precisionOf(flavours []models.FlavourProfile, name string) float64 {
	for _, f := range flavours {
		if f.Name == name {
			return f.Precision
		}
	}
	return 1.0
}

func normalise(weights map[string]float64) map[string]float64 {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		total = 1.0
	}
	out := make(map[string]float64, len(weights))
	for k, v := range weights {
		out[k] = v / total
	}
	return out
}

func avgPrecision(weights map[string]float64, flavours []models.FlavourProfile) float64 {
	var sum float64
	for name, w := range weights {
		sum += w * precisionOf(flavours, name)
	}
	return sum
}

// allowanceFromLedger = clamp(balance/credit_max, 0, 1) when credit_max>0
// else 0.
func allowanceFromLedger(l *ledger.Ledger) float64 {
	if l.CreditMax() <= 0 {
		return 0
	}
	return clamp(l.Balance()/l.CreditMax(), 0, 1)
}

// normalisedCredit = (balance - credit_min) / max(credit_max-credit_min, eps).
func normalisedCredit(l *ledger.Ledger) float64 {
	span := l.CreditMax() - l.CreditMin()
	if span <= 0 {
		span = 1.0
	}
	return (l.Balance() - l.CreditMin()) / span
}

const (
	lowCarbon  = 80.0
	highCarbon = 280.0
)

// carbonRatio = clamp((c-low)/(high-low), 0, 1).
func carbonRatio(c float64) float64 {
	span := highCarbon - lowCarbon
	if span <= 0 {
		return 0
	}
	return clamp((c-lowCarbon)/span, 0, 1)
}

func clamp(v, low, high float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

func carbonScore(baseline, f models.FlavourProfile) float64 {
	intensityGain := baseline.CarbonIntensity - f.CarbonIntensity
	errorPenalty := f.ExpectedError()
	if errorPenalty < 1e-6 {
		errorPenalty = 1e-6
	}
	score := 1e-6
	if intensityGain > 0 {
		score = intensityGain
	}
	result := score / errorPenalty
	if result < 1e-6 {
		result = 1e-6
	}
	return result
}
