package engine

import (
	"math"
	"sort"
	"time"

	"github.com/greenroute/carbonsched/pkg/models"
)

// buildDecision assembles the published ScheduleDecision from one policy
// evaluation, mirroring the reference implementation's
// ScheduleDecision.from_policy: weights are rescaled to integer
// percentages summing to exactly 100, with the rounding remainder assigned
// to the largest share.
func buildDecision(
	result models.PolicyResult,
	flavours []models.FlavourProfile,
	config models.SchedulerConfig,
	creditBalance, creditVelocity float64,
	scaling models.ScalingDirective,
	now time.Time,
) models.ScheduleDecision {
	validUntil := now.Add(time.Duration(config.ValidFor) * time.Second)

	var total float64
	for _, w := range result.Weights {
		total += w
	}
	if total <= 0 {
		total = 1.0
	}

	scaled := make(map[string]int, len(result.Weights))
	names := make([]string, 0, len(result.Weights))
	for name := range result.Weights {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		scaled[name] = int(math.Round(result.Weights[name] / total * 100))
	}

	sum := 0
	for _, v := range scaled {
		sum += v
	}
	diff := 100 - sum
	if diff != 0 && len(scaled) > 0 {
		best := names[0]
		for _, name := range names {
			if scaled[name] > scaled[best] {
				best = name
			}
		}
		scaled[best] += diff
	}

	credits := models.CreditSnapshot{
		Balance:  creditBalance,
		Velocity: creditVelocity,
		Target:   config.TargetError,
		Min:      config.CreditMin,
		Max:      config.CreditMax,
	}
	if allowance, ok := result.Diagnostics["allowance"]; ok {
		credits.Allowance = &allowance
	}

	flavourRules := make([]models.FlavourRule, 0, len(flavours))
	strategiesMeta := make([]models.StrategyMeta, 0, len(flavours))
	for _, f := range flavours {
		weight := scaled[f.Name]
		precisionPct := int(math.Round(f.Precision * 100))
		flavourRules = append(flavourRules, models.FlavourRule{
			FlavourName: f.Name,
			Precision:   precisionPct,
			Weight:      weight,
		})
		strategiesMeta = append(strategiesMeta, models.StrategyMeta{
			Name:            f.Name,
			Precision:       precisionPct,
			Weight:          weight,
			CarbonIntensity: f.CarbonIntensity,
			Enabled:         f.Enabled,
		})
	}

	return models.ScheduleDecision{
		FlavourWeights: scaled,
		FlavourRules:   flavourRules,
		Strategies:     strategiesMeta,
		ValidUntil:     validUntil,
		Credits:        credits,
		Policy:         models.PolicyRef{Name: config.PolicyName},
		Diagnostics:    result.Diagnostics,
		AvgPrecision:   result.AvgPrecision,
		Processing:     scaling,
	}
}
