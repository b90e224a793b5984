package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/greenroute/carbonsched/pkg/models"
)

func scheduleWithRules(rules ...models.FlavourRule) models.ScheduleDecision {
	return models.ScheduleDecision{FlavourRules: rules}
}

func TestSelectFlavourHonoursKnownForcedHeader(t *testing.T) {
	schedule := scheduleWithRules(
		models.FlavourRule{FlavourName: "precision-100", Weight: 60},
		models.FlavourRule{FlavourName: "precision-30", Weight: 40},
	)
	sel := selectFlavour(schedule, "precision-30")
	assert.Equal(t, "precision-30", sel.flavour)
	assert.True(t, sel.forced)
}

func TestSelectFlavourFallsBackToDefaultScheduleWhenNoRules(t *testing.T) {
	sel := selectFlavour(models.ScheduleDecision{}, "")
	assert.NotEmpty(t, sel.flavour)
	assert.False(t, sel.forced)
}

func TestSelectFlavourUsesDeadlineFromMatchingRule(t *testing.T) {
	schedule := scheduleWithRules(
		models.FlavourRule{FlavourName: "precision-100", Weight: 100, DeadlineSec: 12},
	)
	sel := selectFlavour(schedule, "precision-100")
	assert.Equal(t, 12, sel.deadlineSec)
}

func TestSelectFlavourDefaultsDeadlineWhenUnset(t *testing.T) {
	schedule := scheduleWithRules(
		models.FlavourRule{FlavourName: "precision-100", Weight: 100},
	)
	sel := selectFlavour(schedule, "precision-100")
	assert.Equal(t, 60, sel.deadlineSec)
}

func TestSelectFlavourFallsBackToEqualSharesWhenAllWeightsZero(t *testing.T) {
	schedule := scheduleWithRules(
		models.FlavourRule{FlavourName: "precision-100", Weight: 0},
		models.FlavourRule{FlavourName: "precision-30", Weight: 0},
	)
	sel := selectFlavour(schedule, "")
	assert.Contains(t, []string{"precision-100", "precision-30"}, sel.flavour)
}

func TestWeightedChoiceOnlyReturnsPositiveWeightKeys(t *testing.T) {
	weights := map[string]int{"a": 100}
	for i := 0; i < 20; i++ {
		assert.Equal(t, "a", weightedChoice(weights))
	}
}

func TestWeightedChoiceHandlesZeroTotal(t *testing.T) {
	result := weightedChoice(map[string]int{"a": 0, "b": 0})
	assert.Contains(t, []string{"a", "b"}, result)
}
