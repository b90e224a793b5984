package consumerside

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/greenroute/carbonsched/pkg/models"
)

func TestSelectTargetFlavourForcedAlwaysWins(t *testing.T) {
	schedule := models.ScheduleDecision{RoutingEvaluator: "consumer"}
	assert.Equal(t, "precision-100", SelectTargetFlavour(schedule, "precision-100", true))
}

func TestSelectTargetFlavourDefaultsToRouterEvaluator(t *testing.T) {
	schedule := models.ScheduleDecision{} // RoutingEvaluator absent
	assert.Equal(t, "precision-50", SelectTargetFlavour(schedule, "precision-50", false))
}

func TestSelectTargetFlavourUnknownEvaluatorTreatedAsRouter(t *testing.T) {
	schedule := models.ScheduleDecision{RoutingEvaluator: "something-else"}
	assert.Equal(t, "precision-50", SelectTargetFlavour(schedule, "precision-50", false))
}

func TestSelectTargetFlavourConsumerEvaluatorRedrawsFromStrategies(t *testing.T) {
	schedule := models.ScheduleDecision{
		RoutingEvaluator: "consumer",
		Strategies: []models.StrategyMeta{
			{Name: "precision-100", Precision: 100, Weight: 100},
		},
	}
	assert.Equal(t, "precision-100", SelectTargetFlavour(schedule, "precision-50", false))
}

func TestSelectTargetFlavourConsumerEvaluatorFallsBackWhenNoPositiveWeights(t *testing.T) {
	schedule := models.ScheduleDecision{
		RoutingEvaluator: "consumer",
		Strategies: []models.StrategyMeta{
			{Name: "precision-100", Precision: 100, Weight: 0},
		},
	}
	assert.Equal(t, "precision-50", SelectTargetFlavour(schedule, "precision-50", false))
}

func TestPrecisionHeaderValueStripsPrefixForPrecisionFlavours(t *testing.T) {
	assert.Equal(t, "100", PrecisionHeaderValue("precision-100"))
	assert.Equal(t, "custom-flavour", PrecisionHeaderValue("custom-flavour"))
}

func TestQueueNameFlavourExtractsSuffix(t *testing.T) {
	assert.Equal(t, "precision-100", QueueNameFlavour("default.svc.queue.precision-100"))
	assert.Equal(t, "unparsed", QueueNameFlavour("unparsed"))
}
