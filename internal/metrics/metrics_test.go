package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenroute/carbonsched/pkg/models"
)

func floatPtr(v float64) *float64 { return &v }

func TestRecordDecisionPublishesFlavourWeightsAndCredits(t *testing.T) {
	m := New()
	decision := models.ScheduleDecision{
		FlavourWeights: map[string]int{"precision-100": 70, "precision-30": 30},
		Policy:         models.PolicyRef{Name: "credit-greedy"},
		Credits:        models.CreditSnapshot{Balance: 1.5, Velocity: 0.2},
		AvgPrecision:   0.8,
		Processing:     models.ScalingDirective{Throttle: 0.6, Ceilings: map[string]int{"router": 2}},
		Strategies:     []models.StrategyMeta{{Name: "precision-100", Weight: 70}},
	}
	forecast := models.ForecastSnapshot{IntensityNow: floatPtr(200), IntensityNext: floatPtr(100)}

	require.NotPanics(t, func() {
		m.RecordDecision("ns", "svc", decision, models.PolicyResult{}, forecast)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "schedule_flavour_weight")
	assert.Contains(t, body, "scheduler_credit_balance")
	assert.Contains(t, body, "scheduler_forecast_intensity")
	assert.Contains(t, body, "scheduler_policy_choice_total")
}

func TestRecordRequestIncrementsRouterCounters(t *testing.T) {
	m := New()
	m.RecordRequest("GET", "200", "queue", "precision-100", true, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `router_http_requests_total{flavour="precision-100",forced="True",method="GET",qtype="queue",status="200"} 1`)
}

func TestRecordForwardObservesConsumerHistogram(t *testing.T) {
	m := New()
	m.RecordForward("POST", "200", "queue", "precision-50", false, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "consumer_forward_seconds")
}

func TestSetThrottlePublishesConsumerGauges(t *testing.T) {
	m := New()
	m.SetThrottle("global", 0.5, 4, 2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `consumer_processing_throttle_factor{scope="global"} 0.5`)
	assert.Contains(t, body, `consumer_processing_inflight_limit{scope="global"} 4`)
}
