// Package metrics exposes the contractual Prometheus series published by
// the decision engine, router, and consumer (spec §6.5) and implements the
// MetricsSink interfaces each of those packages defines.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/greenroute/carbonsched/pkg/models"
)

// Metrics bundles every series named in spec §6.5 behind one registry.
type Metrics struct {
	registry *prometheus.Registry

	scheduleFlavourWeight       *prometheus.GaugeVec
	scheduleValidUntil          *prometheus.GaugeVec
	schedulerCreditBalance      *prometheus.GaugeVec
	schedulerCreditVelocity     *prometheus.GaugeVec
	schedulerAvgPrecision       *prometheus.GaugeVec
	schedulerProcessingThrottle *prometheus.GaugeVec
	schedulerReplicaCeiling     *prometheus.GaugeVec
	schedulerForecastIntensity  *prometheus.GaugeVec
	schedulerPolicyChoiceTotal  *prometheus.CounterVec

	consumerThrottleFactor   *prometheus.GaugeVec
	consumerThrottleLimit    *prometheus.GaugeVec
	consumerThrottleInflight *prometheus.GaugeVec
	consumerMessagesTotal    *prometheus.CounterVec
	consumerForwardSeconds   *prometheus.HistogramVec

	routerHTTPRequestsTotal   *prometheus.CounterVec
	routerMessagesPublished   *prometheus.CounterVec
	routerRequestDuration     *prometheus.HistogramVec
	routerScheduleValidSecond prometheus.Gauge
}

// New builds a fresh registry with every contractual series registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		scheduleFlavourWeight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "schedule_flavour_weight", Help: "Published weight for a flavour in the active schedule.",
		}, []string{"namespace", "schedule", "flavour"}),
		scheduleValidUntil: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "schedule_valid_until", Help: "Unix timestamp the active schedule expires at.",
		}, []string{"namespace", "schedule"}),
		schedulerCreditBalance: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_credit_balance", Help: "Current credit ledger balance.",
		}, []string{"namespace", "schedule", "policy"}),
		schedulerCreditVelocity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_credit_velocity", Help: "Mean credit delta over the ledger's sliding window.",
		}, []string{"namespace", "schedule"}),
		schedulerAvgPrecision: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_avg_precision", Help: "Weighted average precision of the active schedule.",
		}, []string{"namespace", "schedule"}),
		schedulerProcessingThrottle: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_processing_throttle", Help: "Processing throttle factor in [min_throttle,1].",
		}, []string{"namespace", "schedule"}),
		schedulerReplicaCeiling: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_effective_replica_ceiling", Help: "Effective replica ceiling per component.",
		}, []string{"namespace", "schedule", "component"}),
		schedulerForecastIntensity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_forecast_intensity", Help: "Forecast carbon intensity by horizon.",
		}, []string{"namespace", "schedule", "horizon"}),
		schedulerPolicyChoiceTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_policy_choice_total", Help: "Cumulative weight assigned to a strategy across evaluations.",
		}, []string{"namespace", "schedule", "strategy"}),

		consumerThrottleFactor: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "consumer_processing_throttle_factor", Help: "Throttle factor read from the published schedule.",
		}, []string{"scope"}),
		consumerThrottleLimit: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "consumer_processing_inflight_limit", Help: "Current in-flight cap enforced by the consumer-side throttle.",
		}, []string{"scope"}),
		consumerThrottleInflight: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "consumer_processing_inflight_active", Help: "Active in-flight forwards tracked by the consumer-side throttle.",
		}, []string{"scope"}),
		consumerMessagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "consumer_messages_total", Help: "AMQP messages consumed.",
		}, []string{"queue_type", "flavour"}),
		consumerForwardSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "consumer_forward_seconds", Help: "Time spent forwarding the HTTP request.",
		}, []string{"flavour"}),

		routerHTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "router_http_requests_total", Help: "HTTP requests handled by the router.",
		}, []string{"method", "status", "qtype", "flavour", "forced"}),
		routerMessagesPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "router_messages_published_total", Help: "Messages published to the buffering exchange.",
		}, []string{"queue"}),
		routerRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "router_request_duration_seconds", Help: "End-to-end router request latency.",
		}, []string{"qtype", "flavour"}),
		routerScheduleValidSecond: f.NewGauge(prometheus.GaugeOpts{
			Name: "router_schedule_valid_seconds", Help: "Seconds until the cached schedule expires.",
		}),
	}
}

// Handler exposes the registry over /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordDecision implements engine.MetricsSink.
func (m *Metrics) RecordDecision(namespace, name string, decision models.ScheduleDecision, result models.PolicyResult, forecast models.ForecastSnapshot) {
	for flavour, weight := range decision.FlavourWeights {
		m.scheduleFlavourWeight.WithLabelValues(namespace, name, flavour).Set(float64(weight))
	}
	m.scheduleValidUntil.WithLabelValues(namespace, name).Set(float64(decision.ValidUntil.Unix()))
	m.schedulerCreditBalance.WithLabelValues(namespace, name, decision.Policy.Name).Set(decision.Credits.Balance)
	m.schedulerCreditVelocity.WithLabelValues(namespace, name).Set(decision.Credits.Velocity)
	m.schedulerAvgPrecision.WithLabelValues(namespace, name).Set(decision.AvgPrecision)
	m.schedulerProcessingThrottle.WithLabelValues(namespace, name).Set(decision.Processing.Throttle)
	for component, ceiling := range decision.Processing.Ceilings {
		m.schedulerReplicaCeiling.WithLabelValues(namespace, name, component).Set(float64(ceiling))
	}
	if forecast.IntensityNow != nil {
		m.schedulerForecastIntensity.WithLabelValues(namespace, name, "now").Set(*forecast.IntensityNow)
	}
	if forecast.IntensityNext != nil {
		m.schedulerForecastIntensity.WithLabelValues(namespace, name, "next").Set(*forecast.IntensityNext)
	}
	for _, s := range decision.Strategies {
		m.schedulerPolicyChoiceTotal.WithLabelValues(namespace, name, s.Name).Add(float64(s.Weight))
	}
}

// RecordManual implements engine.MetricsSink.
func (m *Metrics) RecordManual(namespace, name string, schedule models.ScheduleDecision) {
	for flavour, weight := range schedule.FlavourWeights {
		m.scheduleFlavourWeight.WithLabelValues(namespace, name, flavour).Set(float64(weight))
	}
	m.scheduleValidUntil.WithLabelValues(namespace, name).Set(float64(schedule.ValidUntil.Unix()))
}

// RecordRequest implements router.MetricsSink.
func (m *Metrics) RecordRequest(method, status, qType, flavour string, forced bool, elapsed time.Duration) {
	m.routerHTTPRequestsTotal.WithLabelValues(method, status, qType, flavour, boolLabel(forced)).Inc()
	m.routerRequestDuration.WithLabelValues(qType, flavour).Observe(elapsed.Seconds())
}

// RecordPublish implements router.MetricsSink.
func (m *Metrics) RecordPublish(queue string) {
	m.routerMessagesPublished.WithLabelValues(queue).Inc()
}

// RecordConsumed implements consumerside.MetricsSink.
func (m *Metrics) RecordConsumed(queueType, flavour string) {
	m.consumerMessagesTotal.WithLabelValues(queueType, flavour).Inc()
}

// RecordForward implements consumerside.MetricsSink.
func (m *Metrics) RecordForward(method, status, qType, flavour string, forced bool, elapsed time.Duration) {
	m.routerHTTPRequestsTotal.WithLabelValues(method, status, qType, flavour, boolLabel(forced)).Inc()
	m.consumerForwardSeconds.WithLabelValues(flavour).Observe(elapsed.Seconds())
}

// SetThrottle publishes the consumer-side throttle gauges under scope
// (typically "global").
func (m *Metrics) SetThrottle(scope string, factor float64, limit, inflight int) {
	m.consumerThrottleFactor.WithLabelValues(scope).Set(factor)
	m.consumerThrottleLimit.WithLabelValues(scope).Set(float64(limit))
	m.consumerThrottleInflight.WithLabelValues(scope).Set(float64(inflight))
}

// SetScheduleValidSeconds publishes how long the router's cached schedule
// remains valid for.
func (m *Metrics) SetScheduleValidSeconds(seconds float64) {
	m.routerScheduleValidSecond.Set(seconds)
}

func boolLabel(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
