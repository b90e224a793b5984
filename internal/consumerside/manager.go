package consumerside

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/semaphore"

	"github.com/greenroute/carbonsched/internal/broker"
	"github.com/greenroute/carbonsched/internal/scheduleclient"
	"github.com/greenroute/carbonsched/internal/throttle"
	"github.com/greenroute/carbonsched/internal/tracing"
)

// MetricsSink receives observability events from the consumer path. Nil-safe.
type MetricsSink interface {
	RecordConsumed(queueType, flavour string)
	RecordForward(method, status, qType, flavour string, forced bool, elapsed time.Duration)
}

// FlavourSource reports the set of flavours currently in rotation, used to
// reconcile which per-flavour consumers should be running.
type FlavourSource interface {
	FlavourNames() []string
}

// TargetConfig describes the backend the consumer forwards buffered
// requests to.
type TargetConfig struct {
	BaseURL string
}

// Manager maintains one AMQP consumer goroutine per discovered flavour,
// reconciling the running set every pollInterval against the flavour names
// its FlavourSource reports. The schedule's own flavour list is not
// consulted for this.
type Manager struct {
	broker   *broker.Broker
	schedule *scheduleclient.Manager
	flavours FlavourSource
	target   TargetConfig
	http     *http.Client
	throttle *throttle.ProcessingThrottle
	sink     MetricsSink
	tracer   *tracing.Tracer
	logger   *slog.Logger

	concurrencyPerQueue int64
	pollInterval        time.Duration

	mu      sync.Mutex
	workers map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager builds a FlavourWorkerManager. concurrencyPerQueue bounds
// simultaneously in-flight forwards per flavour (default 32 mirrors
// CONCURRENCY_PER_QUEUE).
func NewManager(b *broker.Broker, schedule *scheduleclient.Manager, flavours FlavourSource, target TargetConfig, processingThrottle *throttle.ProcessingThrottle, sink MetricsSink, concurrencyPerQueue int64, logger *slog.Logger) *Manager {
	if concurrencyPerQueue <= 0 {
		concurrencyPerQueue = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		broker:              b,
		schedule:            schedule,
		flavours:            flavours,
		target:              target,
		http:                NewHTTPClient(),
		throttle:            processingThrottle,
		sink:                sink,
		tracer:              tracing.New(),
		logger:              logger,
		concurrencyPerQueue: concurrencyPerQueue,
		pollInterval:        10 * time.Second,
		workers:             make(map[string]context.CancelFunc),
	}
}

// SyncFromSchedule starts consumers for newly discovered flavours and stops
// consumers for flavours no longer in rotation.
func (m *Manager) SyncFromSchedule(ctx context.Context) {
	desired := make(map[string]struct{})
	for _, name := range m.flavours.FlavourNames() {
		desired[name] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for name := range desired {
		if _, running := m.workers[name]; running {
			continue
		}
		workerCtx, cancel := context.WithCancel(ctx)
		m.workers[name] = cancel
		m.wg.Add(1)
		go func(flavour string) {
			defer m.wg.Done()
			if err := m.consumeFlavourQueue(workerCtx, flavour); err != nil && workerCtx.Err() == nil {
				m.logger.Error("flavour consumer stopped unexpectedly", "flavour", flavour, "error", err)
			}
		}(name)
		m.logger.Info("started consumer", "flavour", name)
	}

	for name, cancel := range m.workers {
		if _, stillDesired := desired[name]; stillDesired {
			continue
		}
		cancel()
		delete(m.workers, name)
		m.logger.Info("stopped consumer", "flavour", name)
	}
}

// ReconcileLoop periodically calls SyncFromSchedule until ctx is cancelled.
func (m *Manager) ReconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SyncFromSchedule(ctx)
		}
	}
}

// Shutdown cancels every running flavour consumer and waits for them to
// exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for _, cancel := range m.workers {
		cancel()
	}
	m.workers = make(map[string]context.CancelFunc)
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) consumeFlavourQueue(ctx context.Context, flavour string) error {
	if _, err := m.broker.DeclareFlavourQueue(flavour); err != nil {
		return err
	}

	deliveries, err := m.broker.Channel().Consume(m.broker.QueueName(flavour), "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consumerside: consume %s: %w", m.broker.QueueName(flavour), err)
	}

	sem := semaphore.NewWeighted(m.concurrencyPerQueue)
	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			inflight.Add(1)
			go func(delivery amqp.Delivery) {
				defer inflight.Done()
				defer sem.Release(1)
				m.handleDelivery(ctx, delivery, flavour)
			}(d)
		}
	}
}

func (m *Manager) handleDelivery(ctx context.Context, delivery amqp.Delivery, queueFlavour string) {
	if m.throttle != nil {
		if err := m.throttle.Acquire(ctx); err != nil {
			_ = delivery.Nack(false, true)
			return
		}
		defer m.throttle.Release()
	}

	start := time.Now()
	env, err := broker.UnmarshalRequest(delivery.Body)
	if err != nil {
		m.replyError(ctx, delivery, err)
		return
	}

	ctx, span := m.tracer.StartConsumerForward(ctx, env.Headers[tracing.TraceIDHeader])
	defer span.End()

	effectiveFlavour := SelectTargetFlavour(m.schedule.Snapshot(), queueFlavour, env.Forced)
	tracing.AnnotateRequest(span, effectiveFlavour, "queue", env.Forced)
	body, err := broker.DecodeBody(env.Body)
	if err != nil {
		tracing.RecordOutcome(span, 0, err)
		m.replyError(ctx, delivery, err)
		return
	}

	headers := make(map[string]string, len(env.Headers)+1)
	for k, v := range env.Headers {
		headers[k] = v
	}
	headers["x-carbonrouter"] = PrecisionHeaderValue(effectiveFlavour)

	result, err := SendWithRetry(ctx, m.http, ForwardRequest{
		Method:  env.Method,
		URL:     m.target.BaseURL + env.Path + queryStringSuffix(env.Query),
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		tracing.RecordOutcome(span, 0, err)
		if m.sink != nil {
			m.sink.RecordConsumed("queue", queueFlavour)
		}
		m.replyError(ctx, delivery, err)
		return
	}
	tracing.RecordOutcome(span, result.Status, nil)

	respEnv := broker.ResponseEnvelope{Status: result.Status, Headers: result.Headers, Body: broker.EncodeBody(result.Body)}
	replyBody, err := broker.MarshalResponse(respEnv)
	if err != nil {
		m.replyError(ctx, delivery, err)
		return
	}

	if err := m.broker.PublishReply(ctx, delivery.ReplyTo, delivery.CorrelationId, replyBody); err != nil {
		_ = delivery.Nack(false, true)
		return
	}
	_ = delivery.Ack(false)

	if m.sink != nil {
		m.sink.RecordConsumed("queue", queueFlavour)
		m.sink.RecordForward(env.Method, strconv.Itoa(result.Status), "queue", effectiveFlavour, env.Forced, time.Since(start))
	}
}

// replyError publishes a 500 reply carrying the failure message before
// nacking the delivery with requeue=true, so the router gets a prompt
// error response instead of blocking until its deadline.
func (m *Manager) replyError(ctx context.Context, delivery amqp.Delivery, cause error) {
	body := fmt.Sprintf(`{"error":%q}`, cause.Error())
	respEnv := broker.ResponseEnvelope{
		Status:  http.StatusInternalServerError,
		Headers: map[string]string{"content-type": "application/json"},
		Body:    broker.EncodeBody([]byte(body)),
	}
	replyBody, err := broker.MarshalResponse(respEnv)
	if err == nil {
		if pubErr := m.broker.PublishReply(ctx, delivery.ReplyTo, delivery.CorrelationId, replyBody); pubErr != nil {
			m.logger.Error("failed to publish error reply", "error", pubErr)
		}
	} else {
		m.logger.Error("failed to marshal error reply", "error", err)
	}
	_ = delivery.Nack(false, true)
}

func queryStringSuffix(query string) string {
	if query == "" {
		return ""
	}
	return "?" + query
}
