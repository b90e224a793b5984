package router

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/greenroute/carbonsched/internal/broker"
	"github.com/greenroute/carbonsched/internal/scheduleclient"
	"github.com/greenroute/carbonsched/internal/tracing"
)

// MetricsSink receives observability events from the proxy path. Nil-safe:
// callers that don't need metrics can pass nil to NewProxy.
type MetricsSink interface {
	RecordRequest(method, status, qType, flavour string, forced bool, elapsed time.Duration)
	RecordPublish(queue string)
}

// Proxy is the HTTP entrypoint that turns an inbound request into a
// buffered AMQP RPC and waits for the matching consumer's reply.
type Proxy struct {
	broker   *broker.Broker
	schedule *scheduleclient.Manager
	sink     MetricsSink
	tracer   *tracing.Tracer
	logger   *slog.Logger
}

// NewProxy wires a Proxy from an already-dialled Broker and a running
// schedule client.
func NewProxy(b *broker.Broker, schedule *scheduleclient.Manager, sink MetricsSink, logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{broker: b, schedule: schedule, sink: sink, tracer: tracing.New(), logger: logger}
}

// ServeHTTP implements http.Handler for the catch-all proxy route.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	schedule := p.schedule.Snapshot()

	urgent := strings.EqualFold(r.Header.Get(UrgentHeader), "true")
	forcedFlavour := r.Header.Get(ForcedFlavourHeader)

	sel := selectFlavour(schedule, forcedFlavour)

	ctx, span := p.tracer.StartRouterRequest(r.Context(), r.Header.Get(tracing.TraceIDHeader))
	defer span.End()
	tracing.AnnotateRequest(span, sel.flavour, broker.QueueType, sel.forced)
	r = r.WithContext(ctx)

	headers := make(map[string]string, len(r.Header))
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}
	if urgent {
		headers["x-carbonrouter-urgent"] = "true"
	}
	if traceID := tracing.TraceIDFromContext(ctx); traceID != "" {
		headers[tracing.TraceIDHeader] = traceID
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	env := broker.RequestEnvelope{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: headers,
		Body:    broker.EncodeBody(body),
		Forced:  sel.forced,
	}
	payload, err := broker.MarshalRequest(env)
	if err != nil {
		http.Error(w, "failed to encode request", http.StatusInternalServerError)
		return
	}

	correlationID := uuid.NewString()
	deadline := time.Duration(sel.deadlineSec) * time.Second
	if deadline <= 0 {
		deadline = 60 * time.Second
	}

	waiter := p.broker.AwaitReply(correlationID)

	ctx, cancel := context.WithTimeout(r.Context(), deadline)
	defer cancel()

	if err := p.broker.PublishRequest(ctx, sel.flavour, payload, correlationID, broker.ReplyPseudoQueue, deadline); err != nil {
		p.broker.CancelReply(correlationID)
		p.record(r.Method, "502", sel.flavour, sel.forced, start)
		tracing.RecordOutcome(span, 0, err)
		http.Error(w, "failed to publish request", http.StatusBadGateway)
		return
	}
	if p.sink != nil {
		p.sink.RecordPublish(p.broker.QueueName(sel.flavour))
	}

	select {
	case <-ctx.Done():
		p.broker.CancelReply(correlationID)
		p.record(r.Method, "504", sel.flavour, sel.forced, start)
		tracing.RecordOutcome(span, 0, ctx.Err())
		http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
		return
	case delivery := <-waiter:
		resp, err := broker.UnmarshalResponse(delivery.Body)
		if err != nil {
			p.record(r.Method, "502", sel.flavour, sel.forced, start)
			tracing.RecordOutcome(span, 0, err)
			http.Error(w, "failed to decode upstream response", http.StatusBadGateway)
			return
		}
		p.writeResponse(w, resp)
		p.record(r.Method, statusLabel(resp.Status), sel.flavour, sel.forced, start)
		tracing.RecordOutcome(span, resp.Status, nil)
	}
}

func (p *Proxy) writeResponse(w http.ResponseWriter, resp broker.ResponseEnvelope) {
	body, err := broker.DecodeBody(resp.Body)
	if err != nil {
		http.Error(w, "failed to decode upstream body", http.StatusBadGateway)
		return
	}
	for name, value := range resp.Headers {
		if strings.EqualFold(name, "content-length") {
			continue
		}
		w.Header().Set(name, value)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (p *Proxy) record(method, status, flavour string, forced bool, start time.Time) {
	if p.sink == nil {
		return
	}
	p.sink.RecordRequest(method, status, "queue", flavour, forced, time.Since(start))
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}
