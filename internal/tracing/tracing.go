// Package tracing instruments router and consumer requests with
// OpenTelemetry spans, noop by default so no collector is required to run
// the system (spec §6.7), matching the teacher's noop-tracer-by-default
// pattern in engine/telemetry/tracing.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	// RouterRequestSpan names the span the router starts per inbound request.
	RouterRequestSpan = "carbonrouter.router.request"
	// ConsumerForwardSpan names the span the consumer starts while forwarding
	// a buffered request to the target service.
	ConsumerForwardSpan = "carbonrouter.consumer.forward"

	// TraceIDHeader is the envelope header carrying the router span's trace
	// id so the consumer's forward span can be correlated, even without a
	// collector (best-effort: absent or malformed values are ignored).
	TraceIDHeader = "x-trace-id"

	instrumentationName = "github.com/greenroute/carbonsched"
)

// Tracer wraps an otel trace.Tracer for the two spans this system names.
// The zero value is unusable; construct with New.
type Tracer struct {
	tracer trace.Tracer
}

// New returns a Tracer backed by the process-wide TracerProvider. Until
// Configure installs an SDK provider, otel's global tracer is a noop, so
// New is safe to call unconditionally at process startup.
func New() *Tracer {
	return &Tracer{tracer: otel.Tracer(instrumentationName)}
}

// Configure installs an SDK TracerProvider that exports spans through
// exporter. Passing a nil exporter leaves the default noop tracer in place.
// Returns a shutdown func to flush on process exit.
func Configure(exporter sdktrace.SpanExporter) (shutdown func(context.Context) error) {
	if exporter == nil {
		return func(context.Context) error { return nil }
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}

// StartRouterRequest starts the router's per-request span. incomingTraceID
// is typically empty (the router is the entry point) but is honoured if a
// caller already supplied one, so the router itself can be chained behind
// another traced hop.
func (t *Tracer) StartRouterRequest(ctx context.Context, incomingTraceID string) (context.Context, trace.Span) {
	ctx = withRemoteTraceID(ctx, incomingTraceID)
	return t.tracer.Start(ctx, RouterRequestSpan)
}

// StartConsumerForward starts the consumer's forward span as a child of the
// trace id carried on the envelope (if any).
func (t *Tracer) StartConsumerForward(ctx context.Context, envelopeTraceID string) (context.Context, trace.Span) {
	ctx = withRemoteTraceID(ctx, envelopeTraceID)
	return t.tracer.Start(ctx, ConsumerForwardSpan)
}

// AnnotateRequest sets the common request attributes on span.
func AnnotateRequest(span trace.Span, flavour, qType string, forced bool) {
	span.SetAttributes(
		attribute.String("carbonrouter.flavour", flavour),
		attribute.String("carbonrouter.queue_type", qType),
		attribute.Bool("carbonrouter.forced", forced),
	)
}

// RecordOutcome marks the span's status from an HTTP-style outcome.
func RecordOutcome(span trace.Span, status int, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(attribute.Int("http.status_code", status))
	if status >= 500 {
		span.SetStatus(codes.Error, "")
	}
}

// TraceIDFromContext returns the active span's trace id, or "" if none (or
// the tracer is a noop, whose trace id is the invalid all-zero value).
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// withRemoteTraceID attaches a remote span context carrying traceID (if it
// parses as a valid 32-hex-digit id) so a new span started from ctx links to
// it as a child. Invalid or empty input is a no-op — propagation across the
// broker is best-effort (spec §6.7).
func withRemoteTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	tid, err := trace.TraceIDFromHex(traceID)
	if err != nil || !tid.IsValid() {
		return ctx
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithRemoteSpanContext(ctx, sc)
}
