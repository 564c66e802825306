// OpenTelemetry tracing for dial attempts and envelope dispatch.
package telemetry

import (
	"context"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Tracer wraps OpenTelemetry tracing with connection-specific helpers.
type Tracer struct {
	tracer trace.Tracer
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracer creates a new tracer with the given name.
func NewTracer(name string) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(name),
	}
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Dial Spans ---

// DialSpanOptions contains attributes for a dial attempt.
type DialSpanOptions struct {
	ConnectionID string
	Attempt      int
	Epoch        uint64
}

// StartDialSpan starts a span for one transport establishment attempt.
func (t *Tracer) StartDialSpan(ctx context.Context, opts DialSpanOptions) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "connection.dial", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("connection.id", opts.ConnectionID),
		attribute.Int("connection.attempt", opts.Attempt),
		attribute.Int64("connection.epoch", int64(opts.Epoch)),
	)
	return ctx, span
}

// EndDialSpan ends a dial span.
func (t *Tracer) EndDialSpan(span trace.Span, remote string, err error) {
	if remote != "" {
		span.SetAttributes(attribute.String("net.peer.name", remote))
	}
	endSpan(span, err)
}

// --- Dispatch Spans ---

// DispatchSpanOptions contains attributes for one dispatched envelope.
type DispatchSpanOptions struct {
	PeerID        string
	Kind          string
	CorrelationID string
}

// StartDispatchSpan starts a span for routing one inbound envelope.
func (t *Tracer) StartDispatchSpan(ctx context.Context, opts DispatchSpanOptions) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "dispatch."+opts.Kind, trace.WithSpanKind(trace.SpanKindConsumer))
	attrs := []attribute.KeyValue{
		attribute.String("envelope.kind", opts.Kind),
		attribute.String("peer.id", opts.PeerID),
	}
	if opts.CorrelationID != "" {
		attrs = append(attrs, attribute.String("envelope.id", opts.CorrelationID))
	}
	span.SetAttributes(attrs...)
	return ctx, span
}

// EndDispatchSpan ends a dispatch span, recording whether an ack was produced.
func (t *Tracer) EndDispatchSpan(span trace.Span, acked bool, err error) {
	span.SetAttributes(attribute.Bool("envelope.acked", acked))
	endSpan(span, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// --- Context Propagation ---

// InjectHeader writes trace context into HTTP headers, e.g. a websocket handshake.
func InjectHeader(ctx context.Context, h http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
}

// ExtractHeader reads trace context from HTTP headers.
func ExtractHeader(ctx context.Context, h http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(h))
}
