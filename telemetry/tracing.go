// Package telemetry provides OpenTelemetry tracing for the engine boundary:
// one span per manager send, one per worker handler invocation.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/discoverlab/enginekit/engine"
)

// Tracer wraps OpenTelemetry tracing with boundary-specific helpers.
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
	return &Tracer{tracer: otel.Tracer(name)}
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// StartSendSpan starts the span covering one manager send.
func StartSendSpan(ctx context.Context, req *engine.Request) (context.Context, trace.Span) {
	return GetTracer().StartSpan(ctx, "engine.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("engine.request.id", req.ID.String()),
			attribute.String("engine.request.kind", string(req.Kind)),
		),
	)
}

// StartHandleSpan starts the span covering one worker handler invocation.
func StartHandleSpan(ctx context.Context, req *engine.Request) (context.Context, trace.Span) {
	return GetTracer().StartSpan(ctx, "engine.handle",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("engine.request.id", req.ID.String()),
			attribute.String("engine.request.kind", string(req.Kind)),
		),
	)
}
