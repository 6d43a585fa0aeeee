package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/seb7887/lazarus"
)

// Tracer wraps an OpenTelemetry tracer with span helpers for cascade
// operations. A nil *Tracer starts no-op spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer with the given provider.
// If provider is nil, uses the global tracer provider.
func NewTracer(provider trace.TracerProvider) *Tracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Tracer{tracer: provider.Tracer(instrumentationName)}
}

// Start opens a span named after the operation, tagged with the entity it targets.
func (t *Tracer) Start(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "lazarus."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// End records the outcome and error on span and ends it.
func (t *Tracer) End(span trace.Span, outcome string, count int, err error) {
	if t == nil {
		return
	}
	span.SetAttributes(
		attribute.String("lazarus.outcome", outcome),
		attribute.Int("lazarus.count", count),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// EntityAttributes returns the span attributes identifying one record.
func EntityAttributes(entityType, id string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("lazarus.entity_type", entityType),
		attribute.String("lazarus.entity_id", id),
	}
}
