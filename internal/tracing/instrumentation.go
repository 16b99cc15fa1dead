package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "minehold"
)

// StartRegistrySpan creates a span for registry-wide operations.
func StartRegistrySpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, "registry."+operation, trace.WithAttributes(attrs...))
}

// StartServerSpan creates a span for a control operation on one server.
func StartServerSpan(ctx context.Context, serverID, serverName, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	attrs = append(attrs,
		attribute.String("server.id", serverID),
		attribute.String("server.name", serverName),
		attribute.String("server.operation", operation),
	)
	return tracer.Start(ctx, "server."+operation, trace.WithAttributes(attrs...))
}

// RecordError records an error on the span and marks it failed.
func RecordError(span trace.Span, err error, description string) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err, trace.WithAttributes(
		attribute.String("error.description", description),
	))
	span.SetStatus(codes.Error, err.Error())
}

// RecordSuccess marks the span as completed successfully.
func RecordSuccess(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}
