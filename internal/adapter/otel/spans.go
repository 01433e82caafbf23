package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "tcof"

// StartTaskUpdateSpan starts a span for one updateTask call.
func StartTaskUpdateSpan(ctx context.Context, projectID, externalID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task.update",
		trace.WithAttributes(
			attribute.String("project.id", projectID),
			attribute.String("task.external_id", externalID),
		),
	)
}

// StartResolveSpan starts a span for task identity resolution.
func StartResolveSpan(ctx context.Context, projectID, externalID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task.resolve",
		trace.WithAttributes(
			attribute.String("project.id", projectID),
			attribute.String("task.external_id", externalID),
		),
	)
}

// StartCatalogLoadSpan starts a span for a catalog provider load.
func StartCatalogLoadSpan(ctx context.Context) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "catalog.load")
}
