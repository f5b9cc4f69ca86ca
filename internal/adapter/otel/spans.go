package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "scoreforge"

// StartRunSpan starts a span covering one analysis run.
func StartRunSpan(ctx context.Context, runID, repoURL string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("repo.url", repoURL),
		),
	)
}

// StartStageSpan starts a span for one pipeline stage within a run.
func StartStageSpan(ctx context.Context, runID, stage string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "stage",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("stage.name", stage),
		),
	)
}
