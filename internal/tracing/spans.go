package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StartMatchSpan creates a child span covering one layer of the match state
// machine (exact, stable, gpu, fuzzy-stable, fuzzy, new).
func StartMatchSpan(ctx context.Context, layer string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "matchengine."+layer,
		trace.WithAttributes(attribute.String("match.layer", layer)),
	)
}

// StartStoreSpan creates a child span for a single store operation.
func StartStoreSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "store."+op,
		trace.WithAttributes(attribute.String("store.op", op)),
	)
}

// StartScorerSpan creates a child span for a trust-scorer evaluation.
func StartScorerSpan(ctx context.Context, visitorID string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "trust.score",
		trace.WithAttributes(attribute.String("visitor.id", visitorID)),
	)
}

// SetSubmissionAttributes adds submission-level attributes to the current span.
func SetSubmissionAttributes(ctx context.Context, hasStable, hasGPU, hasToken bool) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.Bool("submission.has_stable_hash", hasStable),
		attribute.Bool("submission.has_gpu_timing_hash", hasGPU),
		attribute.Bool("submission.has_persistent_id", hasToken),
	)
}

// SetMatchAttributes adds the matching verdict to the current span.
func SetMatchAttributes(ctx context.Context, visitorID, matchType string, confidence float64, isNewVisitor bool) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("match.visitor_id", visitorID),
		attribute.String("match.type", matchType),
		attribute.Float64("match.confidence", confidence),
		attribute.Bool("match.is_new_visitor", isNewVisitor),
	)
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error) {
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
	}
}
