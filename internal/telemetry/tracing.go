// Package telemetry provides the tracing and metrics surfaces shared by the
// controller, VS loop, backseat client and navigation ingestor: span
// correlation for structured logs, and a Prometheus metrics handler.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// NewTracer returns a trace.Tracer for this process. When enabled is false a
// no-op tracer is returned so that StartSpan/End calls remain cheap no-ops
// throughout the hot path (the controller tick runs at command_period
// cadence, often sub-second, so tracing must be free to disable entirely).
func NewTracer(enabled bool) trace.Tracer {
	if !enabled {
		return otel.Tracer("vslope")
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	return tp.Tracer("vslope")
}

// StartSpan starts a span named name under the given tracer and returns the
// derived context plus the span so the caller can `defer span.End()`.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// ExtractIDs returns the hex trace and span IDs carried by ctx, or empty
// strings if ctx carries no active span. Used to correlate log lines with
// spans, matching the pattern the ambient logging package consumes.
func ExtractIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
