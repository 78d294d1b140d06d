package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// TraceContext holds trace and span identifiers for log correlation and
// for the records written by the Redis backend.
type TraceContext struct {
	// TraceID is the 32-character hex trace identifier
	TraceID string

	// SpanID is the 16-character hex span identifier
	SpanID string

	Sampled bool
}

// GetTraceContext extracts OpenTelemetry trace context from the context.
// Returns empty strings if no valid trace context exists.
//
// Usage:
//
//	tc := telemetry.GetTraceContext(ctx)
//	logger.Info("Operation released", map[string]interface{}{
//	    "trace_id": tc.TraceID,
//	    "span_id":  tc.SpanID,
//	})
func GetTraceContext(ctx context.Context) TraceContext {
	if ctx == nil {
		return TraceContext{}
	}

	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return TraceContext{}
	}

	return TraceContext{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
		Sampled: sc.IsSampled(),
	}
}

// HasTraceContext returns true if the context contains valid trace information.
func HasTraceContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	return trace.SpanFromContext(ctx).SpanContext().IsValid()
}

// LogFields returns trace_id and span_id log fields for ctx, or nil when
// ctx carries no trace.
func LogFields(ctx context.Context) map[string]interface{} {
	tc := GetTraceContext(ctx)
	if tc.TraceID == "" {
		return nil
	}
	return map[string]interface{}{
		"trace_id": tc.TraceID,
		"span_id":  tc.SpanID,
	}
}
