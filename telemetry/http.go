package telemetry

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// TracingMiddlewareConfig configures the tracing middleware behavior.
type TracingMiddlewareConfig struct {
	// ExcludedPaths lists URL paths to exclude from tracing.
	// Example: []string{"/health/instrumentation", "/metrics"}
	ExcludedPaths []string

	// SpanNameFormatter customizes how span names are generated.
	// If nil, uses "HTTP {method} {pattern}", falling back to the path.
	SpanNameFormatter func(operation string, r *http.Request) string
}

// TracingMiddleware returns HTTP middleware that extracts W3C trace context
// from incoming requests and starts a server span for each one. Operations
// started further down the chain become children of that span.
//
// Propagators are installed by NewProvider; without a provider the global
// no-op tracer is used.
func TracingMiddleware(serviceName string, config *TracingMiddlewareConfig) func(http.Handler) http.Handler {
	var opts []otelhttp.Option

	if config != nil && len(config.ExcludedPaths) > 0 {
		excluded := make(map[string]bool, len(config.ExcludedPaths))
		for _, path := range config.ExcludedPaths {
			excluded[path] = true
		}
		opts = append(opts, otelhttp.WithFilter(func(r *http.Request) bool {
			return !excluded[r.URL.Path]
		}))
	}

	if config != nil && config.SpanNameFormatter != nil {
		opts = append(opts, otelhttp.WithSpanNameFormatter(config.SpanNameFormatter))
	} else {
		opts = append(opts, otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			if r.Pattern != "" {
				return "HTTP " + r.Pattern
			}
			return "HTTP " + r.Method + " " + r.URL.Path
		}))
	}

	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName, opts...)
	}
}

// NewTracedHTTPClient creates an HTTP client that injects the trace context
// of each request's context into outgoing headers. A nil baseTransport
// means http.DefaultTransport.
func NewTracedHTTPClient(baseTransport http.RoundTripper) *http.Client {
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(baseTransport),
	}
}
