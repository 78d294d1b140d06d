package httpmonitor

import (
	"net/http"

	"github.com/itsneelabh/gomind-monitoring/core"
	"github.com/itsneelabh/gomind-monitoring/instrumentation"
	"github.com/itsneelabh/gomind-monitoring/telemetry"
)

// Option configures Middleware.
type Option func(*options)

type options struct {
	logger      core.Logger
	name        func(*http.Request) string
	serviceName string
}

// WithLogger sets the logger used for release failures and request logs.
func WithLogger(logger core.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithOperationName replaces the default operation naming.
func WithOperationName(name func(*http.Request) string) Option {
	return func(o *options) {
		if name != nil {
			o.name = name
		}
	}
}

// WithTracePropagation wraps the handler with OpenTelemetry server
// instrumentation, so incoming W3C trace headers become the parent of the
// request's operation.
func WithTracePropagation(serviceName string) Option {
	return func(o *options) {
		o.serviceName = serviceName
	}
}

// OperationName is the default naming: the matched pattern, or method and
// path when the request did not go through a ServeMux pattern.
func OperationName(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return r.Method + " " + r.URL.Path
}

// Middleware starts one operation per request on sink, adds the route
// data, makes it the current operation for the handler and releases it
// once the handler returns.
func Middleware(sink instrumentation.OperationsSink, opts ...Option) func(http.Handler) http.Handler {
	o := options{
		logger: &core.NoOpLogger{},
		name:   OperationName,
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := core.ForComponent(o.logger, "httpmonitor")
	if sink == nil {
		logger.Warn("No operations sink supplied, requests are not instrumented", nil)
		sink = instrumentation.NullOperationsSink{}
	}

	return func(next http.Handler) http.Handler {
		h := http.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name := o.name(r)
			ctx, op := sink.StartOperation(r.Context(), name, nil)

			if err := AddRouteData(op, RouteValues(r)); err != nil {
				logger.Warn("Failed to add route data", map[string]interface{}{
					"operation": name,
					"error":     err,
				})
			}

			store := NewRequestStore()
			store.Set(op)
			defer func() {
				store.Clear()
				if err := op.Release(); err != nil {
					fields := map[string]interface{}{
						"operation": name,
						"error":     err,
					}
					for k, v := range telemetry.LogFields(ctx) {
						fields[k] = v
					}
					logger.Error("Failed to release request operation", fields)
				}
			}()

			next.ServeHTTP(w, r.WithContext(WithRequestStore(ctx, store)))
		}))

		if o.serviceName != "" {
			h = telemetry.TracingMiddleware(o.serviceName, nil)(h)
		}
		return h
	}
}

// ObservableMux is a ServeMux that wraps every registered handler with
// Middleware.
type ObservableMux struct {
	*http.ServeMux
	wrap func(http.Handler) http.Handler
}

// NewObservableMux creates a mux whose routes report to sink.
func NewObservableMux(sink instrumentation.OperationsSink, opts ...Option) *ObservableMux {
	return &ObservableMux{
		ServeMux: http.NewServeMux(),
		wrap:     Middleware(sink, opts...),
	}
}

// Handle registers an instrumented handler for pattern.
func (m *ObservableMux) Handle(pattern string, handler http.Handler) {
	m.ServeMux.Handle(pattern, m.wrap(handler))
}

// HandleFunc registers an instrumented handler function for pattern.
func (m *ObservableMux) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	m.Handle(pattern, http.HandlerFunc(handler))
}

// HandleUnobserved registers handler without instrumentation, for health
// and metrics endpoints.
func (m *ObservableMux) HandleUnobserved(pattern string, handler http.Handler) {
	m.ServeMux.Handle(pattern, handler)
}
