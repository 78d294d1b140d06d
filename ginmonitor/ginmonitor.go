// Package ginmonitor attaches an instrumentation operation to every request
// handled by a gin router.
//
//	router := gin.New()
//	router.Use(ginmonitor.Tracing("orders-service"))
//	router.Use(ginmonitor.ObservableActions(operationsSink))
//	router.Use(ginmonitor.ReportErrors(exceptionsSink))
//
// Handlers reach their operation with CurrentOperation(c), or with
// httpmonitor.CurrentOperation on c.Request.Context().
package ginmonitor

import (
	"sync"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/itsneelabh/gomind-monitoring/core"
	"github.com/itsneelabh/gomind-monitoring/httpmonitor"
	"github.com/itsneelabh/gomind-monitoring/instrumentation"
)

// StoreKey is the gin context key holding the request's
// *httpmonitor.RequestStore.
const StoreKey = "gomind-monitoring.operation"

// Option configures ObservableActions.
type Option func(*options)

type options struct {
	logger          core.Logger
	name            func(*gin.Context) string
	resultExecution bool
}

// WithLogger sets the logger used for release failures.
func WithLogger(logger core.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithOperationName replaces the default naming, which is the name of the
// main handler of the matched route.
func WithOperationName(name func(*gin.Context) string) Option {
	return func(o *options) {
		if name != nil {
			o.name = name
		}
	}
}

// WithResultExecution records a second operation, named
// "<name>::ResultExecution", for requests that write a response. It starts
// at the first write, is the current operation from then on and is
// released when the chain returns.
func WithResultExecution() Option {
	return func(o *options) {
		o.resultExecution = true
	}
}

// OperationName is the default naming: the handler name, or the method and
// path when no route matched.
func OperationName(c *gin.Context) string {
	if c.FullPath() == "" {
		return c.Request.Method + " " + c.Request.URL.Path
	}
	return c.HandlerName()
}

// RouteValues returns the route parameters of c.
func RouteValues(c *gin.Context) map[string]any {
	values := make(map[string]any, len(c.Params))
	for _, p := range c.Params {
		values[p.Key] = p.Value
	}
	return values
}

// ObservableActions starts one operation per request on sink, adds the
// route parameters as route data and releases the operation after the
// rest of the chain has run.
func ObservableActions(sink instrumentation.OperationsSink, opts ...Option) gin.HandlerFunc {
	o := options{
		logger: &core.NoOpLogger{},
		name:   OperationName,
	}
	for _, opt := range opts {
		opt(&o)
	}
	logger := core.ForComponent(o.logger, "ginmonitor")
	if sink == nil {
		logger.Warn("No operations sink supplied, requests are not instrumented", nil)
		sink = instrumentation.NullOperationsSink{}
	}

	return func(c *gin.Context) {
		name := o.name(c)
		ctx, op := sink.StartOperation(c.Request.Context(), name, nil)

		if err := httpmonitor.AddRouteData(op, RouteValues(c)); err != nil {
			logger.Warn("Failed to add route data", map[string]interface{}{
				"operation": name,
				"error":     err,
			})
		}

		store := httpmonitor.NewRequestStore()
		store.Set(op)
		c.Set(StoreKey, store)
		c.Request = c.Request.WithContext(httpmonitor.WithRequestStore(ctx, store))

		var result instrumentation.OperationInstance
		if o.resultExecution {
			var once sync.Once
			writer := c.Writer
			defer func() { c.Writer = writer }()
			c.Writer = &resultWriter{ResponseWriter: writer, start: func() {
				once.Do(func() {
					_, result = sink.StartOperation(ctx, name+"::ResultExecution", nil)
					store.Set(result)
				})
			}}
		}

		defer func() {
			if result != nil {
				if err := result.Release(); err != nil {
					logger.Error("Failed to release result operation", map[string]interface{}{
						"operation": name,
						"error":     err,
					})
				}
			}
			store.Clear()
			if err := op.Release(); err != nil {
				logger.Error("Failed to release request operation", map[string]interface{}{
					"operation": name,
					"route":     c.FullPath(),
					"error":     err,
				})
			}
		}()

		c.Next()
	}
}

// resultWriter calls start before anything reaches the client.
type resultWriter struct {
	gin.ResponseWriter
	start func()
}

func (w *resultWriter) WriteHeaderNow() {
	w.start()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *resultWriter) Write(b []byte) (int, error) {
	w.start()
	return w.ResponseWriter.Write(b)
}

func (w *resultWriter) WriteString(s string) (int, error) {
	w.start()
	return w.ResponseWriter.WriteString(s)
}

// CurrentOperation returns the operation of the request c belongs to, or
// an error wrapping core.ErrNotConfigured outside ObservableActions.
func CurrentOperation(c *gin.Context) (instrumentation.OperationInstance, error) {
	if v, ok := c.Get(StoreKey); ok {
		if store, ok := v.(*httpmonitor.RequestStore); ok {
			return store.Get()
		}
	}
	return httpmonitor.CurrentOperation(c.Request.Context())
}

// ReportErrors reports every error attached with c.Error to sink once the
// chain has run.
func ReportErrors(sink instrumentation.ExceptionsSink) gin.HandlerFunc {
	if sink == nil {
		sink = instrumentation.NullExceptionsSink{}
	}
	return func(c *gin.Context) {
		c.Next()

		for _, ginErr := range c.Errors {
			if ginErr.Err == nil {
				continue
			}
			detail := instrumentation.NewDetail(map[string]string{
				"Route":  c.FullPath(),
				"Method": c.Request.Method,
			}, nil)
			sink.ReportException(c.Request.Context(), ginErr.Err, detail)
		}
	}
}

// Tracing returns the OpenTelemetry gin middleware. Register it before
// ObservableActions so request operations become children of the server
// span.
func Tracing(serviceName string, opts ...otelgin.Option) gin.HandlerFunc {
	return otelgin.Middleware(serviceName, opts...)
}
