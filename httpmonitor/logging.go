package httpmonitor

import (
	"net/http"
	"time"

	"github.com/itsneelabh/gomind-monitoring/core"
	"github.com/itsneelabh/gomind-monitoring/telemetry"
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// Flush implements http.Flusher.
func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// LoggingMiddleware logs HTTP requests with their trace identifiers.
// With verbose set every request is logged; otherwise only non-2xx
// responses and requests slower than a second.
func LoggingMiddleware(logger core.Logger, verbose bool) func(http.Handler) http.Handler {
	logger = core.ForComponent(logger, "httpmonitor")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			if !verbose && wrapped.statusCode < 400 && duration <= time.Second {
				return
			}

			fields := map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.statusCode,
				"duration_ms": duration.Milliseconds(),
				"remote_addr": r.RemoteAddr,
			}
			if r.URL.RawQuery != "" {
				fields["query"] = r.URL.RawQuery
			}
			for k, v := range telemetry.LogFields(r.Context()) {
				fields[k] = v
			}

			switch {
			case wrapped.statusCode >= 500:
				logger.Error("HTTP request error", fields)
			case wrapped.statusCode >= 400:
				logger.Warn("HTTP request client error", fields)
			case duration > time.Second:
				logger.Warn("HTTP request slow", fields)
			default:
				logger.Info("HTTP request", fields)
			}
		})
	}
}
