package telemetry

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Health is the health snapshot of one backend.
type Health struct {
	Backend            string `json:"backend"`
	OperationsStarted  int64  `json:"operations_started"`
	OperationsReleased int64  `json:"operations_released"`
	ExceptionsReported int64  `json:"exceptions_reported"`
	Delivered          int64  `json:"delivered"`
	Dropped            int64  `json:"dropped"`
	Errors             int64  `json:"errors"`
	LastError          string `json:"last_error,omitempty"`
	CircuitState       string `json:"circuit_state"`
	CardinalityUsed    int    `json:"cardinality_used"`
	CardinalityMax     int    `json:"cardinality_max"`
	Uptime             string `json:"uptime"`
}

// HealthReporter is implemented by every backend in this package.
type HealthReporter interface {
	Health() Health
}

// Stats holds the counters shared by the backends.
type Stats struct {
	started   atomic.Int64
	released  atomic.Int64
	reported  atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
	errors    atomic.Int64
	lastError atomic.Value // string
	startTime time.Time
}

func newStats() *Stats {
	return &Stats{startTime: time.Now()}
}

func (s *Stats) recordError(err error) {
	s.errors.Add(1)
	s.lastError.Store(err.Error())
}

// snapshot fills the counter fields of a Health.
func (s *Stats) snapshot(backend string) Health {
	lastErr, _ := s.lastError.Load().(string)
	return Health{
		Backend:            backend,
		OperationsStarted:  s.started.Load(),
		OperationsReleased: s.released.Load(),
		ExceptionsReported: s.reported.Load(),
		Delivered:          s.delivered.Load(),
		Dropped:            s.dropped.Load(),
		Errors:             s.errors.Load(),
		LastError:          lastErr,
		CircuitState:       CircuitDisabled,
		Uptime:             time.Since(s.startTime).Round(time.Second).String(),
	}
}

// HealthHandler serves the health of the given backends as JSON. The
// status is 503 when any backend's circuit is open.
func HealthHandler(reporters ...HealthReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		backends := make([]Health, 0, len(reporters))
		status := http.StatusOK
		for _, rep := range reporters {
			h := rep.Health()
			if h.CircuitState == CircuitOpen {
				status = http.StatusServiceUnavailable
			}
			backends = append(backends, h)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"healthy":  status == http.StatusOK,
			"backends": backends,
		})
	}
}
