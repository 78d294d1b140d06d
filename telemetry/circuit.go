package telemetry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itsneelabh/gomind-monitoring/core"
)

// Circuit breaker states.
const (
	CircuitClosed   = "closed"
	CircuitOpen     = "open"
	CircuitHalfOpen = "half-open"
	CircuitDisabled = "disabled"
)

// CircuitConfig configures a DeliveryCircuitBreaker.
type CircuitConfig struct {
	MaxFailures  int
	RecoveryTime time.Duration
	HalfOpenMax  int // successes needed in half-open before closing
}

// DeliveryCircuitBreaker stops delivery attempts against a backend that keeps
// failing, so releasing operations does not stall on every call.
// A nil breaker allows everything.
type DeliveryCircuitBreaker struct {
	config CircuitConfig
	logger core.Logger
	now    func() time.Time

	state           atomic.Value // string
	failures        atomic.Int64
	successes       atomic.Int64
	halfOpenTrials  atomic.Int64
	lastFailureTime atomic.Value // time.Time

	mu sync.Mutex
}

// NewDeliveryCircuitBreaker creates a breaker. Zero fields take defaults.
func NewDeliveryCircuitBreaker(config CircuitConfig, logger core.Logger) *DeliveryCircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.RecoveryTime <= 0 {
		config.RecoveryTime = 30 * time.Second
	}
	if config.HalfOpenMax <= 0 {
		config.HalfOpenMax = 1
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	cb := &DeliveryCircuitBreaker{
		config: config,
		logger: logger,
		now:    time.Now,
	}
	cb.state.Store(CircuitClosed)
	cb.lastFailureTime.Store(time.Time{})
	return cb
}

// Allow reports whether a delivery attempt may proceed.
func (cb *DeliveryCircuitBreaker) Allow() bool {
	if cb == nil {
		return true
	}

	switch cb.State() {
	case CircuitOpen:
		lastFailure, _ := cb.lastFailureTime.Load().(time.Time)
		if lastFailure.IsZero() || cb.now().Sub(lastFailure) <= cb.config.RecoveryTime {
			return false
		}
		cb.mu.Lock()
		if cb.state.Load().(string) == CircuitOpen {
			cb.state.Store(CircuitHalfOpen)
			cb.successes.Store(0)
			cb.halfOpenTrials.Store(0)
			cb.logger.Info("Circuit breaker entering HALF-OPEN state", map[string]interface{}{
				"recovery_wait":     cb.config.RecoveryTime.String(),
				"max_test_requests": cb.config.HalfOpenMax,
			})
		}
		cb.mu.Unlock()
		return cb.Allow()

	case CircuitHalfOpen:
		return cb.halfOpenTrials.Add(1) <= int64(cb.config.HalfOpenMax)

	default:
		return true
	}
}

// RecordSuccess records a successful delivery. Enough successes in
// half-open close the circuit.
func (cb *DeliveryCircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}

	switch cb.State() {
	case CircuitHalfOpen:
		successes := cb.successes.Add(1)
		if successes < int64(cb.config.HalfOpenMax) {
			return
		}
		cb.mu.Lock()
		if cb.state.Load().(string) == CircuitHalfOpen {
			cb.state.Store(CircuitClosed)
			cb.failures.Store(0)
			cb.logger.Info("Circuit breaker CLOSED - delivery recovered", map[string]interface{}{
				"recovery_tests": successes,
			})
		}
		cb.mu.Unlock()
	case CircuitClosed:
		cb.failures.Store(0)
	}
}

// RecordFailure records a failed delivery.
func (cb *DeliveryCircuitBreaker) RecordFailure(err error) {
	if cb == nil {
		return
	}

	cb.lastFailureTime.Store(cb.now())

	if cb.State() == CircuitHalfOpen {
		cb.open(CircuitHalfOpen, cb.failures.Load(), err)
		return
	}

	failures := cb.failures.Add(1)
	if failures >= int64(cb.config.MaxFailures) {
		cb.open(CircuitClosed, failures, err)
		return
	}
	if failures == 1 {
		cb.logger.Info("Circuit breaker recorded first failure", map[string]interface{}{
			"failure_count": failures,
			"max_failures":  cb.config.MaxFailures,
			"error":         err,
		})
	}
}

func (cb *DeliveryCircuitBreaker) open(from string, failures int64, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state.Load().(string) == CircuitOpen {
		return
	}
	cb.state.Store(CircuitOpen)
	cb.successes.Store(0)
	cb.logger.Warn("Circuit breaker OPENED - records will be dropped", map[string]interface{}{
		"previous_state": from,
		"failure_count":  failures,
		"max_failures":   cb.config.MaxFailures,
		"recovery_time":  cb.config.RecoveryTime.String(),
		"error":          err,
	})
}

// State returns the current state.
func (cb *DeliveryCircuitBreaker) State() string {
	if cb == nil {
		return CircuitDisabled
	}
	return cb.state.Load().(string)
}

// Reset closes the circuit and clears counters.
func (cb *DeliveryCircuitBreaker) Reset() {
	if cb == nil {
		return
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	previousState := cb.state.Load().(string)
	previousFailures := cb.failures.Load()

	cb.state.Store(CircuitClosed)
	cb.failures.Store(0)
	cb.successes.Store(0)
	cb.halfOpenTrials.Store(0)
	cb.lastFailureTime.Store(time.Time{})

	if previousState != CircuitClosed || previousFailures > 0 {
		cb.logger.Info("Circuit breaker manually reset", map[string]interface{}{
			"previous_state":    previousState,
			"previous_failures": previousFailures,
		})
	}
}

// errCircuitOpen builds the error returned when a delivery is refused.
func errCircuitOpen(op, backend string) error {
	return &core.InstrumentationError{
		Op:      op,
		Kind:    "delivery",
		Message: fmt.Sprintf("%s backend unavailable", backend),
		Err:     core.ErrCircuitOpen,
	}
}
