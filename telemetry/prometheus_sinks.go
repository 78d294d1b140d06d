package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/itsneelabh/gomind-monitoring/core"
	"github.com/itsneelabh/gomind-monitoring/instrumentation"
	"github.com/itsneelabh/gomind-monitoring/registry"
)

// PrometheusSinks exposes operations and exceptions as Prometheus metrics:
//
//	<namespace>_operations_total{operation,category}
//	<namespace>_operation_duration_seconds{operation,category}
//	<namespace>_operations_in_flight
//	<namespace>_exceptions_total{category,error_type}
//
// Only the category property becomes a label. Other properties and
// operation metrics are validated and then dropped.
type PrometheusSinks struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inFlight   prometheus.Gauge
	exceptions *prometheus.CounterVec

	limiter  *CardinalityLimiter
	stats    *Stats
	logger   core.Logger
	category string
	now      func() time.Time
}

// NewPrometheusSinks creates the collectors and registers them with reg.
// maxOperationNames caps the distinct values of the operation label; names
// beyond it are reported as "other".
func NewPrometheusSinks(reg prometheus.Registerer, namespace string, maxOperationNames int, opts ...SinkOption) (*PrometheusSinks, error) {
	if reg == nil {
		return nil, core.InvalidArgument("NewPrometheusSinks", "registerer is required")
	}
	o := defaultSinkOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &PrometheusSinks{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Released operations.",
		}, []string{"operation", "category"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time between the start and the release of an operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "category"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "operations_in_flight",
			Help:      "Operations started and not yet released.",
		}),
		exceptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exceptions_total",
			Help:      "Reported exceptions.",
		}, []string{"category", "error_type"}),
		stats:    newStats(),
		logger:   core.ForComponent(o.logger, "telemetry/prometheus"),
		category: o.categoryProperty,
		now:      time.Now,
	}
	if maxOperationNames > 0 {
		s.limiter = NewCardinalityLimiter(map[string]int{"operation": maxOperationNames})
	}

	collectors := []prometheus.Collector{s.operations, s.duration, s.inFlight, s.exceptions}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			// leave reg as it was so the caller can retry
			for _, added := range collectors[:i] {
				reg.Unregister(added)
			}
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				return nil, &core.InstrumentationError{
					Op:      "NewPrometheusSinks",
					Kind:    "config",
					Message: fmt.Sprintf("collectors for namespace %q already registered", namespace),
					Err:     core.ErrInvalidConfiguration,
				}
			}
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return s, nil
}

// StartOperation returns an operation observed on Release.
func (s *PrometheusSinks) StartOperation(ctx context.Context, name string, detail *instrumentation.Detail) (context.Context, instrumentation.OperationInstance) {
	if name == "" {
		s.logger.Warn("Operation started without a name, ignoring", nil)
		return ctx, instrumentation.NullOperation()
	}
	s.stats.started.Add(1)
	s.inFlight.Inc()
	return ctx, &prometheusOperation{
		sinks:    s,
		name:     name,
		category: detail.PropertiesIfPresent()[s.category],
		start:    s.now(),
	}
}

// ReportException increments the exception counter.
func (s *PrometheusSinks) ReportException(_ context.Context, err error, detail *instrumentation.Detail) {
	if err == nil {
		s.logger.Warn("Exception reported without an error, ignoring", nil)
		return
	}
	s.stats.reported.Add(1)
	s.exceptions.WithLabelValues(detail.PropertiesIfPresent()[s.category], fmt.Sprintf("%T", err)).Inc()
	s.stats.delivered.Add(1)
}

// Health returns the backend health snapshot.
func (s *PrometheusSinks) Health() Health {
	h := s.stats.snapshot("prometheus")
	h.CardinalityUsed = s.limiter.CurrentCardinality()
	h.CardinalityMax = s.limiter.MaxCardinality()
	return h
}

type prometheusOperation struct {
	sinks *PrometheusSinks
	name  string
	start time.Time

	mu       sync.Mutex
	category string
	released bool
}

func (o *prometheusOperation) AddOperationProperty(name, value string) error {
	if err := instrumentation.ValidateProperty(name, value); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return core.AlreadyReleased("PrometheusOperation.AddOperationProperty", o.name)
	}
	if name == o.sinks.category {
		o.category = value
	}
	return nil
}

func (o *prometheusOperation) AddOperationMetric(name string, _ float64) error {
	if err := instrumentation.ValidateMetricName(name); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return core.AlreadyReleased("PrometheusOperation.AddOperationMetric", o.name)
	}
	return nil
}

// Release observes the duration and counts the operation.
func (o *prometheusOperation) Release() error {
	o.mu.Lock()
	if o.released {
		o.mu.Unlock()
		return core.AlreadyReleased("PrometheusOperation.Release", o.name)
	}
	o.released = true
	category := o.category
	o.mu.Unlock()

	s := o.sinks
	elapsed := s.now().Sub(o.start)
	operation := s.limiter.Limit("operation", o.name)

	s.inFlight.Dec()
	s.duration.WithLabelValues(operation, category).Observe(elapsed.Seconds())
	s.operations.WithLabelValues(operation, category).Inc()
	s.stats.released.Add(1)
	s.stats.delivered.Add(1)
	return nil
}

// AddPrometheusInstrumentation registers sinks as the plain operations and
// exceptions sinks of r.
func AddPrometheusInstrumentation(r *registry.Registry, sinks *PrometheusSinks) error {
	if r == nil || sinks == nil {
		return core.InvalidArgument("AddPrometheusInstrumentation", "registry and sinks are required")
	}
	r.AddSingleton(instrumentation.OperationsSinkKey, instrumentation.OperationsSink(sinks))
	r.AddSingleton(instrumentation.ExceptionsSinkKey, instrumentation.ExceptionsSink(sinks))
	return nil
}
