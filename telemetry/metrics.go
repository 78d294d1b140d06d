package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/metric"
)

// Metric names recorded by the OTel sinks.
const (
	MetricOperationDuration = "instrumentation.operation.duration"
	MetricOperationCount    = "instrumentation.operations"
	MetricExceptionCount    = "instrumentation.exceptions"
)

// MetricInstruments holds cached metric instruments for efficient recording
type MetricInstruments struct {
	meter      metric.Meter
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
	mu         sync.RWMutex
}

// NewMetricInstruments creates a new metrics instrument cache
func NewMetricInstruments(meter metric.Meter) *MetricInstruments {
	return &MetricInstruments{
		meter:      meter,
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// RecordCounter increments a counter metric
func (m *MetricInstruments) RecordCounter(ctx context.Context, name string, value int64, opts ...metric.AddOption) error {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		// Double-check after acquiring write lock
		if counter, exists = m.counters[name]; !exists {
			var err error
			counter, err = m.meter.Int64Counter(name, metric.WithUnit("{count}"))
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("failed to create counter %s: %w", name, err)
			}
			m.counters[name] = counter
		}
		m.mu.Unlock()
	}

	counter.Add(ctx, value, opts...)
	return nil
}

// RecordHistogram records a value distribution in milliseconds
func (m *MetricInstruments) RecordHistogram(ctx context.Context, name string, value float64, opts ...metric.RecordOption) error {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if histogram, exists = m.histograms[name]; !exists {
			var err error
			histogram, err = m.meter.Float64Histogram(name, metric.WithUnit("ms"))
			if err != nil {
				m.mu.Unlock()
				return fmt.Errorf("failed to create histogram %s: %w", name, err)
			}
			m.histograms[name] = histogram
		}
		m.mu.Unlock()
	}

	histogram.Record(ctx, value, opts...)
	return nil
}
