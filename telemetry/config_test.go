package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/gomind-monitoring/core"
)

func TestUseProfile(t *testing.T) {
	tests := []struct {
		profile        Profile
		traceExporter  string
		metricExporter string
		samplingRate   float64
	}{
		{ProfileDevelopment, "stdout", "none", 1.0},
		{ProfileStaging, "otlp", "otlp", 0.1},
		{ProfileProduction, "otlp", "otlp", 0.01},
		{"unknown", "stdout", "none", 1.0},
	}

	for _, tt := range tests {
		t.Run(string(tt.profile), func(t *testing.T) {
			cfg := UseProfile(tt.profile)
			assert.Equal(t, tt.traceExporter, cfg.TraceExporter)
			assert.Equal(t, tt.metricExporter, cfg.MetricExporter)
			assert.Equal(t, tt.samplingRate, cfg.SamplingRate)
		})
	}
}

func TestWithOverrides(t *testing.T) {
	base := UseProfile(ProfileProduction)
	cfg := base.WithOverrides(Config{
		ServiceName:  "orders",
		Endpoint:     "collector:4317",
		SamplingRate: 0.5,
	})

	assert.Equal(t, "orders", cfg.ServiceName)
	assert.Equal(t, "collector:4317", cfg.Endpoint)
	assert.Equal(t, 0.5, cfg.SamplingRate)
	assert.Equal(t, base.TraceExporter, cfg.TraceExporter, "zero overrides keep the profile value")
	assert.Equal(t, base.CircuitBreaker, cfg.CircuitBreaker)
}

func TestFromCoreConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.ServiceName = "checkout"
	cfg.Telemetry.Profile = "staging"
	cfg.Telemetry.TraceExporter = "none"
	cfg.Telemetry.MetricExporter = "stdout"
	cfg.Redis.CircuitBreaker.Threshold = 7
	cfg.Redis.CircuitBreaker.Timeout = 3 * time.Second

	tc := FromCoreConfig(cfg)
	assert.Equal(t, "checkout", tc.ServiceName)
	assert.Equal(t, "staging", tc.Environment)
	assert.Equal(t, "none", tc.TraceExporter)
	assert.Equal(t, "stdout", tc.MetricExporter)
	assert.Equal(t, 7, tc.CircuitBreaker.MaxFailures)
	assert.Equal(t, 3*time.Second, tc.CircuitBreaker.RecoveryTime)
	assert.Equal(t, cfg.Prometheus.MaxOperationNames, tc.MaxOperationNames)
}

func TestMetricEndpoint(t *testing.T) {
	assert.Equal(t, "localhost:4318", httpEndpoint("localhost:4317"))
	assert.Equal(t, "collector:9000", httpEndpoint("collector:9000"))
	assert.Equal(t, ":4317", httpEndpoint(":4317"))
}

func TestNewProvider(t *testing.T) {
	t.Run("no exporters uses noop providers", func(t *testing.T) {
		p, err := NewProvider(context.Background(), Config{
			ServiceName:    "test",
			TraceExporter:  "none",
			MetricExporter: "none",
		})
		require.NoError(t, err)
		assert.NotNil(t, p.Tracer())
		assert.NotNil(t, p.Meter())
		assert.NoError(t, p.Shutdown(context.Background()))
	})

	t.Run("stdout exporters", func(t *testing.T) {
		p, err := NewProvider(context.Background(), Config{
			ServiceName:    "test",
			ServiceVersion: "1.2.3",
			TraceExporter:  "stdout",
			MetricExporter: "stdout",
			SamplingRate:   1.0,
		})
		require.NoError(t, err)
		assert.Len(t, p.shutdownFuncs, 2)
		assert.NoError(t, p.Shutdown(context.Background()))
		assert.Empty(t, p.shutdownFuncs)
	})

	t.Run("otlp over http", func(t *testing.T) {
		p, err := NewProvider(context.Background(), Config{
			ServiceName:    "test",
			TraceExporter:  "otlphttp",
			MetricExporter: "none",
			Endpoint:       "localhost:4317",
			Insecure:       true,
		})
		require.NoError(t, err)
		assert.Len(t, p.shutdownFuncs, 1)
		assert.NoError(t, p.Shutdown(context.Background()))
	})

	t.Run("unknown trace exporter", func(t *testing.T) {
		_, err := NewProvider(context.Background(), Config{TraceExporter: "zipkin"})
		require.Error(t, err)
		assert.True(t, core.IsConfigurationError(err))
	})

	t.Run("unknown metric exporter", func(t *testing.T) {
		_, err := NewProvider(context.Background(), Config{TraceExporter: "none", MetricExporter: "statsd"})
		require.Error(t, err)
		assert.True(t, core.IsConfigurationError(err))
	})
}
