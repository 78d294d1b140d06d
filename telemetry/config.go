package telemetry

import (
	"time"

	"github.com/itsneelabh/gomind-monitoring/core"
)

// Config configures the OpenTelemetry provider and the backends.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	TraceExporter  string // otlp, otlphttp, stdout, none
	MetricExporter string // otlp, stdout, none
	Endpoint       string
	Insecure       bool

	SamplingRate float64

	// MaxOperationNames caps distinct operation names in metric labels.
	MaxOperationNames int

	CircuitBreaker CircuitConfig
}

// Profile represents a pre-configured telemetry profile
type Profile string

const (
	ProfileDevelopment Profile = "development"
	ProfileStaging     Profile = "staging"
	ProfileProduction  Profile = "production"
)

// Profiles contains pre-configured telemetry profiles
var Profiles = map[Profile]Config{
	ProfileDevelopment: {
		Environment:       "development",
		TraceExporter:     "stdout",
		MetricExporter:    "none",
		Endpoint:          "localhost:4317",
		Insecure:          true,
		SamplingRate:      1.0,
		MaxOperationNames: 1000,
		CircuitBreaker: CircuitConfig{
			MaxFailures:  3,
			RecoveryTime: 5 * time.Second,
		},
	},
	ProfileStaging: {
		Environment:       "staging",
		TraceExporter:     "otlp",
		MetricExporter:    "otlp",
		Endpoint:          "otel-collector.staging:4317",
		Insecure:          true,
		SamplingRate:      0.1,
		MaxOperationNames: 500,
		CircuitBreaker: CircuitConfig{
			MaxFailures:  10,
			RecoveryTime: 15 * time.Second,
		},
	},
	ProfileProduction: {
		Environment:       "production",
		TraceExporter:     "otlp",
		MetricExporter:    "otlp",
		Endpoint:          "otel-collector.prod:4317", // Override with env var
		SamplingRate:      0.01,
		MaxOperationNames: 200,
		CircuitBreaker: CircuitConfig{
			MaxFailures:  10,
			RecoveryTime: 30 * time.Second,
			HalfOpenMax:  3,
		},
	},
}

// UseProfile returns a configuration based on a profile name
func UseProfile(profile Profile) Config {
	if config, ok := Profiles[profile]; ok {
		return config
	}
	return Profiles[ProfileDevelopment]
}

// WithOverrides applies the non-zero fields of overrides to c.
func (c Config) WithOverrides(overrides Config) Config {
	if overrides.ServiceName != "" {
		c.ServiceName = overrides.ServiceName
	}
	if overrides.ServiceVersion != "" {
		c.ServiceVersion = overrides.ServiceVersion
	}
	if overrides.Environment != "" {
		c.Environment = overrides.Environment
	}
	if overrides.TraceExporter != "" {
		c.TraceExporter = overrides.TraceExporter
	}
	if overrides.MetricExporter != "" {
		c.MetricExporter = overrides.MetricExporter
	}
	if overrides.Endpoint != "" {
		c.Endpoint = overrides.Endpoint
	}
	if overrides.Insecure {
		c.Insecure = true
	}
	if overrides.SamplingRate > 0 {
		c.SamplingRate = overrides.SamplingRate
	}
	if overrides.MaxOperationNames > 0 {
		c.MaxOperationNames = overrides.MaxOperationNames
	}
	if overrides.CircuitBreaker.MaxFailures > 0 {
		c.CircuitBreaker = overrides.CircuitBreaker
	}
	return c
}

// FromCoreConfig builds the telemetry configuration for cfg: the selected
// profile with cfg's explicit settings applied on top.
func FromCoreConfig(cfg *core.Config) Config {
	tc := UseProfile(Profile(cfg.Telemetry.Profile)).WithOverrides(Config{
		ServiceName:       cfg.ServiceName,
		ServiceVersion:    cfg.Telemetry.ServiceVersion,
		Endpoint:          cfg.Telemetry.Endpoint,
		Insecure:          cfg.Telemetry.Insecure,
		SamplingRate:      cfg.Telemetry.SamplingRate,
		MaxOperationNames: cfg.Prometheus.MaxOperationNames,
		CircuitBreaker: CircuitConfig{
			MaxFailures:  cfg.Redis.CircuitBreaker.Threshold,
			RecoveryTime: cfg.Redis.CircuitBreaker.Timeout,
		},
	})
	// exporters are always explicit in core.Config
	if cfg.Telemetry.TraceExporter != "" {
		tc.TraceExporter = cfg.Telemetry.TraceExporter
	}
	if cfg.Telemetry.MetricExporter != "" {
		tc.MetricExporter = cfg.Telemetry.MetricExporter
	}
	return tc
}
