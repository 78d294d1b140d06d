package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable read by LoadFromEnv.
const EnvPrefix = "MONITORING"

// ConfigFileEnv names the environment variable NewConfig reads a config file
// path from.
const ConfigFileEnv = "MONITORING_CONFIG_FILE"

// Backends accepted by InstrumentationConfig.Backend.
const (
	BackendNone       = "none"
	BackendOTel       = "otel"
	BackendRedis      = "redis"
	BackendPrometheus = "prometheus"
)

// Config holds all configuration options for an instrumented service.
// It supports layered configuration priority:
//  1. Default values (lowest priority)
//  2. Config file named by MONITORING_CONFIG_FILE (JSON or YAML)
//  3. Environment variables (MONITORING_* )
//  4. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithServiceName("orders"),
//	    WithBackend(BackendOTel),
//	    WithOTLPEndpoint("otel-collector:4317"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	ServiceName string `json:"service_name" yaml:"service_name" split_words:"true"`

	Instrumentation InstrumentationConfig `json:"instrumentation" yaml:"instrumentation"`
	Telemetry       TelemetryConfig       `json:"telemetry" yaml:"telemetry"`
	Redis           RedisConfig           `json:"redis" yaml:"redis"`
	Prometheus      PrometheusConfig      `json:"prometheus" yaml:"prometheus"`
	HTTP            HTTPConfig            `json:"http" yaml:"http"`
	Logging         LoggingConfig         `json:"logging" yaml:"logging"`
}

// InstrumentationConfig selects the sink backend and the source tag property.
type InstrumentationConfig struct {
	// SourcePropertyName is the property the tagging decorators write the
	// source tag under. Defaults to "Category".
	SourcePropertyName string `json:"source_property_name" yaml:"source_property_name" split_words:"true"`
	// Backend is one of none, otel, redis, prometheus.
	Backend string `json:"backend" yaml:"backend"`
}

// TelemetryConfig configures the OpenTelemetry backend.
type TelemetryConfig struct {
	Profile        string  `json:"profile" yaml:"profile"`
	TraceExporter  string  `json:"trace_exporter" yaml:"trace_exporter" split_words:"true"`
	MetricExporter string  `json:"metric_exporter" yaml:"metric_exporter" split_words:"true"`
	Endpoint       string  `json:"endpoint" yaml:"endpoint"`
	Insecure       bool    `json:"insecure" yaml:"insecure"`
	ServiceVersion string  `json:"service_version" yaml:"service_version" split_words:"true"`
	SamplingRate   float64 `json:"sampling_rate" yaml:"sampling_rate" split_words:"true"`
}

// RedisConfig configures the Redis streams backend.
type RedisConfig struct {
	URL             string        `json:"url" yaml:"url"`
	Stream          string        `json:"stream" yaml:"stream"`
	ExceptionStream string        `json:"exception_stream" yaml:"exception_stream" split_words:"true"`
	MaxLen          int64         `json:"max_len" yaml:"max_len" split_words:"true"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
	// MaxAttempts is the number of XADD attempts per record, 1 disables retries.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" split_words:"true"`

	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker" split_words:"true"`
}

// CircuitBreakerConfig bounds delivery attempts against a failing backend.
type CircuitBreakerConfig struct {
	Threshold int           `json:"threshold" yaml:"threshold"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
}

// PrometheusConfig configures the Prometheus backend.
type PrometheusConfig struct {
	Namespace         string `json:"namespace" yaml:"namespace"`
	MaxOperationNames int    `json:"max_operation_names" yaml:"max_operation_names" split_words:"true"`
}

// HTTPConfig configures the demo HTTP server.
type HTTPConfig struct {
	Address         string        `json:"address" yaml:"address"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" split_words:"true"`
}

// LoggingConfig configures the production logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // json or text
}

// Option is a functional option for configuring the service
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ServiceName: "monitoring-service",
		Instrumentation: InstrumentationConfig{
			SourcePropertyName: "Category",
			Backend:            BackendNone,
		},
		Telemetry: TelemetryConfig{
			Profile:        "development",
			TraceExporter:  "stdout",
			MetricExporter: "none",
			Endpoint:       "localhost:4317",
			Insecure:       true,
			ServiceVersion: "0.1.0",
		},
		Redis: RedisConfig{
			URL:             "redis://localhost:6379",
			Stream:          "instrumentation:operations",
			ExceptionStream: "instrumentation:exceptions",
			MaxLen:          10000,
			Timeout:         2 * time.Second,
			MaxAttempts:     3,
			CircuitBreaker: CircuitBreakerConfig{
				Threshold: 5,
				Timeout:   30 * time.Second,
			},
		},
		Prometheus: PrometheusConfig{
			Namespace:         "instrumentation",
			MaxOperationNames: 200,
		},
		HTTP: HTTPConfig{
			Address:         ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFromEnv overlays MONITORING_* environment variables onto c.
// Variables that are not set leave the current value untouched.
//
// Examples: MONITORING_SERVICE_NAME, MONITORING_INSTRUMENTATION_BACKEND,
// MONITORING_TELEMETRY_TRACE_EXPORTER, MONITORING_REDIS_URL,
// MONITORING_REDIS_CIRCUIT_BREAKER_THRESHOLD, MONITORING_LOGGING_LEVEL.
//
// The standard OTEL_EXPORTER_OTLP_ENDPOINT is honoured when
// MONITORING_TELEMETRY_ENDPOINT is not set.
func (c *Config) LoadFromEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return &InstrumentationError{
			Op:      "Config.LoadFromEnv",
			Kind:    "config",
			Message: err.Error(),
			Err:     ErrInvalidConfiguration,
		}
	}

	if _, set := os.LookupEnv(EnvPrefix + "_TELEMETRY_ENDPOINT"); !set {
		if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
			c.Telemetry.Endpoint = v
		}
	}
	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file.
// Values present in the file override the current ones.
//
// Example YAML:
//
//	service_name: orders
//	instrumentation:
//	  backend: redis
//	  source_property_name: Category
//	redis:
//	  url: redis://redis:6379
//	  stream: orders:operations
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)

	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	data, err := os.ReadFile(cleanPath) // nosec G304 -- operator supplied path
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %v: %w", err, ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %v: %w", err, ErrInvalidConfiguration)
		}
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
// This method is called automatically by NewConfig().
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return &InstrumentationError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "service name is required",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.Instrumentation.SourcePropertyName == "" {
		return &InstrumentationError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "source property name is required",
			Err:     ErrMissingConfiguration,
		}
	}

	switch c.Instrumentation.Backend {
	case BackendNone, BackendOTel, BackendPrometheus:
	case BackendRedis:
		if c.Redis.URL == "" {
			return &InstrumentationError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: "redis URL is required for the redis backend",
				Err:     ErrMissingConfiguration,
			}
		}
		if c.Redis.Stream == "" || c.Redis.ExceptionStream == "" {
			return &InstrumentationError{
				Op:      "Config.Validate",
				Kind:    "config",
				Message: "redis stream names are required for the redis backend",
				Err:     ErrMissingConfiguration,
			}
		}
	default:
		return &InstrumentationError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown instrumentation backend: %q", c.Instrumentation.Backend),
			Err:     ErrInvalidConfiguration,
		}
	}

	if !oneOf(c.Telemetry.TraceExporter, "otlp", "otlphttp", "stdout", "none") {
		return &InstrumentationError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown trace exporter: %q", c.Telemetry.TraceExporter),
			Err:     ErrInvalidConfiguration,
		}
	}
	if !oneOf(c.Telemetry.MetricExporter, "otlp", "stdout", "none") {
		return &InstrumentationError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown metric exporter: %q", c.Telemetry.MetricExporter),
			Err:     ErrInvalidConfiguration,
		}
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		return &InstrumentationError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("sampling rate must be between 0 and 1: %v", c.Telemetry.SamplingRate),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Redis.MaxLen < 0 {
		return &InstrumentationError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("redis max_len must not be negative: %d", c.Redis.MaxLen),
			Err:     ErrInvalidConfiguration,
		}
	}

	if !oneOf(strings.ToLower(c.Logging.Format), "json", "text") {
		return &InstrumentationError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown log format: %q", c.Logging.Format),
			Err:     ErrInvalidConfiguration,
		}
	}

	return nil
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Functional Options

// WithServiceName sets the service name used in logs and telemetry resources.
func WithServiceName(name string) Option {
	return func(c *Config) error {
		c.ServiceName = name
		return nil
	}
}

// WithBackend selects the sink backend.
func WithBackend(backend string) Option {
	return func(c *Config) error {
		c.Instrumentation.Backend = backend
		return nil
	}
}

// WithSourcePropertyName sets the property name used for source tags.
func WithSourcePropertyName(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return InvalidArgument("WithSourcePropertyName", "source property name must not be empty")
		}
		c.Instrumentation.SourcePropertyName = name
		return nil
	}
}

// WithTelemetryProfile selects the telemetry profile
// (development, staging, production).
func WithTelemetryProfile(profile string) Option {
	return func(c *Config) error {
		c.Telemetry.Profile = profile
		return nil
	}
}

// WithOTLPEndpoint points both trace and metric exporters at an OTLP
// collector and switches the trace exporter to otlp.
func WithOTLPEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Endpoint = endpoint
		c.Telemetry.TraceExporter = "otlp"
		return nil
	}
}

// WithExporters sets the trace and metric exporters.
func WithExporters(trace, metric string) Option {
	return func(c *Config) error {
		c.Telemetry.TraceExporter = trace
		c.Telemetry.MetricExporter = metric
		return nil
	}
}

// WithRedisURL sets the Redis connection URL.
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.Redis.URL = url
		return nil
	}
}

// WithRedisStreams sets the operation and exception stream names.
func WithRedisStreams(operations, exceptions string) Option {
	return func(c *Config) error {
		c.Redis.Stream = operations
		c.Redis.ExceptionStream = exceptions
		return nil
	}
}

// WithCircuitBreaker configures the delivery circuit breaker.
func WithCircuitBreaker(threshold int, timeout time.Duration) Option {
	return func(c *Config) error {
		if threshold < 1 {
			return InvalidArgument("WithCircuitBreaker", "threshold must be at least 1")
		}
		c.Redis.CircuitBreaker.Threshold = threshold
		c.Redis.CircuitBreaker.Timeout = timeout
		return nil
	}
}

// WithPrometheusNamespace sets the metric namespace.
func WithPrometheusNamespace(namespace string) Option {
	return func(c *Config) error {
		c.Prometheus.Namespace = namespace
		return nil
	}
}

// WithHTTPAddress sets the listen address of the demo server.
func WithHTTPAddress(addr string) Option {
	return func(c *Config) error {
		c.HTTP.Address = addr
		return nil
	}
}

// WithLogLevel sets the logging level (debug, info, warn, error).
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the logging format (json or text).
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithConfigFile loads configuration from a file.
// Options after it override file settings.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// WithDevelopmentMode switches to human-readable debug logs and stdout
// exporters.
func WithDevelopmentMode() Option {
	return func(c *Config) error {
		c.Logging.Format = "text"
		c.Logging.Level = "debug"
		c.Telemetry.Profile = "development"
		c.Telemetry.TraceExporter = "stdout"
		return nil
	}
}

// NewConfig creates a new configuration with the provided options.
// Configuration is applied in the following order:
//  1. Default values from DefaultConfig()
//  2. The file named by MONITORING_CONFIG_FILE, if set
//  3. Environment variables via LoadFromEnv()
//  4. Functional options (highest priority)
//  5. Validation via Validate()
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
