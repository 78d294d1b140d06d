package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/itsneelabh/gomind-monitoring/core"
	"github.com/itsneelabh/gomind-monitoring/instrumentation"
	"github.com/itsneelabh/gomind-monitoring/registry"
	"github.com/itsneelabh/gomind-monitoring/resilience"
)

// Record kinds written to the "kind" field of each stream entry.
const (
	RecordKindOperation = "operation"
	RecordKindException = "exception"
)

// OperationRecord is the JSON payload of an operation stream entry.
type OperationRecord struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Properties map[string]string  `json:"properties,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	DurationMs float64            `json:"duration_ms"`
	TraceID    string             `json:"trace_id,omitempty"`
	SpanID     string             `json:"span_id,omitempty"`
}

// ExceptionRecord is the JSON payload of an exception stream entry.
type ExceptionRecord struct {
	ID         string             `json:"id"`
	Error      string             `json:"error"`
	ErrorType  string             `json:"error_type"`
	Properties map[string]string  `json:"properties,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
	ReportedAt time.Time          `json:"reported_at"`
	TraceID    string             `json:"trace_id,omitempty"`
	SpanID     string             `json:"span_id,omitempty"`
}

// RedisOptions configures RedisSinks.
type RedisOptions struct {
	Stream          string
	ExceptionStream string
	MaxLen          int64         // approximate stream cap, 0 for unbounded
	Timeout         time.Duration // per XADD attempt
	CircuitBreaker  CircuitConfig

	// Retry is applied to each XADD. nil means a single attempt.
	Retry *resilience.RetryConfig
}

// RedisSinks publishes operations and exceptions to Redis streams. Each
// operation is written once, when it is released.
type RedisSinks struct {
	client  *redis.Client
	opts    RedisOptions
	breaker *DeliveryCircuitBreaker
	errLog  *RateLimiter
	stats   *Stats
	logger  core.Logger
	now     func() time.Time
}

// NewRedisSinks creates sinks publishing through client.
func NewRedisSinks(client *redis.Client, opts RedisOptions, sinkOpts ...SinkOption) (*RedisSinks, error) {
	if client == nil {
		return nil, core.InvalidArgument("NewRedisSinks", "redis client is required")
	}
	if opts.Stream == "" || opts.ExceptionStream == "" {
		return nil, &core.InstrumentationError{
			Op:      "NewRedisSinks",
			Kind:    "config",
			Message: "stream names are required",
			Err:     core.ErrMissingConfiguration,
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}

	o := defaultSinkOptions()
	for _, opt := range sinkOpts {
		opt(&o)
	}
	logger := core.ForComponent(o.logger, "telemetry/redis")

	return &RedisSinks{
		client:  client,
		opts:    opts,
		breaker: NewDeliveryCircuitBreaker(opts.CircuitBreaker, logger),
		errLog:  NewRateLimiter(10 * time.Second),
		stats:   newStats(),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// NewRedisSinksFromConfig connects to cfg.URL and verifies the connection.
func NewRedisSinksFromConfig(ctx context.Context, cfg core.RedisConfig, sinkOpts ...SinkOption) (*RedisSinks, error) {
	redisOpt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %v: %w", err, core.ErrInvalidConfiguration)
	}
	client := redis.NewClient(redisOpt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, &core.InstrumentationError{
			Op:      "NewRedisSinksFromConfig",
			Kind:    "delivery",
			Message: fmt.Sprintf("failed to connect to Redis: %v", err),
			Err:     core.ErrDeliveryFailed,
		}
	}

	return NewRedisSinks(client, RedisOptions{
		Stream:          cfg.Stream,
		ExceptionStream: cfg.ExceptionStream,
		MaxLen:          cfg.MaxLen,
		Timeout:         cfg.Timeout,
		CircuitBreaker: CircuitConfig{
			MaxFailures:  cfg.CircuitBreaker.Threshold,
			RecoveryTime: cfg.CircuitBreaker.Timeout,
		},
		Retry: retryConfig(cfg.MaxAttempts),
	}, sinkOpts...)
}

func retryConfig(attempts int) *resilience.RetryConfig {
	if attempts <= 1 {
		return nil
	}
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = attempts
	return cfg
}

// StartOperation snapshots detail and returns an operation published on
// Release. ctx is returned unchanged.
func (s *RedisSinks) StartOperation(ctx context.Context, name string, detail *instrumentation.Detail) (context.Context, instrumentation.OperationInstance) {
	if name == "" {
		s.logger.Warn("Operation started without a name, ignoring", nil)
		return ctx, instrumentation.NullOperation()
	}
	s.stats.started.Add(1)

	tc := GetTraceContext(ctx)
	return ctx, &redisOperation{
		sinks: s,
		record: OperationRecord{
			ID:         uuid.NewString(),
			Name:       name,
			Properties: maps.Clone(detail.PropertiesIfPresent()),
			Metrics:    maps.Clone(detail.MetricsIfPresent()),
			StartedAt:  s.now(),
			TraceID:    tc.TraceID,
			SpanID:     tc.SpanID,
		},
	}
}

// ReportException publishes an exception record. Delivery failures are
// logged, at most once per interval.
func (s *RedisSinks) ReportException(ctx context.Context, err error, detail *instrumentation.Detail) {
	if err == nil {
		s.logger.Warn("Exception reported without an error, ignoring", nil)
		return
	}
	s.stats.reported.Add(1)

	tc := GetTraceContext(ctx)
	record := ExceptionRecord{
		ID:         uuid.NewString(),
		Error:      err.Error(),
		ErrorType:  fmt.Sprintf("%T", err),
		Properties: detail.PropertiesIfPresent(),
		Metrics:    detail.MetricsIfPresent(),
		ReportedAt: s.now(),
		TraceID:    tc.TraceID,
		SpanID:     tc.SpanID,
	}
	if pubErr := s.publish(ctx, s.opts.ExceptionStream, RecordKindException, record.ID, record); pubErr != nil {
		s.logFailure("exception", pubErr)
	}
}

// Health returns the backend health snapshot.
func (s *RedisSinks) Health() Health {
	h := s.stats.snapshot("redis")
	h.CircuitState = s.breaker.State()
	return h
}

// Close closes the Redis client.
func (s *RedisSinks) Close() error {
	return s.client.Close()
}

func (s *RedisSinks) publish(ctx context.Context, stream, kind, id string, record interface{}) error {
	if !s.breaker.Allow() {
		s.stats.dropped.Add(1)
		return errCircuitOpen("RedisSinks.publish", "redis")
	}

	data, err := json.Marshal(record)
	if err != nil {
		s.stats.recordError(err)
		return &core.InstrumentationError{Op: "RedisSinks.publish", Kind: "delivery", ID: id, Message: err.Error(), Err: core.ErrDeliveryFailed}
	}

	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: s.opts.MaxLen,
		Approx: s.opts.MaxLen > 0,
		Values: map[string]interface{}{
			"kind": kind,
			"id":   id,
			"data": string(data),
		},
	}
	// the caller's request may already be finished when its operation is released
	ctx = context.WithoutCancel(ctx)
	attempt := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
		return s.client.XAdd(attemptCtx, args).Err()
	}
	if s.opts.Retry == nil {
		err = attempt()
	} else {
		err = resilience.Retry(ctx, s.opts.Retry, attempt)
	}
	if err != nil {
		s.breaker.RecordFailure(err)
		s.stats.recordError(err)
		return &core.InstrumentationError{
			Op:      "RedisSinks.publish",
			Kind:    "delivery",
			ID:      id,
			Message: fmt.Sprintf("XADD %s: %v", stream, err),
			Err:     core.ErrDeliveryFailed,
		}
	}

	s.breaker.RecordSuccess()
	s.stats.delivered.Add(1)
	return nil
}

func (s *RedisSinks) logFailure(kind string, err error) {
	if !s.errLog.Allow() {
		return
	}
	s.logger.Error("Failed to publish instrumentation record", map[string]interface{}{
		"kind":       kind,
		"error":      err,
		"suppressed": s.errLog.TakeSuppressed(),
		"circuit":    s.breaker.State(),
	})
}

type redisOperation struct {
	sinks *RedisSinks

	mu       sync.Mutex
	record   OperationRecord
	released bool
}

func (o *redisOperation) AddOperationProperty(name, value string) error {
	if err := instrumentation.ValidateProperty(name, value); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return core.AlreadyReleased("RedisOperation.AddOperationProperty", o.record.ID)
	}
	if o.record.Properties == nil {
		o.record.Properties = make(map[string]string)
	}
	o.record.Properties[name] = value
	return nil
}

func (o *redisOperation) AddOperationMetric(name string, value float64) error {
	if err := instrumentation.ValidateMetricName(name); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return core.AlreadyReleased("RedisOperation.AddOperationMetric", o.record.ID)
	}
	if o.record.Metrics == nil {
		o.record.Metrics = make(map[string]float64)
	}
	o.record.Metrics[name] = value
	return nil
}

// Release publishes the operation record.
func (o *redisOperation) Release() error {
	o.mu.Lock()
	if o.released {
		o.mu.Unlock()
		return core.AlreadyReleased("RedisOperation.Release", o.record.ID)
	}
	o.released = true
	o.record.DurationMs = float64(o.sinks.now().Sub(o.record.StartedAt)) / float64(time.Millisecond)
	record := o.record
	o.mu.Unlock()

	s := o.sinks
	s.stats.released.Add(1)
	if err := s.publish(context.Background(), s.opts.Stream, RecordKindOperation, record.ID, record); err != nil {
		s.logFailure("operation", err)
		return err
	}
	return nil
}

// AddRedisInstrumentation registers sinks as the plain operations and
// exceptions sinks of r.
func AddRedisInstrumentation(r *registry.Registry, sinks *RedisSinks) error {
	if r == nil || sinks == nil {
		return core.InvalidArgument("AddRedisInstrumentation", "registry and sinks are required")
	}
	r.AddSingleton(instrumentation.OperationsSinkKey, instrumentation.OperationsSink(sinks))
	r.AddSingleton(instrumentation.ExceptionsSinkKey, instrumentation.ExceptionsSink(sinks))
	return nil
}
