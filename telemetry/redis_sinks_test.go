package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/gomind-monitoring/core"
	"github.com/itsneelabh/gomind-monitoring/instrumentation"
	"github.com/itsneelabh/gomind-monitoring/registry"
	"github.com/itsneelabh/gomind-monitoring/resilience"
)

const (
	testOpsStream = "test:operations"
	testExcStream = "test:exceptions"
)

// setupTestRedis creates a miniredis instance and a client without retries
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestRedisSinks(t *testing.T, client *redis.Client, breaker CircuitConfig) (*RedisSinks, *fakeClock) {
	t.Helper()
	sinks, err := NewRedisSinks(client, RedisOptions{
		Stream:          testOpsStream,
		ExceptionStream: testExcStream,
		MaxLen:          100,
		Timeout:         time.Second,
		CircuitBreaker:  breaker,
	})
	require.NoError(t, err)
	clock := newFakeClock()
	sinks.now = clock.Now
	sinks.breaker.now = clock.Now
	return sinks, clock
}

func readStream(t *testing.T, client *redis.Client, stream string) []redis.XMessage {
	t.Helper()
	msgs, err := client.XRange(context.Background(), stream, "-", "+").Result()
	require.NoError(t, err)
	return msgs
}

func TestNewRedisSinksValidation(t *testing.T) {
	_, err := NewRedisSinks(nil, RedisOptions{Stream: "a", ExceptionStream: "b"})
	assert.True(t, core.IsUsageError(err))

	_, client := setupTestRedis(t)
	_, err = NewRedisSinks(client, RedisOptions{Stream: "a"})
	assert.True(t, core.IsConfigurationError(err))
}

func TestNewRedisSinksFromConfig(t *testing.T) {
	mr, _ := setupTestRedis(t)

	cfg := core.DefaultConfig().Redis
	cfg.URL = "redis://" + mr.Addr()
	sinks, err := NewRedisSinksFromConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer sinks.Close()
	assert.Equal(t, cfg.Stream, sinks.opts.Stream)
	assert.Equal(t, CircuitClosed, sinks.Health().CircuitState)

	cfg.URL = "not a url"
	_, err = NewRedisSinksFromConfig(context.Background(), cfg)
	assert.True(t, core.IsConfigurationError(err))
}

func TestRedisSinksOperationRecord(t *testing.T) {
	_, client := setupTestRedis(t)
	sinks, clock := newTestRedisSinks(t, client, CircuitConfig{})
	_, _, tracer := setupTestTracer(t)

	ctx, span := tracer.Start(context.Background(), "request")
	defer span.End()

	detail := instrumentation.NewDetail(map[string]string{"Category": "Orders"}, nil)
	_, op := sinks.StartOperation(ctx, "PlaceOrder", detail)
	require.NoError(t, op.AddOperationProperty("status", "ok"))
	require.NoError(t, op.AddOperationMetric("items", 3))

	// the record is written on release only
	assert.Empty(t, readStream(t, client, testOpsStream))

	clock.Advance(250 * time.Millisecond)
	require.NoError(t, op.Release())

	msgs := readStream(t, client, testOpsStream)
	require.Len(t, msgs, 1)
	assert.Equal(t, RecordKindOperation, msgs[0].Values["kind"])

	var record OperationRecord
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &record))
	assert.Equal(t, msgs[0].Values["id"], record.ID)
	assert.Equal(t, "PlaceOrder", record.Name)
	assert.Equal(t, map[string]string{"Category": "Orders", "status": "ok"}, record.Properties)
	assert.Equal(t, map[string]float64{"items": 3}, record.Metrics)
	assert.Equal(t, 250.0, record.DurationMs)
	assert.Equal(t, span.SpanContext().TraceID().String(), record.TraceID)

	// the caller's detail is snapshotted, not mutated
	assert.Equal(t, map[string]string{"Category": "Orders"}, detail.Properties())

	h := sinks.Health()
	assert.Equal(t, int64(1), h.OperationsStarted)
	assert.Equal(t, int64(1), h.OperationsReleased)
	assert.Equal(t, int64(1), h.Delivered)
}

func TestRedisSinksReleaseTwice(t *testing.T) {
	_, client := setupTestRedis(t)
	sinks, _ := newTestRedisSinks(t, client, CircuitConfig{})

	_, op := sinks.StartOperation(context.Background(), "op", nil)
	require.NoError(t, op.Release())
	assert.ErrorIs(t, op.Release(), core.ErrAlreadyReleased)
	assert.ErrorIs(t, op.AddOperationProperty("k", "v"), core.ErrAlreadyReleased)
	assert.Len(t, readStream(t, client, testOpsStream), 1)
}

func TestRedisSinksReportException(t *testing.T) {
	_, client := setupTestRedis(t)
	sinks, _ := newTestRedisSinks(t, client, CircuitConfig{})

	sinks.ReportException(context.Background(), errors.New("card declined"), instrumentation.NewDetail(map[string]string{"Category": "Payments"}, nil))
	sinks.ReportException(context.Background(), nil, nil)

	msgs := readStream(t, client, testExcStream)
	require.Len(t, msgs, 1)
	assert.Equal(t, RecordKindException, msgs[0].Values["kind"])

	var record ExceptionRecord
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &record))
	assert.Equal(t, "card declined", record.Error)
	assert.Equal(t, "*errors.errorString", record.ErrorType)
	assert.Equal(t, "Payments", record.Properties["Category"])
	assert.Equal(t, int64(1), sinks.Health().ExceptionsReported)
}

func TestRedisSinksDeliveryFailureOpensCircuit(t *testing.T) {
	mr, client := setupTestRedis(t)
	sinks, clock := newTestRedisSinks(t, client, CircuitConfig{MaxFailures: 2, RecoveryTime: 10 * time.Second})

	mr.SetError("ERR simulated outage")

	for i := 0; i < 2; i++ {
		_, op := sinks.StartOperation(context.Background(), "op", nil)
		err := op.Release()
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrDeliveryFailed)
	}
	assert.Equal(t, CircuitOpen, sinks.Health().CircuitState)

	_, op := sinks.StartOperation(context.Background(), "op", nil)
	err := op.Release()
	assert.ErrorIs(t, err, core.ErrCircuitOpen)

	h := sinks.Health()
	assert.Equal(t, int64(2), h.Errors)
	assert.Equal(t, int64(1), h.Dropped)
	assert.Contains(t, h.LastError, "simulated outage")

	// recovery
	mr.SetError("")
	clock.Advance(11 * time.Second)
	_, op = sinks.StartOperation(context.Background(), "op", nil)
	require.NoError(t, op.Release())
	assert.Equal(t, CircuitClosed, sinks.Health().CircuitState)
	assert.Len(t, readStream(t, client, testOpsStream), 1)
}

func TestRedisSinksRetriesDelivery(t *testing.T) {
	mr, client := setupTestRedis(t)
	sinks, _ := newTestRedisSinks(t, client, CircuitConfig{MaxFailures: 2})
	sinks.opts.Retry = &resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	mr.SetError("ERR simulated outage")
	_, op := sinks.StartOperation(context.Background(), "op", nil)
	err := op.Release()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDeliveryFailed)
	assert.Contains(t, err.Error(), "max retry attempts (3) exceeded")

	// one exhausted retry loop counts as a single breaker failure
	h := sinks.Health()
	assert.Equal(t, CircuitClosed, h.CircuitState)
	assert.Equal(t, int64(1), h.Errors)

	mr.SetError("")
	_, op = sinks.StartOperation(context.Background(), "op", nil)
	require.NoError(t, op.Release())
	assert.Len(t, readStream(t, client, testOpsStream), 1)
}

func TestRetryConfigFromAttempts(t *testing.T) {
	assert.Nil(t, retryConfig(0))
	assert.Nil(t, retryConfig(1))
	cfg := retryConfig(4)
	require.NotNil(t, cfg)
	assert.Equal(t, 4, cfg.MaxAttempts)
}

func TestAddRedisInstrumentation(t *testing.T) {
	_, client := setupTestRedis(t)
	sinks, _ := newTestRedisSinks(t, client, CircuitConfig{})

	assert.True(t, core.IsUsageError(AddRedisInstrumentation(nil, sinks)))

	reg := registry.New()
	require.NoError(t, AddRedisInstrumentation(reg, sinks))
	_, err := instrumentation.AddInstrumentation(reg)
	require.NoError(t, err)

	type checkout struct{}
	ops, err := instrumentation.OperationsFor[checkout](reg)
	require.NoError(t, err)
	_, op := ops.StartOperation(context.Background(), "Pay", nil)
	require.NoError(t, op.Release())

	msgs := readStream(t, client, testOpsStream)
	require.Len(t, msgs, 1)
	var record OperationRecord
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &record))
	assert.Equal(t, instrumentation.TagOf[checkout](), record.Properties[instrumentation.DefaultSourcePropertyName])
}
