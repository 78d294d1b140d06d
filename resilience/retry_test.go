package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/gomind-monitoring/core"
)

func fastConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_Exhausted(t *testing.T) {
	cause := errors.New("connection refused")
	calls := 0
	err := Retry(context.Background(), fastConfig(3), func() error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, core.ErrMaxRetriesExceeded)
	assert.ErrorIs(t, err, cause)
	assert.True(t, core.IsDeliveryError(err))
	assert.Contains(t, err.Error(), "max retry attempts (3) exceeded")
}

func TestRetry_SingleAttempt(t *testing.T) {
	cause := errors.New("boom")
	for _, attempts := range []int{0, 1} {
		calls := 0
		err := Retry(context.Background(), fastConfig(attempts), func() error {
			calls++
			return cause
		})
		assert.Equal(t, 1, calls)
		assert.Same(t, cause, err, "a single attempt returns the error unwrapped")
	}
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, &RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, func() error {
		calls++
		cancel()
		return errors.New("fail")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.MaxDelay)
}
