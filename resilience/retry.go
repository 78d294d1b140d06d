// Package resilience retries failing calls with exponential backoff.
package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/grafana/dskit/backoff"

	"github.com/itsneelabh/gomind-monitoring/core"
)

// RetryConfig configures retry behavior. Delays double from InitialDelay up
// to MaxDelay, with jitter.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig returns three attempts starting at 100ms.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}

// Retry calls fn until it succeeds, config.MaxAttempts is reached or ctx is
// done. A nil config means DefaultRetryConfig. The returned error wraps both
// the last failure and core.ErrMaxRetriesExceeded.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	attempts := max(config.MaxAttempts, 1)

	b := backoff.New(ctx, backoff.Config{
		MinBackoff: config.InitialDelay,
		MaxBackoff: max(config.MaxDelay, config.InitialDelay),
		MaxRetries: attempts,
	})

	var lastErr error
	for b.Ongoing() {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		b.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("max retry attempts (%d) exceeded: %w: %w", b.NumRetries(), lastErr, core.ErrMaxRetriesExceeded)
}
