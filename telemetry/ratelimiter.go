package telemetry

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter lets one event through per interval. Backends use it so a
// failing delivery path logs once per interval instead of once per record.
type RateLimiter struct {
	limiter    *rate.Limiter
	suppressed atomic.Int64
	now        func() time.Time
}

// NewRateLimiter creates a limiter allowing one event per interval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		now:     time.Now,
	}
}

// Allow reports whether an event may pass. Refused events are counted.
func (r *RateLimiter) Allow() bool {
	if r.limiter.AllowN(r.now(), 1) {
		return true
	}
	r.suppressed.Add(1)
	return false
}

// TakeSuppressed returns how many events were refused since the last call
// and resets the count.
func (r *RateLimiter) TakeSuppressed() int64 {
	return r.suppressed.Swap(0)
}
