package telemetry

import "sync"

// OverflowLabelValue replaces label values once a label's limit is reached.
const OverflowLabelValue = "other"

// CardinalityLimiter caps the number of distinct values a metric label may
// take. Operation names come from application code and can be unbounded
// (a name built from a request path, for example); without a cap each one
// becomes a new time series.
type CardinalityLimiter struct {
	limits map[string]int

	mu   sync.Mutex
	seen map[string]map[string]struct{}
}

// NewCardinalityLimiter creates a limiter with per-label limits. Labels
// without a limit pass through.
func NewCardinalityLimiter(limits map[string]int) *CardinalityLimiter {
	return &CardinalityLimiter{
		limits: limits,
		seen:   make(map[string]map[string]struct{}),
	}
}

// Limit returns value if label is below its limit or value was seen
// before, OverflowLabelValue otherwise.
func (c *CardinalityLimiter) Limit(label, value string) string {
	if c == nil {
		return value
	}
	limit, ok := c.limits[label]
	if !ok || limit <= 0 {
		return value
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	values := c.seen[label]
	if values == nil {
		values = make(map[string]struct{})
		c.seen[label] = values
	}
	if _, known := values[value]; known {
		return value
	}
	if len(values) >= limit {
		return OverflowLabelValue
	}
	values[value] = struct{}{}
	return value
}

// CurrentCardinality returns the number of distinct values admitted.
func (c *CardinalityLimiter) CurrentCardinality() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, values := range c.seen {
		total += len(values)
	}
	return total
}

// MaxCardinality returns the sum of all label limits.
func (c *CardinalityLimiter) MaxCardinality() int {
	if c == nil {
		return 0
	}
	total := 0
	for _, limit := range c.limits {
		total += limit
	}
	return total
}
