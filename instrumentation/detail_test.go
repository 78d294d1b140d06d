package instrumentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetail_AbsentUntilAccessed(t *testing.T) {
	d := &Detail{}
	assert.Nil(t, d.PropertiesIfPresent())
	assert.Nil(t, d.MetricsIfPresent())

	props := d.Properties()
	require.NotNil(t, props)
	assert.Empty(t, props)
	assert.NotNil(t, d.PropertiesIfPresent(), "properties stay present once accessed")
	assert.Nil(t, d.MetricsIfPresent(), "metrics are independent")

	d.Metrics()["latency"] = 12
	assert.Equal(t, map[string]float64{"latency": 12}, d.MetricsIfPresent())
}

func TestDetail_NilReceiverIsAbsent(t *testing.T) {
	var d *Detail
	assert.Nil(t, d.PropertiesIfPresent())
	assert.Nil(t, d.MetricsIfPresent())
}

func TestNewDetail_KeepsReferences(t *testing.T) {
	props := map[string]string{"a": "1"}
	metrics := map[string]float64{"m": 1}
	d := NewDetail(props, metrics)

	props["b"] = "2"
	assert.Equal(t, "2", d.Properties()["b"], "detail aliases the supplied map")

	d.Metrics()["n"] = 2
	assert.Equal(t, 2.0, metrics["n"])

	empty := NewDetail(map[string]string{}, nil)
	assert.NotNil(t, empty.PropertiesIfPresent(), "an empty map is present")
	assert.Nil(t, empty.MetricsIfPresent())
}

func TestDetail_WithHelpersOverwrite(t *testing.T) {
	d := (&Detail{}).
		WithProperty("k", "first").
		WithProperty("k", "second").
		WithMetric("m", 1).
		WithMetric("m", 2)

	assert.Equal(t, map[string]string{"k": "second"}, d.PropertiesIfPresent())
	assert.Equal(t, map[string]float64{"m": 2}, d.MetricsIfPresent())
}

func TestMergeDetails(t *testing.T) {
	a := NewDetail(map[string]string{"k": "a", "only-a": "x"}, nil)
	b := NewDetail(map[string]string{"k": "b"}, map[string]float64{"m": 3})

	merged := MergeDetails(a, nil, b)
	assert.Equal(t, map[string]string{"k": "b", "only-a": "x"}, merged.PropertiesIfPresent())
	assert.Equal(t, map[string]float64{"m": 3}, merged.MetricsIfPresent())

	merged.Properties()["new"] = "y"
	merged.Metrics()["m"] = 9
	assert.NotContains(t, a.PropertiesIfPresent(), "new", "inputs are not aliased")
	assert.Equal(t, 3.0, b.MetricsIfPresent()["m"])

	none := MergeDetails(&Detail{})
	assert.Nil(t, none.PropertiesIfPresent())
	assert.Nil(t, none.MetricsIfPresent())
}
