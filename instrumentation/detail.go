package instrumentation

// Detail is optional extra information attached to an operation or an
// exception report.
//
// A nil map is absent; an allocated map, even an empty one, is present.
// The accessors Properties and Metrics allocate on first use, so once a
// collection is present it stays present.
//
// Detail is not safe for concurrent mutation.
type Detail struct {
	properties map[string]string
	metrics    map[string]float64
}

// NewDetail builds a Detail around the given maps. The maps are kept by
// reference; either may be nil.
func NewDetail(properties map[string]string, metrics map[string]float64) *Detail {
	return &Detail{properties: properties, metrics: metrics}
}

// Properties returns the property map, allocating it if absent.
func (d *Detail) Properties() map[string]string {
	if d.properties == nil {
		d.properties = make(map[string]string)
	}
	return d.properties
}

// Metrics returns the metric map, allocating it if absent.
func (d *Detail) Metrics() map[string]float64 {
	if d.metrics == nil {
		d.metrics = make(map[string]float64)
	}
	return d.metrics
}

// PropertiesIfPresent returns the property map without allocating.
// It returns nil for a nil Detail or when properties are absent.
func (d *Detail) PropertiesIfPresent() map[string]string {
	if d == nil {
		return nil
	}
	return d.properties
}

// MetricsIfPresent returns the metric map without allocating.
// It returns nil for a nil Detail or when metrics are absent.
func (d *Detail) MetricsIfPresent() map[string]float64 {
	if d == nil {
		return nil
	}
	return d.metrics
}

// WithProperty sets a property and returns d.
func (d *Detail) WithProperty(name, value string) *Detail {
	d.Properties()[name] = value
	return d
}

// WithMetric sets a metric and returns d.
func (d *Detail) WithMetric(name string, value float64) *Detail {
	d.Metrics()[name] = value
	return d
}

// MergeDetails combines details into a new Detail with fresh maps. Later
// details win on duplicate keys. A collection is present in the result only
// if at least one input had it present. Nil details are skipped.
func MergeDetails(details ...*Detail) *Detail {
	out := &Detail{}
	for _, d := range details {
		if props := d.PropertiesIfPresent(); props != nil {
			p := out.Properties()
			for k, v := range props {
				p[k] = v
			}
		}
		if metrics := d.MetricsIfPresent(); metrics != nil {
			m := out.Metrics()
			for k, v := range metrics {
				m[k] = v
			}
		}
	}
	return out
}
