package instrumentation

import (
	"context"
	"maps"

	"github.com/itsneelabh/gomind-monitoring/core"
)

// DefaultSourcePropertyName is the property source tags are written under
// unless configured otherwise.
const DefaultSourcePropertyName = "Category"

// TaggingPropertySource produces the detail a tagging decorator forwards.
type TaggingPropertySource struct {
	propertyName string
}

// NewTaggingPropertySource returns a property source writing tags under
// propertyName, which must not be empty.
func NewTaggingPropertySource(propertyName string) (*TaggingPropertySource, error) {
	if propertyName == "" {
		return nil, core.InvalidArgument("NewTaggingPropertySource", "property name must not be empty")
	}
	return &TaggingPropertySource{propertyName: propertyName}, nil
}

// PropertyName returns the property the tag is written under.
func (p *TaggingPropertySource) PropertyName() string {
	return p.propertyName
}

// Detail returns the detail to forward for supplied: a fresh properties map
// holding a copy of the supplied properties plus the tag, and the supplied
// metrics map itself (nil stays nil). supplied is not modified.
func (p *TaggingPropertySource) Detail(tag string, supplied *Detail) *Detail {
	props := maps.Clone(supplied.PropertiesIfPresent())
	if props == nil {
		props = make(map[string]string, 1)
	}
	props[p.propertyName] = tag
	return NewDetail(props, supplied.MetricsIfPresent())
}

// TaggingOperationsSink forwards operations to another sink, adding the
// source tag to the start detail.
type TaggingOperationsSink struct {
	properties *TaggingPropertySource
	underlying OperationsSink
	source     Source
	tag        string
}

// NewTaggingOperationsSink wraps underlying for source.
func NewTaggingOperationsSink(properties *TaggingPropertySource, underlying OperationsSink, source Source) (*TaggingOperationsSink, error) {
	if properties == nil || underlying == nil {
		return nil, core.InvalidArgument("NewTaggingOperationsSink", "property source and underlying sink are required")
	}
	return &TaggingOperationsSink{
		properties: properties,
		underlying: underlying,
		source:     source,
		tag:        source.Tag(),
	}, nil
}

// StartOperation starts the operation on the wrapped sink and returns its
// result unchanged.
func (s *TaggingOperationsSink) StartOperation(ctx context.Context, name string, detail *Detail) (context.Context, OperationInstance) {
	return s.underlying.StartOperation(ctx, name, s.properties.Detail(s.tag, detail))
}

// Source returns the source this sink tags with.
func (s *TaggingOperationsSink) Source() Source {
	return s.source
}

// TaggingExceptionsSink forwards exception reports to another sink, adding
// the source tag to the detail.
type TaggingExceptionsSink struct {
	properties *TaggingPropertySource
	underlying ExceptionsSink
	source     Source
	tag        string
}

// NewTaggingExceptionsSink wraps underlying for source.
func NewTaggingExceptionsSink(properties *TaggingPropertySource, underlying ExceptionsSink, source Source) (*TaggingExceptionsSink, error) {
	if properties == nil || underlying == nil {
		return nil, core.InvalidArgument("NewTaggingExceptionsSink", "property source and underlying sink are required")
	}
	return &TaggingExceptionsSink{
		properties: properties,
		underlying: underlying,
		source:     source,
		tag:        source.Tag(),
	}, nil
}

// ReportException forwards to the wrapped sink.
func (s *TaggingExceptionsSink) ReportException(ctx context.Context, err error, detail *Detail) {
	s.underlying.ReportException(ctx, err, s.properties.Detail(s.tag, detail))
}

// Source returns the source this sink tags with.
func (s *TaggingExceptionsSink) Source() Source {
	return s.source
}

// TaggedOperations wraps underlying as a SourceOperationsSink for T.
func TaggedOperations[T any](properties *TaggingPropertySource, underlying OperationsSink) (SourceOperationsSink[T], error) {
	s, err := NewTaggingOperationsSink(properties, underlying, SourceOf[T]())
	if err != nil {
		return nil, err
	}
	return s, nil
}

// TaggedExceptions wraps underlying as a SourceExceptionsSink for T.
func TaggedExceptions[T any](properties *TaggingPropertySource, underlying ExceptionsSink) (SourceExceptionsSink[T], error) {
	s, err := NewTaggingExceptionsSink(properties, underlying, SourceOf[T]())
	if err != nil {
		return nil, err
	}
	return s, nil
}
