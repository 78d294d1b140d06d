package instrumentation

import (
	"fmt"
	"reflect"

	"github.com/itsneelabh/gomind-monitoring/core"
	"github.com/itsneelabh/gomind-monitoring/registry"
)

// Registry keys used by this package.
const (
	OperationsSinkKey        registry.ServiceKey = "instrumentation.OperationsSink"
	ExceptionsSinkKey        registry.ServiceKey = "instrumentation.ExceptionsSink"
	SourceOperationsSinkKey  registry.ServiceKey = "instrumentation.SourceOperationsSink[T]"
	SourceExceptionsSinkKey  registry.ServiceKey = "instrumentation.SourceExceptionsSink[T]"
	TaggingPropertySourceKey registry.ServiceKey = "instrumentation.TaggingPropertySource"
)

type options struct {
	propertyName string
}

// Option configures AddInstrumentation.
type Option func(*options)

// WithSourcePropertyName sets the property the source tag is written under.
func WithSourcePropertyName(name string) Option {
	return func(o *options) {
		o.propertyName = name
	}
}

// AddSourceTagging registers the tagging property source and the tagging
// decorators as the source-typed sinks. The decorators resolve the plain
// sinks when they are first resolved themselves, so plain sinks registered
// later are still picked up.
func AddSourceTagging(r *registry.Registry, propertyName string) (*registry.Registry, error) {
	if r == nil {
		return nil, core.InvalidArgument("AddSourceTagging", "registry must not be nil")
	}
	ps, err := NewTaggingPropertySource(propertyName)
	if err != nil {
		return nil, err
	}

	r.AddSingleton(TaggingPropertySourceKey, ps)
	r.AddOpenSingleton(SourceOperationsSinkKey, taggingOperationsFactory)
	r.AddOpenSingleton(SourceExceptionsSinkKey, taggingExceptionsFactory)
	return r, nil
}

// AddInstrumentation registers, for each service still missing from r:
//   - NullOperationsSink as the plain operations sink
//   - NullExceptionsSink as the plain exceptions sink
//   - the tagging property source
//   - the tagging decorators as source-typed operations and exceptions sinks
//
// Existing registrations are left alone, so calling it more than once, or
// before or after a backend registers its sinks, gives the same result.
// It returns r.
func AddInstrumentation(r *registry.Registry, opts ...Option) (*registry.Registry, error) {
	if r == nil {
		return nil, core.InvalidArgument("AddInstrumentation", "registry must not be nil")
	}

	o := options{propertyName: DefaultSourcePropertyName}
	for _, opt := range opts {
		opt(&o)
	}
	ps, err := NewTaggingPropertySource(o.propertyName)
	if err != nil {
		return nil, err
	}

	logger := r.Logger()
	added := map[string]interface{}{
		"operations_sink":        r.TryAddSingleton(OperationsSinkKey, OperationsSink(NullOperationsSink{})),
		"exceptions_sink":        r.TryAddSingleton(ExceptionsSinkKey, ExceptionsSink(NullExceptionsSink{})),
		"property_source":        r.TryAddSingleton(TaggingPropertySourceKey, ps),
		"source_operations_sink": r.TryAddOpenSingleton(SourceOperationsSinkKey, taggingOperationsFactory),
		"source_exceptions_sink": r.TryAddOpenSingleton(SourceExceptionsSinkKey, taggingExceptionsFactory),
	}
	logger.Debug("Instrumentation defaults applied", added)

	return r, nil
}

// AddSourceOperationsSink registers build as the source-typed operations
// sink. build is called once per source type.
func AddSourceOperationsSink(r *registry.Registry, build func(Source) (OperationsSink, error)) {
	r.AddOpenSingleton(SourceOperationsSinkKey, func(_ *registry.Registry, t reflect.Type) (any, error) {
		return build(SourceFromType(t))
	})
}

// AddSourceExceptionsSink registers build as the source-typed exceptions
// sink. build is called once per source type.
func AddSourceExceptionsSink(r *registry.Registry, build func(Source) (ExceptionsSink, error)) {
	r.AddOpenSingleton(SourceExceptionsSinkKey, func(_ *registry.Registry, t reflect.Type) (any, error) {
		return build(SourceFromType(t))
	})
}

func taggingOperationsFactory(r *registry.Registry, t reflect.Type) (any, error) {
	ps, err := registry.ResolveAs[*TaggingPropertySource](r, TaggingPropertySourceKey)
	if err != nil {
		return nil, err
	}
	underlying, err := Operations(r)
	if err != nil {
		return nil, err
	}
	return NewTaggingOperationsSink(ps, underlying, SourceFromType(t))
}

func taggingExceptionsFactory(r *registry.Registry, t reflect.Type) (any, error) {
	ps, err := registry.ResolveAs[*TaggingPropertySource](r, TaggingPropertySourceKey)
	if err != nil {
		return nil, err
	}
	underlying, err := Exceptions(r)
	if err != nil {
		return nil, err
	}
	return NewTaggingExceptionsSink(ps, underlying, SourceFromType(t))
}

// Operations resolves the plain operations sink.
func Operations(r *registry.Registry) (OperationsSink, error) {
	return registry.ResolveAs[OperationsSink](r, OperationsSinkKey)
}

// Exceptions resolves the plain exceptions sink.
func Exceptions(r *registry.Registry) (ExceptionsSink, error) {
	return registry.ResolveAs[ExceptionsSink](r, ExceptionsSinkKey)
}

// OperationsFor resolves the operations sink for source T.
func OperationsFor[T any](r *registry.Registry) (SourceOperationsSink[T], error) {
	v, err := r.ResolveOpen(SourceOperationsSinkKey, reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	sink, ok := v.(SourceOperationsSink[T])
	if !ok {
		return nil, &core.InstrumentationError{
			Op:      "OperationsFor",
			Kind:    "registry",
			ID:      TagOf[T](),
			Message: fmt.Sprintf("registered %T is not an operations sink", v),
			Err:     core.ErrResolutionFailure,
		}
	}
	return sink, nil
}

// ExceptionsFor resolves the exceptions sink for source T.
func ExceptionsFor[T any](r *registry.Registry) (SourceExceptionsSink[T], error) {
	v, err := r.ResolveOpen(SourceExceptionsSinkKey, reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	sink, ok := v.(SourceExceptionsSink[T])
	if !ok {
		return nil, &core.InstrumentationError{
			Op:      "ExceptionsFor",
			Kind:    "registry",
			ID:      TagOf[T](),
			Message: fmt.Sprintf("registered %T is not an exceptions sink", v),
			Err:     core.ErrResolutionFailure,
		}
	}
	return sink, nil
}
