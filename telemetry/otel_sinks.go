package telemetry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/gomind-monitoring/core"
	"github.com/itsneelabh/gomind-monitoring/instrumentation"
	"github.com/itsneelabh/gomind-monitoring/registry"
)

// SinkOption configures the sinks in this package.
type SinkOption func(*sinkOptions)

type sinkOptions struct {
	logger           core.Logger
	categoryProperty string
}

func defaultSinkOptions() sinkOptions {
	return sinkOptions{
		logger:           &core.NoOpLogger{},
		categoryProperty: instrumentation.DefaultSourcePropertyName,
	}
}

// WithLogger sets the logger backends report delivery problems to.
func WithLogger(logger core.Logger) SinkOption {
	return func(o *sinkOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithCategoryProperty names the property metrics take their category label
// from. It should match the source tagging property name.
func WithCategoryProperty(name string) SinkOption {
	return func(o *sinkOptions) {
		if name != "" {
			o.categoryProperty = name
		}
	}
}

// OTelSinks reports operations as spans and exceptions as span errors, and
// records operation durations and exception counts as OTel metrics.
// It implements both instrumentation.OperationsSink and
// instrumentation.ExceptionsSink.
type OTelSinks struct {
	tracer      trace.Tracer
	instruments *MetricInstruments
	limiter     *CardinalityLimiter
	stats       *Stats
	logger      core.Logger
	category    string
}

// NewOTelSinks creates the OTel sinks on top of provider.
func NewOTelSinks(provider *Provider, opts ...SinkOption) *OTelSinks {
	o := defaultSinkOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var limiter *CardinalityLimiter
	if maxNames := provider.Config().MaxOperationNames; maxNames > 0 {
		limiter = NewCardinalityLimiter(map[string]int{"operation": maxNames})
	}

	return &OTelSinks{
		tracer:      provider.Tracer(),
		instruments: NewMetricInstruments(provider.Meter()),
		limiter:     limiter,
		stats:       newStats(),
		logger:      core.ForComponent(o.logger, "telemetry/otel"),
		category:    o.categoryProperty,
	}
}

// StartOperation starts a span named name, child of the span in ctx.
func (s *OTelSinks) StartOperation(ctx context.Context, name string, detail *instrumentation.Detail) (context.Context, instrumentation.OperationInstance) {
	if name == "" {
		s.logger.Warn("Operation started without a name, ignoring", nil)
		return ctx, instrumentation.NullOperation()
	}

	ctx, span := s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(detailAttributes(detail)...),
	)
	s.stats.started.Add(1)

	return ctx, &otelOperation{
		sinks:    s,
		ctx:      ctx,
		span:     span,
		name:     name,
		category: detail.PropertiesIfPresent()[s.category],
		start:    time.Now(),
	}
}

// ReportException records err on the span in ctx. Without a recording span
// a short-lived "exception" span carries it.
func (s *OTelSinks) ReportException(ctx context.Context, err error, detail *instrumentation.Detail) {
	if err == nil {
		s.logger.Warn("Exception reported without an error, ignoring", nil)
		return
	}
	s.stats.reported.Add(1)

	attrs := detailAttributes(detail)
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		ctx, span = s.tracer.Start(ctx, "exception", trace.WithAttributes(attrs...))
		defer span.End()
	}
	span.RecordError(err, trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, err.Error())

	category := detail.PropertiesIfPresent()[s.category]
	if mErr := s.instruments.RecordCounter(ctx, MetricExceptionCount, 1, metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("error_type", fmt.Sprintf("%T", err)),
	)); mErr != nil {
		s.stats.recordError(mErr)
		s.logger.Error("Failed to record exception metric", map[string]interface{}{"error": mErr})
		return
	}
	s.stats.delivered.Add(1)
}

// Health returns the backend health snapshot.
func (s *OTelSinks) Health() Health {
	h := s.stats.snapshot("otel")
	h.CardinalityUsed = s.limiter.CurrentCardinality()
	h.CardinalityMax = s.limiter.MaxCardinality()
	return h
}

type otelOperation struct {
	sinks *OTelSinks
	ctx   context.Context
	span  trace.Span
	name  string
	start time.Time

	mu       sync.Mutex
	category string
	released bool
}

func (o *otelOperation) AddOperationProperty(name, value string) error {
	if err := instrumentation.ValidateProperty(name, value); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return core.AlreadyReleased("OTelOperation.AddOperationProperty", o.name)
	}
	o.span.SetAttributes(attribute.String(name, value))
	if name == o.sinks.category {
		o.category = value
	}
	return nil
}

func (o *otelOperation) AddOperationMetric(name string, value float64) error {
	if err := instrumentation.ValidateMetricName(name); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return core.AlreadyReleased("OTelOperation.AddOperationMetric", o.name)
	}
	o.span.SetAttributes(attribute.Float64(name, value))
	return nil
}

func (o *otelOperation) AddOperationDetail(detail *instrumentation.Detail) error {
	if err := instrumentation.ValidateDetail(detail); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return core.AlreadyReleased("OTelOperation.AddOperationDetail", o.name)
	}
	o.span.SetAttributes(detailAttributes(detail)...)
	if c, ok := detail.PropertiesIfPresent()[o.sinks.category]; ok {
		o.category = c
	}
	return nil
}

// Release ends the span and records the duration metric.
func (o *otelOperation) Release() error {
	o.mu.Lock()
	if o.released {
		o.mu.Unlock()
		return core.AlreadyReleased("OTelOperation.Release", o.name)
	}
	o.released = true
	category := o.category
	o.mu.Unlock()

	elapsed := time.Since(o.start)
	o.span.End()

	s := o.sinks
	s.stats.released.Add(1)

	labels := metric.WithAttributeSet(attribute.NewSet(
		attribute.String("operation", s.limiter.Limit("operation", o.name)),
		attribute.String("category", category),
	))
	if err := s.instruments.RecordHistogram(o.ctx, MetricOperationDuration, float64(elapsed)/float64(time.Millisecond), labels); err != nil {
		s.stats.recordError(err)
		return &core.InstrumentationError{Op: "OTelOperation.Release", Kind: "delivery", ID: o.name, Message: err.Error(), Err: core.ErrDeliveryFailed}
	}
	if err := s.instruments.RecordCounter(o.ctx, MetricOperationCount, 1, labels); err != nil {
		s.stats.recordError(err)
		return &core.InstrumentationError{Op: "OTelOperation.Release", Kind: "delivery", ID: o.name, Message: err.Error(), Err: core.ErrDeliveryFailed}
	}
	s.stats.delivered.Add(1)
	return nil
}

// detailAttributes converts a detail into span attributes, sorted by key.
func detailAttributes(detail *instrumentation.Detail) []attribute.KeyValue {
	props := detail.PropertiesIfPresent()
	metrics := detail.MetricsIfPresent()
	if len(props) == 0 && len(metrics) == 0 {
		return nil
	}

	attrs := make([]attribute.KeyValue, 0, len(props)+len(metrics))
	for k, v := range props {
		attrs = append(attrs, attribute.String(k, v))
	}
	for k, v := range metrics {
		attrs = append(attrs, attribute.Float64(k, v))
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Key < attrs[j].Key })
	return attrs
}

// AddOTelInstrumentation registers OTel sinks built on provider as the
// plain operations and exceptions sinks of r.
func AddOTelInstrumentation(r *registry.Registry, provider *Provider, opts ...SinkOption) (*OTelSinks, error) {
	if r == nil || provider == nil {
		return nil, core.InvalidArgument("AddOTelInstrumentation", "registry and provider are required")
	}
	opts = append([]SinkOption{WithLogger(r.Logger())}, opts...)
	sinks := NewOTelSinks(provider, opts...)
	r.AddSingleton(instrumentation.OperationsSinkKey, instrumentation.OperationsSink(sinks))
	r.AddSingleton(instrumentation.ExceptionsSinkKey, instrumentation.ExceptionsSink(sinks))
	return sinks, nil
}
