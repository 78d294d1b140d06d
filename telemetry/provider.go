package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/itsneelabh/gomind-monitoring/core"
)

// InstrumentationName is the tracer and meter name used by the OTel sinks.
const InstrumentationName = "github.com/itsneelabh/gomind-monitoring/telemetry"

// Provider owns the tracer and meter providers the OTel sinks report to.
type Provider struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	shutdownFuncs  []func(context.Context) error
	config         Config
}

// NewProvider builds tracer and meter providers from cfg, installs them as
// the global providers and installs the W3C trace context and baggage
// propagators. Call Shutdown on exit.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	p := &Provider{config: cfg}

	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		return nil, err
	}
	if tp != nil {
		p.tracerProvider = tp
		p.shutdownFuncs = append(p.shutdownFuncs, tp.Shutdown)
	} else {
		p.tracerProvider = tracenoop.NewTracerProvider()
	}

	mp, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}
	if mp != nil {
		p.meterProvider = mp
		p.shutdownFuncs = append(p.shutdownFuncs, mp.Shutdown)
	} else {
		p.meterProvider = metricnoop.NewMeterProvider()
	}

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetMeterProvider(p.meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return p, nil
}

// NewProviderFrom wraps existing providers without touching globals.
// Tests use it with a span recorder and a manual metric reader.
func NewProviderFrom(tp trace.TracerProvider, mp metric.MeterProvider, cfg Config) *Provider {
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	return &Provider{tracerProvider: tp, meterProvider: mp, config: cfg}
}

// Tracer returns the tracer used by the sinks.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracerProvider.Tracer(InstrumentationName)
}

// Meter returns the meter used by the sinks.
func (p *Provider) Meter() metric.Meter {
	return p.meterProvider.Meter(InstrumentationName)
}

// Config returns the configuration the provider was built with.
func (p *Provider) Config() Config {
	return p.config
}

// Shutdown flushes and stops the providers it created.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(p.shutdownFuncs) - 1; i >= 0; i-- {
		if err := p.shutdownFuncs[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdownFuncs = nil
	return errors.Join(errs...)
}

func newTracerProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)

	switch cfg.TraceExporter {
	case "", "none":
		return nil, nil
	case "otlp":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case "otlphttp":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(httpEndpoint(cfg.Endpoint))}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return nil, &core.InstrumentationError{
			Op:      "telemetry.NewProvider",
			Kind:    "config",
			Message: fmt.Sprintf("unknown trace exporter %q", cfg.TraceExporter),
			Err:     core.ErrInvalidConfiguration,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	rate := cfg.SamplingRate
	if rate <= 0 {
		rate = 1.0
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	), nil
}

func newMeterProvider(ctx context.Context, cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	var (
		exporter sdkmetric.Exporter
		err      error
	)

	switch cfg.MetricExporter {
	case "", "none":
		return nil, nil
	case "otlp":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(httpEndpoint(cfg.Endpoint))}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
	case "stdout":
		exporter, err = stdoutmetric.New()
	default:
		return nil, &core.InstrumentationError{
			Op:      "telemetry.NewProvider",
			Kind:    "config",
			Message: fmt.Sprintf("unknown metric exporter %q", cfg.MetricExporter),
			Err:     core.ErrInvalidConfiguration,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	), nil
}

// httpEndpoint maps the gRPC collector port to the OTLP/HTTP one. Metrics
// are always exported over OTLP/HTTP.
func httpEndpoint(endpoint string) string {
	const grpcPort, httpPort = ":4317", ":4318"
	if len(endpoint) > len(grpcPort) && endpoint[len(endpoint)-len(grpcPort):] == grpcPort {
		return endpoint[:len(endpoint)-len(grpcPort)] + httpPort
	}
	return endpoint
}
