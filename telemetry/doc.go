// Package telemetry provides the concrete instrumentation backends.
//
// Three backends implement both instrumentation.OperationsSink and
// instrumentation.ExceptionsSink:
//
//   - OTelSinks reports each operation as a span and records duration and
//     count metrics through an OpenTelemetry meter.
//   - RedisSinks appends one JSON record per released operation, and one per
//     exception, to Redis streams. A circuit breaker stops delivery attempts
//     while Redis keeps failing.
//   - PrometheusSinks counts operations and exceptions and observes
//     operation durations in Prometheus collectors.
//
// Each backend has an Add*Instrumentation helper that registers it as the
// plain sinks of a registry. Call it before instrumentation.AddInstrumentation
// so the null defaults are not used:
//
//	cfg, _ := core.NewConfig()
//	provider, err := telemetry.NewProvider(ctx, telemetry.FromCoreConfig(cfg))
//	if err != nil {
//	    return err
//	}
//	defer provider.Shutdown(context.Background())
//
//	reg := registry.New()
//	if _, err := telemetry.AddOTelInstrumentation(reg, provider); err != nil {
//	    return err
//	}
//	if _, err := instrumentation.AddInstrumentation(reg); err != nil {
//	    return err
//	}
//
// # Profiles
//
// NewProvider takes a Config, usually derived from a profile:
//
//	ProfileDevelopment  stdout traces, no metrics, sample everything
//	ProfileStaging      OTLP traces and metrics, 10% sampling
//	ProfileProduction   OTLP traces and metrics, 1% sampling
//
// # Health
//
// Every backend implements HealthReporter. HealthHandler serves their
// snapshots as JSON and answers 503 while a circuit is open.
package telemetry
