// Package instrumentation is a backend-neutral facade for reporting timed
// operations and exceptions.
//
// Application code depends only on two contracts:
//
//	OperationsSink   StartOperation(ctx, name, detail) -> (ctx, OperationInstance)
//	ExceptionsSink   ReportException(ctx, err, detail)
//
// and on their source-typed variants SourceOperationsSink[T] and
// SourceExceptionsSink[T], which carry the reporting component's type as a
// compile-time tag. Backends (OpenTelemetry, Redis streams, Prometheus, the
// in-memory recorder used by tests) implement the plain contracts.
//
// # Detail
//
// A *Detail carries optional string properties and float metrics. A nil map
// means "absent"; readers use PropertiesIfPresent/MetricsIfPresent to tell
// absent from empty without allocating.
//
// # Null sinks
//
// NullOperationsSink and NullExceptionsSink discard everything. The null
// operations sink hands out one shared OperationInstance, so starting an
// operation against it never allocates.
//
// # Source tagging
//
// TaggingOperationsSink and TaggingExceptionsSink wrap a plain sink and add
// one property, by default "Category", whose value is the source type's
// package-qualified name with type arguments stripped:
//
//	type Checkout struct{}
//	ops, _ := instrumentation.OperationsFor[Checkout](reg)
//	ctx, op := ops.StartOperation(ctx, "PlaceOrder", nil)
//	// backend sees Category=example.com/shop/orders.Checkout
//
// # Wiring
//
// AddInstrumentation registers null sinks and tagging decorators for
// whatever is still missing in a registry, so it is safe to call before or
// after a backend has registered its own sinks:
//
//	reg := registry.New()
//	telemetry.AddOTelInstrumentation(reg, provider)
//	instrumentation.AddInstrumentation(reg)
//
//	ops, _ := instrumentation.OperationsFor[MyHandler](reg)
package instrumentation
