package instrumentation

import "context"

// NullOperationsSink discards operations.
type NullOperationsSink struct{}

// NullExceptionsSink discards exception reports.
type NullExceptionsSink struct{}

// nullOp is the one operation handed out by every NullOperationsSink.
var nullOp OperationInstance = nullOperation{}

type nullOperation struct{}

func (nullOperation) AddOperationProperty(string, string) error { return nil }
func (nullOperation) AddOperationMetric(string, float64) error  { return nil }
func (nullOperation) AddOperationDetail(*Detail) error          { return nil }
func (nullOperation) Release() error                            { return nil }

// StartOperation returns ctx unchanged and the shared null operation.
func (NullOperationsSink) StartOperation(ctx context.Context, _ string, _ *Detail) (context.Context, OperationInstance) {
	return ctx, nullOp
}

// ReportException does nothing.
func (NullExceptionsSink) ReportException(context.Context, error, *Detail) {}

// NullOperation returns the shared no-op operation.
func NullOperation() OperationInstance {
	return nullOp
}
