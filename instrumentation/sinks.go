package instrumentation

import "context"

// OperationsSink starts timed operations.
//
// The returned context carries backend correlation state (the current span,
// for example); operations started from it nest under the new one. detail
// may be nil. StartOperation never fails; backends report delivery problems
// from OperationInstance.Release.
type OperationsSink interface {
	StartOperation(ctx context.Context, name string, detail *Detail) (context.Context, OperationInstance)
}

// ExceptionsSink records errors that were caught and handled.
// detail may be nil.
type ExceptionsSink interface {
	ReportException(ctx context.Context, err error, detail *Detail)
}

// SourceOperationsSink is an OperationsSink whose reports are attributed to
// the source type T. T is only a tag; its values are never used.
type SourceOperationsSink[T any] interface {
	OperationsSink
}

// SourceExceptionsSink is an ExceptionsSink whose reports are attributed to
// the source type T.
type SourceExceptionsSink[T any] interface {
	ExceptionsSink
}
