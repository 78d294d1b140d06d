// Package instrumentationtest provides in-memory sinks that record what they
// receive, for use in tests.
//
// A Recorder implements both plain sink contracts and validates its inputs
// the way a strict backend would: empty names, nil errors and use after
// release are reported as errors.
//
//	rec := instrumentationtest.NewRecorder()
//	rec.AddNonGenericTo(reg)
//	instrumentation.AddInstrumentation(reg)
//	... exercise code ...
//	require.Len(t, rec.Operations(), 1)
package instrumentationtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/itsneelabh/gomind-monitoring/core"
	"github.com/itsneelabh/gomind-monitoring/instrumentation"
	"github.com/itsneelabh/gomind-monitoring/registry"
)

// RecordedOperation is an operation started on a Recorder.
type RecordedOperation struct {
	ID     string
	Name   string
	Source string // set when recorded through a source-typed sink

	// Detail is the detail passed to StartOperation, by reference.
	Detail *instrumentation.Detail
	// FurtherDetails are details passed whole through AddOperationDetail,
	// by reference and in order.
	FurtherDetails []*instrumentation.Detail

	Started time.Time

	mu       sync.Mutex
	added    *instrumentation.Detail
	ended    time.Time
	released bool
	now      func() time.Time
}

// AddOperationProperty records a property added after start.
func (o *RecordedOperation) AddOperationProperty(name, value string) error {
	if err := instrumentation.ValidateProperty(name, value); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return core.AlreadyReleased("RecordedOperation.AddOperationProperty", o.ID)
	}
	o.added.WithProperty(name, value)
	return nil
}

// AddOperationMetric records a metric added after start.
func (o *RecordedOperation) AddOperationMetric(name string, value float64) error {
	if err := instrumentation.ValidateMetricName(name); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return core.AlreadyReleased("RecordedOperation.AddOperationMetric", o.ID)
	}
	o.added.WithMetric(name, value)
	return nil
}

// AddOperationDetail records detail itself.
func (o *RecordedOperation) AddOperationDetail(detail *instrumentation.Detail) error {
	if detail == nil {
		return core.InvalidArgument("RecordedOperation.AddOperationDetail", "detail must not be nil")
	}
	if err := instrumentation.ValidateDetail(detail); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return core.AlreadyReleased("RecordedOperation.AddOperationDetail", o.ID)
	}
	o.FurtherDetails = append(o.FurtherDetails, detail)
	return nil
}

// Release ends the operation. A second call fails.
func (o *RecordedOperation) Release() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return core.AlreadyReleased("RecordedOperation.Release", o.ID)
	}
	o.released = true
	o.ended = o.now()
	return nil
}

// IsReleased reports whether Release has been called.
func (o *RecordedOperation) IsReleased() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.released
}

// Duration returns the time between start and release.
func (o *RecordedOperation) Duration() (time.Duration, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.released {
		return 0, &core.InstrumentationError{
			Op:   "RecordedOperation.Duration",
			Kind: "usage",
			ID:   o.ID,
			Err:  fmt.Errorf("operation %q not released yet: %w", o.Name, core.ErrNotConfigured),
		}
	}
	return o.ended.Sub(o.Started), nil
}

// Added returns a copy of the properties and metrics added one at a time
// after start.
func (o *RecordedOperation) Added() *instrumentation.Detail {
	o.mu.Lock()
	defer o.mu.Unlock()
	return instrumentation.MergeDetails(o.added)
}

// Properties returns every property the operation carries: start detail,
// then further details, then individually added ones.
func (o *RecordedOperation) Properties() map[string]string {
	return o.merged().PropertiesIfPresent()
}

// Metrics returns every metric the operation carries.
func (o *RecordedOperation) Metrics() map[string]float64 {
	return o.merged().MetricsIfPresent()
}

func (o *RecordedOperation) merged() *instrumentation.Detail {
	o.mu.Lock()
	defer o.mu.Unlock()
	all := make([]*instrumentation.Detail, 0, len(o.FurtherDetails)+2)
	all = append(all, o.Detail)
	all = append(all, o.FurtherDetails...)
	all = append(all, o.added)
	return instrumentation.MergeDetails(all...)
}

// RecordedException is an exception reported to a Recorder.
type RecordedException struct {
	Err    error
	Detail *instrumentation.Detail
	Source string
}

// Recorder records operations and exceptions in memory. It is safe for
// concurrent use.
type Recorder struct {
	mu                sync.Mutex
	operations        []*RecordedOperation
	exceptions        []RecordedException
	genericOperations []*RecordedOperation
	genericExceptions []RecordedException
	rejected          []error

	now func() time.Time
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// StartOperation records an operation received through the plain sink.
func (r *Recorder) StartOperation(ctx context.Context, name string, detail *instrumentation.Detail) (context.Context, instrumentation.OperationInstance) {
	return r.start(ctx, name, detail, "", &r.operations)
}

// ReportException records an exception received through the plain sink.
func (r *Recorder) ReportException(ctx context.Context, err error, detail *instrumentation.Detail) {
	r.report(err, detail, "", &r.exceptions)
}

func (r *Recorder) start(ctx context.Context, name string, detail *instrumentation.Detail, source string, into *[]*RecordedOperation) (context.Context, instrumentation.OperationInstance) {
	if name == "" {
		r.reject(core.InvalidArgument("Recorder.StartOperation", "operation name must not be empty"))
		return ctx, instrumentation.NullOperation()
	}
	op := &RecordedOperation{
		ID:      uuid.NewString(),
		Name:    name,
		Source:  source,
		Detail:  detail,
		Started: r.now(),
		added:   &instrumentation.Detail{},
		now:     r.now,
	}
	r.mu.Lock()
	*into = append(*into, op)
	r.mu.Unlock()
	return ctx, op
}

func (r *Recorder) report(err error, detail *instrumentation.Detail, source string, into *[]RecordedException) {
	if err == nil {
		r.reject(core.InvalidArgument("Recorder.ReportException", "error must not be nil"))
		return
	}
	r.mu.Lock()
	*into = append(*into, RecordedException{Err: err, Detail: detail, Source: source})
	r.mu.Unlock()
}

func (r *Recorder) reject(err error) {
	r.mu.Lock()
	r.rejected = append(r.rejected, err)
	r.mu.Unlock()
}

// Operations returns operations received through the plain sink.
func (r *Recorder) Operations() []*RecordedOperation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*RecordedOperation(nil), r.operations...)
}

// Exceptions returns exceptions received through the plain sink.
func (r *Recorder) Exceptions() []RecordedException {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedException(nil), r.exceptions...)
}

// GenericOperations returns operations received through source-typed sinks
// registered with AddGenericTo.
func (r *Recorder) GenericOperations() []*RecordedOperation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*RecordedOperation(nil), r.genericOperations...)
}

// GenericExceptions returns exceptions received through source-typed sinks.
func (r *Recorder) GenericExceptions() []RecordedException {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedException(nil), r.genericExceptions...)
}

// Rejected returns the validation errors for calls the Recorder refused.
func (r *Recorder) Rejected() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.rejected...)
}

// AddNonGenericTo registers the Recorder as the plain sinks of reg.
func (r *Recorder) AddNonGenericTo(reg *registry.Registry) {
	reg.AddSingleton(instrumentation.OperationsSinkKey, instrumentation.OperationsSink(r))
	reg.AddSingleton(instrumentation.ExceptionsSinkKey, instrumentation.ExceptionsSink(r))
}

// AddGenericTo registers the Recorder as the source-typed sinks of reg.
// Reports through them land in GenericOperations and GenericExceptions.
func (r *Recorder) AddGenericTo(reg *registry.Registry) {
	instrumentation.AddSourceOperationsSink(reg, func(s instrumentation.Source) (instrumentation.OperationsSink, error) {
		return &sourceOperations{rec: r, source: s.Tag()}, nil
	})
	instrumentation.AddSourceExceptionsSink(reg, func(s instrumentation.Source) (instrumentation.ExceptionsSink, error) {
		return &sourceExceptions{rec: r, source: s.Tag()}, nil
	})
}

type sourceOperations struct {
	rec    *Recorder
	source string
}

func (s *sourceOperations) StartOperation(ctx context.Context, name string, detail *instrumentation.Detail) (context.Context, instrumentation.OperationInstance) {
	return s.rec.start(ctx, name, detail, s.source, &s.rec.genericOperations)
}

type sourceExceptions struct {
	rec    *Recorder
	source string
}

func (s *sourceExceptions) ReportException(ctx context.Context, err error, detail *instrumentation.Detail) {
	s.rec.report(err, detail, s.source, &s.rec.genericExceptions)
}
