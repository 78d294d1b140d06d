package instrumentation

import (
	"fmt"

	"github.com/itsneelabh/gomind-monitoring/core"
)

// OperationInstance is a live handle to a timed operation.
//
// Release ends the operation. The interval between StartOperation and
// Release is the operation's duration. Backends deliver the operation on
// Release and report delivery failures through its error.
//
// After Release, every method returns an error wrapping
// core.ErrAlreadyReleased, except on the null operation which accepts
// anything.
type OperationInstance interface {
	AddOperationProperty(name, value string) error
	AddOperationMetric(name string, value float64) error
	Release() error
}

// DetailAdder is implemented by operations that want to receive a whole
// Detail at once instead of one entry at a time.
type DetailAdder interface {
	AddOperationDetail(detail *Detail) error
}

// AddOperationDetail adds every property and metric of detail to op.
// A nil detail, or one with nothing present, adds nothing.
func AddOperationDetail(op OperationInstance, detail *Detail) error {
	if op == nil {
		return core.InvalidArgument("AddOperationDetail", "operation must not be nil")
	}
	if da, ok := op.(DetailAdder); ok {
		return da.AddOperationDetail(detail)
	}
	for k, v := range detail.PropertiesIfPresent() {
		if err := op.AddOperationProperty(k, v); err != nil {
			return err
		}
	}
	for k, v := range detail.MetricsIfPresent() {
		if err := op.AddOperationMetric(k, v); err != nil {
			return err
		}
	}
	return nil
}

// AddOperationValue adds a property whose value is the default string form
// of value. A nil value is rejected.
func AddOperationValue(op OperationInstance, name string, value any) error {
	if op == nil {
		return core.InvalidArgument("AddOperationValue", "operation must not be nil")
	}
	if value == nil {
		return core.InvalidArgument("AddOperationValue", fmt.Sprintf("value for %q must not be nil", name))
	}
	return op.AddOperationProperty(name, fmt.Sprint(value))
}

// ValidateProperty returns an InvalidArgument error for an empty name or value.
func ValidateProperty(name, value string) error {
	if name == "" {
		return core.InvalidArgument("AddOperationProperty", "property name must not be empty")
	}
	if value == "" {
		return core.InvalidArgument("AddOperationProperty", fmt.Sprintf("value of property %q must not be empty", name))
	}
	return nil
}

// ValidateMetricName returns an InvalidArgument error for an empty name.
func ValidateMetricName(name string) error {
	if name == "" {
		return core.InvalidArgument("AddOperationMetric", "metric name must not be empty")
	}
	return nil
}

// ValidateDetail applies ValidateProperty and ValidateMetricName to every
// entry of detail. DetailAdder implementations call it before recording
// anything. A nil detail is valid.
func ValidateDetail(detail *Detail) error {
	for k, v := range detail.PropertiesIfPresent() {
		if err := ValidateProperty(k, v); err != nil {
			return err
		}
	}
	for k := range detail.MetricsIfPresent() {
		if err := ValidateMetricName(k); err != nil {
			return err
		}
	}
	return nil
}
