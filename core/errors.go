package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Usage errors
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAlreadyReleased = errors.New("operation already released")

	// State errors
	ErrNotConfigured = errors.New("not configured")

	// Registry errors
	ErrResolutionFailure = errors.New("service resolution failed")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// Backend delivery errors
	ErrDeliveryFailed     = errors.New("telemetry delivery failed")
	ErrCircuitOpen        = errors.New("circuit breaker is open")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
)

// InstrumentationError provides structured error information with context
// It implements the error interface and supports error wrapping
type InstrumentationError struct {
	Op      string // Operation that failed (e.g., "Detail.AddOperationProperty")
	Kind    string // Error kind (e.g., "usage", "registry", "config", "delivery")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *InstrumentationError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.Message != "" {
			if e.ID != "" {
				return fmt.Sprintf("%s [%s]: %s: %v", e.Op, e.ID, e.Message, e.Err)
			}
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *InstrumentationError) Unwrap() error {
	return e.Err
}

// NewInstrumentationError creates a new InstrumentationError
func NewInstrumentationError(op, kind string, err error) *InstrumentationError {
	return &InstrumentationError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// InvalidArgument builds the usage error returned for empty names, nil
// values and nil collaborators.
func InvalidArgument(op, message string) error {
	return &InstrumentationError{
		Op:      op,
		Kind:    "usage",
		Message: message,
		Err:     ErrInvalidArgument,
	}
}

// AlreadyReleased builds the error returned when an operation instance is
// used after Release.
func AlreadyReleased(op, id string) error {
	return &InstrumentationError{
		Op:   op,
		Kind: "usage",
		ID:   id,
		Err:  ErrAlreadyReleased,
	}
}

// IsUsageError checks if an error reports a caller mistake
func IsUsageError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrAlreadyReleased) ||
		errors.Is(err, ErrNotConfigured)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}

// IsResolutionError checks if an error came from the service registry
func IsResolutionError(err error) bool {
	return errors.Is(err, ErrResolutionFailure)
}

// IsDeliveryError checks if an error came from a telemetry backend.
// Delivery errors are transient; callers may retry or drop the record.
func IsDeliveryError(err error) bool {
	return errors.Is(err, ErrDeliveryFailed) ||
		errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrMaxRetriesExceeded)
}
