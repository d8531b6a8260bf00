package core

import (
	"errors"
	"fmt"
)

// ExecutionError represents a structured error with a failure kind attached
// at the point where the failure was detected.
type ExecutionError struct {
	Kind    FailureKind
	Code    string                 // Machine-readable code: missing_field, timeout, target_not_found, etc.
	Message string                 // Human-readable message
	Details map[string]interface{} // Additional context
	Cause   error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches on Code so copies made with the With* helpers still compare
// equal to their predefined sentinel.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return e.Code != "" && e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	return &ExecutionError{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	return &ExecutionError{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: msg,
		Details: e.Details,
		Cause:   e.Cause,
	}
}

// WithMessagef is WithMessage with formatting.
func (e *ExecutionError) WithMessagef(format string, args ...interface{}) *ExecutionError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &ExecutionError{
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message,
		Details: merged,
		Cause:   e.Cause,
	}
}

// Predefined errors
var (
	// Configuration errors
	ErrMissingField = &ExecutionError{
		Kind:    FailureConfiguration,
		Code:    "missing_field",
		Message: "missing required field",
	}
	ErrInvalidField = &ExecutionError{
		Kind:    FailureConfiguration,
		Code:    "invalid_field",
		Message: "invalid field value",
	}
	ErrUnknownStepKind = &ExecutionError{
		Kind:    FailureConfiguration,
		Code:    "unknown_step_kind",
		Message: "unknown step kind",
	}

	// Assertion errors
	ErrTargetNotFound = &ExecutionError{
		Kind:    FailureAssertion,
		Code:    "target_not_found",
		Message: "target not found",
	}

	// Execution errors
	ErrTimeout = &ExecutionError{
		Kind:    FailureExecution,
		Code:    "timeout",
		Message: "operation timed out",
	}
	ErrTransport = &ExecutionError{
		Kind:    FailureExecution,
		Code:    "transport_failed",
		Message: "device command failed",
	}
	ErrCaptureFailed = &ExecutionError{
		Kind:    FailureExecution,
		Code:    "capture_failed",
		Message: "screen capture failed",
	}
	ErrSnapshotUnavailable = &ExecutionError{
		Kind:    FailureExecution,
		Code:    "snapshot_unavailable",
		Message: "ui snapshot unavailable",
	}
	ErrDeviceNotFound = &ExecutionError{
		Kind:    FailureExecution,
		Code:    "device_not_found",
		Message: "no device attached",
	}

	// Unknown errors
	ErrPanic = &ExecutionError{
		Kind:    FailureUnknown,
		Code:    "panic",
		Message: "step executor panicked",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(kind FailureKind, code, message string) *ExecutionError {
	return &ExecutionError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// KindOf returns the failure kind carried by err, if any ExecutionError is in
// its chain. The second result is false for foreign errors.
func KindOf(err error) (FailureKind, bool) {
	var ee *ExecutionError
	if errors.As(err, &ee) && ee.Kind.IsValid() {
		return ee.Kind, true
	}
	return FailureNone, false
}
