package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestExecutionError_Error(t *testing.T) {
	err := &ExecutionError{
		Kind:    FailureAssertion,
		Code:    "test_error",
		Message: "test message",
	}

	if got := err.Error(); got != "test message" {
		t.Errorf("Error() = %q, want %q", got, "test message")
	}
}

func TestExecutionError_ErrorWithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := &ExecutionError{
		Kind:    FailureExecution,
		Code:    "test_error",
		Message: "test message",
		Cause:   cause,
	}

	got := err.Error()
	if !strings.Contains(got, "test message") {
		t.Errorf("Error() = %q, should contain 'test message'", got)
	}
	if !strings.Contains(got, "underlying error") {
		t.Errorf("Error() = %q, should contain 'underlying error'", got)
	}
}

func TestExecutionError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &ExecutionError{
		Message: "wrapper",
		Cause:   cause,
	}

	if got := err.Unwrap(); got != cause {
		t.Errorf("Unwrap() = %v, want %v", got, cause)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestExecutionError_WithCause(t *testing.T) {
	cause := errors.New("custom cause")
	newErr := ErrTransport.WithCause(cause)

	if newErr.Cause != cause {
		t.Error("WithCause() did not set cause")
	}
	if newErr.Code != ErrTransport.Code || newErr.Kind != ErrTransport.Kind {
		t.Error("WithCause() should preserve code and kind")
	}
	if ErrTransport.Cause != nil {
		t.Error("WithCause() must not modify the sentinel")
	}
}

func TestExecutionError_WithMessage(t *testing.T) {
	newErr := ErrMissingField.WithMessagef("tap requires %s", "x and y")

	if newErr.Message != "tap requires x and y" {
		t.Errorf("Message = %q", newErr.Message)
	}
	if ErrMissingField.Message != "missing required field" {
		t.Error("WithMessage() must not modify the sentinel")
	}
}

func TestExecutionError_WithDetails(t *testing.T) {
	base := ErrTargetNotFound.WithDetails(map[string]interface{}{"target": "Login"})
	merged := base.WithDetails(map[string]interface{}{"hint": "button"})

	if merged.Details["target"] != "Login" || merged.Details["hint"] != "button" {
		t.Errorf("Details = %v, want both keys", merged.Details)
	}
	if _, ok := base.Details["hint"]; ok {
		t.Error("WithDetails() must not modify the receiver")
	}
}

func TestExecutionError_IsMatchesCode(t *testing.T) {
	err := fmt.Errorf("step 3: %w", ErrTimeout.WithMessage("adb shell input tap timed out"))

	if !errors.Is(err, ErrTimeout) {
		t.Error("copy of ErrTimeout should match sentinel via errors.Is")
	}
	if errors.Is(err, ErrTransport) {
		t.Error("ErrTimeout copy should not match ErrTransport")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   FailureKind
		wantOK bool
	}{
		{"config", ErrMissingField, FailureConfiguration, true},
		{"wrapped execution", fmt.Errorf("launch: %w", ErrTransport), FailureExecution, true},
		{"assertion", ErrTargetNotFound.WithMessage("could not find target"), FailureAssertion, true},
		{"foreign", errors.New("boom"), FailureNone, false},
		{"nil", nil, FailureNone, false},
		{"no kind", &ExecutionError{Message: "x"}, FailureNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := KindOf(tt.err)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("KindOf() = (%v, %v), want (%v, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestPredefinedErrors(t *testing.T) {
	tests := []struct {
		err  *ExecutionError
		kind FailureKind
	}{
		{ErrMissingField, FailureConfiguration},
		{ErrInvalidField, FailureConfiguration},
		{ErrUnknownStepKind, FailureConfiguration},
		{ErrTargetNotFound, FailureAssertion},
		{ErrTimeout, FailureExecution},
		{ErrTransport, FailureExecution},
		{ErrCaptureFailed, FailureExecution},
		{ErrSnapshotUnavailable, FailureExecution},
		{ErrDeviceNotFound, FailureExecution},
		{ErrPanic, FailureUnknown},
	}

	for _, tt := range tests {
		if tt.err.Kind != tt.kind {
			t.Errorf("%s: Kind = %v, want %v", tt.err.Code, tt.err.Kind, tt.kind)
		}
		if tt.err.Code == "" || tt.err.Message == "" {
			t.Errorf("%v: code and message must be set", tt.err)
		}
	}
}
