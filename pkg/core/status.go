package core

// FailureKind classifies why a step attempt failed.
type FailureKind string

const (
	FailureNone          FailureKind = ""                  // Step succeeded
	FailureConfiguration FailureKind = "CONFIGURATION_ERROR" // Bad or missing step fields, unknown step kind
	FailureExecution     FailureKind = "EXECUTION_FAILURE"   // Transport or tooling problem (adb, capture, timeout)
	FailureAssertion     FailureKind = "ASSERTION_FAILURE"   // Target genuinely absent from the UI
	FailureUnknown       FailureKind = "UNKNOWN_FAILURE"     // Could not be classified
)

// String returns the string representation of FailureKind
func (k FailureKind) String() string {
	if k == FailureNone {
		return "none"
	}
	return string(k)
}

// IsValid returns true for the four failure kinds (not FailureNone).
func (k FailureKind) IsValid() bool {
	switch k {
	case FailureConfiguration, FailureExecution, FailureAssertion, FailureUnknown:
		return true
	default:
		return false
	}
}

// Decision is the supervisor's verdict on a step attempt.
type Decision string

const (
	DecisionNone     Decision = ""         // Not yet decided
	DecisionContinue Decision = "continue" // Advance to the next step
	DecisionRetry    Decision = "retry"    // Re-execute the same step
	DecisionStop     Decision = "stop"     // Fail the test, skip its remaining steps
)

// IsTerminal returns true if the decision ends the step (continue or stop).
func (d Decision) IsTerminal() bool {
	return d == DecisionContinue || d == DecisionStop
}

// TestStatus is the aggregated status of a test case or a run.
type TestStatus string

const (
	TestPass    TestStatus = "PASS"
	TestFail    TestStatus = "FAIL"
	TestSkipped TestStatus = "SKIPPED" // Never started (run cancelled or fail-fast)
)

// LocateStatus tags a LocatorResult so a well-formed negative answer
// cannot be mistaken for a locator fault.
type LocateStatus string

const (
	LocateFound               LocateStatus = "found"
	LocateNotFound            LocateStatus = "not_found"
	LocateSnapshotUnavailable LocateStatus = "snapshot_unavailable"
	LocateSnapshotUnparsable  LocateStatus = "snapshot_unparsable"
	LocateError               LocateStatus = "locator_error"
)

// MatchKind records which locator rule produced a tap point.
type MatchKind string

const (
	MatchNone           MatchKind = ""
	MatchExactAttribute MatchKind = "exact_attribute"
	MatchHint           MatchKind = "hint"
	MatchLabelFallback  MatchKind = "label_to_adjacent_input_fallback"
	MatchVisionModel    MatchKind = "vision_model"
)
