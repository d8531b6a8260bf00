package core

import (
	"time"
)

// LocatorResult is the answer to one locate call. Produced fresh per call;
// never cached across steps since the UI may change between calls.
type LocatorResult struct {
	Status    LocateStatus      `json:"status"`
	Found     bool              `json:"found"`
	X         int               `json:"x,omitempty"`
	Y         int               `json:"y,omitempty"`
	MatchedOn MatchKind         `json:"matched_on,omitempty"`
	Attribute string            `json:"attribute,omitempty"` // Node attribute that matched (text, content-desc...)
	Metadata  map[string]string `json:"metadata,omitempty"`
	Reason    string            `json:"reason"`
}

// FoundAt builds a positive result.
func FoundAt(x, y int, matchedOn MatchKind, reason string) LocatorResult {
	return LocatorResult{
		Status:    LocateFound,
		Found:     true,
		X:         x,
		Y:         y,
		MatchedOn: matchedOn,
		Reason:    reason,
	}
}

// NotLocated builds a negative result with the given status.
func NotLocated(status LocateStatus, reason string) LocatorResult {
	return LocatorResult{
		Status: status,
		Reason: reason,
	}
}

// Point returns the tap point and whether one exists.
func (r LocatorResult) Point() (int, int, bool) {
	if r.Status != LocateFound {
		return 0, 0, false
	}
	return r.X, r.Y, true
}

// StepOutcome captures one attempt of one step. A retried step produces a
// new StepOutcome rather than an edit of the previous one.
type StepOutcome struct {
	// Identity
	Test        string `json:"test"`
	StepIndex   int    `json:"step_index"` // 1-based position in the test
	Attempt     int    `json:"attempt"`    // 1-based
	Kind        string `json:"type"`
	Description string `json:"description"`

	// Result
	Success bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Err     error  `json:"-"`

	// Timing
	StartTime  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"duration_ms"`

	// Artifacts and locator output
	Attachments []Attachment   `json:"artifacts,omitempty"`
	Locator     *LocatorResult `json:"locator,omitempty"`
	LocatorAlt  *LocatorResult `json:"locator_alt,omitempty"`
	UsedTarget  string         `json:"used_target,omitempty"`

	// Supervisor annotations
	Failure  FailureKind `json:"failure_type,omitempty"`
	Decision Decision    `json:"supervisor_action,omitempty"`
	Reason   string      `json:"supervisor_reason,omitempty"`
}

// Fail marks the outcome failed with err.
func (o *StepOutcome) Fail(err error) {
	o.Success = false
	o.Err = err
	if err != nil {
		o.Error = err.Error()
	}
}

// Finish records the elapsed time since StartTime.
func (o *StepOutcome) Finish() {
	o.Duration = time.Since(o.StartTime)
	o.DurationMs = o.Duration.Milliseconds()
}

// Attach appends an artifact reference.
func (o *StepOutcome) Attach(a Attachment) {
	o.Attachments = append(o.Attachments, a)
}

// Artifact returns the first attachment with the given name.
func (o *StepOutcome) Artifact(name string) (Attachment, bool) {
	for _, a := range o.Attachments {
		if a.Name == name {
			return a, true
		}
	}
	return Attachment{}, false
}

// TestRecord is the ordered log of one test case.
type TestRecord struct {
	Name       string         `json:"name"`
	Status     TestStatus     `json:"status"`
	StartTime  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"-"`
	DurationMs int64          `json:"duration_ms"`
	Steps      []*StepOutcome `json:"steps"`
	Error      string         `json:"error,omitempty"`
}

// AggregateStatus derives the test status from its outcomes: FAIL iff some
// step's final attempt was stopped.
func (t *TestRecord) AggregateStatus() TestStatus {
	for _, s := range t.Steps {
		if s.Decision == DecisionStop {
			return TestFail
		}
	}
	return TestPass
}

// Finish records the elapsed time since StartTime.
func (t *TestRecord) Finish() {
	t.Duration = time.Since(t.StartTime)
	t.DurationMs = t.Duration.Milliseconds()
}

// Attempts returns the number of attempts recorded for the given step index.
func (t *TestRecord) Attempts(stepIndex int) int {
	n := 0
	for _, s := range t.Steps {
		if s.StepIndex == stepIndex {
			n++
		}
	}
	return n
}
