// Package supervisor decides whether a failed step attempt is retried,
// stopped, or passed through.
package supervisor

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/qa-runner/pkg/core"
	"github.com/devicelab-dev/qa-runner/pkg/suite"
)

// DefaultBudget is the number of retries allowed per (test, step).
const DefaultBudget = 1

// DefaultFlakyKinds are the step kinds eligible for automatic retry.
var DefaultFlakyKinds = []suite.Kind{
	suite.KindTap,
	suite.KindTapTarget,
	suite.KindInputText,
	suite.KindLaunchApp,
}

// RetryKey identifies one step of one test.
type RetryKey struct {
	Test      string
	StepIndex int
}

// Supervisor holds the retry counters for a run. It is not safe for
// concurrent use.
type Supervisor struct {
	budget  int
	flaky   map[suite.Kind]bool
	retries map[RetryKey]int
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithBudget sets the per-step retry budget. Negative values are treated as 0.
func WithBudget(n int) Option {
	return func(s *Supervisor) {
		if n < 0 {
			n = 0
		}
		s.budget = n
	}
}

// WithFlakyKinds replaces the retry-eligible step kinds.
func WithFlakyKinds(kinds ...suite.Kind) Option {
	return func(s *Supervisor) {
		s.flaky = make(map[suite.Kind]bool, len(kinds))
		for _, k := range kinds {
			s.flaky[k] = true
		}
	}
}

// New creates a Supervisor with the default budget and flaky kinds.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		budget:  DefaultBudget,
		retries: make(map[RetryKey]int),
	}
	WithFlakyKinds(DefaultFlakyKinds...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Budget returns the per-step retry budget.
func (s *Supervisor) Budget() int {
	return s.budget
}

// Retries returns how many retries were granted for a key.
func (s *Supervisor) Retries(test string, stepIndex int) int {
	return s.retries[RetryKey{Test: test, StepIndex: stepIndex}]
}

// Reset clears every counter, starting a new run.
func (s *Supervisor) Reset() {
	s.retries = make(map[RetryKey]int)
}

// Decide classifies the outcome, records the decision and reason on it, and
// returns the decision.
func (s *Supervisor) Decide(test string, stepIndex int, o *core.StepOutcome) core.Decision {
	if o.Success {
		o.Failure = core.FailureNone
		return annotate(o, core.DecisionContinue, "step passed")
	}

	kind := Classify(o)
	o.Failure = kind

	if kind == core.FailureConfiguration {
		return annotate(o, core.DecisionStop,
			fmt.Sprintf("configuration error; not retryable; failure=%s", kind))
	}

	stepKind := suite.Kind(o.Kind)
	if !s.flaky[stepKind] {
		return annotate(o, core.DecisionStop,
			fmt.Sprintf("step failed; step kind %q is not retry-eligible; failure=%s", o.Kind, kind))
	}

	key := RetryKey{Test: test, StepIndex: stepIndex}
	count := s.retries[key]
	if count < s.budget {
		s.retries[key] = count + 1
		return annotate(o, core.DecisionRetry,
			fmt.Sprintf("retrying flaky step (attempt %d/%d); failure=%s", count+1, s.budget, kind))
	}

	return annotate(o, core.DecisionStop,
		fmt.Sprintf("step failed and no retries left; failure=%s", kind))
}

func annotate(o *core.StepOutcome, d core.Decision, reason string) core.Decision {
	o.Decision = d
	o.Reason = reason
	return d
}

// Classify returns the failure kind of a failed outcome. A kind attached to
// the error where it was detected wins; foreign errors fall back to matching
// the error text.
func Classify(o *core.StepOutcome) core.FailureKind {
	if kind, ok := core.KindOf(o.Err); ok {
		return kind
	}
	msg := o.Error
	if msg == "" && o.Err != nil {
		msg = o.Err.Error()
	}
	return ClassifyMessage(msg)
}

var (
	assertionPhrases = []string{"could not find target", "target not found", "element not found"}
	executionPhrases = []string{"adb", "uiautomator", "screencap", "timeout", "timed out", "deadline exceeded"}
)

// ClassifyMessage classifies a free-form error message.
func ClassifyMessage(msg string) core.FailureKind {
	msg = strings.ToLower(msg)
	for _, p := range assertionPhrases {
		if strings.Contains(msg, p) {
			return core.FailureAssertion
		}
	}
	for _, p := range executionPhrases {
		if strings.Contains(msg, p) {
			return core.FailureExecution
		}
	}
	return core.FailureUnknown
}
