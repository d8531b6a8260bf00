// Package report provides the run log and its persisted forms.
//
// Layout under the artifacts directory:
//   - logs/run_<run_id>.json: the run log (one file per run)
//   - allure-results/: optional Allure export of the same run
package report

import (
	"time"

	"github.com/devicelab-dev/qa-runner/pkg/core"
)

// Version is the run log schema version.
const Version = "1.0.0"

// RunIDLayout formats run IDs from the run start time.
const RunIDLayout = "20060102_150405"

// NewRunID returns the run ID for a run started at t.
func NewRunID(t time.Time) string {
	return t.Format(RunIDLayout)
}

// RunLog is the ordered record of one suite run.
type RunLog struct {
	Version    string             `json:"version"`
	RunID      string             `json:"run_id"`
	Suite      SuiteInfo          `json:"suite"`
	Device     *core.DeviceInfo   `json:"device,omitempty"`
	Runner     RunnerInfo         `json:"runner"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	DurationMs int64              `json:"duration_ms"`
	Status     core.TestStatus    `json:"status"`
	Summary    Summary            `json:"summary"`
	Tests      []*core.TestRecord `json:"tests"`
	Error      string             `json:"error,omitempty"` // Fatal precondition failure
}

// SuiteInfo identifies the suite that was run.
type SuiteInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	SourceFile  string `json:"source_file,omitempty"`
}

// RunnerInfo records how the run was driven.
type RunnerInfo struct {
	Version     string `json:"version"`
	Driver      string `json:"driver"`  // adb, mock
	Locator     string `json:"locator"` // hierarchy, vision, hierarchy+vision
	RetryBudget int    `json:"retry_budget"`
}

// Summary contains aggregated test counts.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// NewRunLog creates a run log started at startedAt.
func NewRunLog(suite SuiteInfo, startedAt time.Time) *RunLog {
	return &RunLog{
		Version:   Version,
		RunID:     NewRunID(startedAt),
		Suite:     suite,
		StartedAt: startedAt,
		Tests:     []*core.TestRecord{},
	}
}

// Append adds a finished test record.
func (l *RunLog) Append(t *core.TestRecord) {
	l.Tests = append(l.Tests, t)
}

// Finish stamps the end time and derives summary and status.
func (l *RunLog) Finish(at time.Time) {
	l.FinishedAt = &at
	l.DurationMs = at.Sub(l.StartedAt).Milliseconds()
	l.Summary = ComputeSummary(l.Tests)
	l.Status = l.computeStatus()
}

// computeStatus is PASS iff no test failed and no fatal error occurred.
// Skipped tests do not fail the run on their own.
func (l *RunLog) computeStatus() core.TestStatus {
	if l.Error != "" || l.Summary.Failed > 0 {
		return core.TestFail
	}
	return core.TestPass
}

// ComputeSummary counts tests by status.
func ComputeSummary(tests []*core.TestRecord) Summary {
	s := Summary{Total: len(tests)}
	for _, t := range tests {
		switch t.Status {
		case core.TestPass:
			s.Passed++
		case core.TestFail:
			s.Failed++
		case core.TestSkipped:
			s.Skipped++
		}
	}
	return s
}
