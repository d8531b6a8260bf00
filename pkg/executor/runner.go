package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/qa-runner/pkg/core"
	"github.com/devicelab-dev/qa-runner/pkg/logger"
	"github.com/devicelab-dev/qa-runner/pkg/report"
	"github.com/devicelab-dev/qa-runner/pkg/suite"
	"github.com/devicelab-dev/qa-runner/pkg/supervisor"
)

// DefaultDeviceTimeout bounds the wait for a device before the run starts.
const DefaultDeviceTimeout = 60 * time.Second

// Skip reasons recorded on tests that never started.
const (
	reasonCancelled = "run cancelled"
	reasonFailFast  = "skipped after earlier failure (fail-fast)"
)

// RunnerConfig configures the run controller.
type RunnerConfig struct {
	DeviceTimeout time.Duration // WaitForDevice timeout (default 60s)
	FailFast      bool          // Stop scheduling tests after the first FAIL

	// Runner metadata for the run log
	Runner report.RunnerInfo

	// Live progress callbacks
	OnTestStart   func(testIdx, totalTests int, name string)
	OnStepOutcome func(o *core.StepOutcome)
	OnTestEnd     func(rec *core.TestRecord)
}

// Runner sequences step execution and supervisor decisions across a suite.
type Runner struct {
	config     RunnerConfig
	device     core.Device
	executor   *StepExecutor
	supervisor *supervisor.Supervisor
}

// NewRunner creates a run controller.
func NewRunner(device core.Device, exec *StepExecutor, sup *supervisor.Supervisor, cfg RunnerConfig) *Runner {
	if cfg.DeviceTimeout <= 0 {
		cfg.DeviceTimeout = DefaultDeviceTimeout
	}
	if sup == nil {
		sup = supervisor.New()
	}
	return &Runner{
		config:     cfg,
		device:     device,
		executor:   exec,
		supervisor: sup,
	}
}

// Run waits for the device, then executes every test in order. The only
// error is a device that never attached; the returned log then records
// that error and holds no tests.
func (r *Runner) Run(ctx context.Context, s *suite.TestSuite) (*report.RunLog, error) {
	runLog := report.NewRunLog(report.SuiteInfo{
		Name:        s.Name,
		Description: s.Description,
		SourceFile:  s.SourcePath,
	}, time.Now())
	runLog.Runner = r.config.Runner

	if err := r.device.WaitForDevice(ctx, r.config.DeviceTimeout); err != nil {
		runLog.Error = err.Error()
		runLog.Finish(time.Now())
		return runLog, fmt.Errorf("wait for device: %w", err)
	}

	if d, ok := r.device.(core.Describer); ok {
		if info, err := d.Info(ctx); err == nil {
			runLog.Device = &info
		} else {
			logger.Warn("device info unavailable: %v", err)
		}
	}

	r.supervisor.Reset()
	logger.Info("run %s: suite %q, %d test(s)", runLog.RunID, s.Name, len(s.Tests))

	skipReason := ""
	for i := range s.Tests {
		tc := &s.Tests[i]

		if skipReason == "" && ctx.Err() != nil {
			skipReason = reasonCancelled
		}
		if skipReason != "" {
			rec := &core.TestRecord{
				Name:      tc.Name,
				Status:    core.TestSkipped,
				StartTime: time.Now(),
				Steps:     []*core.StepOutcome{},
				Error:     skipReason,
			}
			runLog.Append(rec)
			if r.config.OnTestEnd != nil {
				r.config.OnTestEnd(rec)
			}
			continue
		}

		if r.config.OnTestStart != nil {
			r.config.OnTestStart(i, len(s.Tests), tc.Name)
		}
		rec := r.runTest(ctx, tc)
		runLog.Append(rec)
		if r.config.OnTestEnd != nil {
			r.config.OnTestEnd(rec)
		}

		if rec.Status == core.TestFail && r.config.FailFast {
			skipReason = reasonFailFast
		}
	}

	runLog.Finish(time.Now())
	logger.Info("run %s finished: %s (%d passed, %d failed, %d skipped)", runLog.RunID, runLog.Status,
		runLog.Summary.Passed, runLog.Summary.Failed, runLog.Summary.Skipped)
	return runLog, nil
}

// runTest executes the steps of one test. A step is re-executed while the
// supervisor says retry; stop abandons the remaining steps.
func (r *Runner) runTest(ctx context.Context, tc *suite.TestCase) *core.TestRecord {
	rec := &core.TestRecord{
		Name:      tc.Name,
		StartTime: time.Now(),
		Steps:     []*core.StepOutcome{},
	}
	defer rec.Finish()

	for i, step := range tc.Steps {
		stepIndex := i + 1
		decision := core.DecisionNone

		for attempt := 1; decision != core.DecisionContinue && decision != core.DecisionStop; attempt++ {
			if ctx.Err() != nil {
				// The pending retry will never run, so the last attempt is final.
				if n := len(rec.Steps); n > 0 && rec.Steps[n-1].Decision == core.DecisionRetry {
					last := rec.Steps[n-1]
					last.Decision = core.DecisionStop
					last.Reason = fmt.Sprintf("%s; failure=%s", reasonCancelled, last.Failure)
					logStep(last)
				}
				rec.Status = core.TestFail
				rec.Error = reasonCancelled
				return rec
			}

			sc := StepContext{Test: tc.Name, StepIndex: stepIndex, Attempt: attempt}
			o := r.executor.Execute(ctx, step, sc)

			if !o.Success && ctx.Err() != nil {
				// A cancelled run never retries; the failure is final.
				o.Failure = supervisor.Classify(o)
				o.Decision = core.DecisionStop
				o.Reason = fmt.Sprintf("%s; failure=%s", reasonCancelled, o.Failure)
				decision = core.DecisionStop
			} else {
				decision = r.supervisor.Decide(tc.Name, stepIndex, o)
			}

			rec.Steps = append(rec.Steps, o)
			logStep(o)
			if r.config.OnStepOutcome != nil {
				r.config.OnStepOutcome(o)
			}
		}

		if decision == core.DecisionStop {
			break
		}
	}

	rec.Status = rec.AggregateStatus()
	if rec.Status == core.TestFail {
		last := rec.Steps[len(rec.Steps)-1]
		rec.Error = fmt.Sprintf("step %d (%s) failed: %s", last.StepIndex, last.Kind, last.Error)
	}
	return rec
}

func logStep(o *core.StepOutcome) {
	fields := []zap.Field{
		zap.String("test", o.Test),
		zap.Int("step", o.StepIndex),
		zap.Int("attempt", o.Attempt),
		zap.String("kind", o.Kind),
		zap.Bool("ok", o.Success),
		zap.String("decision", string(o.Decision)),
		zap.Int64("duration_ms", o.DurationMs),
	}
	if !o.Success {
		fields = append(fields,
			zap.String("failure", string(o.Failure)),
			zap.String("error", o.Error),
			zap.String("reason", o.Reason))
		logger.L().Warn("step failed", fields...)
		return
	}
	logger.L().Info("step passed", fields...)
}
