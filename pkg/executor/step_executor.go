// Package executor runs suite steps against a device and sequences them
// into a run.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/devicelab-dev/qa-runner/pkg/core"
	"github.com/devicelab-dev/qa-runner/pkg/locator"
	"github.com/devicelab-dev/qa-runner/pkg/logger"
	"github.com/devicelab-dev/qa-runner/pkg/suite"
)

// Settle holds the pause after each action kind.
type Settle struct {
	Launch    time.Duration
	Tap       time.Duration
	TapTarget time.Duration
	Input     time.Duration
	KeyEvent  time.Duration
}

// DefaultSettle returns the standard settle delays.
func DefaultSettle() Settle {
	return Settle{
		Launch:    5 * time.Second,
		Tap:       700 * time.Millisecond,
		TapTarget: 800 * time.Millisecond,
		Input:     500 * time.Millisecond,
		KeyEvent:  500 * time.Millisecond,
	}
}

// StepContext identifies one attempt of one step.
type StepContext struct {
	Test      string
	StepIndex int // 1-based
	Attempt   int // 1-based
}

// ExecutorConfig configures a StepExecutor.
type ExecutorConfig struct {
	Settle         Settle
	ArtifactsDir   string
	AutoScreenshot bool // Screenshot after every action kind

	// Sleep pauses for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// Now stamps artifact names. Defaults to time.Now.
	Now func() time.Time
}

// StepExecutor executes one step attempt and always returns an outcome.
type StepExecutor struct {
	device         core.Device
	locator        locator.Locator
	settle         Settle
	artifacts      *Artifacts
	autoScreenshot bool
	sleep          func(ctx context.Context, d time.Duration) error
}

// NewStepExecutor creates a StepExecutor.
func NewStepExecutor(device core.Device, loc locator.Locator, cfg ExecutorConfig) *StepExecutor {
	if loc == nil {
		loc = locator.NewHierarchy()
	}
	e := &StepExecutor{
		device:         device,
		locator:        loc,
		settle:         cfg.Settle,
		artifacts:      NewArtifacts(cfg.ArtifactsDir),
		autoScreenshot: cfg.AutoScreenshot,
		sleep:          cfg.Sleep,
	}
	if cfg.Now != nil {
		e.artifacts.Now = cfg.Now
	}
	if e.sleep == nil {
		e.sleep = sleepContext
	}
	return e
}

// Artifacts returns the path allocator.
func (e *StepExecutor) Artifacts() *Artifacts {
	return e.artifacts
}

// actionKinds get an automatic screenshot when AutoScreenshot is set.
var actionKinds = map[suite.Kind]bool{
	suite.KindLaunchApp: true,
	suite.KindTap:       true,
	suite.KindTapTarget: true,
	suite.KindInputText: true,
}

// Execute runs one attempt of step. It never panics and never returns nil;
// every failure is recorded on the outcome.
func (e *StepExecutor) Execute(ctx context.Context, step suite.Step, sc StepContext) (out *core.StepOutcome) {
	out = &core.StepOutcome{
		Test:        sc.Test,
		StepIndex:   sc.StepIndex,
		Attempt:     sc.Attempt,
		Kind:        string(step.Kind()),
		Description: step.Describe(),
		Success:     true,
		StartTime:   time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("step %d of %q panicked: %v\n%s", sc.StepIndex, sc.Test, r, debug.Stack())
			out.Fail(core.ErrPanic.WithMessagef("step executor panicked: %v", r))
		}
		out.Finish()
	}()

	if err := e.run(ctx, step, sc, out); err != nil {
		out.Fail(err)
	}

	if e.autoScreenshot && actionKinds[step.Kind()] {
		e.capture(ctx, out, core.AttachmentAutoScreenshot, e.artifacts.Screenshot(sc, "after"))
	}
	return out
}

func (e *StepExecutor) run(ctx context.Context, step suite.Step, sc StepContext, out *core.StepOutcome) error {
	if err := step.Validate(); err != nil {
		return err
	}

	switch s := step.(type) {
	case *suite.LaunchAppStep:
		if err := e.device.Launch(ctx, s.App); err != nil {
			return err
		}
		e.settleFor(ctx, e.settle.Launch)

	case *suite.TapStep:
		if err := e.device.Tap(ctx, *s.X, *s.Y); err != nil {
			return err
		}
		e.settleFor(ctx, e.settle.Tap)

	case *suite.TapTargetStep:
		return e.tapTarget(ctx, s, sc, out)

	case *suite.InputTextStep:
		if err := e.device.InputText(ctx, *s.Text); err != nil {
			return err
		}
		e.settleFor(ctx, e.settle.Input)

	case *suite.KeyEventStep:
		if err := e.device.KeyEvent(ctx, *s.KeyCode); err != nil {
			return err
		}
		e.settleFor(ctx, e.settle.KeyEvent)

	case *suite.SleepStep:
		d := time.Duration(s.Duration() * float64(time.Second))
		if err := e.sleep(ctx, d); err != nil {
			return core.NewExecutionError(core.FailureExecution, "cancelled", "sleep interrupted").WithCause(err)
		}

	case *suite.ScreenshotStep:
		path := s.Path
		if path == "" {
			path = e.artifacts.Screenshot(sc, "")
		}
		if err := e.screenshot(ctx, path); err != nil {
			return err
		}
		out.Attach(core.NewScreenshotAttachment(core.AttachmentScreenshot, path))

	default:
		// Validate rejects unknown kinds; this guards new variants that
		// were added to the parser but not here.
		return core.ErrUnknownStepKind.WithMessagef("unknown step kind %q", string(step.Kind()))
	}
	return nil
}

// tapTarget locates the primary target, falling back to alt_target, taps
// the resolved point and records before/after screenshots.
func (e *StepExecutor) tapTarget(ctx context.Context, s *suite.TapTargetStep, sc StepContext, out *core.StepOutcome) error {
	before := e.artifacts.Screenshot(sc, "locate")
	if err := e.screenshot(ctx, before); err != nil {
		return err
	}
	out.Attach(core.NewScreenshotAttachment(core.AttachmentLocateScreenshot, before))

	src := newDeviceSource(e.device, e.artifacts, sc, before, out)

	result := e.locator.Locate(ctx, src, s.Target, s.Hint)
	out.Locator = &result
	usedTarget := s.Target
	attempts := []core.LocatorResult{result}

	if !result.Found && s.AltTarget != "" {
		alt := e.locator.Locate(ctx, src, s.AltTarget, s.Hint)
		out.LocatorAlt = &alt
		attempts = append(attempts, alt)
		if alt.Found {
			result = alt
			usedTarget = s.AltTarget
		}
	}

	if !result.Found {
		return targetError(s, attempts)
	}
	out.UsedTarget = usedTarget

	logger.Debug("tap_target %q resolved to (%d, %d) via %s", usedTarget, result.X, result.Y, result.MatchedOn)
	if err := e.device.Tap(ctx, result.X, result.Y); err != nil {
		return err
	}
	e.settleFor(ctx, e.settle.TapTarget)

	after := e.artifacts.Screenshot(sc, "after_tap")
	if err := e.screenshot(ctx, after); err != nil {
		return err
	}
	out.Attach(core.NewScreenshotAttachment(core.AttachmentAfterTap, after))
	return nil
}

// targetError names both targets. A clean not_found on every attempt is an
// assertion failure; any snapshot or locator fault is an execution failure.
func targetError(s *suite.TapTargetStep, attempts []core.LocatorResult) error {
	msg := fmt.Sprintf("could not find target %q", s.Target)
	if s.AltTarget != "" {
		msg = fmt.Sprintf("could not find target %q or alt_target %q", s.Target, s.AltTarget)
	}

	details := map[string]interface{}{}
	sentinel := core.ErrTargetNotFound
	for i, r := range attempts {
		details[fmt.Sprintf("locate_%d", i+1)] = string(r.Status) + ": " + r.Reason
		if r.Status != core.LocateNotFound {
			sentinel = core.ErrSnapshotUnavailable
		}
	}
	return sentinel.WithMessage(msg).WithDetails(details)
}

func (e *StepExecutor) screenshot(ctx context.Context, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return core.ErrCaptureFailed.WithMessagef("create %s", dir).WithCause(err)
		}
	}
	return e.device.Screenshot(ctx, path)
}

// capture takes a best-effort screenshot; failure is recorded on the
// attachment and does not fail the step.
func (e *StepExecutor) capture(ctx context.Context, out *core.StepOutcome, name, path string) {
	a := core.NewScreenshotAttachment(name, path)
	if err := e.screenshot(ctx, path); err != nil {
		a.Error = err.Error()
		logger.Warn("%s for step %d failed: %v", name, out.StepIndex, err)
	}
	out.Attach(a)
}

// settleFor pauses after an action. An interrupted settle is not a step
// failure; the run controller notices the cancellation before the next step.
func (e *StepExecutor) settleFor(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	if err := e.sleep(ctx, d); err != nil {
		logger.Debug("settle of %s interrupted: %v", d, err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
