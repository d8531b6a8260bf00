package suite

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/qa-runner/pkg/core"
)

// Kind identifies a step variant.
type Kind string

// Step kinds.
const (
	KindLaunchApp  Kind = "launch_app"
	KindTap        Kind = "tap"
	KindTapTarget  Kind = "tap_target"
	KindInputText  Kind = "input_text"
	KindKeyEvent   Kind = "keyevent"
	KindSleep      Kind = "sleep"
	KindScreenshot Kind = "screenshot"
)

// Kinds lists every known step kind.
var Kinds = []Kind{KindLaunchApp, KindTap, KindTapTarget, KindInputText, KindKeyEvent, KindSleep, KindScreenshot}

// IsKnown reports whether k is one of the supported step kinds.
func (k Kind) IsKnown() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Step is the interface for all suite steps.
type Step interface {
	Kind() Kind
	Describe() string
	// Validate checks the fields the step needs. Errors carry
	// core.FailureConfiguration.
	Validate() error
}

// BaseStep contains common fields for all steps.
type BaseStep struct {
	StepKind    Kind   `yaml:"type"`
	Description string `yaml:"description"`
}

// Kind returns the step kind.
func (b *BaseStep) Kind() Kind { return b.StepKind }

// Describe returns the human description, falling back to the kind.
func (b *BaseStep) Describe() string {
	if b.Description != "" {
		return b.Description
	}
	return string(b.StepKind)
}

// LaunchAppStep launches an app by package id.
type LaunchAppStep struct {
	BaseStep `yaml:",inline"`
	App      string `yaml:"app"`
}

// Validate requires a package id.
func (s *LaunchAppStep) Validate() error {
	if strings.TrimSpace(s.App) == "" {
		return missing(s.StepKind, "app")
	}
	return nil
}

// TapStep taps fixed coordinates.
type TapStep struct {
	BaseStep `yaml:",inline"`
	X        *int `yaml:"x"`
	Y        *int `yaml:"y"`
}

// Validate requires both coordinates, non-negative.
func (s *TapStep) Validate() error {
	if s.X == nil || s.Y == nil {
		return missing(s.StepKind, "x and y")
	}
	if *s.X < 0 || *s.Y < 0 {
		return core.ErrInvalidField.WithMessagef("tap coordinates must be non-negative, got (%d, %d)", *s.X, *s.Y)
	}
	return nil
}

// TapTargetStep taps an element resolved by the locator.
type TapTargetStep struct {
	BaseStep  `yaml:",inline"`
	Target    string `yaml:"target"`     // Primary target text/id
	AltTarget string `yaml:"alt_target"` // Tried when the primary target is not found
	Hint      string `yaml:"hint"`       // Extra match string for the locator
}

// Validate requires a primary target.
func (s *TapTargetStep) Validate() error {
	if strings.TrimSpace(s.Target) == "" {
		return missing(s.StepKind, "target")
	}
	return nil
}

// InputTextStep types text into the focused field.
type InputTextStep struct {
	BaseStep `yaml:",inline"`
	Text     *string `yaml:"text"`
}

// Validate requires non-empty text.
func (s *InputTextStep) Validate() error {
	if s.Text == nil || *s.Text == "" {
		return missing(s.StepKind, "text")
	}
	return nil
}

// KeyEventStep sends an Android key code.
type KeyEventStep struct {
	BaseStep `yaml:",inline"`
	KeyCode  *int `yaml:"keycode"`
}

// Validate requires a key code.
func (s *KeyEventStep) Validate() error {
	if s.KeyCode == nil {
		return missing(s.StepKind, "keycode")
	}
	if *s.KeyCode < 0 {
		return core.ErrInvalidField.WithMessagef("keyevent keycode must be non-negative, got %d", *s.KeyCode)
	}
	return nil
}

// SleepStep pauses the run.
type SleepStep struct {
	BaseStep `yaml:",inline"`
	Seconds  *float64 `yaml:"sleep_seconds"`
}

// DefaultSleepSeconds applies when sleep_seconds is unset.
const DefaultSleepSeconds = 1.0

// Duration returns the configured pause in seconds, defaulting to one second.
func (s *SleepStep) Duration() float64 {
	if s.Seconds == nil || *s.Seconds == 0 {
		return DefaultSleepSeconds
	}
	return *s.Seconds
}

// Validate rejects negative durations.
func (s *SleepStep) Validate() error {
	if s.Seconds != nil && *s.Seconds < 0 {
		return core.ErrInvalidField.WithMessagef("sleep_seconds must be non-negative, got %v", *s.Seconds)
	}
	return nil
}

// ScreenshotStep captures the screen.
type ScreenshotStep struct {
	BaseStep `yaml:",inline"`
	Path     string `yaml:"path"` // Explicit output path; auto-generated when empty
}

// Validate always succeeds.
func (s *ScreenshotStep) Validate() error { return nil }

// UnknownStep preserves a step whose kind is not supported so the executor
// can report it instead of the parser dropping it.
type UnknownStep struct {
	BaseStep `yaml:",inline"`
}

// Validate always fails with an unknown-kind configuration error.
func (s *UnknownStep) Validate() error {
	return core.ErrUnknownStepKind.WithMessagef("unknown step kind %q", string(s.StepKind))
}

func missing(kind Kind, field string) error {
	return core.ErrMissingField.
		WithMessage(fmt.Sprintf("%s requires %s", kind, field)).
		WithDetails(map[string]interface{}{"field": field})
}
