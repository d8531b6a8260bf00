package core

import (
	"context"
	"time"
)

// Device is the boundary to the physical or virtual device.
// Implementations: adb (pkg/device), scripted mock (pkg/driver/mock).
// Every call either succeeds or returns a diagnostic error; none retries
// internally, retry policy belongs to the supervisor.
type Device interface {
	// WaitForDevice blocks until a device is attached or the timeout elapses.
	WaitForDevice(ctx context.Context, timeout time.Duration) error

	// Launch starts the app with the given package identifier.
	Launch(ctx context.Context, pkg string) error

	// Tap taps at screen coordinates.
	Tap(ctx context.Context, x, y int) error

	// InputText types text into the focused field. Any escaping needed by the
	// transport is the implementation's job.
	InputText(ctx context.Context, text string) error

	// KeyEvent sends an Android key code.
	KeyEvent(ctx context.Context, code int) error

	// Screenshot writes a PNG of the current screen to path.
	Screenshot(ctx context.Context, path string) error

	// DumpUITree writes the current UI hierarchy XML to path.
	DumpUITree(ctx context.Context, path string) error
}

// DeviceInfo describes the attached device for reports.
type DeviceInfo struct {
	Serial     string `json:"serial"`
	Model      string `json:"model,omitempty"`
	SDK        string `json:"sdk,omitempty"`
	IsEmulator bool   `json:"isEmulator"`
	Driver     string `json:"driver"`
}

// Describer is optionally implemented by devices that can report their identity.
type Describer interface {
	Info(ctx context.Context) (DeviceInfo, error)
}

// Bounds represents element position and size
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the center point of the bounds
func (b Bounds) Center() (int, int) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Bottom returns the y coordinate of the bottom edge.
func (b Bounds) Bottom() int {
	return b.Y + b.Height
}

// IsEmpty returns true for zero-area bounds.
func (b Bounds) IsEmpty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Contains checks if a point is within the bounds
func (b Bounds) Contains(x, y int) bool {
	return x >= b.X && x < b.X+b.Width && y >= b.Y && y < b.Y+b.Height
}
