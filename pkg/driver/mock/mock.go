// Package mock provides a scripted device for testing without a real device.
package mock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/devicelab-dev/qa-runner/pkg/core"
)

// Method names used for call recording and failure scripting.
const (
	MethodWait       = "wait_for_device"
	MethodLaunch     = "launch"
	MethodTap        = "tap"
	MethodInputText  = "input_text"
	MethodKeyEvent   = "keyevent"
	MethodScreenshot = "screenshot"
	MethodDumpUITree = "dump_ui_tree"
)

// DefaultHierarchy is served when no hierarchy is configured.
const DefaultHierarchy = `<?xml version='1.0' encoding='UTF-8' standalone='yes' ?>
<hierarchy rotation="0">
  <node index="0" text="" class="android.widget.FrameLayout" bounds="[0,0][1080,1920]">
    <node index="0" text="OK" resource-id="android:id/button1" class="android.widget.Button" bounds="[440,900][640,1000]"/>
  </node>
</hierarchy>`

// pngStub is an 8-byte PNG signature written by Screenshot.
var pngStub = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// Config configures mock device behavior.
type Config struct {
	// Hierarchy is the UI dump served by DumpUITree.
	Hierarchy string
	// Screen is the image written by Screenshot.
	Screen []byte
	// NeverAttach makes WaitForDevice fail.
	NeverAttach bool
	// StepDelay adds artificial delay per call.
	StepDelay time.Duration
	// DeviceID to report
	DeviceID string
}

// Call is one recorded device call.
type Call struct {
	Method string
	Args   []string
}

// Device is a scripted implementation of core.Device.
type Device struct {
	Config Config

	mu       sync.Mutex
	calls    []Call
	failures map[string][]error
}

var (
	_ core.Device    = (*Device)(nil)
	_ core.Describer = (*Device)(nil)
)

// New creates a mock device.
func New(cfg Config) *Device {
	if cfg.Hierarchy == "" {
		cfg.Hierarchy = DefaultHierarchy
	}
	if cfg.Screen == nil {
		cfg.Screen = pngStub
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = "mock-device"
	}
	return &Device{Config: cfg, failures: map[string][]error{}}
}

// FailNext queues errors for the next calls of method, one per call.
func (d *Device) FailNext(method string, errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[method] = append(d.failures[method], errs...)
}

// SetHierarchy replaces the UI dump served from now on.
func (d *Device) SetHierarchy(xml string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Config.Hierarchy = xml
}

// Calls returns a copy of the recorded calls.
func (d *Device) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// CallCount returns how many times method was called.
func (d *Device) CallCount(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// record logs the call, applies the delay and pops a queued failure.
func (d *Device) record(ctx context.Context, method string, args ...string) error {
	d.mu.Lock()
	d.calls = append(d.calls, Call{Method: method, Args: args})
	var err error
	if q := d.failures[method]; len(q) > 0 {
		err, d.failures[method] = q[0], q[1:]
	}
	delay := d.Config.StepDelay
	d.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return core.ErrTransport.WithMessage("mock call cancelled").WithCause(ctx.Err())
		case <-t.C:
		}
	}
	return err
}

// WaitForDevice succeeds unless NeverAttach is set.
func (d *Device) WaitForDevice(ctx context.Context, timeout time.Duration) error {
	if err := d.record(ctx, MethodWait, timeout.String()); err != nil {
		return err
	}
	if d.Config.NeverAttach {
		return core.ErrDeviceNotFound.WithMessagef("no mock device attached after %s", timeout)
	}
	return nil
}

// Launch records the launch.
func (d *Device) Launch(ctx context.Context, pkg string) error {
	return d.record(ctx, MethodLaunch, pkg)
}

// Tap records the tap.
func (d *Device) Tap(ctx context.Context, x, y int) error {
	return d.record(ctx, MethodTap, strconv.Itoa(x), strconv.Itoa(y))
}

// InputText records the text.
func (d *Device) InputText(ctx context.Context, text string) error {
	return d.record(ctx, MethodInputText, text)
}

// KeyEvent records the key code.
func (d *Device) KeyEvent(ctx context.Context, code int) error {
	return d.record(ctx, MethodKeyEvent, strconv.Itoa(code))
}

// Screenshot writes the configured image to path.
func (d *Device) Screenshot(ctx context.Context, path string) error {
	if err := d.record(ctx, MethodScreenshot, path); err != nil {
		return err
	}
	d.mu.Lock()
	data := d.Config.Screen
	d.mu.Unlock()
	return writeFile(path, data, core.ErrCaptureFailed)
}

// DumpUITree writes the configured hierarchy to path.
func (d *Device) DumpUITree(ctx context.Context, path string) error {
	if err := d.record(ctx, MethodDumpUITree, path); err != nil {
		return err
	}
	d.mu.Lock()
	data := d.Config.Hierarchy
	d.mu.Unlock()
	return writeFile(path, []byte(data), core.ErrSnapshotUnavailable)
}

// Info reports the mock identity.
func (d *Device) Info(ctx context.Context) (core.DeviceInfo, error) {
	return core.DeviceInfo{
		Serial:     d.Config.DeviceID,
		Model:      "Mock Device",
		SDK:        "34",
		IsEmulator: true,
		Driver:     "mock",
	}, nil
}

func writeFile(path string, data []byte, sentinel *core.ExecutionError) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return sentinel.WithCause(fmt.Errorf("create dir: %w", err))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return sentinel.WithCause(err)
	}
	return nil
}
