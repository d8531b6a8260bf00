// Package device provides Android device control via ADB.
package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/devicelab-dev/qa-runner/pkg/core"
	"github.com/devicelab-dev/qa-runner/pkg/logger"
)

// Defaults for adb invocations.
const (
	DefaultCommandTimeout = 30 * time.Second
	DefaultPollInterval   = time.Second
	deviceTempDir         = "/sdcard"
)

// Runner executes a host command and returns its stdout. Implementations
// must honor ctx cancellation.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec. Stderr is folded into the error.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg != "" {
			return stdout.Bytes(), fmt.Errorf("%w: %s", err, msg)
		}
		return stdout.Bytes(), err
	}
	return stdout.Bytes(), nil
}

// Options configures an AndroidDevice.
type Options struct {
	Serial         string        // Target device; empty uses the only attached device
	ADBPath        string        // adb binary; looked up in PATH when empty
	CommandTimeout time.Duration // Per-command timeout (default 30s)
	PollInterval   time.Duration // WaitForDevice polling interval (default 1s)
	Runner         Runner        // Command runner (default ExecRunner)
}

// AndroidDevice drives one Android device through adb. It implements
// core.Device.
type AndroidDevice struct {
	serial       string
	adbPath      string
	timeout      time.Duration
	pollInterval time.Duration
	run          Runner
}

var _ core.Device = (*AndroidDevice)(nil)

// New creates an AndroidDevice. It does not wait for the device; callers
// run WaitForDevice as a precondition.
func New(opts Options) (*AndroidDevice, error) {
	adbPath := opts.ADBPath
	run := opts.Runner
	if run == nil {
		run = ExecRunner
		if adbPath == "" {
			p, err := findADB()
			if err != nil {
				return nil, err
			}
			adbPath = p
		}
	}
	if adbPath == "" {
		adbPath = "adb"
	}

	d := &AndroidDevice{
		serial:       opts.Serial,
		adbPath:      adbPath,
		timeout:      opts.CommandTimeout,
		pollInterval: opts.PollInterval,
		run:          run,
	}
	if d.timeout <= 0 {
		d.timeout = DefaultCommandTimeout
	}
	if d.pollInterval <= 0 {
		d.pollInterval = DefaultPollInterval
	}
	return d, nil
}

// Serial returns the configured serial (may be empty).
func (d *AndroidDevice) Serial() string {
	return d.serial
}

// WaitForDevice polls adb until a device is in the "device" state or the
// timeout elapses.
func (d *AndroidDevice) WaitForDevice(ctx context.Context, timeout time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	polls := 0
	op := func() error {
		polls++
		if d.isConnected(wctx) {
			return nil
		}
		return errNotReady
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(d.pollInterval), wctx)
	if err := backoff.Retry(op, b); err != nil {
		if ctx.Err() != nil {
			return core.ErrDeviceNotFound.WithMessage("wait for device cancelled").WithCause(ctx.Err())
		}
		target := "any device"
		if d.serial != "" {
			target = d.serial
		}
		return core.ErrDeviceNotFound.
			WithMessagef("no adb device detected (%s) after %s; is the emulator running?", target, timeout).
			WithDetails(map[string]interface{}{"polls": polls})
	}
	logger.Debug("device ready after %d poll(s)", polls)
	return nil
}

var errNotReady = errors.New("device not ready")

// isConnected reports whether the target device is attached and online.
func (d *AndroidDevice) isConnected(ctx context.Context) bool {
	if d.serial != "" {
		out, err := d.adb(ctx, "get-state")
		return err == nil && strings.TrimSpace(string(out)) == "device"
	}

	out, err := d.adb(ctx, "devices")
	if err != nil {
		return false
	}
	for _, l := range ParseDevices(string(out)) {
		if l.State == "device" {
			return true
		}
	}
	return false
}

// Launch starts the app's launcher activity via monkey.
func (d *AndroidDevice) Launch(ctx context.Context, pkg string) error {
	out, err := d.adb(ctx, "shell", "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
	if err != nil {
		return err
	}
	if strings.Contains(string(out), "No activities found") || strings.Contains(string(out), "monkey aborted") {
		return core.ErrTransport.WithMessagef("adb launch %s: no launchable activity", pkg).
			WithDetails(map[string]interface{}{"output": strings.TrimSpace(string(out))})
	}
	return nil
}

// Tap taps at screen coordinates.
func (d *AndroidDevice) Tap(ctx context.Context, x, y int) error {
	_, err := d.adb(ctx, "shell", "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
	return err
}

// InputText types text into the focused field.
func (d *AndroidDevice) InputText(ctx context.Context, text string) error {
	_, err := d.adb(ctx, "shell", "input", "text", EscapeInputText(text))
	return err
}

// KeyEvent sends an Android key code.
func (d *AndroidDevice) KeyEvent(ctx context.Context, code int) error {
	_, err := d.adb(ctx, "shell", "input", "keyevent", strconv.Itoa(code))
	return err
}

// Screenshot captures the screen on the device and pulls it to path.
func (d *AndroidDevice) Screenshot(ctx context.Context, path string) error {
	remote := remoteTempPath("png")
	if _, err := d.adb(ctx, "shell", "screencap", "-p", remote); err != nil {
		return captureError(core.ErrCaptureFailed, "screencap", err)
	}
	defer d.removeRemote(ctx, remote)

	if err := d.pull(ctx, remote, path); err != nil {
		return captureError(core.ErrCaptureFailed, "pull screenshot", err)
	}
	return nil
}

// DumpUITree dumps the UI hierarchy on the device and pulls it to path.
func (d *AndroidDevice) DumpUITree(ctx context.Context, path string) error {
	remote := remoteTempPath("xml")
	out, err := d.adb(ctx, "shell", "uiautomator", "dump", remote)
	if err != nil {
		return captureError(core.ErrSnapshotUnavailable, "uiautomator dump", err)
	}
	// uiautomator reports some failures on stdout with a zero exit status
	if strings.Contains(string(out), "ERROR") {
		return core.ErrSnapshotUnavailable.WithMessagef("uiautomator dump: %s", strings.TrimSpace(string(out)))
	}
	defer d.removeRemote(ctx, remote)

	if err := d.pull(ctx, remote, path); err != nil {
		return captureError(core.ErrSnapshotUnavailable, "pull ui hierarchy", err)
	}
	return nil
}

// Info returns device information.
func (d *AndroidDevice) Info(ctx context.Context) (core.DeviceInfo, error) {
	info := core.DeviceInfo{Serial: d.serial, Driver: "adb"}

	if info.Serial == "" {
		if out, err := d.adb(ctx, "get-serialno"); err == nil {
			info.Serial = strings.TrimSpace(string(out))
		}
	}
	if model, err := d.getprop(ctx, "ro.product.model"); err == nil {
		info.Model = model
	}
	if sdk, err := d.getprop(ctx, "ro.build.version.sdk"); err == nil {
		info.SDK = sdk
	}

	qemu, _ := d.getprop(ctx, "ro.kernel.qemu")
	info.IsEmulator = qemu == "1" || strings.HasPrefix(info.Serial, "emulator-")

	return info, nil
}

func (d *AndroidDevice) getprop(ctx context.Context, name string) (string, error) {
	out, err := d.adb(ctx, "shell", "getprop", name)
	return strings.TrimSpace(string(out)), err
}

func (d *AndroidDevice) pull(ctx context.Context, remote, local string) error {
	if dir := filepath.Dir(local); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	_, err := d.adb(ctx, "pull", remote, local)
	return err
}

func (d *AndroidDevice) removeRemote(ctx context.Context, remote string) {
	if _, err := d.adb(ctx, "shell", "rm", "-f", remote); err != nil {
		logger.Debug("remove %s: %v", remote, err)
	}
}

// adb executes one adb command under the per-command timeout. Failures are
// returned as ExecutionErrors: ErrTimeout when the deadline hit, ErrTransport
// otherwise.
func (d *AndroidDevice) adb(ctx context.Context, args ...string) ([]byte, error) {
	cmdArgs := make([]string, 0, len(args)+2)
	if d.serial != "" {
		cmdArgs = append(cmdArgs, "-s", d.serial)
	}
	cmdArgs = append(cmdArgs, args...)

	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	logger.Debug("adb %s", strings.Join(cmdArgs, " "))
	out, err := d.run(cctx, d.adbPath, cmdArgs...)
	if err == nil {
		return out, nil
	}

	cmdline := strings.Join(args, " ")
	if errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return out, core.ErrTimeout.WithMessagef("adb %s timed out after %s", cmdline, d.timeout).WithCause(err)
	}
	return out, core.ErrTransport.WithMessagef("adb %s", cmdline).WithCause(err)
}

// captureError rewraps a transport failure under a capture sentinel while
// keeping timeouts recognizable.
func captureError(sentinel *core.ExecutionError, op string, err error) error {
	if errors.Is(err, core.ErrTimeout) {
		return err
	}
	return sentinel.WithMessage(op + " failed").WithCause(err)
}

func remoteTempPath(ext string) string {
	return fmt.Sprintf("%s/qa-%s.%s", deviceTempDir, uuid.NewString(), ext)
}

// EscapeInputText encodes text for "adb shell input text": spaces become
// %s and characters the device shell would interpret are backslash-escaped.
func EscapeInputText(text string) string {
	var sb strings.Builder
	for _, r := range text {
		switch r {
		case ' ':
			sb.WriteString("%s")
		case '\\', '\'', '"', '`', '$', '&', '|', ';', '<', '>', '(', ')', '*', '~', '?', '!', '#', '[', ']', '{', '}':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// findADB locates the adb binary in PATH or the Android SDK.
func findADB() (string, error) {
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}
	for _, env := range []string{"ANDROID_HOME", "ANDROID_SDK_ROOT"} {
		if home := os.Getenv(env); home != "" {
			p := filepath.Join(home, "platform-tools", "adb")
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("adb not found in PATH; ensure Android SDK is installed")
}
