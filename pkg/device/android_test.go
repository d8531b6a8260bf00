package device

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/devicelab-dev/qa-runner/pkg/core"
)

// fakeADB records adb invocations and answers them from a script keyed by
// the argument list without the "-s serial" prefix.
type fakeADB struct {
	mu      sync.Mutex
	calls   [][]string
	outputs map[string]string
	errs    map[string]error
	// respond overrides the scripted maps when set.
	respond func(ctx context.Context, args []string) ([]byte, error)
}

func newFakeADB() *fakeADB {
	return &fakeADB{outputs: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeADB) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()

	if len(args) >= 2 && args[0] == "-s" {
		args = args[2:]
	}
	if f.respond != nil {
		return f.respond(ctx, args)
	}
	key := strings.Join(args, " ")
	for prefix, err := range f.errs {
		if strings.HasPrefix(key, prefix) {
			return nil, err
		}
	}
	for prefix, out := range f.outputs {
		if strings.HasPrefix(key, prefix) {
			return []byte(out), nil
		}
	}
	return nil, nil
}

func (f *fakeADB) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmds := make([]string, len(f.calls))
	for i, c := range f.calls {
		cmds[i] = strings.Join(c, " ")
	}
	return cmds
}

func newTestDevice(t *testing.T, serial string, f *fakeADB) *AndroidDevice {
	t.Helper()
	d, err := New(Options{
		Serial:         serial,
		Runner:         f.run,
		CommandTimeout: time.Second,
		PollInterval:   5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d
}

func TestAndroidDevice_Commands(t *testing.T) {
	ctx := context.Background()
	f := newFakeADB()
	d := newTestDevice(t, "emulator-5554", f)

	if err := d.Launch(ctx, "md.obsidian"); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if err := d.Tap(ctx, 540, 1200); err != nil {
		t.Fatalf("Tap() error = %v", err)
	}
	if err := d.KeyEvent(ctx, 66); err != nil {
		t.Fatalf("KeyEvent() error = %v", err)
	}
	if err := d.InputText(ctx, "Internal Testing"); err != nil {
		t.Fatalf("InputText() error = %v", err)
	}

	want := []string{
		"-s emulator-5554 shell monkey -p md.obsidian -c android.intent.category.LAUNCHER 1",
		"-s emulator-5554 shell input tap 540 1200",
		"-s emulator-5554 shell input keyevent 66",
		"-s emulator-5554 shell input text Internal%sTesting",
	}
	if diff := cmp.Diff(want, f.commands()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestAndroidDevice_NoSerial(t *testing.T) {
	f := newFakeADB()
	d := newTestDevice(t, "", f)

	if err := d.Tap(context.Background(), 1, 2); err != nil {
		t.Fatalf("Tap() error = %v", err)
	}
	if got := f.commands()[0]; got != "shell input tap 1 2" {
		t.Errorf("command = %q, want no -s flag", got)
	}
}

func TestEscapeInputText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"Internal Testing", "Internal%sTesting"},
		{"a  b", "a%s%sb"},
		{"it's", `it\'s`},
		{"a&b;c", `a\&b\;c`},
		{"$HOME", `\$HOME`},
		{"(x)", `\(x\)`},
		{"", ""},
	}
	for _, tt := range tests {
		if got := EscapeInputText(tt.in); got != tt.want {
			t.Errorf("EscapeInputText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAndroidDevice_LaunchNoActivity(t *testing.T) {
	f := newFakeADB()
	f.outputs["shell monkey"] = "** No activities found to run, monkey aborted."
	d := newTestDevice(t, "", f)

	err := d.Launch(context.Background(), "com.missing")
	if !errors.Is(err, core.ErrTransport) {
		t.Fatalf("Launch() error = %v, want ErrTransport", err)
	}
	if kind, _ := core.KindOf(err); kind != core.FailureExecution {
		t.Errorf("kind = %s, want EXECUTION_FAILURE", kind)
	}
}

func TestAndroidDevice_TransportError(t *testing.T) {
	f := newFakeADB()
	f.errs["shell input tap"] = errors.New("exit status 1: error: device offline")
	d := newTestDevice(t, "", f)

	err := d.Tap(context.Background(), 1, 1)
	if !errors.Is(err, core.ErrTransport) {
		t.Fatalf("Tap() error = %v, want ErrTransport", err)
	}
	if !strings.Contains(err.Error(), "adb shell input tap 1 1") || !strings.Contains(err.Error(), "device offline") {
		t.Errorf("error = %q, should name the command and cause", err)
	}
}

func TestAndroidDevice_Timeout(t *testing.T) {
	f := newFakeADB()
	f.respond = func(ctx context.Context, args []string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	d, _ := New(Options{Runner: f.run, CommandTimeout: 10 * time.Millisecond})

	err := d.KeyEvent(context.Background(), 4)
	if !errors.Is(err, core.ErrTimeout) {
		t.Fatalf("KeyEvent() error = %v, want ErrTimeout", err)
	}
	if kind, _ := core.KindOf(err); kind != core.FailureExecution {
		t.Errorf("kind = %s", kind)
	}

	// A timeout during capture stays a timeout.
	err = d.Screenshot(context.Background(), t.TempDir()+"/s.png")
	if !errors.Is(err, core.ErrTimeout) {
		t.Errorf("Screenshot() error = %v, want ErrTimeout", err)
	}
}

func TestAndroidDevice_Screenshot(t *testing.T) {
	f := newFakeADB()
	d := newTestDevice(t, "", f)
	local := t.TempDir() + "/shots/step1.png"

	if err := d.Screenshot(context.Background(), local); err != nil {
		t.Fatalf("Screenshot() error = %v", err)
	}

	cmds := f.commands()
	if len(cmds) != 3 {
		t.Fatalf("commands = %v, want screencap, pull, rm", cmds)
	}
	if !strings.HasPrefix(cmds[0], "shell screencap -p /sdcard/qa-") || !strings.HasSuffix(cmds[0], ".png") {
		t.Errorf("screencap = %q", cmds[0])
	}
	remote := strings.TrimPrefix(cmds[0], "shell screencap -p ")
	if cmds[1] != "pull "+remote+" "+local {
		t.Errorf("pull = %q", cmds[1])
	}
	if cmds[2] != "shell rm -f "+remote {
		t.Errorf("cleanup = %q", cmds[2])
	}
}

func TestAndroidDevice_ScreenshotUniqueRemotePaths(t *testing.T) {
	f := newFakeADB()
	d := newTestDevice(t, "", f)
	dir := t.TempDir()

	_ = d.Screenshot(context.Background(), dir+"/a.png")
	_ = d.Screenshot(context.Background(), dir+"/b.png")

	cmds := f.commands()
	if cmds[0] == cmds[3] {
		t.Errorf("remote temp paths should differ: %q", cmds[0])
	}
}

func TestAndroidDevice_CaptureFailures(t *testing.T) {
	t.Run("screencap", func(t *testing.T) {
		f := newFakeADB()
		f.errs["shell screencap"] = errors.New("exit status 1")
		d := newTestDevice(t, "", f)

		err := d.Screenshot(context.Background(), t.TempDir()+"/x.png")
		if !errors.Is(err, core.ErrCaptureFailed) {
			t.Errorf("error = %v, want ErrCaptureFailed", err)
		}
	})

	t.Run("dump error exit", func(t *testing.T) {
		f := newFakeADB()
		f.errs["shell uiautomator"] = errors.New("exit status 137")
		d := newTestDevice(t, "", f)

		err := d.DumpUITree(context.Background(), t.TempDir()+"/x.xml")
		if !errors.Is(err, core.ErrSnapshotUnavailable) {
			t.Errorf("error = %v, want ErrSnapshotUnavailable", err)
		}
	})

	t.Run("dump error output", func(t *testing.T) {
		f := newFakeADB()
		f.outputs["shell uiautomator"] = "ERROR: could not get idle state."
		d := newTestDevice(t, "", f)

		err := d.DumpUITree(context.Background(), t.TempDir()+"/x.xml")
		if !errors.Is(err, core.ErrSnapshotUnavailable) {
			t.Errorf("error = %v, want ErrSnapshotUnavailable", err)
		}
		for _, c := range f.commands() {
			if strings.HasPrefix(c, "pull") {
				t.Errorf("should not pull after failed dump: %v", f.commands())
			}
		}
	})
}

func TestAndroidDevice_DumpUITree(t *testing.T) {
	f := newFakeADB()
	f.outputs["shell uiautomator"] = "UI hierchary dumped to: /sdcard/x.xml"
	d := newTestDevice(t, "", f)
	local := t.TempDir() + "/h.xml"

	if err := d.DumpUITree(context.Background(), local); err != nil {
		t.Fatalf("DumpUITree() error = %v", err)
	}
	cmds := f.commands()
	if !strings.HasPrefix(cmds[0], "shell uiautomator dump /sdcard/qa-") {
		t.Errorf("dump = %q", cmds[0])
	}
	if !strings.HasSuffix(cmds[1], " "+local) {
		t.Errorf("pull = %q", cmds[1])
	}
}

func TestAndroidDevice_WaitForDevice(t *testing.T) {
	t.Run("becomes ready", func(t *testing.T) {
		f := newFakeADB()
		polls := 0
		f.respond = func(ctx context.Context, args []string) ([]byte, error) {
			polls++
			if polls < 3 {
				return []byte("List of devices attached\n\n"), nil
			}
			return []byte("List of devices attached\nemulator-5554\tdevice\n"), nil
		}
		d := newTestDevice(t, "", f)

		if err := d.WaitForDevice(context.Background(), time.Second); err != nil {
			t.Fatalf("WaitForDevice() error = %v", err)
		}
		if polls != 3 {
			t.Errorf("polls = %d, want 3", polls)
		}
	})

	t.Run("serial uses get-state", func(t *testing.T) {
		f := newFakeADB()
		f.outputs["get-state"] = "device\n"
		d := newTestDevice(t, "emulator-5554", f)

		if err := d.WaitForDevice(context.Background(), time.Second); err != nil {
			t.Fatalf("WaitForDevice() error = %v", err)
		}
		if got := f.commands()[0]; got != "-s emulator-5554 get-state" {
			t.Errorf("command = %q", got)
		}
	})

	t.Run("never attaches", func(t *testing.T) {
		f := newFakeADB()
		f.outputs["devices"] = "List of devices attached\nemulator-5554\toffline\n"
		d := newTestDevice(t, "", f)

		err := d.WaitForDevice(context.Background(), 50*time.Millisecond)
		if !errors.Is(err, core.ErrDeviceNotFound) {
			t.Fatalf("WaitForDevice() error = %v, want ErrDeviceNotFound", err)
		}
		if !strings.Contains(err.Error(), "no adb device detected") {
			t.Errorf("error = %q", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		f := newFakeADB()
		d := newTestDevice(t, "", f)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := d.WaitForDevice(ctx, time.Second)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("WaitForDevice() error = %v, want context.Canceled in chain", err)
		}
	})
}

func TestAndroidDevice_Info(t *testing.T) {
	f := newFakeADB()
	f.outputs["shell getprop ro.product.model"] = "sdk_gphone64_x86_64\n"
	f.outputs["shell getprop ro.build.version.sdk"] = "34\n"
	f.outputs["shell getprop ro.kernel.qemu"] = "1\n"
	d := newTestDevice(t, "emulator-5554", f)

	info, err := d.Info(context.Background())
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	want := core.DeviceInfo{Serial: "emulator-5554", Model: "sdk_gphone64_x86_64", SDK: "34", IsEmulator: true, Driver: "adb"}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Errorf("Info() mismatch (-want +got):\n%s", diff)
	}
}
