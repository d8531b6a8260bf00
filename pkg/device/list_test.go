package device

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseDevices(t *testing.T) {
	out := `* daemon not running; starting now at tcp:5037
* daemon started successfully
List of devices attached
emulator-5554          device product:sdk_gphone64_x86_64 model:sdk_gphone64_x86_64 device:emu64xa transport_id:1
R58M12345AB            unauthorized usb:1-1 transport_id:2
192.168.1.20:5555	offline

`
	want := []Listing{
		{Serial: "emulator-5554", State: "device", Model: "sdk_gphone64_x86_64"},
		{Serial: "R58M12345AB", State: "unauthorized"},
		{Serial: "192.168.1.20:5555", State: "offline"},
	}
	got := ParseDevices(out)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseDevices() mismatch (-want +got):\n%s", diff)
	}
	if !got[0].IsEmulator() || got[1].IsEmulator() {
		t.Error("IsEmulator() mismatch")
	}
}

func TestParseDevices_Empty(t *testing.T) {
	if got := ParseDevices("List of devices attached\n\n"); len(got) != 0 {
		t.Errorf("ParseDevices() = %v, want empty", got)
	}
}

func TestListDevices(t *testing.T) {
	f := newFakeADB()
	f.outputs["devices -l"] = "List of devices attached\nemulator-5554 device model:Pixel_7\n"

	got, err := ListDevices(context.Background(), Options{Serial: "ignored", Runner: f.run})
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(got) != 1 || got[0].Model != "Pixel_7" {
		t.Errorf("ListDevices() = %v", got)
	}
	if cmds := f.commands(); cmds[0] != "devices -l" {
		t.Errorf("command = %q, want no serial", cmds[0])
	}
}
