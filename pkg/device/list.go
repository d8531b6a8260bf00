package device

import (
	"context"
	"strings"
)

// Listing is one line of "adb devices -l".
type Listing struct {
	Serial string `json:"serial"`
	State  string `json:"state"` // device, offline, unauthorized...
	Model  string `json:"model,omitempty"`
}

// IsEmulator reports whether the serial names a local emulator.
func (l Listing) IsEmulator() bool {
	return strings.HasPrefix(l.Serial, "emulator-")
}

// ListDevices returns every device adb knows about, in adb's order.
func ListDevices(ctx context.Context, opts Options) ([]Listing, error) {
	opts.Serial = ""
	d, err := New(opts)
	if err != nil {
		return nil, err
	}
	out, err := d.adb(ctx, "devices", "-l")
	if err != nil {
		return nil, err
	}
	return ParseDevices(string(out)), nil
}

// ParseDevices parses "adb devices" output, with or without -l.
func ParseDevices(out string) []Listing {
	var listings []Listing
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		l := Listing{Serial: fields[0], State: fields[1]}
		for _, f := range fields[2:] {
			if v, ok := strings.CutPrefix(f, "model:"); ok {
				l.Model = v
			}
		}
		listings = append(listings, l)
	}
	return listings
}
