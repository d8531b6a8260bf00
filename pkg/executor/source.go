package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devicelab-dev/qa-runner/pkg/core"
)

// deviceSource feeds the locator from the device during one step attempt.
// Each UITree call dumps a fresh hierarchy to its own path; Screen reuses
// the attempt's locate screenshot when there is one.
type deviceSource struct {
	device    core.Device
	artifacts *Artifacts
	sc        StepContext
	screen    string
	out       *core.StepOutcome
	dumps     int
}

func newDeviceSource(device core.Device, artifacts *Artifacts, sc StepContext, screen string, out *core.StepOutcome) *deviceSource {
	return &deviceSource{
		device:    device,
		artifacts: artifacts,
		sc:        sc,
		screen:    screen,
		out:       out,
	}
}

// UITree dumps the hierarchy and reads it back.
func (s *deviceSource) UITree(ctx context.Context) ([]byte, error) {
	s.dumps++
	path := s.artifacts.Hierarchy(s.sc, s.dumps)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create hierarchy dir: %w", err)
	}
	if err := s.device.DumpUITree(ctx, path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ui dump: %w", err)
	}
	if s.out != nil {
		s.out.Attach(core.NewHierarchyAttachment(path))
	}
	return data, nil
}

// Screen returns the locate screenshot, capturing one if needed.
func (s *deviceSource) Screen(ctx context.Context) ([]byte, error) {
	if s.screen == "" {
		s.screen = s.artifacts.Screenshot(s.sc, "locate")
		if err := os.MkdirAll(filepath.Dir(s.screen), 0o755); err != nil {
			return nil, fmt.Errorf("create screenshot dir: %w", err)
		}
		if err := s.device.Screenshot(ctx, s.screen); err != nil {
			return nil, err
		}
	}
	return os.ReadFile(s.screen)
}
