package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/qa-runner/pkg/core"
	"github.com/devicelab-dev/qa-runner/pkg/locator"
	"github.com/devicelab-dev/qa-runner/pkg/logger"
)

var locateCommand = &cli.Command{
	Name:      "locate",
	Usage:     "Resolve a target against the current screen",
	ArgsUsage: "<target>",
	Description: `Dump the UI hierarchy and print where a tap_target step would tap.

With --hierarchy the dump is read from a file and no device is needed.

Examples:
  qa-runner locate "Create a vault"
  qa-runner locate "Vault name" --hint "My vault"
  qa-runner locate OK --hierarchy window_dump.xml`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "hint",
			Usage: "Secondary match string",
		},
		&cli.StringFlag{
			Name:  "hierarchy",
			Usage: "Resolve against a saved uiautomator dump instead of the device",
		},
		&cli.StringFlag{
			Name:  "locator",
			Usage: "Locate strategy (hierarchy, vision, hierarchy+vision)",
		},
		&cli.StringFlag{
			Name:  "mock-hierarchy",
			Usage: "UI dump served by the mock driver",
		},
	},
	Action: runLocate,
}

func runLocate(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one target is required")
	}
	target := c.Args().First()
	hint := c.String("hint")

	var result core.LocatorResult
	if path := c.String("hierarchy"); path != "" {
		data, err := os.ReadFile(path) //#nosec G304 -- user-provided dump
		if err != nil {
			return fmt.Errorf("read hierarchy: %w", err)
		}
		tree, err := locator.ParseTree(data)
		if err != nil {
			return err
		}
		result = locator.Resolve(tree, target, hint)
	} else {
		var err error
		result, err = locateOnDevice(c, target, hint)
		if err != nil {
			return err
		}
	}

	w := c.App.Writer
	if w == nil {
		w = os.Stdout
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))

	if !result.Found {
		return cli.Exit("", 1)
	}
	return nil
}

func locateOnDevice(c *cli.Context, target, hint string) (core.LocatorResult, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return core.LocatorResult{}, err
	}
	initLogging(c, cfg, "")
	defer logger.Close()
	logger.Info("locate %q (hint %q) with %s locator", target, hint, cfg.Locator.Strategy)

	ctx := c.Context
	dev, err := newDevice(c, cfg)
	if err != nil {
		return core.LocatorResult{}, err
	}
	if err := dev.WaitForDevice(ctx, cfg.Timeouts.Device); err != nil {
		return core.LocatorResult{}, err
	}
	loc, err := newLocator(ctx, cfg)
	if err != nil {
		return core.LocatorResult{}, fmt.Errorf("locator: %w", err)
	}

	dir, err := os.MkdirTemp("", "qa-runner-locate-")
	if err != nil {
		return core.LocatorResult{}, err
	}
	defer os.RemoveAll(dir)

	return loc.Locate(ctx, &tempSource{device: dev, dir: dir}, target, hint), nil
}

// tempSource captures snapshots into a scratch directory.
type tempSource struct {
	device core.Device
	dir    string
}

func (s *tempSource) UITree(ctx context.Context) ([]byte, error) {
	path := filepath.Join(s.dir, "window_dump.xml")
	if err := s.device.DumpUITree(ctx, path); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (s *tempSource) Screen(ctx context.Context) ([]byte, error) {
	path := filepath.Join(s.dir, "screen.png")
	if err := s.device.Screenshot(ctx, path); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}
