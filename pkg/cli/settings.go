package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/qa-runner/pkg/config"
	"github.com/devicelab-dev/qa-runner/pkg/core"
	"github.com/devicelab-dev/qa-runner/pkg/device"
	"github.com/devicelab-dev/qa-runner/pkg/driver/mock"
	"github.com/devicelab-dev/qa-runner/pkg/locator"
	"github.com/devicelab-dev/qa-runner/pkg/logger"
)

// loadConfig reads --config (or ./qa-runner.yaml), then applies flags that
// were set explicitly. Flags always win over the file.
func loadConfig(c *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(".")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if c.IsSet("device") {
		cfg.Device.Serial = c.String("device")
	}
	if c.IsSet("log-file") {
		cfg.Log.File = c.String("log-file")
	}
	if c.Bool("verbose") {
		cfg.Log.Level = "debug"
	}

	// Command-level flags; lookups on unknown names return zero values and
	// IsSet false, so commands without these flags are unaffected.
	if c.IsSet("artifacts") {
		cfg.Artifacts.Dir = c.String("artifacts")
	}
	if c.IsSet("retries") {
		cfg.Retry.MaxPerStep = c.Int("retries")
	}
	if c.IsSet("fail-fast") {
		cfg.FailFast = c.Bool("fail-fast")
	}
	if c.IsSet("locator") {
		cfg.Locator.Strategy = c.String("locator")
	}
	if c.IsSet("auto-screenshot") {
		cfg.Artifacts.AutoScreenshot = c.Bool("auto-screenshot")
	}
	if c.IsSet("allure") {
		cfg.Artifacts.Allure = c.Bool("allure")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// initLogging starts the file logger; verbose also mirrors to stderr.
func initLogging(c *cli.Context, cfg *config.Config, defaultFile string) {
	file := cfg.LogFile(defaultFile)
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot create log dir: %v\n", err)
		file = ""
	}
	if err := logger.Init(logger.Options{
		Level:      cfg.Log.Level,
		File:       file,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Console:    c.Bool("verbose"),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}
}

// newDevice builds the device selected by --driver.
func newDevice(c *cli.Context, cfg *config.Config) (core.Device, error) {
	switch driver := c.String("driver"); driver {
	case "", DriverADB:
		return device.New(device.Options{
			Serial:         cfg.Device.Serial,
			ADBPath:        cfg.Device.ADBPath,
			CommandTimeout: cfg.Timeouts.Command,
		})
	case DriverMock:
		mc := mock.Config{DeviceID: cfg.Device.Serial}
		if path := c.String("mock-hierarchy"); path != "" {
			data, err := os.ReadFile(path) //#nosec G304 -- user-provided fixture
			if err != nil {
				return nil, fmt.Errorf("read mock hierarchy: %w", err)
			}
			mc.Hierarchy = string(data)
		}
		return mock.New(mc), nil
	default:
		return nil, fmt.Errorf("unknown driver %q (want %s or %s)", driver, DriverADB, DriverMock)
	}
}

// newLocator builds the configured locate strategy.
func newLocator(ctx context.Context, cfg *config.Config) (locator.Locator, error) {
	return locator.New(ctx, locator.Options{
		Strategy:    cfg.Locator.Strategy,
		VisionModel: cfg.Locator.VisionModel,
		APIKey:      cfg.Locator.APIKey(),
	})
}
