// Package config handles configuration for qa-runner.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the workspace configuration (qa-runner.yaml).
type Config struct {
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Retry     RetryConfig     `yaml:"retry"`
	Settle    SettleConfig    `yaml:"settle"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Locator   LocatorConfig   `yaml:"locator"`
	Log       LogConfig       `yaml:"log"`
	Device    DeviceConfig    `yaml:"device"`

	// FailFast stops scheduling tests after the first failed test.
	FailFast bool `yaml:"fail_fast"`
}

// ArtifactsConfig controls where screenshots, dumps and run logs go.
type ArtifactsConfig struct {
	Dir            string `yaml:"dir"`
	AutoScreenshot bool   `yaml:"auto_screenshot"` // Screenshot after every action step
	Allure         bool   `yaml:"allure"`          // Also export allure-results/
}

// RetryConfig configures the supervisor.
type RetryConfig struct {
	MaxPerStep int      `yaml:"max_per_step"`
	FlakyKinds []string `yaml:"flaky_kinds"`
}

// SettleConfig holds the pause after each action kind.
type SettleConfig struct {
	Launch    time.Duration `yaml:"launch"`
	Tap       time.Duration `yaml:"tap"`
	TapTarget time.Duration `yaml:"tap_target"`
	Input     time.Duration `yaml:"input"`
	KeyEvent  time.Duration `yaml:"keyevent"`
}

// TimeoutsConfig bounds device calls.
type TimeoutsConfig struct {
	Command time.Duration `yaml:"command"` // Per adb command
	Device  time.Duration `yaml:"device"`  // WaitForDevice
}

// LocatorConfig selects the locate strategy.
type LocatorConfig struct {
	Strategy    string `yaml:"strategy"`
	VisionModel string `yaml:"vision_model"`
	APIKeyEnv   string `yaml:"api_key_env"` // Environment variable holding the vision API key
}

// APIKey reads the vision API key from the configured environment variable.
func (l LocatorConfig) APIKey() string {
	if l.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(l.APIKeyEnv)
}

// LogConfig configures the file logger.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// DeviceConfig selects the adb target.
type DeviceConfig struct {
	Serial  string `yaml:"serial"`
	ADBPath string `yaml:"adb_path"`
}

// Known values accepted by Validate. Kept here so config does not depend
// on the packages that consume it.
var (
	knownStrategies = []string{"hierarchy", "vision", "hierarchy+vision"}
	knownKinds      = []string{"launch_app", "tap", "tap_target", "input_text", "keyevent", "sleep", "screenshot"}
	knownLevels     = []string{"debug", "info", "warn", "error"}
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Artifacts: ArtifactsConfig{Dir: "artifacts"},
		Retry: RetryConfig{
			MaxPerStep: 1,
			FlakyKinds: []string{"tap", "tap_target", "input_text", "launch_app"},
		},
		Settle: SettleConfig{
			Launch:    5 * time.Second,
			Tap:       700 * time.Millisecond,
			TapTarget: 800 * time.Millisecond,
			Input:     500 * time.Millisecond,
			KeyEvent:  500 * time.Millisecond,
		},
		Timeouts: TimeoutsConfig{
			Command: 30 * time.Second,
			Device:  60 * time.Second,
		},
		Locator: LocatorConfig{
			Strategy:    "hierarchy",
			VisionModel: "gemini-2.5-flash",
			APIKeyEnv:   "GEMINI_API_KEY",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load loads configuration from a file, merged onto Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromDir looks for qa-runner.yaml or qa-runner.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"qa-runner.yaml", "qa-runner.yml"} {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return Load(configPath)
		}
	}

	// No config file found, use defaults
	return Default(), nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.Artifacts.Dir == "" {
		errs = append(errs, errors.New("artifacts.dir must not be empty"))
	}
	if c.Retry.MaxPerStep < 0 {
		errs = append(errs, fmt.Errorf("retry.max_per_step must be >= 0, got %d", c.Retry.MaxPerStep))
	}
	for _, k := range c.Retry.FlakyKinds {
		if !contains(knownKinds, k) {
			errs = append(errs, fmt.Errorf("retry.flaky_kinds: unknown step kind %q", k))
		}
	}

	settles := map[string]time.Duration{
		"settle.launch":     c.Settle.Launch,
		"settle.tap":        c.Settle.Tap,
		"settle.tap_target": c.Settle.TapTarget,
		"settle.input":      c.Settle.Input,
		"settle.keyevent":   c.Settle.KeyEvent,
	}
	for _, name := range []string{"settle.launch", "settle.tap", "settle.tap_target", "settle.input", "settle.keyevent"} {
		if settles[name] < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}

	if c.Timeouts.Command <= 0 {
		errs = append(errs, errors.New("timeouts.command must be positive"))
	}
	if c.Timeouts.Device <= 0 {
		errs = append(errs, errors.New("timeouts.device must be positive"))
	}
	if !contains(knownStrategies, c.Locator.Strategy) {
		errs = append(errs, fmt.Errorf("locator.strategy: unknown strategy %q", c.Locator.Strategy))
	}
	if c.Log.Level != "" && !contains(knownLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}

	return errors.Join(errs...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
