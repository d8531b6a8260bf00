// Package cli provides the command-line interface for qa-runner.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// Driver names accepted by --driver.
const (
	DriverADB  = "adb"
	DriverMock = "mock"
)

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"s"},
		Usage:   "adb serial of the device to use (default: the only attached device)",
		EnvVars: []string{"QA_RUNNER_DEVICE", "ANDROID_SERIAL"},
	},
	&cli.StringFlag{
		Name:    "driver",
		Usage:   "Device driver (adb, mock)",
		Value:   DriverADB,
		EnvVars: []string{"QA_RUNNER_DRIVER"},
	},
	&cli.StringFlag{
		Name:    "config",
		Usage:   "Path to qa-runner.yaml (default: ./qa-runner.yaml if present)",
		EnvVars: []string{"QA_RUNNER_CONFIG"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging to stderr",
		EnvVars: []string{"QA_RUNNER_VERBOSE"},
	},
	&cli.StringFlag{
		Name:    "log-file",
		Usage:   "Write JSON logs to this file",
		EnvVars: []string{"QA_RUNNER_LOG_FILE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "qa-runner",
		Usage:   "Run YAML UI test suites against an Android device",
		Version: Version,
		Description: `qa-runner executes YAML test suites step by step over adb, retrying
flaky steps and recording every attempt with its artifacts.

Examples:
  qa-runner run suites/obsidian.yaml
  qa-runner -s emulator-5554 run suites/obsidian.yaml --retries 2
  qa-runner validate suites/
  qa-runner locate "Create a vault"`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
		Commands: []*cli.Command{
			runCommand,
			validateCommand,
			locateCommand,
			devicesCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok {
			if msg := exitErr.Error(); msg != "" {
				fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
			}
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
