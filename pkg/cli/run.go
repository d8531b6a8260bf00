package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/qa-runner/pkg/config"
	"github.com/devicelab-dev/qa-runner/pkg/core"
	"github.com/devicelab-dev/qa-runner/pkg/executor"
	"github.com/devicelab-dev/qa-runner/pkg/locator"
	"github.com/devicelab-dev/qa-runner/pkg/logger"
	"github.com/devicelab-dev/qa-runner/pkg/report"
	"github.com/devicelab-dev/qa-runner/pkg/suite"
	"github.com/devicelab-dev/qa-runner/pkg/supervisor"
	"github.com/devicelab-dev/qa-runner/pkg/validator"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run a test suite on a device",
	ArgsUsage: "<suite.yaml>",
	Description: `Run every test of a YAML suite in order on one device.

Artifacts are written under the artifacts directory:
  - screenshots/ and hierarchy/ for every step attempt
  - logs/run_<run_id>.json with every outcome and supervisor decision
  - allure-results/ when --allure is set

Examples:
  qa-runner run suites/obsidian.yaml
  qa-runner run suites/obsidian.yaml --retries 2 --fail-fast
  qa-runner --driver mock run suites/obsidian.yaml --mock-hierarchy ui.xml`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "artifacts",
			Aliases: []string{"o"},
			Usage:   "Artifacts directory (default: artifacts)",
			EnvVars: []string{"QA_RUNNER_ARTIFACTS"},
		},
		&cli.IntFlag{
			Name:    "retries",
			Usage:   "Retry budget per flaky step",
			EnvVars: []string{"QA_RUNNER_RETRIES"},
		},
		&cli.BoolFlag{
			Name:  "fail-fast",
			Usage: "Skip remaining tests after the first failure",
		},
		&cli.StringFlag{
			Name:    "locator",
			Usage:   "Locate strategy (hierarchy, vision, hierarchy+vision)",
			EnvVars: []string{"QA_RUNNER_LOCATOR"},
		},
		&cli.BoolFlag{
			Name:  "auto-screenshot",
			Usage: "Screenshot after every launch, tap and input step",
		},
		&cli.BoolFlag{
			Name:  "allure",
			Usage: "Also export Allure results",
		},
		&cli.StringFlag{
			Name:  "mock-hierarchy",
			Usage: "UI dump served by the mock driver",
		},
	},
	Action: runSuite,
}

func runSuite(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one suite file is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	initLogging(c, cfg, filepath.Join(cfg.Artifacts.Dir, report.LogDir, "qa-runner.log"))
	defer logger.Close()

	s, err := loadSuite(c.Args().First())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dev, err := newDevice(c, cfg)
	if err != nil {
		return err
	}
	loc, err := newLocator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("locator: %w", err)
	}

	printBanner(s)
	runLog, runErr := executeSuite(ctx, dev, loc, cfg, s, c.String("driver"), newLiveOutput(os.Stdout))

	logPath, err := report.Write(cfg.Artifacts.Dir, runLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	if runErr != nil {
		logger.Error("run aborted: %v", runErr)
		fmt.Fprintf(os.Stderr, "\n  %s✗%s %v\n", color(colorRed), color(colorReset), runErr)
		if logPath != "" {
			fmt.Printf("  Run log: %s\n", logPath)
		}
		return cli.Exit("", 1)
	}

	printSummary(runLog)

	fmt.Println("  Reports:")
	if logPath != "" {
		fmt.Printf("    Run log: %s\n", logPath)
	}
	if cfg.Artifacts.Allure {
		dir, err := report.GenerateAllure(cfg.Artifacts.Dir, runLog)
		if err != nil {
			fmt.Printf("  %s⚠%s Warning: failed to generate Allure results: %v\n", color(colorYellow), color(colorReset), err)
		} else {
			fmt.Printf("    Allure:  %s\n", dir)
		}
	}
	fmt.Println()

	if runLog.Status != core.TestPass {
		return cli.Exit("", 1)
	}
	return nil
}

// loadSuite parses the suite and rejects it before any device work if a
// step is malformed.
func loadSuite(path string) (*suite.TestSuite, error) {
	result := validator.New().Validate(path)
	if !result.IsValid() {
		fmt.Fprintf(os.Stderr, "Validation errors:\n")
		for _, err := range result.Errors {
			fmt.Fprintf(os.Stderr, "  - %v\n", err)
		}
		return nil, fmt.Errorf("validation failed with %d error(s)", len(result.Errors))
	}
	if len(result.Suites) != 1 {
		return nil, fmt.Errorf("%s: expected one suite file, found %d", path, len(result.Suites))
	}
	return result.Suites[0], nil
}

// executeSuite wires device, locator and supervisor into a run. It returns
// a log even when the run could not start.
func executeSuite(ctx context.Context, dev core.Device, loc locator.Locator, cfg *config.Config, s *suite.TestSuite, driver string, out *liveOutput) (*report.RunLog, error) {
	exec := executor.NewStepExecutor(dev, loc, executor.ExecutorConfig{
		Settle: executor.Settle{
			Launch:    cfg.Settle.Launch,
			Tap:       cfg.Settle.Tap,
			TapTarget: cfg.Settle.TapTarget,
			Input:     cfg.Settle.Input,
			KeyEvent:  cfg.Settle.KeyEvent,
		},
		ArtifactsDir:   cfg.Artifacts.Dir,
		AutoScreenshot: cfg.Artifacts.AutoScreenshot,
	})

	kinds := make([]suite.Kind, len(cfg.Retry.FlakyKinds))
	for i, k := range cfg.Retry.FlakyKinds {
		kinds[i] = suite.Kind(k)
	}
	sup := supervisor.New(supervisor.WithBudget(cfg.Retry.MaxPerStep), supervisor.WithFlakyKinds(kinds...))

	if driver == "" {
		driver = DriverADB
	}
	runner := executor.NewRunner(dev, exec, sup, executor.RunnerConfig{
		DeviceTimeout: cfg.Timeouts.Device,
		FailFast:      cfg.FailFast,
		Runner: report.RunnerInfo{
			Version:     Version,
			Driver:      driver,
			Locator:     loc.Name(),
			RetryBudget: sup.Budget(),
		},
		OnTestStart:   out.onTestStart,
		OnStepOutcome: out.onStepOutcome,
		OnTestEnd:     out.onTestEnd,
	})

	runLog, err := runner.Run(ctx, s)
	if err != nil && errors.Is(err, core.ErrDeviceNotFound) {
		err = fmt.Errorf("%w\n  Start an emulator or connect a device, then check `qa-runner devices`", err)
	}
	return runLog, err
}
