package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/qa-runner/pkg/validator"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Check suite files without running them",
	ArgsUsage: "<suite-file-or-folder>...",
	Description: `Parse every suite and check each step's fields. No device is needed.

Examples:
  qa-runner validate suites/obsidian.yaml
  qa-runner validate suites/`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "allow-empty",
			Usage: "Accept tests with no steps",
		},
	},
	Action: runValidate,
}

func runValidate(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("at least one suite file or folder is required")
	}

	var opts []validator.Option
	if c.Bool("allow-empty") {
		opts = append(opts, validator.AllowEmptyTests())
	}
	result := validator.New(opts...).ValidateAll(c.Args().Slice())

	w := c.App.Writer
	if w == nil {
		w = os.Stdout
	}
	for i, file := range result.Files {
		s := result.Suites[i]
		fmt.Fprintf(w, "  %s: %q (%d tests, %d steps)\n", file, s.Name, len(s.Tests), s.StepCount())
	}

	if !result.IsValid() {
		errW := c.App.ErrWriter
		if errW == nil {
			errW = os.Stderr
		}
		fmt.Fprintf(errW, "Validation errors:\n")
		for _, err := range result.Errors {
			fmt.Fprintf(errW, "  %s✗%s %v\n", color(colorRed), color(colorReset), err)
		}
		return cli.Exit(fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)), 1)
	}

	fmt.Fprintf(w, "%s✓%s %d suite(s), %d step(s) valid\n",
		color(colorGreen), color(colorReset), len(result.Files), result.Steps())
	return nil
}
