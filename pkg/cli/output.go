package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/devicelab-dev/qa-runner/pkg/core"
	"github.com/devicelab-dev/qa-runner/pkg/report"
	"github.com/devicelab-dev/qa-runner/pkg/suite"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// Steps slower than this are flagged in live output.
const slowThresholdMs = 5000

var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

func printBanner(s *suite.TestSuite) {
	fmt.Println()
	fmt.Printf("  %sqa-runner %s%s\n", color(colorBold), Version, color(colorReset))
	fmt.Printf("  Suite: %s (%d tests, %d steps)\n", s.Name, len(s.Tests), s.StepCount())
	if s.Description != "" {
		fmt.Printf("  %s%s%s\n", color(colorGray), s.Description, color(colorReset))
	}
}

// liveOutput prints progress as the run controller reports it.
type liveOutput struct {
	w io.Writer
}

func newLiveOutput(w io.Writer) *liveOutput {
	return &liveOutput{w: w}
}

func (o *liveOutput) onTestStart(testIdx, totalTests int, name string) {
	fmt.Fprintf(o.w, "\n  %s[%d/%d]%s %s%s%s\n",
		color(colorCyan), testIdx+1, totalTests, color(colorReset),
		color(colorBold), name, color(colorReset))
	fmt.Fprintln(o.w, strings.Repeat("─", 60))
}

func (o *liveOutput) onStepOutcome(s *core.StepOutcome) {
	desc := fmt.Sprintf("%d. %s", s.StepIndex, s.Description)
	if s.Attempt > 1 {
		desc += fmt.Sprintf(" (attempt %d)", s.Attempt)
	}
	durStr := formatDuration(s.DurationMs)

	if s.Success {
		symbol := "✓"
		symbolColor := color(colorGreen)
		durColor := ""
		if s.DurationMs >= slowThresholdMs {
			durColor = color(colorYellow)
			symbol = "⚠"
			symbolColor = color(colorYellow)
		}
		fmt.Fprintf(o.w, "    %s%s%s %s %s(%s)%s\n",
			symbolColor, symbol, color(colorReset), desc, durColor, durStr, color(colorReset))
		return
	}

	symbol, symbolColor := "✗", color(colorRed)
	if s.Decision == core.DecisionRetry {
		symbol, symbolColor = "↻", color(colorYellow)
	}
	fmt.Fprintf(o.w, "    %s%s%s %s (%s)\n", symbolColor, symbol, color(colorReset), desc, durStr)
	if s.Error != "" {
		fmt.Fprintf(o.w, "      %s╰─%s %s\n", color(colorGray), color(colorReset), s.Error)
	}
	if s.Reason != "" {
		fmt.Fprintf(o.w, "      %s   %s%s\n", color(colorGray), s.Reason, color(colorReset))
	}
}

func (o *liveOutput) onTestEnd(rec *core.TestRecord) {
	switch rec.Status {
	case core.TestPass:
		fmt.Fprintf(o.w, "%s✓ %s%s %s%s%s\n",
			color(colorGreen), color(colorReset), rec.Name, color(colorGray), formatDuration(rec.DurationMs), color(colorReset))
	case core.TestSkipped:
		fmt.Fprintf(o.w, "%s- %s%s %s(%s)%s\n",
			color(colorCyan), color(colorReset), rec.Name, color(colorGray), rec.Error, color(colorReset))
	default:
		fmt.Fprintf(o.w, "%s✗ %s%s %s%s%s\n",
			color(colorRed), color(colorReset), rec.Name, color(colorGray), formatDuration(rec.DurationMs), color(colorReset))
	}
}

// printSummary renders the per-test table and totals.
func printSummary(l *report.RunLog) {
	fmt.Println()
	fmt.Print(renderSummary(l))
	fmt.Println()
}

func renderSummary(l *report.RunLog) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	if !colorsEnabled {
		t.SetStyle(table.StyleLight)
	}
	t.AppendHeader(table.Row{"Test", "Status", "Steps", "Attempts", "Retries", "Duration"})

	totalSteps, totalAttempts := 0, 0
	for _, rec := range l.Tests {
		steps := distinctSteps(rec)
		retries := len(rec.Steps) - steps
		totalSteps += steps
		totalAttempts += len(rec.Steps)

		name := rec.Name
		if len(name) > 42 {
			name = name[:39] + "..."
		}
		t.AppendRow(table.Row{name, statusCell(rec.Status), steps, len(rec.Steps), retries, formatDuration(rec.DurationMs)})
	}

	t.AppendFooter(table.Row{
		"Total",
		fmt.Sprintf("%d/%d passed", l.Summary.Passed, l.Summary.Total),
		totalSteps,
		totalAttempts,
		totalAttempts - totalSteps,
		formatDuration(l.DurationMs),
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	return t.Render() + "\n"
}

func statusCell(s core.TestStatus) string {
	if !colorsEnabled {
		return string(s)
	}
	switch s {
	case core.TestPass:
		return text.FgGreen.Sprint("✓ PASS")
	case core.TestSkipped:
		return text.FgCyan.Sprint("- SKIPPED")
	default:
		return text.FgRed.Sprint("✗ FAIL")
	}
}

// distinctSteps counts the steps that ran at least once.
func distinctSteps(rec *core.TestRecord) int {
	seen := make(map[int]bool)
	for _, o := range rec.Steps {
		seen[o.StepIndex] = true
	}
	return len(seen)
}

// formatDuration formats milliseconds to a human-readable string.
// Shows milliseconds for values < 1s, seconds otherwise.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}
