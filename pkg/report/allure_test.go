package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devicelab-dev/qa-runner/pkg/core"
)

func sampleRunLog(t *testing.T, dir string) *RunLog {
	t.Helper()
	start := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

	shot := filepath.Join(dir, "screenshots", "before.png")
	if err := os.MkdirAll(filepath.Dir(shot), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(shot, []byte("png"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	l := NewRunLog(SuiteInfo{Name: "Obsidian smoke", Description: "vault flows"}, start)
	l.Device = &core.DeviceInfo{Serial: "emulator-5554", Model: "Pixel 7", SDK: "34", Driver: "adb"}
	l.Runner = RunnerInfo{Version: "dev", Driver: "adb", Locator: "hierarchy", RetryBudget: 1}

	l.Append(&core.TestRecord{
		Name:       "Create vault",
		Status:     core.TestPass,
		StartTime:  start,
		DurationMs: 1500,
		Steps: []*core.StepOutcome{
			{Test: "Create vault", StepIndex: 1, Attempt: 1, Kind: "launch_app", Description: "launch",
				Success: true, StartTime: start, DurationMs: 500, Decision: core.DecisionContinue},
			{Test: "Create vault", StepIndex: 2, Attempt: 1, Kind: "tap_target", Description: "tap create",
				Success: true, StartTime: start, DurationMs: 1000, UsedTarget: "Create new vault",
				Decision:    core.DecisionContinue,
				Attachments: []core.Attachment{core.NewScreenshotAttachment(core.AttachmentScreenshot, shot)}},
		},
	})
	l.Append(&core.TestRecord{
		Name:       "Search",
		Status:     core.TestFail,
		StartTime:  start,
		DurationMs: 900,
		Steps: []*core.StepOutcome{
			{Test: "Search", StepIndex: 1, Attempt: 1, Kind: "tap_target", Error: `could not find target "Search"`,
				Failure: core.FailureAssertion, Decision: core.DecisionRetry, Reason: "retrying flaky step (attempt 1/1); failure=ASSERTION_FAILURE"},
			{Test: "Search", StepIndex: 1, Attempt: 2, Kind: "tap_target", Error: `could not find target "Search"`,
				Failure: core.FailureAssertion, Decision: core.DecisionStop, Reason: "step failed and no retries left; failure=ASSERTION_FAILURE"},
		},
	})
	l.Append(&core.TestRecord{Name: "Settings", Status: core.TestSkipped, StartTime: start})
	l.Finish(start.Add(3 * time.Second))
	return l
}

func readAllureResult(t *testing.T, path string) AllureResult {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	var result AllureResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	return result
}

func TestGenerateAllure(t *testing.T) {
	dir := t.TempDir()
	l := sampleRunLog(t, dir)

	allureDir, err := GenerateAllure(dir, l)
	if err != nil {
		t.Fatalf("GenerateAllure: %v", err)
	}
	if allureDir != filepath.Join(dir, AllureDir) {
		t.Errorf("dir = %s", allureDir)
	}

	passed := readAllureResult(t, filepath.Join(allureDir, "20260301_103000-001-result.json"))
	if passed.Status != "passed" || passed.Name != "Create vault" {
		t.Errorf("passed result = %s %s", passed.Name, passed.Status)
	}
	if len(passed.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(passed.Steps))
	}
	if passed.Steps[1].Name != "2. tap_target: tap create" {
		t.Errorf("step name = %q", passed.Steps[1].Name)
	}
	if len(passed.Attachments) != 1 {
		t.Fatalf("attachments = %+v", passed.Attachments)
	}
	copied := filepath.Join(allureDir, passed.Attachments[0].Source)
	if data, err := os.ReadFile(copied); err != nil || string(data) != "png" {
		t.Errorf("attachment not copied: %v", err)
	}

	failed := readAllureResult(t, filepath.Join(allureDir, "20260301_103000-002-result.json"))
	if failed.Status != "failed" {
		t.Errorf("assertion failure status = %s, want failed", failed.Status)
	}
	if !strings.HasPrefix(failed.StatusDetails.Message, "ASSERTION_FAILURE") {
		t.Errorf("message = %q", failed.StatusDetails.Message)
	}
	if failed.Steps[1].Name != "1. tap_target (attempt 2)" {
		t.Errorf("retry step name = %q", failed.Steps[1].Name)
	}

	skipped := readAllureResult(t, filepath.Join(allureDir, "20260301_103000-003-result.json"))
	if skipped.Status != "skipped" {
		t.Errorf("skipped status = %s", skipped.Status)
	}

	for _, name := range []string{"categories.json", "environment.properties", "executor.json"} {
		if _, err := os.Stat(filepath.Join(allureDir, name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}
	env, _ := os.ReadFile(filepath.Join(allureDir, "environment.properties"))
	if !strings.Contains(string(env), "device.serial=emulator-5554") {
		t.Errorf("environment = %s", env)
	}
}

func TestMapTestStatus_Broken(t *testing.T) {
	rec := &core.TestRecord{
		Status: core.TestFail,
		Steps: []*core.StepOutcome{
			{Failure: core.FailureExecution, Decision: core.DecisionStop},
		},
	}
	if got := mapTestStatus(rec); got != "broken" {
		t.Errorf("mapTestStatus() = %s, want broken", got)
	}
}
