package report

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/qa-runner/pkg/core"
	"github.com/devicelab-dev/qa-runner/pkg/logger"
)

// AllureDir is the Allure results directory under the artifacts root.
const AllureDir = "allure-results"

// Allure result schema types.

// AllureResult represents a single test result in Allure format.
type AllureResult struct {
	UUID          string              `json:"uuid"`
	HistoryID     string              `json:"historyId"`
	FullName      string              `json:"fullName"`
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	Labels        []AllureLabel       `json:"labels"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
	Attachments   []AllureAttachment  `json:"attachments"`
}

// AllureStep represents a step within a test result.
type AllureStep struct {
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
	Attachments   []AllureAttachment  `json:"attachments"`
	Parameters    []AllureParameter   `json:"parameters,omitempty"`
}

// AllureAttachment represents a file attachment.
type AllureAttachment struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// AllureLabel represents a label on a test result.
type AllureLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureParameter is a name/value shown on a step.
type AllureParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureStatusDetails holds failure message and trace.
type AllureStatusDetails struct {
	Message string `json:"message"`
	Trace   string `json:"trace"`
}

// AllureCategory defines a failure category with regex matching.
type AllureCategory struct {
	Name            string   `json:"name"`
	MatchedStatuses []string `json:"matchedStatuses"`
	MessageRegex    string   `json:"messageRegex"`
}

// AllureExecutor holds executor info.
type AllureExecutor struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	BuildName  string `json:"buildName"`
	ReportName string `json:"reportName"`
}

// GenerateAllure writes Allure-compatible result files for the run to
// <artifactsDir>/allure-results/ and returns that directory.
func GenerateAllure(artifactsDir string, l *RunLog) (string, error) {
	allureDir := filepath.Join(artifactsDir, AllureDir)
	if err := os.MkdirAll(allureDir, 0o755); err != nil {
		return "", fmt.Errorf("create allure-results dir: %w", err)
	}

	for i, t := range l.Tests {
		result := buildAllureResult(l, t, i)

		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal allure result for %s: %w", t.Name, err)
		}
		resultPath := filepath.Join(allureDir, result.UUID+"-result.json")
		if err := os.WriteFile(resultPath, data, 0o644); err != nil {
			return "", fmt.Errorf("write allure result %s: %w", t.Name, err)
		}
		copyAllureAttachments(allureDir, t)
	}

	if err := writeAllureCategories(allureDir); err != nil {
		return "", err
	}
	if err := writeAllureEnvironment(allureDir, l); err != nil {
		return "", err
	}
	if err := writeAllureExecutor(allureDir, l); err != nil {
		return "", err
	}
	return allureDir, nil
}

// buildAllureResult builds an AllureResult from one test record.
func buildAllureResult(l *RunLog, t *core.TestRecord, testIndex int) AllureResult {
	startMs := t.StartTime.UnixMilli()
	stopMs := startMs + t.DurationMs

	labels := []AllureLabel{
		{Name: "suite", Value: l.Suite.Name},
		{Name: "framework", Value: "qa-runner"},
		{Name: "severity", Value: "normal"},
	}
	if l.Device != nil {
		if l.Device.Model != "" {
			labels = append(labels, AllureLabel{Name: "host", Value: l.Device.Model})
		}
		if l.Device.Serial != "" {
			labels = append(labels, AllureLabel{Name: "thread", Value: l.Device.Serial})
		}
	}

	steps := make([]AllureStep, 0, len(t.Steps))
	var attachments []AllureAttachment
	var details AllureStatusDetails
	for _, o := range t.Steps {
		step := buildAllureStep(t, o)
		steps = append(steps, step)
		attachments = append(attachments, step.Attachments...)
		if o.Decision == core.DecisionStop {
			details = step.StatusDetails
		}
	}
	if details.Message == "" && t.Error != "" {
		details.Message = t.Error
	}

	return AllureResult{
		UUID:          fmt.Sprintf("%s-%03d", l.RunID, testIndex+1),
		HistoryID:     fnv32aHash(l.Suite.Name + ":" + t.Name),
		FullName:      l.Suite.Name + ": " + t.Name,
		Name:          t.Name,
		Status:        mapTestStatus(t),
		Stage:         "finished",
		Start:         startMs,
		Stop:          stopMs,
		Labels:        labels,
		StatusDetails: details,
		Steps:         steps,
		Attachments:   attachments,
	}
}

func buildAllureStep(t *core.TestRecord, o *core.StepOutcome) AllureStep {
	name := fmt.Sprintf("%d. %s", o.StepIndex, o.Kind)
	if o.Description != "" {
		name += ": " + o.Description
	}
	if o.Attempt > 1 {
		name += fmt.Sprintf(" (attempt %d)", o.Attempt)
	}

	startMs := o.StartTime.UnixMilli()

	var details AllureStatusDetails
	if !o.Success {
		details.Message = fmt.Sprintf("%s: %s", o.Failure, o.Error)
		details.Trace = o.Reason
	}

	var params []AllureParameter
	if o.UsedTarget != "" {
		params = append(params, AllureParameter{Name: "used_target", Value: o.UsedTarget})
	}
	if o.Locator != nil {
		params = append(params, AllureParameter{Name: "locator", Value: string(o.Locator.Status) + ": " + o.Locator.Reason})
	}
	if o.Decision != core.DecisionNone {
		params = append(params, AllureParameter{Name: "decision", Value: string(o.Decision)})
	}

	var attachments []AllureAttachment
	for _, a := range o.Attachments {
		if a.Path == "" || a.Error != "" {
			continue
		}
		attachments = append(attachments, AllureAttachment{
			Name:   a.Name,
			Source: attachmentSource(t, o, a),
			Type:   a.ContentType,
		})
	}

	return AllureStep{
		Name:          name,
		Status:        mapStepStatus(o),
		Stage:         "finished",
		Start:         startMs,
		Stop:          startMs + o.DurationMs,
		StatusDetails: details,
		Steps:         []AllureStep{},
		Attachments:   attachments,
		Parameters:    params,
	}
}

// attachmentSource is the flat file name an artifact is copied to.
func attachmentSource(t *core.TestRecord, o *core.StepOutcome, a core.Attachment) string {
	return fmt.Sprintf("%s-%d-%d-%s%s", fnv32aHash(t.Name), o.StepIndex, o.Attempt, a.Name, filepath.Ext(a.Path))
}

// copyAllureAttachments copies artifact files into allure-results/ flat.
// Missing files are skipped.
func copyAllureAttachments(allureDir string, t *core.TestRecord) {
	for _, o := range t.Steps {
		for _, a := range o.Attachments {
			if a.Path == "" || a.Error != "" {
				continue
			}
			copyFile(a.Path, filepath.Join(allureDir, attachmentSource(t, o, a)))
		}
	}
}

// copyFile copies a single file from src to dst, ignoring a missing source.
func copyFile(src, dst string) {
	in, err := os.Open(src)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		logger.Warn("failed to copy %s to %s: %v", src, dst, err)
	}
}

// mapTestStatus maps a test status to Allure. Failures that are not
// assertions are reported as broken (infrastructure).
func mapTestStatus(t *core.TestRecord) string {
	switch t.Status {
	case core.TestPass:
		return "passed"
	case core.TestSkipped:
		return "skipped"
	case core.TestFail:
		for _, o := range t.Steps {
			if o.Decision == core.DecisionStop {
				return failureStatus(o.Failure)
			}
		}
		return "failed"
	default:
		return "unknown"
	}
}

func mapStepStatus(o *core.StepOutcome) string {
	if o.Success {
		return "passed"
	}
	return failureStatus(o.Failure)
}

func failureStatus(k core.FailureKind) string {
	if k == core.FailureAssertion {
		return "failed"
	}
	return "broken"
}

// fnv32aHash returns a hex-encoded FNV-32a hash of the input string.
func fnv32aHash(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

// writeAllureCategories writes categories.json, one category per failure kind.
func writeAllureCategories(allureDir string) error {
	categories := []AllureCategory{
		{Name: "Target Not Found", MatchedStatuses: []string{"failed"}, MessageRegex: "(?s)^ASSERTION_FAILURE.*"},
		{Name: "Configuration Error", MatchedStatuses: []string{"broken"}, MessageRegex: "(?s)^CONFIGURATION_ERROR.*"},
		{Name: "Device Timeout", MatchedStatuses: []string{"broken"}, MessageRegex: "(?s)^EXECUTION_FAILURE.*(timeout|timed out).*"},
		{Name: "Device Transport", MatchedStatuses: []string{"broken"}, MessageRegex: "(?s)^EXECUTION_FAILURE.*"},
		{Name: "Unclassified", MatchedStatuses: []string{"broken"}, MessageRegex: "(?s)^UNKNOWN_FAILURE.*"},
	}

	data, err := json.MarshalIndent(categories, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}

	path := filepath.Join(allureDir, "categories.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write categories.json: %w", err)
	}
	return nil
}

// writeAllureEnvironment writes environment.properties with device and runner metadata.
func writeAllureEnvironment(allureDir string, l *RunLog) error {
	var b strings.Builder
	b.WriteString("framework=qa-runner\n")
	fmt.Fprintf(&b, "suite=%s\n", l.Suite.Name)

	if l.Device != nil {
		if l.Device.Serial != "" {
			fmt.Fprintf(&b, "device.serial=%s\n", l.Device.Serial)
		}
		if l.Device.Model != "" {
			fmt.Fprintf(&b, "device.model=%s\n", l.Device.Model)
		}
		if l.Device.SDK != "" {
			fmt.Fprintf(&b, "device.sdk=%s\n", l.Device.SDK)
		}
	}
	if l.Runner.Version != "" {
		fmt.Fprintf(&b, "runner.version=%s\n", l.Runner.Version)
	}
	if l.Runner.Driver != "" {
		fmt.Fprintf(&b, "runner.driver=%s\n", l.Runner.Driver)
	}
	if l.Runner.Locator != "" {
		fmt.Fprintf(&b, "runner.locator=%s\n", l.Runner.Locator)
	}

	path := filepath.Join(allureDir, "environment.properties")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write environment.properties: %w", err)
	}
	return nil
}

// writeAllureExecutor writes executor.json.
func writeAllureExecutor(allureDir string, l *RunLog) error {
	executor := AllureExecutor{
		Name:       "qa-runner",
		Type:       "local",
		BuildName:  l.RunID,
		ReportName: l.Suite.Name,
	}

	data, err := json.MarshalIndent(executor, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal executor: %w", err)
	}

	path := filepath.Join(allureDir, "executor.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write executor.json: %w", err)
	}
	return nil
}
