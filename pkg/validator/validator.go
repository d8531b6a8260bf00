// Package validator checks suite files before execution.
// It parses every file upfront and validates each step's fields, so a bad
// suite is rejected without touching a device.
package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/qa-runner/pkg/suite"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File      string
	Test      string // Empty for file-level errors
	StepIndex int    // 1-based; 0 for file- or test-level errors
	Message   string
}

func (e *ValidationError) Error() string {
	switch {
	case e.StepIndex > 0:
		return fmt.Sprintf("%s: test %q step %d: %s", e.File, e.Test, e.StepIndex, e.Message)
	case e.Test != "":
		return fmt.Sprintf("%s: test %q: %s", e.File, e.Test, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
}

// Result contains the validation result.
type Result struct {
	// Files is the list of suite file paths that parsed, in walk order.
	Files []string
	// Suites holds the parsed suites, parallel to Files.
	Suites []*suite.TestSuite
	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Steps returns the number of steps across all parsed suites.
func (r *Result) Steps() int {
	n := 0
	for _, s := range r.Suites {
		n += s.StepCount()
	}
	return n
}

// Validator validates suite files.
type Validator struct {
	allowEmpty bool
}

// Option configures a Validator.
type Option func(*Validator)

// AllowEmptyTests accepts tests with no steps.
func AllowEmptyTests() Option {
	return func(v *Validator) { v.allowEmpty = true }
}

// New creates a new Validator.
func New(opts ...Option) *Validator {
	v := &Validator{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate validates a file or directory of suites.
func (v *Validator) Validate(path string) *Result {
	result := &Result{}
	v.validatePath(path, result)
	return result
}

// ValidateAll validates several paths into one result.
func (v *Validator) ValidateAll(paths []string) *Result {
	result := &Result{}
	for _, p := range paths {
		v.validatePath(p, result)
	}
	return result
}

func (v *Validator) validatePath(path string, result *Result) {
	info, err := os.Stat(path)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    path,
			Message: fmt.Sprintf("cannot access: %v", err),
		})
		return
	}

	files := []string{path}
	if info.IsDir() {
		files, err = collectSuiteFiles(path)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("failed to scan directory: %v", err),
			})
			return
		}
		if len(files) == 0 {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: "no .yaml or .yml suite files found",
			})
			return
		}
	}

	for _, file := range files {
		v.validateFile(file, result)
	}
}

// collectSuiteFiles finds all .yaml/.yml files in a directory.
func collectSuiteFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

func (v *Validator) validateFile(file string, result *Result) {
	s, err := suite.ParseFile(file)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    file,
			Message: fmt.Sprintf("parse error: %v", err),
		})
		return
	}
	result.Files = append(result.Files, file)
	result.Suites = append(result.Suites, s)
	result.Errors = append(result.Errors, v.Check(s)...)
}

// Check validates a parsed suite: every step's fields, plus test names.
// Errors are returned in suite order.
func (v *Validator) Check(s *suite.TestSuite) []error {
	var errs []error
	file := s.SourcePath
	if file == "" {
		file = "<suite>"
	}

	seen := make(map[string]bool)
	for _, tc := range s.Tests {
		if seen[tc.Name] {
			errs = append(errs, &ValidationError{File: file, Test: tc.Name, Message: "duplicate test name"})
		}
		seen[tc.Name] = true

		if len(tc.Steps) == 0 && !v.allowEmpty {
			errs = append(errs, &ValidationError{File: file, Test: tc.Name, Message: "test has no steps"})
		}

		for i, step := range tc.Steps {
			if err := step.Validate(); err != nil {
				errs = append(errs, &ValidationError{
					File:      file,
					Test:      tc.Name,
					StepIndex: i + 1,
					Message:   err.Error(),
				})
			}
		}
	}
	return errs
}
