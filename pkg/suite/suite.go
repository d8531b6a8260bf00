// Package suite handles parsing and representation of YAML test suites.
package suite

// TestSuite is the unit of input to a run. Never mutated by the runner.
type TestSuite struct {
	SourcePath  string     // Path to the source file, empty for in-memory suites
	Name        string     // Suite name (test_suite.name)
	Description string     // Suite description (test_suite.description)
	Tests       []TestCase // Tests in execution order
}

// TestCase is a named, ordered sequence of steps.
type TestCase struct {
	Name  string
	Steps []Step
}

// StepCount returns the total number of steps across all tests.
func (s *TestSuite) StepCount() int {
	n := 0
	for _, tc := range s.Tests {
		n += len(tc.Steps)
	}
	return n
}
