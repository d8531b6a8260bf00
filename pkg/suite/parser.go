package suite

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	path := e.Path
	if path == "" {
		path = "<suite>"
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", path, e.Message)
}

// ParseFile parses a YAML suite file.
func ParseFile(path string) (*TestSuite, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided suite file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

// Parse parses YAML suite content:
//
//	test_suite: {name, description}
//	tests: [{name, steps: [{type, description, ...}]}]
//
// Only structure is checked here; per-step field validation happens when
// the step runs so that a bad step fails its test, not the whole suite.
func Parse(data []byte, sourcePath string) (*TestSuite, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: sourcePath, Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &ParseError{Path: sourcePath, Line: 1, Message: "empty suite file"}
	}

	p := &parser{path: sourcePath}
	return p.parseSuite(doc.Content[0])
}

type parser struct {
	path string
}

func (p *parser) errorf(node *yaml.Node, format string, args ...interface{}) error {
	line := 0
	if node != nil {
		line = node.Line
	}
	return &ParseError{Path: p.path, Line: line, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) parseSuite(root *yaml.Node) (*TestSuite, error) {
	if root.Kind != yaml.MappingNode {
		return nil, p.errorf(root, "suite must be a mapping")
	}

	meta, err := p.require(root, "test_suite")
	if err != nil {
		return nil, err
	}
	testsNode, err := p.require(root, "tests")
	if err != nil {
		return nil, err
	}

	var header struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	}
	if _, err := p.require(meta, "name"); err != nil {
		return nil, err
	}
	if _, err := p.require(meta, "description"); err != nil {
		return nil, err
	}
	if err := meta.Decode(&header); err != nil {
		return nil, p.errorf(meta, "invalid test_suite: %v", err)
	}

	if testsNode.Kind != yaml.SequenceNode {
		return nil, p.errorf(testsNode, "tests must be a list")
	}

	s := &TestSuite{
		SourcePath:  p.path,
		Name:        header.Name,
		Description: header.Description,
	}
	for _, tn := range testsNode.Content {
		tc, err := p.parseTest(tn)
		if err != nil {
			return nil, err
		}
		s.Tests = append(s.Tests, tc)
	}
	return s, nil
}

func (p *parser) parseTest(node *yaml.Node) (TestCase, error) {
	if node.Kind != yaml.MappingNode {
		return TestCase{}, p.errorf(node, "test must be a mapping")
	}
	nameNode, err := p.require(node, "name")
	if err != nil {
		return TestCase{}, err
	}
	stepsNode, err := p.require(node, "steps")
	if err != nil {
		return TestCase{}, err
	}
	if stepsNode.Kind != yaml.SequenceNode {
		return TestCase{}, p.errorf(stepsNode, "steps must be a list")
	}

	tc := TestCase{Name: nameNode.Value}
	for _, sn := range stepsNode.Content {
		step, err := p.parseStep(sn)
		if err != nil {
			return TestCase{}, err
		}
		tc.Steps = append(tc.Steps, step)
	}
	return tc, nil
}

func (p *parser) parseStep(node *yaml.Node) (Step, error) {
	if node.Kind != yaml.MappingNode {
		return nil, p.errorf(node, "step must be a mapping")
	}
	typeNode, err := p.require(node, "type")
	if err != nil {
		return nil, err
	}
	if _, err := p.require(node, "description"); err != nil {
		return nil, err
	}

	var step Step
	switch Kind(typeNode.Value) {
	case KindLaunchApp:
		step = &LaunchAppStep{}
	case KindTap:
		step = &TapStep{}
	case KindTapTarget:
		step = &TapTargetStep{}
	case KindInputText:
		step = &InputTextStep{}
	case KindKeyEvent:
		step = &KeyEventStep{}
	case KindSleep:
		step = &SleepStep{}
	case KindScreenshot:
		step = &ScreenshotStep{}
	default:
		step = &UnknownStep{}
	}

	if err := node.Decode(step); err != nil {
		return nil, p.errorf(node, "invalid %s step: %v", typeNode.Value, err)
	}
	return step, nil
}

// require returns the value node for key, or a ParseError naming the key.
func (p *parser) require(mapping *yaml.Node, key string) (*yaml.Node, error) {
	if mapping.Kind != yaml.MappingNode {
		return nil, p.errorf(mapping, "expected a mapping containing %q", key)
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1], nil
		}
	}
	return nil, p.errorf(mapping, "missing required key '%s'", key)
}
