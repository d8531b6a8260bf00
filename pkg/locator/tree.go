package locator

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/devicelab-dev/qa-runner/pkg/core"
)

// Node is one element of a UI hierarchy snapshot.
type Node struct {
	Class     string
	Attrs     []xml.Attr // In document order
	Bounds    core.Bounds
	HasBounds bool // False when bounds were absent or malformed
	Depth     int
	Children  []*Node
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// IsEditable reports whether the node is a text input.
func (n *Node) IsEditable() bool {
	return containsFold(n.Class, "EditText") || containsFold(n.Class, "AutoCompleteTextView")
}

// Tree is a parsed snapshot; Nodes is the pre-order traversal.
type Tree struct {
	Roots []*Node
	Nodes []*Node
}

// ErrNoHierarchy is returned for well-formed XML that is not a UI dump.
var ErrNoHierarchy = errors.New("invalid page source: no hierarchy element found")

// ParseTree parses Android UI hierarchy XML.
// Supports both formats:
// - uiautomator dump: <node class="android.widget.Button" ...>
// - class name as element tag: <android.widget.Button ...>
func ParseTree(data []byte) (*Tree, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	tree := &Tree{}
	var stack []*Node
	foundHierarchy := false
	inHierarchy := 0

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse ui hierarchy: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "hierarchy" {
				foundHierarchy = true
				inHierarchy++
				continue
			}
			node := newNode(t, len(stack))
			if len(stack) == 0 {
				tree.Roots = append(tree.Roots, node)
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			tree.Nodes = append(tree.Nodes, node)
			stack = append(stack, node)

		case xml.EndElement:
			if t.Name.Local == "hierarchy" && len(stack) == 0 {
				inHierarchy--
				continue
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if !foundHierarchy || inHierarchy != 0 {
		return nil, ErrNoHierarchy
	}
	return tree, nil
}

func newNode(t xml.StartElement, depth int) *Node {
	n := &Node{
		Class: t.Name.Local, // Class name is the element tag unless a class attribute overrides it
		Attrs: t.Attr,
		Depth: depth,
	}
	for _, attr := range t.Attr {
		switch attr.Name.Local {
		case "class":
			n.Class = attr.Value
		case "bounds":
			if b, err := ParseBounds(attr.Value); err == nil {
				n.Bounds = b
				n.HasBounds = true
			}
		}
	}
	return n
}

var boundsPattern = regexp.MustCompile(`^\[(\d+),(\d+)\]\[(\d+),(\d+)\]$`)

// ParseBounds parses an Android bounds string "[x1,y1][x2,y2]".
// Exactly four non-negative integers in that bracket/comma pattern are
// accepted, and the second corner may not precede the first.
func ParseBounds(s string) (core.Bounds, error) {
	m := boundsPattern.FindStringSubmatch(s)
	if m == nil {
		return core.Bounds{}, fmt.Errorf("malformed bounds %q", s)
	}

	var v [4]int
	for i := range v {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return core.Bounds{}, fmt.Errorf("malformed bounds %q: %w", s, err)
		}
		v[i] = n
	}
	if v[2] < v[0] || v[3] < v[1] {
		return core.Bounds{}, fmt.Errorf("inverted bounds %q", s)
	}

	return core.Bounds{
		X:      v[0],
		Y:      v[1],
		Width:  v[2] - v[0],
		Height: v[3] - v[1],
	}, nil
}

// BoundsCenter parses s and returns the geometric center of the rectangle.
func BoundsCenter(s string) (int, int, error) {
	b, err := ParseBounds(s)
	if err != nil {
		return 0, 0, err
	}
	x, y := b.Center()
	return x, y, nil
}
