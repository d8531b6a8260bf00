// Package locator resolves textual UI targets to tap points.
package locator

import (
	"context"
	"fmt"
	"strings"

	"github.com/devicelab-dev/qa-runner/pkg/core"
)

// Source acquires the snapshots a Locator reasons over. Acquiring a snapshot
// is a device side effect; everything after that is pure.
type Source interface {
	// UITree returns the current UI hierarchy XML.
	UITree(ctx context.Context) ([]byte, error)
	// Screen returns the current screen as PNG.
	Screen(ctx context.Context) ([]byte, error)
}

// Locator resolves a target description (plus optional hint) to a tap point.
type Locator interface {
	Name() string
	Locate(ctx context.Context, src Source, target, hint string) core.LocatorResult
}

// Hierarchy locates targets by attribute and geometry matching against a UI
// hierarchy dump. It holds no state; results are never cached.
type Hierarchy struct{}

// NewHierarchy creates the offline hierarchy locator.
func NewHierarchy() *Hierarchy {
	return &Hierarchy{}
}

// Name returns the strategy name.
func (h *Hierarchy) Name() string { return StrategyHierarchy }

// Locate dumps the UI tree through src and resolves target against it.
func (h *Hierarchy) Locate(ctx context.Context, src Source, target, hint string) core.LocatorResult {
	data, err := src.UITree(ctx)
	if err != nil {
		return core.NotLocated(core.LocateSnapshotUnavailable, fmt.Sprintf("ui snapshot unavailable: %v", err))
	}
	tree, err := ParseTree(data)
	if err != nil {
		return core.NotLocated(core.LocateSnapshotUnparsable, fmt.Sprintf("ui snapshot unparsable: %v", err))
	}
	return Resolve(tree, target, hint)
}

// Resolve applies the matching rules in priority order:
//  1. exact attribute match on target
//  2. exact attribute match on hint
//  3. label-to-adjacent-input fallback
func Resolve(tree *Tree, target, hint string) core.LocatorResult {
	if node, attr := findExact(tree.Nodes, target); node != nil {
		return foundNode(node, attr, core.MatchExactAttribute,
			fmt.Sprintf("matched %q on %s", target, attr))
	}

	if strings.TrimSpace(hint) != "" {
		if node, attr := findExact(tree.Nodes, hint); node != nil {
			return foundNode(node, attr, core.MatchHint,
				fmt.Sprintf("target %q not matched; hint %q matched on %s", target, hint, attr))
		}
	}

	if label, input := findInputBelowLabel(tree.Nodes, target); input != nil {
		r := foundNode(input, "", core.MatchLabelFallback,
			fmt.Sprintf("label %q matched; using nearest input below it", target))
		r.Metadata["label_bounds"] = formatBounds(label.Bounds)
		return r
	}

	reason := fmt.Sprintf("target %q not found in ui snapshot", target)
	if strings.TrimSpace(hint) != "" {
		reason = fmt.Sprintf("target %q (hint %q) not found in ui snapshot", target, hint)
	}
	return core.NotLocated(core.LocateNotFound, reason)
}

// findExact returns the first node in pre-order whose matchable attributes
// equal want after trimming and case folding.
func findExact(nodes []*Node, want string) (*Node, string) {
	want = normalize(want)
	if want == "" {
		return nil, ""
	}
	for _, n := range nodes {
		if !n.HasBounds || n.Bounds.IsEmpty() {
			continue
		}
		if attr := matchAttrs(n, want); attr != "" {
			return n, attr
		}
	}
	return nil, ""
}

// matchAttrs returns the name of the first attribute of n equal to want.
// Checked: text, content-desc, resource-id (full or id suffix), and any
// attribute whose name contains "hint".
func matchAttrs(n *Node, want string) string {
	for _, name := range []string{"text", "content-desc"} {
		if normalize(n.Attr(name)) == want {
			return name
		}
	}

	if id := normalize(n.Attr("resource-id")); id != "" {
		if id == want {
			return "resource-id"
		}
		if i := strings.LastIndex(id, ":id/"); i >= 0 && id[i+len(":id/"):] == want {
			return "resource-id"
		}
	}

	for _, a := range n.Attrs {
		if containsFold(a.Name.Local, "hint") && normalize(a.Value) == want {
			return a.Name.Local
		}
	}
	return ""
}

// findInputBelowLabel finds the first node whose visible text contains
// target (a label), then the editable input whose top edge is at or below
// the label's bottom edge with the smallest vertical gap.
func findInputBelowLabel(nodes []*Node, target string) (*Node, *Node) {
	want := normalize(target)
	if want == "" {
		return nil, nil
	}

	var label *Node
	for _, n := range nodes {
		if !n.HasBounds || n.IsEditable() {
			continue
		}
		if strings.Contains(normalize(n.Attr("text")), want) ||
			strings.Contains(normalize(n.Attr("content-desc")), want) {
			label = n
			break
		}
	}
	if label == nil {
		return nil, nil
	}

	labelBottom := label.Bounds.Bottom()
	var best *Node
	bestGap := 0
	for _, n := range nodes {
		if !n.IsEditable() || !n.HasBounds || n.Bounds.IsEmpty() {
			continue
		}
		gap := n.Bounds.Y - labelBottom
		if gap < 0 {
			continue
		}
		if best == nil || gap < bestGap {
			best = n
			bestGap = gap
		}
	}
	if best == nil {
		return nil, nil
	}
	return label, best
}

func foundNode(n *Node, attr string, kind core.MatchKind, reason string) core.LocatorResult {
	x, y := n.Bounds.Center()
	r := core.FoundAt(x, y, kind, reason)
	r.Attribute = attr
	r.Metadata = nodeMetadata(n)
	return r
}

func nodeMetadata(n *Node) map[string]string {
	md := map[string]string{
		"class":  n.Class,
		"bounds": formatBounds(n.Bounds),
	}
	for _, key := range []string{"text", "content-desc", "resource-id"} {
		if v := n.Attr(key); v != "" {
			md[key] = v
		}
	}
	return md
}

func formatBounds(b core.Bounds) string {
	return fmt.Sprintf("[%d,%d][%d,%d]", b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// containsFold checks if s contains substr (case-insensitive).
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
