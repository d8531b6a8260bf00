package locator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/devicelab-dev/qa-runner/pkg/core"
)

// fakeSource serves fixed snapshots.
type fakeSource struct {
	tree      []byte
	treeErr   error
	screen    []byte
	screenErr error
	treeCalls int
}

func (f *fakeSource) UITree(ctx context.Context) ([]byte, error) {
	f.treeCalls++
	return f.tree, f.treeErr
}

func (f *fakeSource) Screen(ctx context.Context) ([]byte, error) {
	return f.screen, f.screenErr
}

func locate(t *testing.T, xml, target, hint string) core.LocatorResult {
	t.Helper()
	return NewHierarchy().Locate(context.Background(), &fakeSource{tree: []byte(xml)}, target, hint)
}

func TestHierarchy_ExactText(t *testing.T) {
	r := locate(t, sampleHierarchy, "  create A VAULT ", "")

	if r.Status != core.LocateFound || !r.Found {
		t.Fatalf("result = %+v, want found", r)
	}
	if r.X != 200 || r.Y != 240 {
		t.Errorf("point = (%d, %d), want (200, 240)", r.X, r.Y)
	}
	if r.MatchedOn != core.MatchExactAttribute || r.Attribute != "text" {
		t.Errorf("matched on %s/%s", r.MatchedOn, r.Attribute)
	}
	if r.Metadata["resource-id"] != "md.obsidian:id/create_vault" {
		t.Errorf("metadata = %v", r.Metadata)
	}
}

func TestHierarchy_ExactIsNotSubstring(t *testing.T) {
	r := locate(t, sampleHierarchy, "Create", "")
	if r.MatchedOn == core.MatchExactAttribute {
		t.Errorf("partial text should not match exactly: %+v", r)
	}
}

func TestHierarchy_ContentDescAndID(t *testing.T) {
	tests := []struct {
		target string
		attr   string
		x, y   int
	}{
		{"open-folder", "content-desc", 200, 340},
		{"md.obsidian:id/create_vault", "resource-id", 200, 240},
		{"create_vault", "resource-id", 200, 240},
		{"search notes", "hint", 540, 730},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			r := locate(t, sampleHierarchy, tt.target, "")
			if !r.Found {
				t.Fatalf("result = %+v, want found", r)
			}
			if r.Attribute != tt.attr || r.X != tt.x || r.Y != tt.y {
				t.Errorf("got %s (%d,%d), want %s (%d,%d)", r.Attribute, r.X, r.Y, tt.attr, tt.x, tt.y)
			}
		})
	}
}

func TestHierarchy_FirstMatchInPreOrder(t *testing.T) {
	xml := `<hierarchy>
  <node text="" class="android.widget.FrameLayout" bounds="[0,0][1000,1000]">
    <node text="" class="android.widget.LinearLayout" bounds="[0,0][1000,500]">
      <node text="OK" class="android.widget.Button" bounds="[0,0][100,100]"/>
    </node>
    <node text="OK" class="android.widget.Button" bounds="[500,500][600,600]"/>
  </node>
</hierarchy>`
	r := locate(t, xml, "ok", "")
	if r.X != 50 || r.Y != 50 {
		t.Errorf("point = (%d, %d), want the nested first match (50, 50)", r.X, r.Y)
	}
}

func TestHierarchy_SkipsNodesWithoutBounds(t *testing.T) {
	xml := `<hierarchy>
  <node text="Save" class="android.widget.Button" bounds="[0,0][0,0]"/>
  <node text="Save" class="android.widget.Button" bounds="garbage"/>
  <node text="Save" class="android.widget.Button" bounds="[10,10][30,30]"/>
</hierarchy>`
	r := locate(t, xml, "Save", "")
	if r.X != 20 || r.Y != 20 {
		t.Errorf("point = (%d, %d), want (20, 20)", r.X, r.Y)
	}
}

func TestHierarchy_HintMatch(t *testing.T) {
	r := locate(t, sampleHierarchy, "Make vault", "Create a vault")
	if !r.Found {
		t.Fatalf("result = %+v, want found via hint", r)
	}
	if r.MatchedOn != core.MatchHint {
		t.Errorf("MatchedOn = %s, want hint", r.MatchedOn)
	}
	if !strings.Contains(r.Reason, "Make vault") {
		t.Errorf("Reason = %q, should cite the target", r.Reason)
	}
}

func TestHierarchy_LabelFallback(t *testing.T) {
	r := locate(t, sampleHierarchy, "Vault name", "")

	if !r.Found {
		t.Fatalf("result = %+v, want found", r)
	}
	if r.MatchedOn != core.MatchLabelFallback {
		t.Errorf("MatchedOn = %s, want %s", r.MatchedOn, core.MatchLabelFallback)
	}
	// EditText [50,470][500,530] sits 10px below the label; the next one is 140px below.
	if r.X != 275 || r.Y != 500 {
		t.Errorf("point = (%d, %d), want (275, 500)", r.X, r.Y)
	}
	if r.Metadata["label_bounds"] != "[50,420][400,460]" {
		t.Errorf("label_bounds = %q", r.Metadata["label_bounds"])
	}
}

func TestHierarchy_LabelFallbackIgnoresInputsAbove(t *testing.T) {
	xml := `<hierarchy>
  <node class="android.widget.EditText" text="" bounds="[0,0][100,40]"/>
  <node class="android.widget.TextView" text="Password" bounds="[0,100][100,140]"/>
</hierarchy>`
	r := locate(t, xml, "Password field", "")
	if r.Found {
		t.Errorf("no label contains the target; result = %+v", r)
	}

	r = locate(t, xml, "passw", "")
	if r.Found {
		t.Errorf("only input is above the label; result = %+v", r)
	}
}

func TestHierarchy_LabelFallbackContainment(t *testing.T) {
	tests := []struct {
		name      string
		xml       string
		target    string
		wantFound bool
		wantX     int
		wantY     int
	}{
		{
			name: "label text surrounds target",
			xml: `<hierarchy>
  <node class="android.widget.TextView" text="Enter your vault name:" bounds="[0,100][400,140]"/>
  <node class="android.widget.EditText" text="" bounds="[0,150][400,210]"/>
</hierarchy>`,
			target: "Vault name", wantFound: true, wantX: 200, wantY: 180,
		},
		{
			name: "content-desc label",
			xml: `<hierarchy>
  <node class="android.view.View" text="" content-desc="Required: vault name *" bounds="[0,100][400,140]"/>
  <node class="android.widget.EditText" text="" bounds="[0,160][400,220]"/>
</hierarchy>`,
			target: "vault NAME", wantFound: true, wantX: 200, wantY: 190,
		},
		{
			name: "editable node is never the label",
			xml: `<hierarchy>
  <node class="android.widget.EditText" text="my vault name draft" bounds="[0,0][400,40]"/>
  <node class="android.widget.EditText" text="" bounds="[0,60][400,100]"/>
</hierarchy>`,
			target: "vault name",
		},
		{
			name: "label holds only part of target",
			xml: `<hierarchy>
  <node class="android.widget.TextView" text="Vault" bounds="[0,100][400,140]"/>
  <node class="android.widget.EditText" text="" bounds="[0,150][400,210]"/>
</hierarchy>`,
			target: "Vault name",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := locate(t, tc.xml, tc.target, "")
			if r.Found != tc.wantFound {
				t.Fatalf("Found = %v, want %v (result %+v)", r.Found, tc.wantFound, r)
			}
			if !tc.wantFound {
				return
			}
			if r.MatchedOn != core.MatchLabelFallback {
				t.Errorf("MatchedOn = %s, want %s", r.MatchedOn, core.MatchLabelFallback)
			}
			if r.X != tc.wantX || r.Y != tc.wantY {
				t.Errorf("point = (%d, %d), want (%d, %d)", r.X, r.Y, tc.wantX, tc.wantY)
			}
		})
	}
}

func TestHierarchy_NotFound(t *testing.T) {
	r := locate(t, sampleHierarchy, "Delete vault", "")
	if r.Status != core.LocateNotFound || r.Found {
		t.Fatalf("result = %+v, want not_found", r)
	}
	if !strings.Contains(r.Reason, `"Delete vault"`) {
		t.Errorf("Reason = %q, should cite target", r.Reason)
	}

	r = locate(t, sampleHierarchy, "Delete vault", "trash")
	if !strings.Contains(r.Reason, `"trash"`) {
		t.Errorf("Reason = %q, should cite hint", r.Reason)
	}
}

func TestHierarchy_SnapshotFailures(t *testing.T) {
	h := NewHierarchy()

	r := h.Locate(context.Background(), &fakeSource{treeErr: errors.New("uiautomator dump failed")}, "x", "")
	if r.Status != core.LocateSnapshotUnavailable {
		t.Errorf("Status = %s, want snapshot_unavailable", r.Status)
	}
	if !strings.Contains(r.Reason, "uiautomator dump failed") {
		t.Errorf("Reason = %q", r.Reason)
	}

	r = h.Locate(context.Background(), &fakeSource{tree: []byte("ERROR: null root node returned")}, "x", "")
	if r.Status != core.LocateSnapshotUnparsable {
		t.Errorf("Status = %s, want snapshot_unparsable", r.Status)
	}

	r = h.Locate(context.Background(), &fakeSource{tree: []byte(sampleHierarchy)}, "x", "")
	if r.Status != core.LocateNotFound {
		t.Errorf("Status = %s, want not_found", r.Status)
	}
}

func TestHierarchy_Idempotent(t *testing.T) {
	src := &fakeSource{tree: []byte(sampleHierarchy)}
	h := NewHierarchy()

	for _, tc := range []struct{ target, hint string }{
		{"Create a vault", ""},
		{"Vault name", ""},
		{"nope", "Open folder as vault"},
		{"missing", "also missing"},
	} {
		first := h.Locate(context.Background(), src, tc.target, tc.hint)
		second := h.Locate(context.Background(), src, tc.target, tc.hint)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("Locate(%q, %q) not idempotent (-first +second):\n%s", tc.target, tc.hint, diff)
		}
	}
	if src.treeCalls != 8 {
		t.Errorf("UITree called %d times, want 8 (no caching)", src.treeCalls)
	}
}
