package executor

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

// Artifact subdirectories under the artifacts root.
const (
	ScreenshotsDir = "screenshots"
	HierarchyDir   = "hierarchy"
)

const timestampLayout = "20060102_150405"

// Artifacts allocates artifact paths. Every path carries the test, step
// index and attempt so retries of the same step never collide.
type Artifacts struct {
	Dir string
	Now func() time.Time
}

// NewArtifacts creates an allocator rooted at dir.
func NewArtifacts(dir string) *Artifacts {
	return &Artifacts{Dir: dir, Now: time.Now}
}

func (a *Artifacts) stem(sc StepContext, role string) string {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	parts := []string{now().Format(timestampLayout), SafeName(sc.Test)}
	if role != "" {
		parts = append(parts, role)
	}
	parts = append(parts, fmt.Sprintf("step%d_a%d", sc.StepIndex, sc.Attempt))
	return strings.Join(parts, "_")
}

// Screenshot returns a PNG path for the step attempt. role distinguishes
// multiple captures within one attempt (locate, after_tap, after).
func (a *Artifacts) Screenshot(sc StepContext, role string) string {
	return filepath.Join(a.Dir, ScreenshotsDir, a.stem(sc, role)+".png")
}

// Hierarchy returns a UI dump path; seq numbers the dumps within one attempt.
func (a *Artifacts) Hierarchy(sc StepContext, seq int) string {
	return filepath.Join(a.Dir, HierarchyDir, fmt.Sprintf("%s_%d.xml", a.stem(sc, ""), seq))
}

// SafeName makes a string safe to use in file names. Letters, digits,
// underscore and hyphen are kept; everything else becomes underscore.
func SafeName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-') {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
