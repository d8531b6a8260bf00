package executor

import (
	"path/filepath"
	"testing"
	"time"
)

func TestSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Login flow", "Login_flow"},
		{"create-vault_2", "create-vault_2"},
		{"a/b\\c:d", "a_b_c_d"},
		{"Café", "Caf_"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SafeName(tt.in); got != tt.want {
			t.Errorf("SafeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestArtifacts_Paths(t *testing.T) {
	a := NewArtifacts("out")
	a.Now = func() time.Time { return time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC) }
	sc := StepContext{Test: "Open vault", StepIndex: 3, Attempt: 2}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"plain screenshot", a.Screenshot(sc, ""), filepath.Join("out", "screenshots", "20260301_103000_Open_vault_step3_a2.png")},
		{"role screenshot", a.Screenshot(sc, "after_tap"), filepath.Join("out", "screenshots", "20260301_103000_Open_vault_after_tap_step3_a2.png")},
		{"hierarchy", a.Hierarchy(sc, 2), filepath.Join("out", "hierarchy", "20260301_103000_Open_vault_step3_a2_2.xml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %s, want %s", tt.got, tt.want)
			}
		})
	}
}

func TestArtifacts_AttemptsDiffer(t *testing.T) {
	a := NewArtifacts("out")
	a.Now = func() time.Time { return time.Unix(0, 0) }
	first := a.Screenshot(StepContext{Test: "t", StepIndex: 1, Attempt: 1}, "after")
	second := a.Screenshot(StepContext{Test: "t", StepIndex: 1, Attempt: 2}, "after")
	if first == second {
		t.Errorf("retry reuses path %s", first)
	}
}
