package uid

import (
	"strings"
	"testing"
	"time"
)

func TestNewProducesValidUIDs(t *testing.T) {
	g := NewGenerator("")

	for _, scope := range []Scope{ScopeStudy, ScopeSeries, ScopeInstance} {
		u, err := g.New(scope)
		if err != nil {
			t.Fatalf("New(%v) failed: %v", scope, err)
		}
		if !IsValid(u) {
			t.Errorf("New(%v) = %q, not a valid UID", scope, u)
		}
		if !strings.HasPrefix(u, DefaultRoot+".") {
			t.Errorf("New(%v) = %q, missing root prefix", scope, u)
		}
		if len(u) > MaxLength {
			t.Errorf("New(%v) = %q, length %d exceeds %d", scope, u, len(u), MaxLength)
		}
	}
}

func TestNewUniqueness(t *testing.T) {
	g := NewGenerator("")
	seen := make(map[string]bool, 2000)

	for i := 0; i < 2000; i++ {
		u, err := g.New(ScopeInstance)
		if err != nil {
			t.Fatalf("New failed on iteration %d: %v", i, err)
		}
		if seen[u] {
			t.Fatalf("duplicate UID generated: %q", u)
		}
		seen[u] = true
	}
}

func TestNewShortensRandomSuffixNotRoot(t *testing.T) {
	// A long root leaves only a few characters for the random component.
	root := "1.2.826.0.1.3680043.8.498.1234567890.1234567"
	g := NewGenerator(root)

	u, err := g.New(ScopeInstance)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !strings.HasPrefix(u, root+".") {
		t.Errorf("root was altered: %q", u)
	}
	if len(u) > MaxLength {
		t.Errorf("UID %q exceeds %d characters", u, len(u))
	}
	if !IsValid(u) {
		t.Errorf("UID %q is not valid after shortening", u)
	}
}

func TestNewFailsWhenRootLeavesNoRoom(t *testing.T) {
	g := NewGenerator(strings.Repeat("1.", 31) + "1") // 63 chars of root
	if _, err := g.New(ScopeStudy); err == nil {
		t.Fatal("expected error for oversized root")
	}
}

func TestTimestampComponent(t *testing.T) {
	g := NewGenerator("")
	g.now = func() time.Time {
		return time.Date(2025, 3, 14, 9, 26, 53, 589793000, time.UTC)
	}

	u, err := g.New(ScopeSeries)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !strings.Contains(u, ".2.20250314092653589793.") {
		t.Errorf("UID %q missing scope and timestamp components", u)
	}
}

func TestIsValid(t *testing.T) {
	cases := []struct {
		uid  string
		want bool
	}{
		{"1.2.840.10008.1.1", true},
		{"0.0.1", true},
		{"", false},
		{"1..2", false},
		{"1.02.3", false},
		{"1.2.a", false},
		{strings.Repeat("1", 65), false},
	}
	for _, c := range cases {
		if got := IsValid(c.uid); got != c.want {
			t.Errorf("IsValid(%q) = %v, want %v", c.uid, got, c.want)
		}
	}
}
