package store

import (
	"context"
	"sync"
	"testing"
)

func TestSanitizeProjectID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "default"},
		{"   ", "default"},
		{"myproject", "myproject"},
		{"My.Project-2_ok", "My.Project-2_ok"},
		{"team/alpha", "team_alpha"},
		{"a b\tc", "a_b_c"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"héllo wörld", "h_llo_w_rld"},
	}
	for _, tt := range tests {
		if got := SanitizeProjectID(tt.in); got != tt.want {
			t.Errorf("SanitizeProjectID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// WHAT: all spellings that sanitize to the same identifier share one engine,
// so in-process serialization covers them all.
func TestRegistry_ResolveSharesEngine(t *testing.T) {
	reg, err := NewRegistry(t.TempDir(), Config{}, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	a := reg.Resolve("team/alpha")
	b := reg.Resolve("team alpha")
	if a != b {
		t.Fatalf("colliding identifiers resolved to distinct engines")
	}
	if a.ProjectID() != "team_alpha" {
		t.Errorf("ProjectID = %q, want %q", a.ProjectID(), "team_alpha")
	}

	if reg.Resolve("") != reg.Resolve("default") {
		t.Errorf("empty identifier did not resolve to the default engine")
	}
}

// WHAT: concurrent Resolve calls for the same project return one engine.
func TestRegistry_ResolveConcurrent(t *testing.T) {
	reg, err := NewRegistry(t.TempDir(), Config{}, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	const callers = 16
	engines := make([]*Engine, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			engines[i] = reg.Resolve("shared")
		}(i)
	}
	wg.Wait()
	for i := 1; i < callers; i++ {
		if engines[i] != engines[0] {
			t.Fatalf("Resolve returned distinct engines for one project")
		}
	}
}

func TestRegistry_EnginesWriteUnderDir(t *testing.T) {
	dir := t.TempDir()
	reg, err := NewRegistry(dir, Config{}, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	eng := reg.Resolve("p1")
	if err := eng.Append(context.Background(), mkThought(t, 1, "Scoping")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got := reg.Projects(); len(got) != 1 || got[0] != "p1" {
		t.Errorf("Projects() = %v, want [p1]", got)
	}
}
