package schema

import (
	"strings"
	"testing"
)

func TestStatements(t *testing.T) {
	stmts := Statements()
	if len(stmts) != 7 {
		t.Fatalf("statements = %d, want 7", len(stmts))
	}
	for _, s := range stmts {
		if !strings.HasPrefix(s, "CREATE TABLE IF NOT EXISTS") {
			t.Fatalf("unexpected statement: %.60q", s)
		}
		if strings.Contains(s, "--") {
			t.Fatalf("comment leaked into statement: %.60q", s)
		}
	}
}

func TestRebind(t *testing.T) {
	got := Rebind("INSERT INTO t (a, b) VALUES (?, ?)")
	want := "INSERT INTO t (a, b) VALUES ($1, $2)"
	if got != want {
		t.Fatalf("Rebind = %q, want %q", got, want)
	}
	if got := Rebind("SELECT 1"); got != "SELECT 1" {
		t.Fatalf("placeholder-free query changed: %q", got)
	}
	// Two-digit ordinals.
	rebound := Rebind(InsertSample)
	if !strings.Contains(rebound, "$18") || strings.Contains(rebound, "?") {
		t.Fatalf("InsertSample rebind incomplete: %q", rebound)
	}
}
