package auth

import "testing"

func TestGate_OpenWithoutKey(t *testing.T) {
	g := NewGate("")
	if g.Required() {
		t.Fatal("no key means no credential required")
	}
	if !g.Authorize("") || !g.Authorize("anything") {
		t.Fatal("open gate must admit everything")
	}
}

func TestGate_MatchesKeyExactly(t *testing.T) {
	g := NewGate("s3cret")
	if !g.Required() {
		t.Fatal("key set, credential required")
	}
	if !g.Authorize("s3cret") {
		t.Fatal("correct key rejected")
	}
	for _, bad := range []string{"", "s3cre", "s3cret ", "S3CRET"} {
		if g.Authorize(bad) {
			t.Fatalf("admitted %q", bad)
		}
	}
}
