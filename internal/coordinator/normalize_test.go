package coordinator

import "testing"

func TestNormalizeKeyPart_ReplacesReservedCharacters(t *testing.T) {
	cases := map[string]string{
		"a b":           "a_b",
		"a:b":           "a_b",
		"a/b":           "a_b",
		`a\b`:           "a_b",
		"a\tb":          "a_b",
		"a\nb":          "a_b",
		"  trim me  ":   "trim_me",
		"already_clean": "already_clean",
	}
	for in, want := range cases {
		if got := NormalizeKeyPart(in); got != want {
			t.Fatalf("NormalizeKeyPart(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeKeyPart_Idempotent(t *testing.T) {
	inputs := []string{"a b", "a:b/c\\d\te\nf", "  spaced  ", "", "clean"}
	for _, in := range inputs {
		once := NormalizeKeyPart(in)
		twice := NormalizeKeyPart(once)
		if once != twice {
			t.Fatalf("NormalizeKeyPart not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func TestNormalizeKeyPart_CollisionIsAcceptable(t *testing.T) {
	// "a b" and "a_b" collide after normalization. This is intentional
	// (spec §3: uniqueness-preserving, not a security boundary).
	if NormalizeKeyPart("a b") != NormalizeKeyPart("a_b") {
		t.Fatalf("expected intentional collision between %q and %q", "a b", "a_b")
	}
}
