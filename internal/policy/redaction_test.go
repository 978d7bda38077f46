package policy

import (
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactValue(t *testing.T) {
	cases := map[string]string{
		"":           "",
		"ab":         "**",
		"2707111234": "********34",
		" José ":     "**sé",
	}
	for in, want := range cases {
		if got := RedactValue(in); got != want {
			t.Fatalf("RedactValue(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRedactVariablesSortedAndMasked(t *testing.T) {
	got := RedactVariables(map[string]string{"phone": "2707111234", "name": "John"})
	want := "name=**hn phone=********34"
	if got != want {
		t.Fatalf("RedactVariables() = %q, want %q", got, want)
	}
}
