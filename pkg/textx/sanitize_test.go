// Package textx contains tests for the text utilities.
package textx

import "testing"

func TestSanitizeText(t *testing.T) {
	in := "he\x00llo\nwo\x7frld\t!"
	got := SanitizeText(in)
	if got != "hello\nworld\t!" {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	in := "Skills:   Go,\tPython\n\n\n\n\nExperience:  5 years"
	got := CollapseWhitespace(in)
	want := "Skills: Go, Python\n\nExperience: 5 years"
	if got != want {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("  hello world  ", 5); got != "hello" {
		t.Fatalf("unexpected: %q", got)
	}
	if got := Preview("hi", 100); got != "hi" {
		t.Fatalf("unexpected: %q", got)
	}
}
