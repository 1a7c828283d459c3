// Package textx provides small text utilities used across the project.
package textx

import (
	"strings"
)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	// strip control chars outside tab/newline/carriage return
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// CollapseWhitespace normalizes runs of spaces and tabs to a single space and
// collapses three or more consecutive newlines to two. Extracted documents
// (especially PDFs) often carry large gaps between layout blocks.
func CollapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	newlines := 0
	for _, r := range s {
		switch r {
		case ' ', '\t':
			space = true
		case '\r':
			// handled by the following '\n' in CRLF input
		case '\n':
			newlines++
			space = false
			if newlines <= 2 {
				b.WriteByte('\n')
			}
		default:
			if space && b.Len() > 0 && !endsWithNewline(&b) {
				b.WriteByte(' ')
			}
			space = false
			newlines = 0
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func endsWithNewline(b *strings.Builder) bool {
	s := b.String()
	return len(s) > 0 && s[len(s)-1] == '\n'
}

// Preview returns the first n runes of s, trimmed, for payload previews.
func Preview(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
