package main

import (
	"strings"
	"unicode/utf8"
)

// sanitizeForTerminal drops codepoints that let remote text move the
// cursor, recolor or reorder the terminal:
// - C0 controls other than tab, and DEL (ESC starts ANSI sequences)
// - C1 controls (U+0080..U+009F)
// - bidi embedding, override and isolate marks
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			b.WriteRune(utf8.RuneError)
		} else if !isProblematicRune(r) {
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	case r == '\t':
		return false
	// C0 controls and DEL.
	case r < 0x20 || r == 0x7F:
		return true
	// C1 controls.
	case r >= 0x80 && r <= 0x9F:
		return true
	// Bidi embeddings and overrides.
	case r >= 0x202A && r <= 0x202E:
		return true
	// Bidi isolates.
	case r >= 0x2066 && r <= 0x2069:
		return true
	default:
		return false
	}
}
