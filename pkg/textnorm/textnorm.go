// Package textnorm canonicalizes free-text product names so that two
// differently formatted vocabularies can be compared.
package textnorm

import (
	"strings"
	"unicode"
)

// Normalize lower-cases s, drops every character that is not an ASCII word
// character, whitespace or a hyphen, collapses whitespace runs to a single
// space and trims the result.
//
// The registry extractor and the matcher must both go through Normalize, it
// defines what "the same product" means.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingSpace := false
	for _, r := range strings.ToLower(s) {
		switch {
		case isWord(r) || r == '-':
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case isSpace(r):
			pendingSpace = true
		}
	}
	return b.String()
}

func isWord(r rune) bool {
	return r == '_' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}

// Any Unicode space separates words, including NBSP and the BOM that
// spreadsheet exports leave behind.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\ufeff'
}
