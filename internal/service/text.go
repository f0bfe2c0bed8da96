package service

import (
	"strings"
	"unicode/utf8"
)

// cleanText trims s and drops invalid UTF-8 bytes, which Postgres rejects in
// text columns. OCR output and card-network merchant names both carry them.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if utf8.ValidString(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			b.WriteRune(r)
		}
		s = s[size:]
	}
	return strings.TrimSpace(b.String())
}
