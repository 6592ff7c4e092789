package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases and trims raw input.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Fold normalizes s, strips diacritics and collapses inner whitespace, so
// "Amanhã" and "amanha" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, Normalize(s))
	if err != nil {
		out = Normalize(s)
	}
	return strings.Join(strings.Fields(out), " ")
}
