package identity

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName decomposes, strips diacritics, uppercases, keeps only
// letters, digits and spaces, and collapses whitespace.
func NormalizeName(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := stripDiacritics(raw)

	var b strings.Builder
	b.Grow(len(stripped))
	space := false
	for _, r := range strings.ToUpper(stripped) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}

// ColumnKey canonicalises a column header: accents stripped, lower case,
// runs of anything else collapsed to a single underscore.
func ColumnKey(raw string) string {
	name := NormalizeName(strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, stripDiacritics(raw)))
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
