package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxNameLength = 200

// SanitizeName turns a display title into a restricted, filesystem-safe name.
// Accents are folded to ASCII, whitespace becomes '_', and anything outside
// [A-Za-z0-9_.-] is dropped. Empty results fall back to "_".
func SanitizeName(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		name,
	)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range folded {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '.'):
			b.WriteRune(r)
			lastUnderscore = false
		case unicode.IsSpace(r) || r == '_' || r == '/' || r == '\\' || r == ':' || r == '|':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	out := strings.Trim(b.String(), "_.-")
	if len(out) > maxNameLength {
		out = out[:maxNameLength]
	}
	if out == "" {
		return "_"
	}
	return out
}
