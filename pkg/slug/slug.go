// Package slug derives URL-safe recipe slugs from titles. Generation is
// deterministic: the same title always yields the same slug, so slugs can
// double as stable lookup keys while the database enforces uniqueness.
package slug

import (
	"strings"
	"unicode"
)

// Cyrillic-to-Latin transliteration table (Bulgarian streamlined system).
// Applied before punctuation stripping so titles like "Баница" survive
// instead of collapsing to an empty slug.
var cyrillic = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l",
	'м': "m", 'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s",
	'т': "t", 'у': "u", 'ф': "f", 'х': "h", 'ц': "ts", 'ч': "ch",
	'ш': "sh", 'щ': "sht", 'ъ': "a", 'ь': "y", 'ю': "yu", 'я': "ya",
	'ы': "y", 'э': "e", 'ё': "yo",
}

// Make converts a title to a slug: lowercase, transliterate Cyrillic,
// drop everything but letters/digits/spaces/hyphens, then collapse
// separator runs into single hyphens.
func Make(title string) string {
	lowered := strings.ToLower(strings.TrimSpace(title))

	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if lat, ok := cyrillic[r]; ok {
			b.WriteString(lat)
			continue
		}
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_' || unicode.IsSpace(r):
			b.WriteByte(' ')
		}
		// anything else (punctuation, other scripts) is dropped
	}

	fields := strings.Fields(b.String())
	return strings.Join(fields, "-")
}
