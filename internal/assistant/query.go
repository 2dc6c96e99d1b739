package assistant

import (
	"strings"
	"unicode"
)

// CleanQuery lower-cases a transcript and keeps only letters and spaces.
func CleanQuery(query string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(query) {
		if unicode.IsLetter(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
