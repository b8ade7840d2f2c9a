// Package slug derives URL-safe slugs from post titles.
package slug

import (
	"strings"
	"unicode"
)

// Make converts a title into a lowercase hyphenated slug.
// Example: "Launch Day!  (2026)" becomes "launch-day-2026".
func Make(title string) string {
	var b strings.Builder
	b.Grow(len(title))

	pendingHyphen := false
	for _, r := range strings.TrimSpace(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(unicode.ToLower(r))
		default:
			// Runs of separators and punctuation collapse into one hyphen.
			pendingHyphen = true
		}
	}

	return b.String()
}
