package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CleanText prepares free text for storage: invalid UTF-8 and control
// characters other than newline and tab are dropped, surrounding space is
// trimmed, and the result is cut to at most maxRunes characters.
func CleanText(input string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == utf8.RuneError || (unicode.IsControl(r) && r != '\n' && r != '\t') {
			return -1
		}
		return r
	}, strings.ToValidUTF8(input, ""))
	cleaned = strings.TrimSpace(cleaned)
	if maxRunes <= 0 || utf8.RuneCountInString(cleaned) <= maxRunes {
		return cleaned
	}
	runes := []rune(cleaned)
	return strings.TrimSpace(string(runes[:maxRunes]))
}
