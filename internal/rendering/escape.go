package rendering

import (
	"strings"
	"unicode"
)

// EscapeMarkdown escapes characters that would change the meaning of inline
// Markdown text such as a heading or a title line.
func EscapeMarkdown(text string) string {
	if text == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(text) + 8)

	for _, r := range text {
		switch r {
		case '\\', '`', '*', '_', '[', ']', '#', '<', '>', '|':
			result.WriteRune('\\')
			result.WriteRune(r)
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}

// Slugify turns a title into a lowercase, hyphen-separated identifier usable
// in file names and HTML anchors.
func Slugify(text string) string {
	var result strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && result.Len() > 0 {
				result.WriteRune('-')
			}
			pendingHyphen = false
			result.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	if result.Len() == 0 {
		return "book"
	}
	return result.String()
}
