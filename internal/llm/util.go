// Package llm - util.go provides shared utilities for LLM response processing.
package llm

import "strings"

// CleanJSONBlock strips markdown fences and conversational preamble or trailer
// from a JSON response, returning the first balanced object or array.
func CleanJSONBlock(text string) string {
	text = stripFence(strings.TrimSpace(text))

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	var extracted string
	if text[start] == '{' {
		extracted = extractJSONObject(text[start:])
	} else {
		extracted = extractJSONArray(text[start:])
	}
	if extracted == "" {
		return text
	}
	return extracted
}

func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	// Drop a language identifier on the fence line
	if idx := strings.Index(text, "\n"); idx >= 0 {
		first := text[:idx]
		if len(first) < 20 && !strings.ContainsAny(first, " {[") {
			text = text[idx+1:]
		}
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

func extractJSONObject(text string) string {
	return extractBalanced(text, '{', '}')
}

func extractJSONArray(text string) string {
	return extractBalanced(text, '[', ']')
}

// extractBalanced returns the prefix of text that closes the opening
// delimiter at text[0], ignoring delimiters inside JSON strings.
func extractBalanced(text string, open, close byte) string {
	if text == "" || text[0] != open {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[:i+1]
			}
		}
	}
	return ""
}

// TrimLeadingTitle removes a first line that merely repeats the chapter
// title, as a markdown heading or bold line. Models add it despite being asked not to.
func TrimLeadingTitle(content, title string) string {
	content = strings.TrimSpace(content)
	if title == "" {
		return content
	}
	first, rest, found := strings.Cut(content, "\n")
	if !found {
		return content
	}
	normalized := strings.TrimSpace(strings.Trim(strings.TrimLeft(first, "# "), "*_"))
	normalized = strings.TrimSpace(strings.TrimPrefix(normalized, "Chapter"))
	if strings.EqualFold(normalized, title) || strings.HasSuffix(strings.ToLower(normalized), strings.ToLower(title)) {
		return strings.TrimSpace(rest)
	}
	return content
}
