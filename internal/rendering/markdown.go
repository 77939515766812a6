package rendering

import (
	"fmt"
	"strings"

	"github.com/jonathan/booksmith/internal/types"
)

// RenderMarkdown renders a finished book as a single Markdown document.
// Cover art is not embedded; an absent cover is noted in text.
func RenderMarkdown(book types.Book) (string, error) {
	if !book.IsComplete() {
		return "", &RenderError{Message: "book is not complete"}
	}

	var sb strings.Builder
	sb.WriteString("# " + EscapeMarkdown(book.Title) + "\n\n")
	if book.TargetAudience != "" {
		sb.WriteString("_Written for " + EscapeMarkdown(book.TargetAudience) + "_\n\n")
	}
	if !book.Cover.IsPresent() {
		sb.WriteString("> A book about " + EscapeMarkdown(book.Topic) + "\n\n")
	}

	sb.WriteString("## Contents\n\n")
	for i, ch := range book.Chapters {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, EscapeMarkdown(ch.Title)))
	}

	for i, ch := range book.Chapters {
		sb.WriteString(fmt.Sprintf("\n## Chapter %d: %s\n\n", i+1, EscapeMarkdown(ch.Title)))
		sb.WriteString(strings.TrimSpace(ch.Content))
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
