// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/booksmith/internal/pipeline"
	"github.com/jonathan/booksmith/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 8
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		line = truncate(line, boxWidth-4)
		pad := boxWidth - 4 - utf8.RuneCountInString(line)
		fmt.Fprintf(p.out, "│ %s%s │\n", line, strings.Repeat(" ", pad))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintOutline outputs the generated outline for review.
func (p *Printer) PrintOutline(outline *types.Outline) {
	if outline == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Title:    %s\n", outline.Title))
	sb.WriteString(fmt.Sprintf("Audience: %s\n", outline.TargetAudience))
	sb.WriteString("\n")

	for i, ch := range outline.Chapters {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, ch.Title))
		if ch.Description != "" {
			sb.WriteString(fmt.Sprintf("   %s\n", truncate(ch.Description, boxWidth-7)))
		}
	}
	if !outline.WithinSuggestedRange() {
		sb.WriteString(fmt.Sprintf("\n⚠ %d chapters (suggested %d-%d)\n",
			len(outline.Chapters), types.MinSuggestedChapters, types.MaxSuggestedChapters))
	}

	p.printBox("BOOK OUTLINE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintBook outputs a summary of a finished book: chapter sizes, degraded
// chapters and the cover outcome.
func (p *Printer) PrintBook(book *types.Book) {
	if book == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Title:    %s\n", book.Title))
	sb.WriteString(fmt.Sprintf("Topic:    %s\n", book.Topic))
	sb.WriteString(fmt.Sprintf("Chapters: %d\n", len(book.Chapters)))
	sb.WriteString("\n")

	count := min(len(book.Chapters), maxItemsToShow)
	for i := 0; i < count; i++ {
		ch := book.Chapters[i]
		words := len(strings.Fields(ch.Content))
		marker := "✓"
		if ch.Degraded {
			marker = "⚠"
		}
		sb.WriteString(fmt.Sprintf("%s %d. %s (%d words)\n", marker, i+1, truncate(ch.Title, 30), words))
	}
	if len(book.Chapters) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(book.Chapters)-maxItemsToShow))
	}
	sb.WriteString("\n")

	switch book.Cover.Status {
	case types.CoverPresent:
		sb.WriteString(fmt.Sprintf("Cover:    %s, %d bytes", book.Cover.MIMEType, len(book.Cover.Image)))
	case types.CoverAbsent:
		sb.WriteString("Cover:    none")
		if book.Cover.Reason != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", book.Cover.Reason))
		}
	default:
		sb.WriteString("Cover:    pending")
	}

	p.printBox("FINISHED BOOK", sb.String())
}

// PrintEvent writes a one-line rendition of a pipeline event.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintEvent(ev pipeline.ProgressEvent) {
	switch ev.Type {
	case pipeline.EventLog:
		fmt.Fprintf(p.out, "  %s\n", ev.Message)
	case pipeline.EventProgress:
		if ev.Progress != nil {
			fmt.Fprintf(p.out, "  [%3d%%] %s\n", ev.Progress.Percent, ev.Progress.CurrentTask)
		}
	case pipeline.EventError:
		fmt.Fprintf(p.out, "  ✗ %s\n", ev.Message)
	}
}

// PrintLogs outputs the tail of a session's event log.
func (p *Printer) PrintLogs(logs []types.LogEntry) {
	if len(logs) == 0 {
		return
	}

	var sb strings.Builder
	start := max(0, len(logs)-maxItemsToShow)
	if start > 0 {
		sb.WriteString(fmt.Sprintf("... %d earlier entries\n", start))
	}
	for _, entry := range logs[start:] {
		sb.WriteString(fmt.Sprintf("%s  %s\n", entry.Time.Format("15:04:05"), entry.Message))
	}

	p.printBox("EVENT LOG", strings.TrimSuffix(sb.String(), "\n"))
}
