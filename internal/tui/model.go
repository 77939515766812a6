// Package tui renders a live production run in the terminal.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jonathan/booksmith/internal/pipeline"
	"github.com/jonathan/booksmith/internal/types"
)

const (
	barWidth    = 30
	minLogLines = 3
	separator   = "────────────────────────────────────────────────────────────\n"
)

// EventMsg wraps a pipeline event. It is exported so that tests can inject
// it directly into ProductionModel.Update.
type EventMsg struct {
	Event pipeline.ProgressEvent
}

// DoneMsg is sent once the production run has returned.
type DoneMsg struct {
	Book *types.Book
	Err  error
}

// ProductionModel is the Bubbletea model of one production run.
type ProductionModel struct {
	title    string
	chapters []types.ChapterRecord
	cover    types.Cover
	progress types.ProgressSnapshot
	logs     []string

	done      bool
	cancelled bool
	err       error
	width     int
	height    int

	// OnCancel aborts the run. Set by the caller.
	OnCancel func()
}

// NewProductionModel creates a model for a book whose outline is settled.
func NewProductionModel(book types.Book) ProductionModel {
	chapters := make([]types.ChapterRecord, len(book.Chapters))
	copy(chapters, book.Chapters)
	return ProductionModel{
		title:    book.Title,
		chapters: chapters,
		cover:    types.Cover{Status: types.CoverPending},
		progress: types.ProgressSnapshot{TotalUnits: len(chapters) + 1},
	}
}

// Init has nothing to start; events arrive from the run.
func (m ProductionModel) Init() tea.Cmd {
	return nil
}

// Done reports whether the run has returned.
func (m ProductionModel) Done() bool {
	return m.done
}

// Err returns the error the run ended with, if any.
func (m ProductionModel) Err() error {
	return m.err
}

// Update handles pipeline events and key presses.
func (m ProductionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case EventMsg:
		m = m.apply(msg.Event)

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		if msg.Book != nil {
			m.chapters = append([]types.ChapterRecord(nil), msg.Book.Chapters...)
			m.cover = msg.Book.Cover
		}
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.done || m.cancelled {
				return m, tea.Quit
			}
			m.cancelled = true
			m.logs = append(m.logs, "Cancelling...")
			if m.OnCancel != nil {
				m.OnCancel()
			}
		}
	}
	return m, nil
}

func (m ProductionModel) apply(ev pipeline.ProgressEvent) ProductionModel {
	switch ev.Type {
	case pipeline.EventLog:
		m.logs = append(m.logs, ev.Message)
	case pipeline.EventProgress:
		if ev.Progress != nil {
			m.progress = *ev.Progress
		}
	case pipeline.EventChapter:
		if ev.Chapter != nil && ev.Chapter.Index >= 0 && ev.Chapter.Index < len(m.chapters) {
			chapters := append([]types.ChapterRecord(nil), m.chapters...)
			chapters[ev.Chapter.Index] = ev.Chapter.Record
			m.chapters = chapters
		}
	case pipeline.EventCover:
		if ev.Cover != nil {
			m.cover = *ev.Cover
		}
	case pipeline.EventError:
		m.logs = append(m.logs, "Error: "+ev.Message)
	}
	return m
}

// View renders the header, progress bar, chapter list and log tail.
func (m ProductionModel) View() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(" booksmith | %s\n", m.title))
	sb.WriteString(separator)

	sb.WriteString(fmt.Sprintf(" %s %3d%%  %s\n\n", progressBar(m.progress.Percent), m.progress.Percent, m.progress.CurrentTask))

	sb.WriteString(" Chapters\n")
	for i, ch := range m.chapters {
		sb.WriteString(fmt.Sprintf("  %s %d. %s\n", chapterIcon(ch), i+1, ch.Title))
	}
	sb.WriteString(fmt.Sprintf("  %s Cover%s\n", coverIcon(m.cover), coverNote(m.cover)))
	sb.WriteString(separator)

	sb.WriteString(" Log\n")
	for _, line := range m.logTail() {
		sb.WriteString("  " + line + "\n")
	}
	sb.WriteString(separator)

	switch {
	case m.done && m.err != nil:
		sb.WriteString(fmt.Sprintf(" Error: %v\n", m.err))
	case m.done:
		sb.WriteString(" Done!\n")
	case m.cancelled:
		sb.WriteString(" Cancelling... q: quit now\n")
	default:
		sb.WriteString(" q: cancel\n")
	}
	return sb.String()
}

// logTail returns the log lines that fit under the chapter list.
func (m ProductionModel) logTail() []string {
	n := 6
	if m.height > 0 {
		n = max(minLogLines, m.height-len(m.chapters)-12)
	}
	if len(m.logs) <= n {
		return m.logs
	}
	return m.logs[len(m.logs)-n:]
}

func progressBar(percent int) string {
	percent = min(max(percent, 0), 100)
	filled := percent * barWidth / 100
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled) + "]"
}

func chapterIcon(ch types.ChapterRecord) string {
	switch {
	case ch.Degraded:
		return "⚠"
	case ch.Done:
		return "✓"
	case ch.Generating:
		return "●"
	default:
		return "○"
	}
}

func coverIcon(c types.Cover) string {
	switch c.Status {
	case types.CoverPresent:
		return "✓"
	case types.CoverAbsent:
		return "✗"
	default:
		return "○"
	}
}

func coverNote(c types.Cover) string {
	if c.Status == types.CoverAbsent && c.Reason != "" {
		return " (" + c.Reason + ")"
	}
	return ""
}
