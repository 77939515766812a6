// Package chapter writes the prose of a single chapter. Writing never fails:
// any problem yields the substitute text and a degraded result.
package chapter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/booksmith/internal/llm"
	"github.com/jonathan/booksmith/internal/prompts"
	"github.com/jonathan/booksmith/internal/types"
)

// Substitute is stored as chapter content when generation fails.
const Substitute = "Error generating content. Please try again."

// DefaultAudience is used when the outline has no target audience.
const DefaultAudience = "General Audience"

// Result is the outcome of writing one chapter. Degraded results carry the
// substitute text and the reason.
type Result struct {
	Content  string
	Degraded bool
	Reason   error
}

// Ok builds a successful result.
func Ok(content string) Result {
	return Result{Content: content}
}

// Degraded builds a substitute result.
func Degraded(reason error) Result {
	return Result{Content: Substitute, Degraded: true, Reason: reason}
}

// Writer produces chapter prose.
type Writer struct {
	client llm.Client
	// Tier selects the model; defaults to standard.
	Tier llm.ModelTier
}

// NewWriter creates a chapter writer.
func NewWriter(client llm.Client) *Writer {
	return &Writer{client: client, Tier: llm.TierStandard}
}

// Write makes one free-text request for stub within the book titled bookTitle.
func (w *Writer) Write(ctx context.Context, bookTitle string, stub types.ChapterStub, audience string) Result {
	if strings.TrimSpace(stub.Title) == "" {
		return Degraded(errors.New("chapter title is empty"))
	}
	if strings.TrimSpace(stub.Description) == "" {
		return Degraded(errors.New("chapter description is empty"))
	}
	if strings.TrimSpace(audience) == "" {
		audience = DefaultAudience
	}

	prompt, err := prompts.Render(prompts.BookFile, "chapter", map[string]string{
		"ChapterTitle":       stub.Title,
		"BookTitle":          bookTitle,
		"Audience":           audience,
		"ChapterDescription": stub.Description,
	})
	if err != nil {
		return Degraded(err)
	}

	text, err := w.client.GenerateContent(ctx, prompt, w.Tier)
	if err != nil {
		return Degraded(fmt.Errorf("chapter %q: %w", stub.Title, err))
	}

	text = llm.TrimLeadingTitle(text, stub.Title)
	if text == "" {
		return Degraded(fmt.Errorf("chapter %q: empty response", stub.Title))
	}
	return Ok(text)
}
