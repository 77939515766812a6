package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/booksmith/internal/types"
)

// SaveBookInput describes a completed book to persist.
type SaveBookInput struct {
	SessionID string
	Book      *types.Book
	Events    []string
	Markdown  string
}

// storedBook strips the cover image bytes; those live in object storage.
func storedBook(book *types.Book) types.Book {
	out := book.Clone()
	out.Cover.Image = nil
	return out
}

// SaveBook persists a completed book in one transaction: the run record,
// the outline, the book without cover bytes, the event log and the
// Markdown export. Incomplete books are rejected.
func (db *DB) SaveBook(ctx context.Context, in SaveBookInput) (uuid.UUID, error) {
	if in.Book == nil || !in.Book.IsComplete() {
		return uuid.Nil, fmt.Errorf("refusing to persist an incomplete book")
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	runID, err := createRun(ctx, tx, in.SessionID, in.Book.Topic, in.Book.Title, len(in.Book.Chapters))
	if err != nil {
		return uuid.Nil, err
	}
	if err := saveArtifact(ctx, tx, runID, StepOutline, in.Book.Outline()); err != nil {
		return uuid.Nil, err
	}
	if err := saveArtifact(ctx, tx, runID, StepBook, storedBook(in.Book)); err != nil {
		return uuid.Nil, err
	}
	if err := saveArtifact(ctx, tx, runID, StepEventLog, in.Events); err != nil {
		return uuid.Nil, err
	}
	if in.Markdown != "" {
		if err := saveTextArtifact(ctx, tx, runID, StepMarkdown, in.Markdown); err != nil {
			return uuid.Nil, err
		}
	}
	degraded := len(in.Book.DegradedChapters())
	if err := completeRun(ctx, tx, runID, RunStatusCompleted, string(in.Book.Cover.Status), degraded); err != nil {
		return uuid.Nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit book: %w", err)
	}
	return runID, nil
}

// GetBook loads a persisted book. Cover bytes are not included; the cover
// status and MIME type are. A missing book returns (nil, nil).
func (db *DB) GetBook(ctx context.Context, runID uuid.UUID) (*types.Book, error) {
	artifact, err := db.GetArtifact(ctx, runID, StepBook)
	if err != nil || artifact == nil {
		return nil, err
	}
	return decodeBook(artifact.Content)
}

func decodeBook(content []byte) (*types.Book, error) {
	var book types.Book
	if err := json.Unmarshal(content, &book); err != nil {
		return nil, fmt.Errorf("failed to decode stored book: %w", err)
	}
	return &book, nil
}
