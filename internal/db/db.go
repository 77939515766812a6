// Package db provides PostgreSQL persistence for finished books and their
// production runs. Intermediate production state is never stored.
package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Connect establishes a connection pool to the database
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// EnsureSchema creates the tables if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// CreateRun creates a run record in the running state and returns its ID
func (db *DB) CreateRun(ctx context.Context, sessionID, topic, title string, chapterCount int) (uuid.UUID, error) {
	return createRun(ctx, db.pool, sessionID, topic, title, chapterCount)
}

func createRun(ctx context.Context, q querier, sessionID, topic, title string, chapterCount int) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.QueryRow(ctx,
		`INSERT INTO book_runs (session_id, topic, title, chapter_count, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		sessionID, topic, title, chapterCount, RunStatusRunning,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}
	return id, nil
}

// CompleteRun marks a run finished with the given status and summary
func (db *DB) CompleteRun(ctx context.Context, runID uuid.UUID, status, coverStatus string, degraded int) error {
	return completeRun(ctx, db.pool, runID, status, coverStatus, degraded)
}

func completeRun(ctx context.Context, q querier, runID uuid.UUID, status, coverStatus string, degraded int) error {
	_, err := q.Exec(ctx,
		`UPDATE book_runs
		 SET status = $1, cover_status = $2, degraded_chapters = $3, completed_at = NOW()
		 WHERE id = $4`,
		status, coverStatus, degraded, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// SaveArtifact stores a JSON artifact for a run
func (db *DB) SaveArtifact(ctx context.Context, runID uuid.UUID, step string, content any) error {
	return saveArtifact(ctx, db.pool, runID, step, content)
}

func saveArtifact(ctx context.Context, q querier, runID uuid.UUID, step string, content any) error {
	jsonBytes, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	_, err = q.Exec(ctx,
		`INSERT INTO book_artifacts (run_id, step, content)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (run_id, step) DO UPDATE SET content = $3, created_at = NOW()`,
		runID, step, jsonBytes,
	)
	if err != nil {
		return fmt.Errorf("failed to save artifact %s: %w", step, err)
	}
	return nil
}

// SaveTextArtifact stores a text artifact (such as the Markdown export) for a run
func (db *DB) SaveTextArtifact(ctx context.Context, runID uuid.UUID, step, text string) error {
	return saveTextArtifact(ctx, db.pool, runID, step, text)
}

func saveTextArtifact(ctx context.Context, q querier, runID uuid.UUID, step, text string) error {
	_, err := q.Exec(ctx,
		`INSERT INTO book_artifacts (run_id, step, text_content)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (run_id, step) DO UPDATE SET text_content = $3, created_at = NOW()`,
		runID, step, text,
	)
	if err != nil {
		return fmt.Errorf("failed to save text artifact %s: %w", step, err)
	}
	return nil
}

// SaveObjectKey records where a binary artifact was stored in object storage
func (db *DB) SaveObjectKey(ctx context.Context, runID uuid.UUID, step, key string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO book_artifacts (run_id, step, object_key)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (run_id, step) DO UPDATE SET object_key = $3, created_at = NOW()`,
		runID, step, key,
	)
	if err != nil {
		return fmt.Errorf("failed to save object key %s: %w", step, err)
	}
	return nil
}

// GetArtifact retrieves an artifact by run ID and step. A missing artifact
// returns (nil, nil).
func (db *DB) GetArtifact(ctx context.Context, runID uuid.UUID, step string) (*Artifact, error) {
	var a Artifact
	var text, key *string
	err := db.pool.QueryRow(ctx,
		`SELECT id, run_id, step, content, text_content, object_key, created_at
		 FROM book_artifacts WHERE run_id = $1 AND step = $2`,
		runID, step,
	).Scan(&a.ID, &a.RunID, &a.Step, &a.Content, &text, &key, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get artifact %s: %w", step, err)
	}
	if text != nil {
		a.TextContent = *text
	}
	if key != nil {
		a.ObjectKey = *key
	}
	return &a, nil
}

const runColumns = `id, session_id, topic, title, chapter_count, degraded_chapters, cover_status, status, created_at, completed_at`

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.SessionID, &run.Topic, &run.Title, &run.ChapterCount,
		&run.DegradedChapters, &run.CoverStatus, &run.Status, &run.CreatedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRun retrieves a run by ID. A missing run returns (nil, nil).
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM book_runs WHERE id = $1`, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves recent runs, newest first
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+runColumns+` FROM book_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and its artifacts
func (db *DB) DeleteRun(ctx context.Context, runID uuid.UUID) error {
	if _, err := db.pool.Exec(ctx, `DELETE FROM book_runs WHERE id = $1`, runID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}
