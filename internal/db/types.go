package db

import (
	"time"

	"github.com/google/uuid"
)

// Run represents a finished book production run
type Run struct {
	ID               uuid.UUID  `json:"id"`
	SessionID        string     `json:"session_id"`
	Topic            string     `json:"topic"`
	Title            string     `json:"title"`
	ChapterCount     int        `json:"chapter_count"`
	DegradedChapters int        `json:"degraded_chapters"`
	CoverStatus      string     `json:"cover_status"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// Artifact represents an artifact record
type Artifact struct {
	ID          uuid.UUID `json:"id"`
	RunID       uuid.UUID `json:"run_id"`
	Step        string    `json:"step"`
	Content     []byte    `json:"content,omitempty"`
	TextContent string    `json:"text_content,omitempty"`
	ObjectKey   string    `json:"object_key,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Run status values
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Artifact step constants for known artifact types
const (
	StepOutline  = "outline"
	StepBook     = "book"
	StepEventLog = "event_log"
	StepMarkdown = "book_md"
	StepCover    = "cover"
	StepHTML     = "book_html"
	StepPDF      = "book_pdf"
)
