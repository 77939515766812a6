package pipeline

import (
	"time"

	"github.com/jonathan/booksmith/internal/types"
)

// EventType classifies a ProgressEvent
type EventType string

// Event types
const (
	EventLog      EventType = "log"
	EventProgress EventType = "progress"
	EventChapter  EventType = "chapter"
	EventCover    EventType = "cover"
	EventPhase    EventType = "phase"
	EventOutline  EventType = "outline"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// ChapterUpdate carries the state of one chapter after a change.
type ChapterUpdate struct {
	Index  int                 `json:"index"`
	Record types.ChapterRecord `json:"record"`
}

// ProgressEvent is one observable change of a session or run. Every payload is
// a value copy.
type ProgressEvent struct {
	Type      EventType               `json:"type"`
	SessionID string                  `json:"session_id,omitempty"`
	RunID     string                  `json:"run_id,omitempty"`
	Message   string                  `json:"message,omitempty"`
	Progress  *types.ProgressSnapshot `json:"progress,omitempty"`
	Chapter   *ChapterUpdate          `json:"chapter,omitempty"`
	Cover     *types.Cover            `json:"cover,omitempty"`
	Phase     types.Phase             `json:"phase,omitempty"`
	Outline   *types.Outline          `json:"outline,omitempty"`
	Time      time.Time               `json:"time"`
}

// ProgressCallback is called for every event, in order.
type ProgressCallback func(event ProgressEvent)

// ForWire returns a copy of the event without image bytes, for transports
// that serve the cover separately.
func (e ProgressEvent) ForWire() ProgressEvent {
	if e.Cover != nil && len(e.Cover.Image) > 0 {
		c := *e.Cover
		c.Image = nil
		e.Cover = &c
	}
	return e
}
