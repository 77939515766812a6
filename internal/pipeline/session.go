package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/booksmith/internal/types"
)

// Outliner produces an outline for a topic.
type Outliner interface {
	Synthesize(ctx context.Context, topic string) (*types.Outline, error)
}

// Producer runs production for an outline-stage book.
type Producer interface {
	Produce(ctx context.Context, draft types.Book, emit ProgressCallback) (*types.Book, error)
}

// Snapshot is an immutable copy of a session's state.
type Snapshot struct {
	ID        string                 `json:"id"`
	Phase     types.Phase            `json:"phase"`
	Topic     string                 `json:"topic,omitempty"`
	Book      *types.Book            `json:"book,omitempty"`
	Progress  types.ProgressSnapshot `json:"progress"`
	Logs      []types.LogEntry       `json:"logs"`
	LastError string                 `json:"last_error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Session is the state machine behind one book: Idle, OutlineReady,
// Producing, Complete. It is safe for concurrent use. Subscribers receive
// every event in order and must not call mutating session methods from the
// callback.
type Session struct {
	ID string

	outliner Outliner
	producer Producer
	logger   *log.Logger

	mu        sync.RWMutex
	phase     types.Phase
	topic     string
	book      types.Book
	progress  types.ProgressSnapshot
	events    *types.EventLog
	lastErr   string
	busy      bool
	epoch     int
	createdAt time.Time
	updatedAt time.Time

	notifyMu    sync.Mutex
	subscribers map[int]ProgressCallback
	nextSub     int
}

// NewSession creates an idle session.
func NewSession(outliner Outliner, producer Producer, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	now := time.Now()
	return &Session{
		ID:          uuid.NewString(),
		outliner:    outliner,
		producer:    producer,
		logger:      logger,
		phase:       types.PhaseIdle,
		events:      types.NewEventLog(),
		subscribers: make(map[int]ProgressCallback),
		createdAt:   now,
		updatedAt:   now,
	}
}

// Subscribe registers fn for all future events and returns a function that
// removes it.
func (s *Session) Subscribe(fn ProgressCallback) func() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.notifyMu.Lock()
		delete(s.subscribers, id)
		s.notifyMu.Unlock()
	}
}

// Phase returns the current phase.
func (s *Session) Phase() types.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Snapshot returns a deep copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		ID:        s.ID,
		Phase:     s.phase,
		Topic:     s.topic,
		Progress:  s.progress,
		Logs:      s.events.Entries(),
		LastError: s.lastErr,
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
	if s.phase != types.PhaseIdle {
		b := s.book.Clone()
		snap.Book = &b
	}
	return snap
}

// Book returns a copy of the finished book, or false before completion.
func (s *Session) Book() (types.Book, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.phase != types.PhaseComplete {
		return types.Book{}, false
	}
	return s.book.Clone(), true
}

// SubmitTopic generates the outline for topic. Only valid while Idle. On
// failure the session stays Idle and the error is returned.
func (s *Session) SubmitTopic(ctx context.Context, topic string) error {
	topic, err := types.NormalizeTopic(topic)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.phase != types.PhaseIdle {
		phase := s.phase
		s.mu.Unlock()
		return &PhaseError{Op: "submit a topic", Phase: phase}
	}
	if s.busy {
		s.mu.Unlock()
		return &BusyError{Op: "submit a topic"}
	}
	s.busy = true
	s.topic = topic
	s.lastErr = ""
	epoch := s.epoch
	s.mu.Unlock()

	s.publish(epoch, ProgressEvent{Type: EventLog, Message: fmt.Sprintf("Analyzing topic: %s...", topic)})

	outline, err := s.outliner.Synthesize(ctx, topic)

	s.mu.Lock()
	stale := s.epoch != epoch
	if !stale {
		s.busy = false
	}
	if err == nil && !stale {
		s.book = types.NewBook(topic, *outline)
		s.phase = types.PhaseOutlineReady
	}
	if err != nil && !stale {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()

	if stale {
		return errors.New("session was reset while the outline was generated")
	}
	if err != nil {
		s.logger.Printf("session %s: outline failed: %v", s.ID, err)
		s.publish(epoch, ProgressEvent{Type: EventLog, Message: "Error generating outline."})
		s.publish(epoch, ProgressEvent{Type: EventError, Message: err.Error()})
		return err
	}

	o := *outline
	s.publish(epoch, ProgressEvent{Type: EventOutline, Outline: &o})
	s.publish(epoch, ProgressEvent{Type: EventPhase, Phase: types.PhaseOutlineReady})
	s.publish(epoch, ProgressEvent{Type: EventLog, Message: "Outline generated successfully."})
	return nil
}

// EditOutline replaces the reviewable outline. Only valid in OutlineReady.
// Fields are trimmed before validation, so blank fields are rejected.
func (s *Session) EditOutline(outline types.Outline) error {
	outline = outline.Trimmed()
	if err := outline.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.phase != types.PhaseOutlineReady {
		phase := s.phase
		s.mu.Unlock()
		return &PhaseError{Op: "edit the outline", Phase: phase}
	}
	s.book = types.NewBook(s.topic, outline)
	epoch := s.epoch
	s.mu.Unlock()

	s.publish(epoch, ProgressEvent{Type: EventOutline, Outline: &outline})
	return nil
}

// StartProduction runs production synchronously. Only valid in OutlineReady.
// On success the session is Complete and the finished book is returned. On a
// fatal error the session returns to OutlineReady with content discarded.
func (s *Session) StartProduction(ctx context.Context) (*types.Book, error) {
	s.mu.Lock()
	if s.phase != types.PhaseOutlineReady {
		phase := s.phase
		s.mu.Unlock()
		return nil, &PhaseError{Op: "start production", Phase: phase}
	}
	if !s.book.HasOutline() {
		s.mu.Unlock()
		return nil, nil
	}
	s.phase = types.PhaseProducing
	s.book.ResetContent()
	s.progress = types.ProgressSnapshot{TotalUnits: len(s.book.Chapters) + 1}
	s.lastErr = ""
	draft := s.book.Clone()
	epoch := s.epoch
	s.mu.Unlock()

	s.publish(epoch, ProgressEvent{Type: EventPhase, Phase: types.PhaseProducing})

	finished, err := s.producer.Produce(ctx, draft, func(ev ProgressEvent) {
		s.publish(epoch, ev)
	})

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return nil, errors.New("session was reset during production")
	}
	if err != nil {
		s.phase = types.PhaseOutlineReady
		s.book.ResetContent()
		s.progress = types.ProgressSnapshot{}
		s.lastErr = err.Error()
		s.mu.Unlock()

		s.publish(epoch, ProgressEvent{Type: EventError, Message: err.Error()})
		s.publish(epoch, ProgressEvent{Type: EventPhase, Phase: types.PhaseOutlineReady})
		return nil, err
	}
	if finished == nil {
		// Producer declined the draft; nothing ran.
		s.phase = types.PhaseOutlineReady
		s.mu.Unlock()
		s.publish(epoch, ProgressEvent{Type: EventPhase, Phase: types.PhaseOutlineReady})
		return nil, nil
	}
	s.book = finished.Clone()
	s.phase = types.PhaseComplete
	s.mu.Unlock()

	s.publish(epoch, ProgressEvent{Type: EventPhase, Phase: types.PhaseComplete})
	s.publish(epoch, ProgressEvent{Type: EventComplete, Message: finished.Title})
	return finished, nil
}

// Reset discards everything and returns to Idle. Legal from every phase; an
// in-flight outline or production run is detached and its results ignored.
func (s *Session) Reset() {
	s.mu.Lock()
	s.epoch++
	s.phase = types.PhaseIdle
	s.topic = ""
	s.book = types.Book{}
	s.progress = types.ProgressSnapshot{}
	s.events = types.NewEventLog()
	s.lastErr = ""
	s.busy = false
	epoch := s.epoch
	s.mu.Unlock()

	s.publish(epoch, ProgressEvent{Type: EventPhase, Phase: types.PhaseIdle})
}

// publish applies ev to the session state and then notifies subscribers.
// Events of a previous epoch are dropped.
func (s *Session) publish(epoch int, ev ProgressEvent) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	ev.SessionID = s.ID
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.apply(ev)
	s.updatedAt = ev.Time
	s.mu.Unlock()

	for _, fn := range s.subscribers {
		fn(ev)
	}
}

// apply folds an event into the state. Caller holds s.mu.
func (s *Session) apply(ev ProgressEvent) {
	switch ev.Type {
	case EventLog:
		s.events.Append(ev.Message)
	case EventProgress:
		if ev.Progress != nil && ev.Progress.CompletedUnits >= s.progress.CompletedUnits {
			s.progress = *ev.Progress
		}
	case EventChapter:
		if ev.Chapter != nil && ev.Chapter.Index >= 0 && ev.Chapter.Index < len(s.book.Chapters) {
			s.book.Chapters[ev.Chapter.Index] = ev.Chapter.Record
		}
	case EventCover:
		if ev.Cover != nil {
			s.book.Cover = *ev.Cover
		}
	}
}
