package server

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/booksmith/internal/artifact"
	"github.com/jonathan/booksmith/internal/db"
	"github.com/jonathan/booksmith/internal/pipeline"
	"github.com/jonathan/booksmith/internal/rendering"
)

// createSession builds a session, wires its event fan-out and caches it.
func (s *Server) createSession() *pipeline.Session {
	sess := s.newSession()
	sess.Subscribe(s.observe(sess))
	s.sessions.Add(sess.ID, sess)
	return sess
}

// observe returns the subscriber every session carries. It runs under the
// session's notify lock, so it only enqueues work.
func (s *Server) observe(sess *pipeline.Session) pipeline.ProgressCallback {
	return func(ev pipeline.ProgressEvent) {
		if s.outbox != nil {
			select {
			case s.outbox <- ev.ForWire():
			default:
				s.logger.Printf("session %s: event outbox full, dropping %s event", sess.ID, ev.Type)
			}
		}
		switch ev.Type {
		case pipeline.EventComplete:
			if s.baseCtx.Err() != nil {
				return
			}
			s.background.Add(1)
			go s.persist(sess)
		case pipeline.EventPhase:
			s.runIDs.Delete(sess.ID)
		}
	}
}

// forwardEvents drains the outbox into the event publisher.
func (s *Server) forwardEvents() {
	defer s.background.Done()
	for {
		select {
		case <-s.baseCtx.Done():
			return
		case ev := <-s.outbox:
			ctx, cancel := context.WithTimeout(s.baseCtx, 5*time.Second)
			if err := s.events.Publish(ctx, ev); err != nil {
				s.logger.Printf("session %s: publishing %s event: %v", ev.SessionID, ev.Type, err)
			}
			cancel()
		}
	}
}

// persist stores a finished book: the record in PostgreSQL and the binary
// outputs in object storage. Failures are logged; the session stays Complete.
func (s *Server) persist(sess *pipeline.Session) {
	defer s.background.Done()
	if s.store == nil && s.artifacts == nil {
		return
	}

	book, ok := sess.Book()
	if !ok {
		return
	}
	snap := sess.Snapshot()
	logs := make([]string, len(snap.Logs))
	for i, entry := range snap.Logs {
		logs[i] = entry.Message
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	markdown, err := rendering.RenderMarkdown(book)
	if err != nil {
		s.logger.Printf("session %s: rendering markdown for storage: %v", sess.ID, err)
	}

	runID := uuid.New()
	if s.store != nil {
		runID, err = s.store.SaveBook(ctx, db.SaveBookInput{
			SessionID: sess.ID,
			Book:      &book,
			Events:    logs,
			Markdown:  markdown,
		})
		if err != nil {
			s.logger.Printf("session %s: saving book: %v", sess.ID, err)
			return
		}
	}
	s.runIDs.Store(sess.ID, runID.String())
	s.logger.Printf("session %s: persisted as run %s", sess.ID, runID)

	if s.artifacts == nil {
		return
	}

	if book.Cover.IsPresent() {
		name := artifact.CoverObjectName(book.Cover.MIMEType)
		s.storeObject(ctx, runID, db.StepCover, name, book.Cover.MIMEType, book.Cover.Image)
	}
	html, err := rendering.RenderHTML(book)
	if err != nil {
		s.logger.Printf("session %s: rendering html for storage: %v", sess.ID, err)
		return
	}
	s.storeObject(ctx, runID, db.StepHTML, artifact.HTMLObject, "text/html; charset=utf-8", []byte(html))
}

func (s *Server) storeObject(ctx context.Context, runID uuid.UUID, step, name, contentType string, data []byte) {
	key, err := s.artifacts.Put(ctx, runID.String(), name, contentType, data)
	if err != nil {
		s.logger.Printf("run %s: uploading %s: %v", runID, name, err)
		return
	}
	if s.store == nil {
		return
	}
	if err := s.store.SaveObjectKey(ctx, runID, step, key); err != nil {
		s.logger.Printf("run %s: recording %s: %v", runID, name, err)
	}
}

// runID returns the persisted run of a session, if any.
func (s *Server) runID(sessionID string) string {
	if v, ok := s.runIDs.Load(sessionID); ok {
		return v.(string)
	}
	return ""
}
