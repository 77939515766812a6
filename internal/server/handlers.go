package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/booksmith/internal/artifact"
	"github.com/jonathan/booksmith/internal/pipeline"
	"github.com/jonathan/booksmith/internal/rendering"
	"github.com/jonathan/booksmith/internal/types"
)

const (
	eventBuffer       = 256
	keepaliveInterval = 15 * time.Second
)

// BookResponse is the wire form of a session. Cover bytes are never inlined;
// CoverURL points at them once present.
type BookResponse struct {
	pipeline.Snapshot
	CoverURL string `json:"cover_url,omitempty"`
	RunID    string `json:"run_id,omitempty"`
}

// BookSummary is one entry of GET /books
type BookSummary struct {
	ID        string                 `json:"id"`
	Phase     types.Phase            `json:"phase"`
	Topic     string                 `json:"topic,omitempty"`
	Title     string                 `json:"title,omitempty"`
	Progress  types.ProgressSnapshot `json:"progress"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// ProduceResponse is returned when production is started asynchronously
type ProduceResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Events string `json:"events"`
}

func (s *Server) bookResponse(sess *pipeline.Session) BookResponse {
	snap := sess.Snapshot()
	resp := BookResponse{Snapshot: snap, RunID: s.runID(sess.ID)}
	if snap.Book != nil {
		if snap.Book.Cover.IsPresent() {
			resp.CoverURL = "/books/" + sess.ID + "/cover"
		}
		snap.Book.Cover.Image = nil
	}
	return resp
}

// session looks up the session named by the {id} path value.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*pipeline.Session, bool) {
	id := r.PathValue("id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		s.failure(w, &ErrSessionNotFound{ID: id})
		return nil, false
	}
	return sess, true
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &ErrValidation{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return nil
}

// handleListBooks lists the sessions held in memory, most recent first
func (s *Server) handleListBooks(w http.ResponseWriter, _ *http.Request) {
	keys := s.sessions.Keys()
	out := make([]BookSummary, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		sess, ok := s.sessions.Peek(keys[i])
		if !ok {
			continue
		}
		snap := sess.Snapshot()
		summary := BookSummary{
			ID:        snap.ID,
			Phase:     snap.Phase,
			Topic:     snap.Topic,
			Progress:  snap.Progress,
			UpdatedAt: snap.UpdatedAt,
		}
		if snap.Book != nil {
			summary.Title = snap.Book.Title
		}
		out = append(out, summary)
	}
	s.jsonResponse(w, http.StatusOK, out)
}

// handleCreateBook creates a session and generates its outline
func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req types.CreateBookRequest
	if err := decodeJSON(r, &req); err != nil {
		s.failure(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.failure(w, err)
		return
	}
	if _, err := types.NormalizeTopic(req.Topic); err != nil {
		s.failure(w, err)
		return
	}

	sess := s.createSession()
	if err := sess.SubmitTopic(r.Context(), req.Topic); err != nil {
		// The session stays Idle and can be retried via /books/{id}/topic
		s.jsonResponse(w, HTTPStatus(err), map[string]string{"error": err.Error(), "id": sess.ID})
		return
	}
	s.jsonResponse(w, http.StatusCreated, s.bookResponse(sess))
}

// handleSubmitTopic submits a topic to an existing idle session
func (s *Server) handleSubmitTopic(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req types.CreateBookRequest
	if err := decodeJSON(r, &req); err != nil {
		s.failure(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.failure(w, err)
		return
	}
	if err := sess.SubmitTopic(r.Context(), req.Topic); err != nil {
		s.failure(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.bookResponse(sess))
}

// handleGetBook returns a session snapshot
func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, s.bookResponse(sess))
}

// handleUpdateOutline replaces the outline of a session under review
func (s *Server) handleUpdateOutline(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req types.UpdateOutlineRequest
	if err := decodeJSON(r, &req); err != nil {
		s.failure(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.failure(w, err)
		return
	}
	if err := sess.EditOutline(req.Outline()); err != nil {
		s.failure(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.bookResponse(sess))
}

// checkCanProduce rejects production outside the outline phase before any
// response headers are committed.
func (s *Server) checkCanProduce(w http.ResponseWriter, sess *pipeline.Session) bool {
	if phase := sess.Phase(); phase != types.PhaseOutlineReady {
		s.failure(w, &pipeline.PhaseError{Op: "start production", Phase: phase})
		return false
	}
	return true
}

// handleProduce starts production in the background
func (s *Server) handleProduce(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok || !s.checkCanProduce(w, sess) {
		return
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		if _, err := sess.StartProduction(s.baseCtx); err != nil {
			s.logger.Printf("session %s: production failed: %v", sess.ID, err)
		}
	}()

	s.jsonResponse(w, http.StatusAccepted, ProduceResponse{
		ID:     sess.ID,
		Status: "started",
		Events: "/books/" + sess.ID + "/events",
	})
}

// handleProduceStream runs production and streams its events via SSE.
// Disconnecting the client aborts the run.
func (s *Server) handleProduceStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok || !s.checkCanProduce(w, sess) {
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	unsubscribe := sess.Subscribe(func(ev pipeline.ProgressEvent) {
		if err := sse.WriteEvent(string(ev.Type), ev.ForWire()); err != nil {
			s.logger.Printf("Error writing SSE event: %v", err)
		}
	})
	defer unsubscribe()

	book, err := sess.StartProduction(r.Context())
	switch {
	case err != nil:
		s.logger.Printf("session %s: streamed production failed: %v", sess.ID, err)
		sse.WriteError(err.Error())
	case book == nil:
		sse.WriteComplete(sess.ID, string(types.PhaseOutlineReady))
	default:
		sse.WriteComplete(sess.ID, string(types.PhaseComplete))
	}
}

// handleEvents follows a session over SSE until the client disconnects
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	events := make(chan pipeline.ProgressEvent, eventBuffer)
	unsubscribe := sess.Subscribe(func(ev pipeline.ProgressEvent) {
		select {
		case events <- ev.ForWire():
		default:
			s.logger.Printf("session %s: slow event subscriber, dropping %s event", sess.ID, ev.Type)
		}
	})
	defer unsubscribe()

	if err := sse.WriteEvent("snapshot", s.bookResponse(sess)); err != nil {
		return
	}

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.baseCtx.Done():
			return
		case <-keepalive.C:
			if err := sse.WriteComment("keepalive"); err != nil {
				return
			}
		case ev := <-events:
			if err := sse.WriteEvent(string(ev.Type), ev); err != nil {
				return
			}
		}
	}
}

// handleReset discards a session's work and returns it to Idle
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sess.Reset()
	s.runIDs.Delete(sess.ID)
	s.jsonResponse(w, http.StatusOK, s.bookResponse(sess))
}

// handleDeleteBook drops a session; any running work is detached
func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.sessions.Remove(id) {
		s.failure(w, &ErrSessionNotFound{ID: id})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCover serves the cover image once it exists
func (s *Server) handleCover(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	snap := sess.Snapshot()
	if snap.Book == nil || !snap.Book.Cover.IsPresent() {
		s.errorResponse(w, http.StatusNotFound, "Cover not available")
		return
	}
	w.Header().Set("Content-Type", snap.Book.Cover.MIMEType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	_, _ = w.Write(snap.Book.Cover.Image)
}

// handleDownload packages a finished book in the requested format
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	format, err := rendering.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.failure(w, &ErrValidation{Field: "format", Message: err.Error()})
		return
	}
	snap := sess.Snapshot()
	if snap.Phase != types.PhaseComplete || snap.Book == nil {
		s.failure(w, &ErrNotComplete{Phase: snap.Phase})
		return
	}

	key := fmt.Sprintf("%s:%s:%d", sess.ID, format, snap.UpdatedAt.UnixNano())
	out, cached := s.packages.Get(key)
	if !cached {
		out, err = s.packager.Package(r.Context(), *snap.Book, format)
		if err != nil {
			s.failure(w, err)
			return
		}
		s.packages.Add(key, out)
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	_, _ = w.Write(out.Data)
}

// handleListRuns lists persisted books
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "Persistence is not configured")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			s.failure(w, &ErrValidation{Field: "limit", Message: "must be between 1 and 200"})
			return
		}
		limit = n
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, runs)
}

// handleGetRun returns a persisted run and its book
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "Persistence is not configured")
		return
	}
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid run ID format")
		return
	}
	run, err := s.store.GetRun(r.Context(), runID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if run == nil {
		s.errorResponse(w, http.StatusNotFound, "Run not found")
		return
	}
	book, err := s.store.GetBook(r.Context(), runID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"run": run, "book": book})
}

// handleRunArtifact redirects to a presigned URL for a stored object
func (s *Server) handleRunArtifact(w http.ResponseWriter, r *http.Request) {
	if s.artifacts == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "Object storage is not configured")
		return
	}
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid run ID format")
		return
	}
	name := r.PathValue("name")
	switch name {
	case artifact.HTMLObject, artifact.PDFObject, artifact.MDObject,
		artifact.CoverObjectName("image/png"), artifact.CoverObjectName("image/jpeg"), artifact.CoverObjectName("image/webp"):
	default:
		s.errorResponse(w, http.StatusNotFound, "Unknown artifact")
		return
	}
	url, err := s.artifacts.GetURL(r.Context(), runID.String(), name)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Object storage error: "+err.Error())
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}
