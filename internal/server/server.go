// Package server provides the HTTP API for generating books: topic to
// outline, outline review, streamed production and packaged downloads.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jonathan/booksmith/internal/artifact"
	"github.com/jonathan/booksmith/internal/config"
	"github.com/jonathan/booksmith/internal/db"
	"github.com/jonathan/booksmith/internal/pipeline"
	"github.com/jonathan/booksmith/internal/rendering"
	"github.com/jonathan/booksmith/internal/server/middleware"
	"github.com/jonathan/booksmith/internal/server/ratelimit"
	"github.com/jonathan/booksmith/internal/types"
)

const (
	defaultSessionLimit = 256
	packageCacheSize    = 64
	outboxSize          = 1024
	persistTimeout      = 2 * time.Minute
)

// SessionFactory creates a fresh idle session wired to the generation stack.
type SessionFactory func() *pipeline.Session

// BookStore persists finished books. *db.DB implements it.
type BookStore interface {
	SaveBook(ctx context.Context, in db.SaveBookInput) (uuid.UUID, error)
	SaveObjectKey(ctx context.Context, runID uuid.UUID, step, key string) error
	GetRun(ctx context.Context, runID uuid.UUID) (*db.Run, error)
	ListRuns(ctx context.Context, limit int) ([]db.Run, error)
	GetBook(ctx context.Context, runID uuid.UUID) (*types.Book, error)
	Close()
}

// EventPublisher fans events out to other processes. *notify.RedisPublisher
// implements it.
type EventPublisher interface {
	Publish(ctx context.Context, ev pipeline.ProgressEvent) error
	Close() error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *log.Logger

	newSession SessionFactory
	sessions   *lru.Cache[string, *pipeline.Session]
	packages   *lru.Cache[string, *rendering.Artifact]
	packager   *rendering.Packager
	runIDs     sync.Map // session ID -> persisted run ID

	store     BookStore
	artifacts artifact.Store
	events    EventPublisher
	outbox    chan pipeline.ProgressEvent

	rateLimiter *ratelimit.Limiter
	jwtService  *JWTService

	baseCtx    context.Context
	cancelBase context.CancelFunc
	background sync.WaitGroup
	closeOnce  sync.Once
}

// Config holds server configuration. Only NewSession is required; every
// persistence and fan-out dependency is optional.
type Config struct {
	Port         int
	NewSession   SessionFactory
	Packager     *rendering.Packager
	Store        BookStore
	Artifacts    artifact.Store
	Events       EventPublisher
	JWT          *config.JWTConfig
	RateLimit    *ratelimit.Config
	SessionLimit int
	Logger       *log.Logger
}

// New creates a new server instance
func New(cfg Config) (*Server, error) {
	if cfg.NewSession == nil {
		return nil, fmt.Errorf("server requires a session factory")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	limit := cfg.SessionLimit
	if limit <= 0 {
		limit = defaultSessionLimit
	}
	packager := cfg.Packager
	if packager == nil {
		packager = rendering.NewPackager()
	}

	s := &Server{
		logger:     logger,
		newSession: cfg.NewSession,
		packager:   packager,
		store:      cfg.Store,
		artifacts:  cfg.Artifacts,
		events:     cfg.Events,
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	sessions, err := lru.NewWithEvict[string, *pipeline.Session](limit, func(id string, sess *pipeline.Session) {
		// Detach any in-flight work of an evicted or deleted session
		sess.Reset()
		s.runIDs.Delete(id)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	s.sessions = sessions

	packages, err := lru.New[string, *rendering.Artifact](packageCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create package cache: %w", err)
	}
	s.packages = packages

	rlConfig := cfg.RateLimit
	if rlConfig == nil {
		rlConfig = ratelimit.LoadConfig()
	}
	s.rateLimiter = ratelimit.NewLimiter(rlConfig)

	if cfg.JWT != nil {
		s.jwtService = NewJWTService(cfg.JWT)
	}

	if s.events != nil {
		s.outbox = make(chan pipeline.ProgressEvent, outboxSize)
		s.background.Add(1)
		go s.forwardEvents()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Book sessions
	s.route(mux, "GET /books", s.handleListBooks)
	s.route(mux, "POST /books", s.handleCreateBook)
	s.route(mux, "GET /books/{id}", s.handleGetBook)
	s.route(mux, "DELETE /books/{id}", s.handleDeleteBook)
	s.route(mux, "POST /books/{id}/topic", s.handleSubmitTopic)
	s.route(mux, "PUT /books/{id}/outline", s.handleUpdateOutline)
	s.route(mux, "POST /books/{id}/produce", s.handleProduce)
	s.route(mux, "POST /books/{id}/produce/stream", s.handleProduceStream)
	s.route(mux, "GET /books/{id}/events", s.handleEvents)
	s.route(mux, "POST /books/{id}/reset", s.handleReset)
	s.route(mux, "GET /books/{id}/cover", s.handleCover)
	s.route(mux, "GET /books/{id}/download", s.handleDownload)

	// Persisted runs
	s.route(mux, "GET /runs", s.handleListRuns)
	s.route(mux, "GET /runs/{id}", s.handleGetRun)
	s.route(mux, "GET /runs/{id}/artifacts/{name}", s.handleRunArtifact)

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(mux)))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE streams last as long as a production run
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// route registers a handler, behind bearer auth when a JWT secret is configured.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	if s.jwtService == nil {
		mux.HandleFunc(pattern, h)
		return
	}
	mux.Handle(pattern, middleware.AuthMiddleware(s.jwtService.AsTokenValidator())(h))
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for requests and blocks until SIGINT or SIGTERM.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		s.Close()
		return fmt.Errorf("server error: %w", err)
	}
	s.logger.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops accepting requests, aborts running productions and waits for
// background persistence to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.Close()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Println("Server stopped")
	return nil
}

// Close releases background resources. Safe to call more than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.cancelBase()
		s.background.Wait()
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		if s.events != nil {
			if err := s.events.Close(); err != nil {
				s.logger.Printf("closing event publisher: %v", err)
			}
		}
		if s.store != nil {
			s.store.Close()
		}
	})
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.logger.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		s.logger.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"sessions":     s.sessions.Len(),
		"persistence":  s.store != nil,
		"object_store": s.artifacts != nil,
		"fanout":       s.events != nil,
		"auth":         s.jwtService != nil,
	})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// failure writes err with the status HTTPStatus assigns it.
func (s *Server) failure(w http.ResponseWriter, err error) {
	s.errorResponse(w, HTTPStatus(err), err.Error())
}

// extractClientID extracts the client identifier from the request.
// This uses the IP address from RemoteAddr; X-Forwarded-For is not trusted.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, info ratelimit.Info) {
	response := map[string]interface{}{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}

	if info.RetryAfter > 0 {
		seconds := int(info.RetryAfter.Seconds()) + 1
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	}

	s.logger.Printf("[rate-limit] Rate limit exceeded: Limit=%d Remaining=%d Reset=%s",
		info.Limit, info.Remaining, info.ResetTime.Format(time.RFC3339))

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
