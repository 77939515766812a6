package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/booksmith/internal/artifact"
	"github.com/jonathan/booksmith/internal/chapter"
	"github.com/jonathan/booksmith/internal/cover"
	"github.com/jonathan/booksmith/internal/db"
	"github.com/jonathan/booksmith/internal/llm"
	"github.com/jonathan/booksmith/internal/llm/llmtest"
	"github.com/jonathan/booksmith/internal/outline"
	"github.com/jonathan/booksmith/internal/pipeline"
	"github.com/jonathan/booksmith/internal/rendering"
	"github.com/jonathan/booksmith/internal/server/ratelimit"
	"github.com/jonathan/booksmith/internal/types"
)

var quietLogger = log.New(io.Discard, "", 0)

const gardeningOutline = `{"title": "Green Thumbs", "targetAudience": "City dwellers", "chapters": [
	{"title": "Why Grow in the City", "description": "Benefits"},
	{"title": "Light and Space", "description": "Balconies"},
	{"title": "Containers and Soil", "description": "Pots"},
	{"title": "Choosing Plants", "description": "Herbs"},
	{"title": "Watering Wisely", "description": "Schedules"}
]}`

// mockModel returns a client that answers the outline, chapter and cover
// prompts. gate, when non-nil, blocks every chapter call until closed.
func mockModel(gate <-chan struct{}) (*llmtest.MockClient, *atomic.Int32) {
	var chapters atomic.Int32
	client := &llmtest.MockClient{
		GenerateJSONFunc: func(context.Context, string, *llm.Schema, llm.ModelTier) (string, error) {
			return gardeningOutline, nil
		},
		GenerateContentFunc: func(ctx context.Context, _ string, _ llm.ModelTier) (string, error) {
			if gate != nil {
				select {
				case <-gate:
				case <-ctx.Done():
					return "", ctx.Err()
				}
			}
			n := chapters.Add(1)
			return fmt.Sprintf("Prose for chapter call %d.", n), nil
		},
		GenerateImageFunc: func(context.Context, string, llm.ModelTier) (*llm.Image, error) {
			return &llm.Image{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}, nil
		},
	}
	return client, &chapters
}

func sessionFactory(client llm.Client) SessionFactory {
	return func() *pipeline.Session {
		return pipeline.NewSession(
			outline.NewSynthesizer(client, quietLogger),
			pipeline.NewOrchestrator(chapter.NewWriter(client), cover.NewPainter(client), quietLogger),
			quietLogger,
		)
	}
}

type fakePDF struct{}

func (fakePDF) RenderPDF(_ context.Context, html string) ([]byte, error) {
	return []byte("%PDF-1.7 " + fmt.Sprint(len(html))), nil
}

// fakeStore records saved books in memory.
type fakeStore struct {
	mu    sync.Mutex
	runs  map[uuid.UUID]*db.Run
	books map[uuid.UUID]types.Book
	keys  map[string]string
	saved chan uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:  make(map[uuid.UUID]*db.Run),
		books: make(map[uuid.UUID]types.Book),
		keys:  make(map[string]string),
		saved: make(chan uuid.UUID, 8),
	}
}

func (f *fakeStore) SaveBook(_ context.Context, in db.SaveBookInput) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.runs[id] = &db.Run{ID: id, SessionID: in.SessionID, Title: in.Book.Title, Topic: in.Book.Topic,
		ChapterCount: len(in.Book.Chapters), Status: db.RunStatusCompleted, CoverStatus: string(in.Book.Cover.Status)}
	b := in.Book.Clone()
	b.Cover.Image = nil
	f.books[id] = b
	f.saved <- id
	return id, nil
}

func (f *fakeStore) SaveObjectKey(_ context.Context, runID uuid.UUID, step, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[runID.String()+"/"+step] = key
	return nil
}

func (f *fakeStore) GetRun(_ context.Context, runID uuid.UUID) (*db.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs[runID], nil
}

func (f *fakeStore) ListRuns(_ context.Context, _ int) ([]db.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.Run
	for _, r := range f.runs {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeStore) GetBook(_ context.Context, runID uuid.UUID) (*types.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.books[runID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f *fakeStore) Close() {}

func (f *fakeStore) key(runID uuid.UUID, step string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[runID.String()+"/"+step]
}

// fakeObjects is an in-memory artifact.Store.
type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) Put(_ context.Context, runID, path, _ string, content []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := "runs/" + runID + "/" + path
	f.objects[key] = content
	return key, nil
}

func (f *fakeObjects) Get(_ context.Context, runID, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects["runs/"+runID+"/"+path]
	if !ok {
		return nil, artifact.ErrNotFound
	}
	return data, nil
}

func (f *fakeObjects) List(_ context.Context, runID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.objects {
		if strings.HasPrefix(k, "runs/"+runID+"/") {
			out = append(out, strings.TrimPrefix(k, "runs/"+runID+"/"))
		}
	}
	return out, nil
}

func (f *fakeObjects) GetURL(_ context.Context, runID, path string) (string, error) {
	return "https://objects.example.com/runs/" + runID + "/" + path + "?sig=x", nil
}

// fakePublisher collects published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []pipeline.ProgressEvent
	closed bool
}

func (f *fakePublisher) Publish(_ context.Context, ev pipeline.ProgressEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePublisher) types() []pipeline.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]pipeline.EventType, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Type
	}
	return out
}

type testOptions struct {
	gate      <-chan struct{}
	store     BookStore
	objects   artifact.Store
	events    EventPublisher
	rateLimit *ratelimit.Config
	configure func(*Config)
}

func newTestServer(t *testing.T, opts testOptions) *Server {
	t.Helper()
	client, _ := mockModel(opts.gate)
	rl := opts.rateLimit
	if rl == nil {
		rl = &ratelimit.Config{Enabled: false}
	}
	cfg := Config{
		NewSession: sessionFactory(client),
		Packager:   &rendering.Packager{PDF: fakePDF{}},
		Store:      opts.store,
		Artifacts:  opts.objects,
		Events:     opts.events,
		RateLimit:  rl,
		Logger:     quietLogger,
	}
	if opts.configure != nil {
		opts.configure(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 10*time.Millisecond)
}
