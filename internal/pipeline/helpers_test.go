package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/jonathan/booksmith/internal/chapter"
	"github.com/jonathan/booksmith/internal/cover"
	"github.com/jonathan/booksmith/internal/types"
)

var quietLogger = log.New(io.Discard, "", 0)

type fakeWriter struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, stub types.ChapterStub) chapter.Result
}

func (w *fakeWriter) Write(ctx context.Context, _ string, stub types.ChapterStub, _ string) chapter.Result {
	w.mu.Lock()
	w.calls = append(w.calls, stub.Title)
	w.mu.Unlock()
	if w.fn != nil {
		return w.fn(ctx, stub)
	}
	return chapter.Ok("Prose for " + stub.Title)
}

func (w *fakeWriter) Calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.calls...)
}

type fakePainter struct {
	fn func(ctx context.Context) cover.Result
}

func (p *fakePainter) Paint(ctx context.Context, _, _ string) cover.Result {
	if p.fn != nil {
		return p.fn(ctx)
	}
	return cover.Result{Image: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png"}
}

type fakeOutliner struct {
	outline *types.Outline
	err     error
}

func (o *fakeOutliner) Synthesize(context.Context, string) (*types.Outline, error) {
	return o.outline, o.err
}

type recorder struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (r *recorder) record(ev ProgressEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) Events() []ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ProgressEvent(nil), r.events...)
}

func (r *recorder) Logs() []string {
	var out []string
	for _, ev := range r.Events() {
		if ev.Type == EventLog {
			out = append(out, ev.Message)
		}
	}
	return out
}

func (r *recorder) Progress() []types.ProgressSnapshot {
	var out []types.ProgressSnapshot
	for _, ev := range r.Events() {
		if ev.Type == EventProgress {
			out = append(out, *ev.Progress)
		}
	}
	return out
}

func outlineWith(n int) types.Outline {
	o := types.Outline{Title: "Green Thumbs", TargetAudience: "Urban beginners"}
	for i := 1; i <= n; i++ {
		o.Chapters = append(o.Chapters, types.ChapterStub{
			Title:       fmt.Sprintf("Chapter %d", i),
			Description: fmt.Sprintf("Part %d", i),
		})
	}
	return o
}

func draftWith(n int) types.Book {
	return types.NewBook("urban gardening for beginners", outlineWith(n))
}

func indexOf(items []string, want string) int {
	for i, item := range items {
		if item == want {
			return i
		}
	}
	return -1
}

// gatedOutliner blocks each call until the gate for its topic is closed.
type gatedOutliner struct {
	outline *types.Outline
	entered chan string
	gates   map[string]chan struct{}
}

func (o *gatedOutliner) Synthesize(_ context.Context, topic string) (*types.Outline, error) {
	o.entered <- topic
	<-o.gates[topic]
	out := *o.outline
	return &out, nil
}
