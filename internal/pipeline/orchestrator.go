// Package pipeline drives book production: it schedules chapter and cover
// synthesis, reports progress, and owns the session phase machine.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/booksmith/internal/chapter"
	"github.com/jonathan/booksmith/internal/cover"
	"github.com/jonathan/booksmith/internal/types"
)

// Task labels reported through progress snapshots
const (
	TaskCover    = "Designing cover art..."
	TaskFinalize = "Finalizing book layout..."
	TaskDone     = "Done!"
)

// Log messages written to the event log
const (
	LogStart         = "Starting creative process..."
	LogCoverPresent  = "Cover art generated."
	LogCoverAbsent   = "Cover art skipped (unavailable)."
	LogCriticalError = "Critical error during generation."
)

// ChapterWriter writes one chapter. Implementations never fail; problems
// come back as degraded results.
type ChapterWriter interface {
	Write(ctx context.Context, bookTitle string, stub types.ChapterStub, audience string) chapter.Result
}

// CoverPainter paints one cover. Absence is reported in the result.
type CoverPainter interface {
	Paint(ctx context.Context, title, topic string) cover.Result
}

// Orchestrator runs production for one outline at a time.
type Orchestrator struct {
	writer  ChapterWriter
	painter CoverPainter
	logger  *log.Logger
	// DisplayDelay is a cosmetic pause after "Done!" before the run returns.
	DisplayDelay time.Duration
}

// NewOrchestrator creates an orchestrator. A nil logger uses log.Default().
func NewOrchestrator(writer ChapterWriter, painter CoverPainter, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	return &Orchestrator{writer: writer, painter: painter, logger: logger}
}

// run holds the per-invocation state of Produce.
type run struct {
	id       string
	progress *types.Progress

	mu     sync.Mutex
	emit   ProgressCallback
	closed bool
}

func (r *run) send(ev ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.emit == nil {
		return
	}
	ev.RunID = r.id
	ev.Time = time.Now()
	r.emit(ev)
}

// close stops delivery, optionally after one final log message. Late events
// from the cover goroutine are dropped.
func (r *run) close(final string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	if final != "" && r.emit != nil {
		r.emit(ProgressEvent{Type: EventLog, Message: final, RunID: r.id, Time: time.Now()})
	}
}

func (r *run) log(msg string) {
	r.send(ProgressEvent{Type: EventLog, Message: msg})
}

func (r *run) progressed(snap types.ProgressSnapshot) {
	r.send(ProgressEvent{Type: EventProgress, Message: snap.CurrentTask, Progress: &snap})
}

func (r *run) chapter(i int, rec types.ChapterRecord) {
	r.send(ProgressEvent{Type: EventChapter, Chapter: &ChapterUpdate{Index: i, Record: rec}})
}

// Produce fills every chapter of draft and resolves its cover. Chapters are
// written strictly in order while the cover is painted concurrently; the
// cover is joined only after the last chapter.
//
// A draft without title, topic or chapters is a no-op and returns (nil, nil).
// Degraded chapters and absent covers do not fail the run. Panics from
// collaborators and context cancellation abort it with a *FatalError; the
// caller must then discard any content it accumulated from events.
func (o *Orchestrator) Produce(ctx context.Context, draft types.Book, emit ProgressCallback) (result *types.Book, err error) {
	if !draft.HasOutline() {
		return nil, nil
	}

	book := draft.Clone()
	book.ResetContent()

	r := &run{
		id:       uuid.NewString(),
		progress: types.NewProgress(len(book.Chapters) + 1),
		emit:     emit,
	}

	coverCtx, cancelCover := context.WithCancel(ctx)
	defer cancelCover()

	var g errgroup.Group
	coverStarted := false

	defer func() {
		if rec := recover(); rec != nil {
			err = &FatalError{Message: "unexpected failure", Cause: fmt.Errorf("%v", rec)}
		}
		if err == nil {
			return
		}
		result = nil
		o.logger.Printf("run %s aborted: %v", r.id, err)
		r.close(LogCriticalError)
		cancelCover()
		if coverStarted {
			_ = g.Wait()
		}
	}()

	o.logger.Printf("run %s: producing %q with %d chapters", r.id, book.Title, len(book.Chapters))
	r.log(LogStart)
	r.progressed(r.progress.SetTask(TaskCover))

	var painted cover.Result
	coverStarted = true
	g.Go(func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("cover painter panicked: %v", rec)
			}
		}()
		painted = o.painter.Paint(coverCtx, book.Title, book.Topic)
		if painted.Present() {
			r.log(LogCoverPresent)
		} else {
			o.logger.Printf("run %s: cover absent: %v", r.id, painted.Reason)
			r.log(LogCoverAbsent)
		}
		return nil
	})

	for i := range book.Chapters {
		if err := ctx.Err(); err != nil {
			return nil, &FatalError{Message: "context ended before chapter " + fmt.Sprint(i+1), Cause: err}
		}

		ch := &book.Chapters[i]
		r.progressed(r.progress.SetTask(fmt.Sprintf("Writing Chapter %d: %s", i+1, ch.Title)))
		ch.Generating = true
		r.chapter(i, *ch)
		r.log(fmt.Sprintf("Writing \"%s\"...", ch.Title))

		res, err := o.writeChapter(ctx, book, i)
		if err != nil {
			return nil, err
		}

		ch.Content = res.Content
		ch.Degraded = res.Degraded
		ch.Generating = false
		ch.Done = true
		if res.Degraded {
			o.logger.Printf("run %s: chapter %d degraded: %v", r.id, i+1, res.Reason)
		}
		r.progressed(r.progress.Advance())
		r.chapter(i, *ch)
		r.log(fmt.Sprintf("Chapter %d completed.", i+1))
	}

	r.progressed(r.progress.SetTask(TaskFinalize))
	if err := g.Wait(); err != nil {
		return nil, &FatalError{Message: "cover synthesis failed", Cause: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &FatalError{Message: "context ended while awaiting cover", Cause: err}
	}

	book.Cover = painted.Cover()
	c := book.Cover.Clone()
	r.send(ProgressEvent{Type: EventCover, Cover: &c})
	r.progress.Finish()
	r.progressed(r.progress.SetTask(TaskDone))

	if o.DisplayDelay > 0 {
		select {
		case <-time.After(o.DisplayDelay):
		case <-ctx.Done():
		}
	}

	r.close("")
	o.logger.Printf("run %s: complete (%d degraded chapters, cover %s)", r.id, len(book.DegradedChapters()), book.Cover.Status)
	return &book, nil
}

// writeChapter calls the writer and converts the abnormal outcomes into
// fatal errors. A degraded result caused by cancellation is also fatal, since
// it reflects the environment and not the chapter.
func (o *Orchestrator) writeChapter(ctx context.Context, book types.Book, i int) (res chapter.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &FatalError{Message: fmt.Sprintf("chapter %d writer panicked", i+1), Cause: fmt.Errorf("%v", rec)}
		}
	}()

	ch := book.Chapters[i]
	stub := types.ChapterStub{Title: ch.Title, Description: ch.Description}
	res = o.writer.Write(ctx, book.Title, stub, book.TargetAudience)
	if res.Degraded && ctx.Err() != nil {
		return res, &FatalError{Message: fmt.Sprintf("context ended during chapter %d", i+1), Cause: ctx.Err()}
	}
	return res, nil
}
