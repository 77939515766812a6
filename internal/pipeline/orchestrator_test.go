package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/jonathan/booksmith/internal/chapter"
	"github.com/jonathan/booksmith/internal/cover"
	"github.com/jonathan/booksmith/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduce_ProgressUnitsAndFinalPercent(t *testing.T) {
	for _, k := range []int{1, 3, 8} {
		t.Run(fmt.Sprintf("%d chapters", k), func(t *testing.T) {
			rec := &recorder{}
			orch := NewOrchestrator(&fakeWriter{}, &fakePainter{}, quietLogger)

			book, err := orch.Produce(context.Background(), draftWith(k), rec.record)
			require.NoError(t, err)
			require.NotNil(t, book)

			snaps := rec.Progress()
			require.NotEmpty(t, snaps)
			increments := 0
			last := 0
			for _, s := range snaps {
				assert.Equal(t, k+1, s.TotalUnits)
				assert.GreaterOrEqual(t, s.CompletedUnits, last, "completed units never decrease")
				if s.CompletedUnits > last {
					increments += s.CompletedUnits - last
				}
				last = s.CompletedUnits
			}
			assert.Equal(t, k+1, increments)
			final := snaps[len(snaps)-1]
			assert.Equal(t, 100, final.Percent)
			assert.Equal(t, TaskDone, final.CurrentTask)
		})
	}
}

func TestProduce_ChapterOrderUnderLatencyVariance(t *testing.T) {
	writer := &fakeWriter{fn: func(_ context.Context, stub types.ChapterStub) chapter.Result {
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
		return chapter.Ok("Prose for " + stub.Title)
	}}
	rec := &recorder{}

	book, err := NewOrchestrator(writer, &fakePainter{}, quietLogger).Produce(context.Background(), draftWith(5), rec.record)
	require.NoError(t, err)

	logs := rec.Logs()
	prev := -1
	for i := 1; i <= 5; i++ {
		idx := indexOf(logs, fmt.Sprintf("Chapter %d completed.", i))
		require.GreaterOrEqual(t, idx, 0)
		assert.Greater(t, idx, prev, "chapter %d completed out of order", i)
		prev = idx
	}
	assert.Equal(t, []string{"Chapter 1", "Chapter 2", "Chapter 3", "Chapter 4", "Chapter 5"}, writer.Calls())
	for i, ch := range book.Chapters {
		assert.Equal(t, fmt.Sprintf("Prose for Chapter %d", i+1), ch.Content)
		assert.True(t, ch.Done)
		assert.False(t, ch.Generating)
	}
}

func TestProduce_LogSequence(t *testing.T) {
	rec := &recorder{}
	_, err := NewOrchestrator(&fakeWriter{}, &fakePainter{}, quietLogger).Produce(context.Background(), draftWith(1), rec.record)
	require.NoError(t, err)

	logs := rec.Logs()
	assert.Equal(t, LogStart, logs[0])
	assert.Contains(t, logs, `Writing "Chapter 1"...`)
	assert.Contains(t, logs, "Chapter 1 completed.")
	assert.Contains(t, logs, LogCoverPresent)
	assert.Less(t, indexOf(logs, `Writing "Chapter 1"...`), indexOf(logs, "Chapter 1 completed."))
}

func TestProduce_CoverLaunchedBeforeChapters(t *testing.T) {
	coverStarted := make(chan struct{})
	painter := &fakePainter{fn: func(context.Context) cover.Result {
		close(coverStarted)
		return cover.Result{Image: []byte{1}, MIMEType: "image/png"}
	}}
	writer := &fakeWriter{fn: func(_ context.Context, stub types.ChapterStub) chapter.Result {
		select {
		case <-coverStarted:
			return chapter.Ok("ok")
		case <-time.After(2 * time.Second):
			return chapter.Degraded(errors.New("cover was not running concurrently"))
		}
	}}

	book, err := NewOrchestrator(writer, painter, quietLogger).Produce(context.Background(), draftWith(2), nil)
	require.NoError(t, err)
	assert.Empty(t, book.DegradedChapters())
}

func TestProduce_CoverAwaitedAfterLastChapter(t *testing.T) {
	release := make(chan struct{})
	painter := &fakePainter{fn: func(context.Context) cover.Result {
		<-release
		return cover.Result{Image: []byte{1}, MIMEType: "image/png"}
	}}
	rec := &recorder{}
	done := make(chan *types.Book)
	go func() {
		book, _ := NewOrchestrator(&fakeWriter{}, painter, quietLogger).Produce(context.Background(), draftWith(2), rec.record)
		done <- book
	}()

	require.Eventually(t, func() bool {
		snaps := rec.Progress()
		return len(snaps) > 0 && snaps[len(snaps)-1].CurrentTask == TaskFinalize
	}, 2*time.Second, 5*time.Millisecond)
	snaps := rec.Progress()
	assert.Equal(t, 2, snaps[len(snaps)-1].CompletedUnits, "cover unit still outstanding")

	close(release)
	book := <-done
	require.NotNil(t, book)
	assert.Equal(t, types.CoverPresent, book.Cover.Status)
}

func TestProduce_CoverUnavailable(t *testing.T) {
	painter := &fakePainter{fn: func(context.Context) cover.Result {
		return cover.Result{Reason: cover.ErrNoImage}
	}}
	rec := &recorder{}

	book, err := NewOrchestrator(&fakeWriter{}, painter, quietLogger).Produce(context.Background(), draftWith(3), rec.record)
	require.NoError(t, err)

	assert.True(t, book.IsComplete())
	assert.Equal(t, types.CoverAbsent, book.Cover.Status)
	assert.Contains(t, rec.Logs(), LogCoverAbsent)
	assert.NotContains(t, rec.Logs(), LogCriticalError)
}

func TestProduce_DegradedChapterDoesNotAbort(t *testing.T) {
	writer := &fakeWriter{fn: func(_ context.Context, stub types.ChapterStub) chapter.Result {
		if stub.Title == "Chapter 2" {
			return chapter.Degraded(errors.New("safety block"))
		}
		return chapter.Ok("Prose for " + stub.Title)
	}}

	book, err := NewOrchestrator(writer, &fakePainter{}, quietLogger).Produce(context.Background(), draftWith(3), nil)
	require.NoError(t, err)

	assert.True(t, book.IsComplete())
	assert.Equal(t, chapter.Substitute, book.Chapters[1].Content)
	assert.True(t, book.Chapters[1].Degraded)
	assert.Equal(t, "Prose for Chapter 1", book.Chapters[0].Content)
	assert.Equal(t, "Prose for Chapter 3", book.Chapters[2].Content)
	assert.Equal(t, []int{2}, book.DegradedChapters())
}

func TestProduce_PanicIsFatal(t *testing.T) {
	writer := &fakeWriter{fn: func(_ context.Context, stub types.ChapterStub) chapter.Result {
		if stub.Title == "Chapter 2" {
			panic("writer exploded")
		}
		return chapter.Ok("ok")
	}}
	rec := &recorder{}

	book, err := NewOrchestrator(writer, &fakePainter{}, quietLogger).Produce(context.Background(), draftWith(3), rec.record)

	assert.Nil(t, book)
	var fatal *FatalError
	require.True(t, errors.As(err, &fatal))
	assert.Contains(t, err.Error(), "writer exploded")
	assert.Equal(t, LogCriticalError, rec.Logs()[len(rec.Logs())-1])
	assert.Equal(t, []string{"Chapter 1", "Chapter 2"}, writer.Calls())
}

func TestProduce_CoverPanicIsFatal(t *testing.T) {
	painter := &fakePainter{fn: func(context.Context) cover.Result { panic("painter exploded") }}

	_, err := NewOrchestrator(&fakeWriter{}, painter, quietLogger).Produce(context.Background(), draftWith(2), nil)

	var fatal *FatalError
	require.True(t, errors.As(err, &fatal))
	assert.Contains(t, err.Error(), "painter exploded")
}

func TestProduce_CancelledContextIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	writer := &fakeWriter{fn: func(ctx context.Context, _ types.ChapterStub) chapter.Result {
		cancel()
		return chapter.Degraded(ctx.Err())
	}}

	book, err := NewOrchestrator(writer, &fakePainter{}, quietLogger).Produce(ctx, draftWith(3), nil)

	assert.Nil(t, book)
	var fatal *FatalError
	require.True(t, errors.As(err, &fatal))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, writer.Calls(), 1)
}

func TestProduce_NoOutlineIsNoop(t *testing.T) {
	writer := &fakeWriter{}
	rec := &recorder{}

	book, err := NewOrchestrator(writer, &fakePainter{}, quietLogger).Produce(context.Background(), types.Book{Topic: "x"}, rec.record)

	assert.NoError(t, err)
	assert.Nil(t, book)
	assert.Empty(t, writer.Calls())
	assert.Empty(t, rec.Events())
}

func TestProduce_DoesNotMutateDraft(t *testing.T) {
	draft := draftWith(2)
	_, err := NewOrchestrator(&fakeWriter{}, &fakePainter{}, quietLogger).Produce(context.Background(), draft, nil)
	require.NoError(t, err)

	assert.Empty(t, draft.Chapters[0].Content)
	assert.Equal(t, types.CoverPending, draft.Cover.Status)
}

func TestProduce_DisplayDelay(t *testing.T) {
	orch := NewOrchestrator(&fakeWriter{}, &fakePainter{}, quietLogger)
	orch.DisplayDelay = 30 * time.Millisecond

	start := time.Now()
	_, err := orch.Produce(context.Background(), draftWith(1), nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestProduce_CoverEventDoesNotShareBookImage(t *testing.T) {
	var evCover *types.Cover
	book, err := NewOrchestrator(&fakeWriter{}, &fakePainter{}, quietLogger).Produce(context.Background(), draftWith(1), func(ev ProgressEvent) {
		if ev.Type == EventCover {
			evCover = ev.Cover
		}
	})
	require.NoError(t, err)
	require.NotNil(t, evCover)
	require.NotEmpty(t, evCover.Image)

	evCover.Image[0] = 0
	assert.Equal(t, byte(0x89), book.Cover.Image[0])
}

func TestProgressEvent_ForWire(t *testing.T) {
	c := types.PresentCover([]byte{1, 2, 3}, "image/png")
	ev := ProgressEvent{Type: EventCover, Cover: &c}

	wire := ev.ForWire()
	assert.Nil(t, wire.Cover.Image)
	assert.Equal(t, "image/png", wire.Cover.MIMEType)
	assert.Len(t, ev.Cover.Image, 3, "original untouched")
}
