package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jonathan/booksmith/internal/chapter"
	"github.com/jonathan/booksmith/internal/cover"
	"github.com/jonathan/booksmith/internal/llm"
	"github.com/jonathan/booksmith/internal/llm/llmtest"
	"github.com/jonathan/booksmith/internal/outline"
	"github.com/jonathan/booksmith/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(o types.Outline, writer ChapterWriter, painter CoverPainter) *Session {
	outliner := &fakeOutliner{outline: &o}
	return NewSession(outliner, NewOrchestrator(writer, painter, quietLogger), quietLogger)
}

func TestSession_SubmitTopic(t *testing.T) {
	s := newTestSession(outlineWith(6), &fakeWriter{}, &fakePainter{})
	assert.Equal(t, types.PhaseIdle, s.Phase())

	require.NoError(t, s.SubmitTopic(context.Background(), "  urban gardening  "))

	snap := s.Snapshot()
	assert.Equal(t, types.PhaseOutlineReady, snap.Phase)
	assert.Equal(t, "urban gardening", snap.Topic)
	require.NotNil(t, snap.Book)
	assert.Len(t, snap.Book.Chapters, 6)
	assert.Equal(t, []string{"Analyzing topic: urban gardening...", "Outline generated successfully."}, messages(snap.Logs))
}

func TestSession_SubmitTopicFailureStaysIdle(t *testing.T) {
	s := NewSession(&fakeOutliner{err: &outline.GenerationError{Message: "bad payload"}},
		NewOrchestrator(&fakeWriter{}, &fakePainter{}, quietLogger), quietLogger)

	err := s.SubmitTopic(context.Background(), "bees")

	var genErr *outline.GenerationError
	require.True(t, errors.As(err, &genErr))
	snap := s.Snapshot()
	assert.Equal(t, types.PhaseIdle, snap.Phase)
	assert.Nil(t, snap.Book)
	assert.Contains(t, messages(snap.Logs), "Error generating outline.")
	assert.Contains(t, snap.LastError, "bad payload")
}

func TestSession_SubmitTopicRejectsBlankAndWrongPhase(t *testing.T) {
	s := newTestSession(outlineWith(2), &fakeWriter{}, &fakePainter{})

	assert.ErrorIs(t, s.SubmitTopic(context.Background(), " "), types.ErrEmptyTopic)

	require.NoError(t, s.SubmitTopic(context.Background(), "bees"))
	var phaseErr *PhaseError
	assert.True(t, errors.As(s.SubmitTopic(context.Background(), "wasps"), &phaseErr))
}

func TestSession_StartProductionRequiresOutline(t *testing.T) {
	s := newTestSession(outlineWith(2), &fakeWriter{}, &fakePainter{})

	_, err := s.StartProduction(context.Background())

	var phaseErr *PhaseError
	require.True(t, errors.As(err, &phaseErr))
	assert.Equal(t, types.PhaseIdle, phaseErr.Phase)
}

func TestSession_ProductionCompletes(t *testing.T) {
	s := newTestSession(outlineWith(3), &fakeWriter{}, &fakePainter{})
	require.NoError(t, s.SubmitTopic(context.Background(), "bees"))

	var phases []types.Phase
	unsubscribe := s.Subscribe(func(ev ProgressEvent) {
		if ev.Type == EventPhase {
			phases = append(phases, ev.Phase)
		}
	})
	defer unsubscribe()

	book, err := s.StartProduction(context.Background())
	require.NoError(t, err)
	require.NotNil(t, book)

	assert.Equal(t, []types.Phase{types.PhaseProducing, types.PhaseComplete}, phases)
	snap := s.Snapshot()
	assert.Equal(t, types.PhaseComplete, snap.Phase)
	assert.True(t, snap.Book.IsComplete())
	assert.Equal(t, 100, snap.Progress.Percent)
	assert.Equal(t, 4, snap.Progress.TotalUnits)

	finished, ok := s.Book()
	require.True(t, ok)
	assert.Equal(t, book.Title, finished.Title)

	// Nothing leaves Complete except reset
	_, err = s.StartProduction(context.Background())
	var phaseErr *PhaseError
	assert.True(t, errors.As(err, &phaseErr))
	assert.Error(t, s.EditOutline(outlineWith(1)))
}

func TestSession_FatalErrorReturnsToOutlineAndRetryRegenerates(t *testing.T) {
	var explode atomic.Bool
	explode.Store(true)
	writer := &fakeWriter{fn: func(_ context.Context, stub types.ChapterStub) chapter.Result {
		if stub.Title == "Chapter 2" && explode.Load() {
			panic("transient crash")
		}
		return chapter.Ok("Prose for " + stub.Title)
	}}
	s := newTestSession(outlineWith(3), writer, &fakePainter{})
	require.NoError(t, s.SubmitTopic(context.Background(), "bees"))

	_, err := s.StartProduction(context.Background())
	var fatal *FatalError
	require.True(t, errors.As(err, &fatal))

	snap := s.Snapshot()
	assert.Equal(t, types.PhaseOutlineReady, snap.Phase)
	for _, ch := range snap.Book.Chapters {
		assert.Empty(t, ch.Content, "partial content must be discarded")
	}
	assert.Contains(t, messages(snap.Logs), LogCriticalError)

	explode.Store(false)
	book, err := s.StartProduction(context.Background())
	require.NoError(t, err)
	assert.True(t, book.IsComplete())
	assert.Equal(t, []string{"Chapter 1", "Chapter 2", "Chapter 1", "Chapter 2", "Chapter 3"}, writer.Calls())
}

func TestSession_EditOutline(t *testing.T) {
	s := newTestSession(outlineWith(6), &fakeWriter{}, &fakePainter{})
	require.NoError(t, s.SubmitTopic(context.Background(), "bees"))

	edited := outlineWith(2)
	edited.Title = "Busy Bees"
	require.NoError(t, s.EditOutline(edited))

	snap := s.Snapshot()
	assert.Equal(t, "Busy Bees", snap.Book.Title)
	assert.Len(t, snap.Book.Chapters, 2)
	assert.Equal(t, "bees", snap.Book.Topic)

	assert.Error(t, s.EditOutline(types.Outline{Title: "No chapters", TargetAudience: "x"}))
}

func TestSession_EditOutlineRejectsBlankFields(t *testing.T) {
	s := newTestSession(outlineWith(3), &fakeWriter{}, &fakePainter{})
	require.NoError(t, s.SubmitTopic(context.Background(), "bees"))

	tests := []struct {
		name   string
		mutate func(o *types.Outline)
	}{
		{name: "blank title", mutate: func(o *types.Outline) { o.Title = "   " }},
		{name: "blank audience", mutate: func(o *types.Outline) { o.TargetAudience = " \t" }},
		{name: "blank chapter title", mutate: func(o *types.Outline) { o.Chapters[1].Title = " " }},
		{name: "empty chapter description", mutate: func(o *types.Outline) { o.Chapters[0].Description = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edited := outlineWith(2)
			tt.mutate(&edited)
			assert.Error(t, s.EditOutline(edited))
		})
	}

	snap := s.Snapshot()
	assert.Equal(t, "Green Thumbs", snap.Book.Title, "rejected edits leave the outline untouched")
	assert.Len(t, snap.Book.Chapters, 3)

	padded := outlineWith(1)
	padded.Title = "  Busy Bees \n"
	padded.Chapters[0].Description = " Part 1 "
	require.NoError(t, s.EditOutline(padded))
	snap = s.Snapshot()
	assert.Equal(t, "Busy Bees", snap.Book.Title)
	assert.Equal(t, "Part 1", snap.Book.Chapters[0].Description)
}

func TestSession_ResetFromAnyPhase(t *testing.T) {
	s := newTestSession(outlineWith(2), &fakeWriter{}, &fakePainter{})
	s.Reset()
	assert.Equal(t, types.PhaseIdle, s.Phase())

	require.NoError(t, s.SubmitTopic(context.Background(), "bees"))
	_, err := s.StartProduction(context.Background())
	require.NoError(t, err)

	s.Reset()

	snap := s.Snapshot()
	assert.Equal(t, types.PhaseIdle, snap.Phase)
	assert.Nil(t, snap.Book)
	assert.Empty(t, snap.Logs)
	assert.Equal(t, types.ProgressSnapshot{}, snap.Progress)
	_, ok := s.Book()
	assert.False(t, ok)

	require.NoError(t, s.SubmitTopic(context.Background(), "wasps"))
}

func TestSession_ResetDuringProductionDetachesRun(t *testing.T) {
	var s *Session
	writer := &fakeWriter{fn: func(_ context.Context, stub types.ChapterStub) chapter.Result {
		if stub.Title == "Chapter 1" {
			go s.Reset()
		}
		return chapter.Ok("ok")
	}}
	s = newTestSession(outlineWith(1), writer, &fakePainter{})
	require.NoError(t, s.SubmitTopic(context.Background(), "bees"))

	resetSeen := make(chan struct{})
	var once atomic.Bool
	s.Subscribe(func(ev ProgressEvent) {
		if ev.Type == EventPhase && ev.Phase == types.PhaseIdle && once.CompareAndSwap(false, true) {
			close(resetSeen)
		}
	})

	_, _ = s.StartProduction(context.Background())
	<-resetSeen

	assert.Equal(t, types.PhaseIdle, s.Phase())
}

func TestSession_StaleOutlineKeepsNewerSubmissionBusy(t *testing.T) {
	o := outlineWith(2)
	outliner := &gatedOutliner{
		outline: &o,
		entered: make(chan string, 3),
		gates: map[string]chan struct{}{
			"ants":  make(chan struct{}),
			"bees":  make(chan struct{}),
			"wasps": make(chan struct{}),
		},
	}
	close(outliner.gates["wasps"])
	s := NewSession(outliner, NewOrchestrator(&fakeWriter{}, &fakePainter{}, quietLogger), quietLogger)

	first := make(chan error, 1)
	go func() { first <- s.SubmitTopic(context.Background(), "ants") }()
	require.Equal(t, "ants", <-outliner.entered)
	s.Reset()

	second := make(chan error, 1)
	go func() { second <- s.SubmitTopic(context.Background(), "bees") }()
	require.Equal(t, "bees", <-outliner.entered)

	close(outliner.gates["ants"])
	assert.Error(t, <-first)

	var busy *BusyError
	assert.ErrorAs(t, s.SubmitTopic(context.Background(), "wasps"), &busy)

	close(outliner.gates["bees"])
	require.NoError(t, <-second)
	snap := s.Snapshot()
	assert.Equal(t, types.PhaseOutlineReady, snap.Phase)
	assert.Equal(t, "bees", snap.Book.Topic)
}

func TestSession_SnapshotsAreCopies(t *testing.T) {
	s := newTestSession(outlineWith(2), &fakeWriter{}, &fakePainter{})
	require.NoError(t, s.SubmitTopic(context.Background(), "bees"))

	snap := s.Snapshot()
	snap.Book.Chapters[0].Title = "mutated"
	snap.Logs[0].Message = "mutated"

	again := s.Snapshot()
	assert.Equal(t, "Chapter 1", again.Book.Chapters[0].Title)
	assert.NotEqual(t, "mutated", again.Logs[0].Message)
}

// The worked example: a gardening topic yields a six-chapter book that
// completes with content in every chapter.
func TestSession_EndToEndWithSynthesizers(t *testing.T) {
	outlinePayload := `{"title": "Green Thumbs", "targetAudience": "City dwellers new to gardening", "chapters": [` +
		strings.Join([]string{
			`{"title": "Why Grow in the City", "description": "Benefits"}`,
			`{"title": "Light and Space", "description": "Balconies and windowsills"}`,
			`{"title": "Containers and Soil", "description": "Pots and potting mix"}`,
			`{"title": "Choosing Plants", "description": "Herbs and greens"}`,
			`{"title": "Watering Wisely", "description": "Schedules"}`,
			`{"title": "Harvest and Beyond", "description": "Seasons"}`,
		}, ",") + `]}`

	var chapterCalls atomic.Int32
	client := &llmtest.MockClient{
		GenerateJSONFunc: func(context.Context, string, *llm.Schema, llm.ModelTier) (string, error) {
			return outlinePayload, nil
		},
		GenerateContentFunc: func(_ context.Context, prompt string, _ llm.ModelTier) (string, error) {
			n := chapterCalls.Add(1)
			return fmt.Sprintf("Chapter prose number %d.", n), nil
		},
		GenerateImageFunc: func(context.Context, string, llm.ModelTier) (*llm.Image, error) {
			return &llm.Image{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}, nil
		},
	}

	s := NewSession(
		outline.NewSynthesizer(client, quietLogger),
		NewOrchestrator(chapter.NewWriter(client), cover.NewPainter(client), quietLogger),
		quietLogger,
	)

	require.NoError(t, s.SubmitTopic(context.Background(), "urban gardening for beginners"))
	snap := s.Snapshot()
	assert.Equal(t, "Green Thumbs", snap.Book.Title)
	require.Len(t, snap.Book.Chapters, 6)

	book, err := s.StartProduction(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.PhaseComplete, s.Phase())
	assert.Len(t, book.Chapters, 6)
	for _, ch := range book.Chapters {
		assert.NotEmpty(t, ch.Content)
		assert.False(t, ch.Degraded)
	}
	assert.Equal(t, types.CoverPresent, book.Cover.Status)
	assert.Equal(t, int32(6), chapterCalls.Load())
}

func messages(entries []types.LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}
