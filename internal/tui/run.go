package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jonathan/booksmith/internal/pipeline"
	"github.com/jonathan/booksmith/internal/types"
)

// Run starts production on sess and shows it until the run returns. Quitting
// the UI early cancels the run.
func Run(ctx context.Context, sess *pipeline.Session, opts ...tea.ProgramOption) (*types.Book, error) {
	snap := sess.Snapshot()
	if snap.Book == nil {
		return nil, errors.New("session has no outline to produce")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := NewProductionModel(*snap.Book)
	model.OnCancel = cancel
	p := tea.NewProgram(model, opts...)

	unsubscribe := sess.Subscribe(func(ev pipeline.ProgressEvent) {
		p.Send(EventMsg{Event: ev.ForWire()})
	})
	defer unsubscribe()

	type result struct {
		book *types.Book
		err  error
	}
	done := make(chan result, 1)
	go func() {
		book, err := sess.StartProduction(ctx)
		p.Send(DoneMsg{Book: book, Err: err})
		done <- result{book: book, err: err}
	}()

	_, runErr := p.Run()
	cancel()
	res := <-done
	if res.err != nil {
		return nil, res.err
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return res.book, fmt.Errorf("terminal UI failed: %w", runErr)
	}
	return res.book, nil
}
