package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/booksmith/internal/outline"
	"github.com/jonathan/booksmith/internal/pipeline"
	"github.com/jonathan/booksmith/internal/rendering"
	"github.com/jonathan/booksmith/internal/types"
)

// ErrSessionNotFound indicates no session exists under an ID
type ErrSessionNotFound struct {
	ID string
}

func (e *ErrSessionNotFound) Error() string {
	return fmt.Sprintf("book session not found: %s", e.ID)
}

// ErrNotComplete indicates a download was requested before the book finished
type ErrNotComplete struct {
	Phase types.Phase
}

func (e *ErrNotComplete) Error() string {
	return fmt.Sprintf("book is not complete (phase %s)", e.Phase)
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		notFound     *ErrSessionNotFound
		notComplete  *ErrNotComplete
		reqErr       *ErrValidation
		fieldErrs    validator.ValidationErrors
		outlineInput *outline.ValidationError
		phaseErr     *pipeline.PhaseError
		busyErr      *pipeline.BusyError
		genErr       *outline.GenerationError
		fatalErr     *pipeline.FatalError
		renderErr    *rendering.RenderError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &reqErr), errors.As(err, &fieldErrs), errors.As(err, &outlineInput),
		errors.Is(err, types.ErrEmptyTopic):
		return http.StatusBadRequest
	case errors.As(err, &phaseErr), errors.As(err, &busyErr), errors.As(err, &notComplete):
		return http.StatusConflict
	case errors.As(err, &genErr), errors.As(err, &fatalErr):
		return http.StatusBadGateway
	case errors.As(err, &renderErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
