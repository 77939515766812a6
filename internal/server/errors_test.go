package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonathan/booksmith/internal/outline"
	"github.com/jonathan/booksmith/internal/pipeline"
	"github.com/jonathan/booksmith/internal/rendering"
	"github.com/jonathan/booksmith/internal/types"
)

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "book session not found: abc", (&ErrSessionNotFound{ID: "abc"}).Error())
	assert.Contains(t, (&ErrNotComplete{Phase: types.PhaseProducing}).Error(), "producing")
	assert.Equal(t, "validation error: topic - required", (&ErrValidation{Field: "topic", Message: "required"}).Error())
}

func TestHTTPStatus(t *testing.T) {
	outlineReq := types.UpdateOutlineRequest{}
	fieldErrs := outlineReq.Validate()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", &ErrSessionNotFound{ID: "x"}, http.StatusNotFound},
		{"request validation", &ErrValidation{Field: "f"}, http.StatusBadRequest},
		{"struct validation", fieldErrs, http.StatusBadRequest},
		{"empty topic", fmt.Errorf("submit: %w", types.ErrEmptyTopic), http.StatusBadRequest},
		{"outline input", &outline.ValidationError{Message: "bad"}, http.StatusBadRequest},
		{"wrong phase", &pipeline.PhaseError{Op: "start production", Phase: types.PhaseIdle}, http.StatusConflict},
		{"busy", &pipeline.BusyError{Op: "submit a topic"}, http.StatusConflict},
		{"not complete", &ErrNotComplete{Phase: types.PhaseOutlineReady}, http.StatusConflict},
		{"outline failed", &outline.GenerationError{Message: "empty"}, http.StatusBadGateway},
		{"run aborted", &pipeline.FatalError{Message: "boom"}, http.StatusBadGateway},
		{"render", &rendering.RenderError{Message: "no pdf"}, http.StatusUnprocessableEntity},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
