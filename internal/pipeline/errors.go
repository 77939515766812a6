package pipeline

import (
	"fmt"

	"github.com/jonathan/booksmith/internal/types"
)

// FatalError aborts a production run. The session returns to the outline
// phase and generated content is discarded.
type FatalError struct {
	Message string
	Cause   error
}

func (e *FatalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("generation aborted: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("generation aborted: %s", e.Message)
}

func (e *FatalError) Unwrap() error {
	return e.Cause
}

// PhaseError reports an operation attempted in the wrong phase.
type PhaseError struct {
	Op    string
	Phase types.Phase
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("cannot %s while session is %s", e.Op, e.Phase)
}

// BusyError reports an operation rejected because another one is in flight.
type BusyError struct {
	Op string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("cannot %s: another operation is in progress", e.Op)
}
