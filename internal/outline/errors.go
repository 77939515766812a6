package outline

import "fmt"

// GenerationError reports that no usable outline could be produced, either
// because the service call failed or because its payload was unusable.
type GenerationError struct {
	Message string
	Cause   error
}

func (e *GenerationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("outline generation failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("outline generation failed: %s", e.Message)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// ValidationError represents invalid input rejected before any service call
type ValidationError struct {
	Message string
	Field   string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}
