package types

import (
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// newValidator returns a validator that also knows the notblank tag, which
// rejects whitespace-only strings.
func newValidator() *validator.Validate {
	validate := validator.New()
	_ = validate.RegisterValidation("notblank", validators.NotBlank)
	return validate
}
