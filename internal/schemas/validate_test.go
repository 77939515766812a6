package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validOutline = `{
  "title": "Green Thumbs",
  "targetAudience": "Apartment dwellers new to gardening",
  "chapters": [
    {"title": "Why Grow in the City", "description": "Benefits"},
    {"title": "Soil Basics", "description": "Containers and compost"}
  ]
}`

func TestValidateOutline(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{name: "valid", payload: validOutline},
		{name: "missing title", payload: `{"targetAudience": "x", "chapters": [{"title": "a", "description": "b"}]}`, wantErr: true},
		{name: "empty title", payload: `{"title": "", "targetAudience": "x", "chapters": [{"title": "a", "description": "b"}]}`, wantErr: true},
		{name: "empty chapters", payload: `{"title": "t", "targetAudience": "x", "chapters": []}`, wantErr: true},
		{name: "chapters wrong type", payload: `{"title": "t", "targetAudience": "x", "chapters": "many"}`, wantErr: true},
		{name: "chapter missing title", payload: `{"title": "t", "targetAudience": "x", "chapters": [{"description": "b"}]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutline(tt.payload)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var validationErr *ValidationError
			require.True(t, errors.As(err, &validationErr), "expected ValidationError, got %v", err)
			assert.NotEmpty(t, validationErr.Errors)
		})
	}
}

func TestValidateOutline_MalformedJSON(t *testing.T) {
	err := ValidateOutline(`{"title": `)
	require.Error(t, err)
	var loadErr *SchemaLoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestValidateBook(t *testing.T) {
	valid := `{"title": "Green Thumbs", "topic": "urban gardening", "target_audience": "Beginners",
	  "chapters": [{"title": "Soil", "content": "prose"}],
	  "cover": {"status": "absent", "reason": "no image"}}`
	assert.NoError(t, ValidateBook(valid))

	pending := `{"title": "Green Thumbs", "topic": "urban gardening", "target_audience": "Beginners",
	  "chapters": [{"title": "Soil", "content": "prose"}],
	  "cover": {"status": "pending"}}`
	assert.Error(t, ValidateBook(pending))

	unwritten := `{"title": "Green Thumbs", "topic": "urban gardening", "target_audience": "Beginners",
	  "chapters": [{"title": "Soil", "content": ""}],
	  "cover": {"status": "absent"}}`
	assert.Error(t, ValidateBook(unwritten))
}

func TestSchema_Unknown(t *testing.T) {
	_, err := Schema("nope.schema.json")
	var loadErr *SchemaLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, "nope.schema.json", loadErr.Path)
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Errors: []FieldError{{Field: "title", Message: "is required"}}}
	assert.Contains(t, err.Error(), "1. title: is required")
}
