package outline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"testing"

	"github.com/jonathan/booksmith/internal/llm"
	"github.com/jonathan/booksmith/internal/llm/llmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outlineJSON(chapters int) string {
	parts := make([]string, chapters)
	for i := range parts {
		parts[i] = fmt.Sprintf(`{"title": "Chapter %d", "description": "About part %d"}`, i+1, i+1)
	}
	return fmt.Sprintf(`{"title": "Green Thumbs", "targetAudience": "Urban beginners", "chapters": [%s]}`,
		strings.Join(parts, ","))
}

func TestSynthesize_Success(t *testing.T) {
	var gotSchema *llm.Schema
	client := &llmtest.MockClient{
		GenerateJSONFunc: func(_ context.Context, prompt string, schema *llm.Schema, tier llm.ModelTier) (string, error) {
			gotSchema = schema
			assert.Equal(t, llm.TierStandard, tier)
			assert.Contains(t, prompt, `"urban gardening for beginners"`)
			assert.Contains(t, prompt, "between 5 to 8 chapters")
			return outlineJSON(6), nil
		},
	}

	outline, err := NewSynthesizer(client, nil).Synthesize(context.Background(), "  urban gardening for beginners ")
	require.NoError(t, err)

	assert.Equal(t, "Green Thumbs", outline.Title)
	assert.Equal(t, "Urban beginners", outline.TargetAudience)
	require.Len(t, outline.Chapters, 6)
	assert.Equal(t, "Chapter 1", outline.Chapters[0].Title)
	assert.Same(t, ResponseSchema, gotSchema)
	assert.Len(t, client.Prompts(), 1, "exactly one service call")
}

func TestSynthesize_EmptyTopicMakesNoCall(t *testing.T) {
	client := &llmtest.MockClient{}

	_, err := NewSynthesizer(client, nil).Synthesize(context.Background(), "   ")

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "topic", validationErr.Field)
	assert.Empty(t, client.Prompts())
}

func TestSynthesize_ServiceFailure(t *testing.T) {
	client := &llmtest.MockClient{
		GenerateJSONFunc: func(context.Context, string, *llm.Schema, llm.ModelTier) (string, error) {
			return "", errors.New("quota exceeded")
		},
	}

	_, err := NewSynthesizer(client, nil).Synthesize(context.Background(), "bees")

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Len(t, client.Prompts(), 1, "no retry")
}

func TestSynthesize_UnusablePayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "not json", payload: "I cannot help with that"},
		{name: "missing title", payload: `{"targetAudience": "x", "chapters": [{"title": "a", "description": "b"}]}`},
		{name: "blank title", payload: `{"title": "  ", "targetAudience": "x", "chapters": [{"title": "a", "description": "b"}]}`},
		{name: "missing audience", payload: `{"title": "t", "chapters": [{"title": "a", "description": "b"}]}`},
		{name: "no chapters", payload: `{"title": "t", "targetAudience": "x", "chapters": []}`},
		{name: "chapters not an array", payload: `{"title": "t", "targetAudience": "x", "chapters": {}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &llmtest.MockClient{
				GenerateJSONFunc: func(context.Context, string, *llm.Schema, llm.ModelTier) (string, error) {
					return tt.payload, nil
				},
			}
			_, err := NewSynthesizer(client, nil).Synthesize(context.Background(), "bees")
			var genErr *GenerationError
			assert.True(t, errors.As(err, &genErr), "got %v", err)
		})
	}
}

func TestSynthesize_OutOfRangeCountAccepted(t *testing.T) {
	var buf bytes.Buffer
	client := &llmtest.MockClient{
		GenerateJSONFunc: func(context.Context, string, *llm.Schema, llm.ModelTier) (string, error) {
			return outlineJSON(3), nil
		},
	}

	outline, err := NewSynthesizer(client, log.New(&buf, "", 0)).Synthesize(context.Background(), "bees")
	require.NoError(t, err)
	assert.Len(t, outline.Chapters, 3)
	assert.Contains(t, buf.String(), "has 3 chapters")
}

func TestDecode_FencedPayload(t *testing.T) {
	outline, err := Decode("```json\n" + outlineJSON(5) + "\n```")
	require.NoError(t, err)
	assert.Len(t, outline.Chapters, 5)
}
