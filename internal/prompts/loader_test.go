package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_ValidPrompt(t *testing.T) {
	ClearCache()

	prompt, err := Get(BookFile, "outline")
	require.NoError(t, err)
	assert.Contains(t, prompt, "Create a detailed book outline")
}

func TestGet_InvalidFile(t *testing.T) {
	ClearCache()

	_, err := Get("nonexistent.json", "outline")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read prompt file")
}

func TestGet_InvalidKey(t *testing.T) {
	ClearCache()

	_, err := Get(BookFile, "nonexistent-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMustGet(t *testing.T) {
	ClearCache()

	assert.Panics(t, func() { MustGet("nonexistent.json", "outline") })
	assert.NotPanics(t, func() { assert.NotEmpty(t, MustGet(BookFile, "cover")) })
}

func TestList(t *testing.T) {
	keys, err := List(BookFile)
	require.NoError(t, err)
	assert.Equal(t, []string{"chapter", "cover", "outline"}, keys)
}

func TestFormat(t *testing.T) {
	result := Format("A book titled {{.Title}} about {{.Topic}}", map[string]string{
		"Title": "Green Thumbs",
		"Topic": "urban gardening",
	})
	assert.Equal(t, "A book titled Green Thumbs about urban gardening", result)
}

func TestRender_AllBookPromptsFill(t *testing.T) {
	tests := []struct {
		key  string
		data map[string]string
		want string
	}{
		{
			key:  "outline",
			data: map[string]string{"Topic": "urban gardening", "MinChapters": "5", "MaxChapters": "8"},
			want: "Generate between 5 to 8 chapters.",
		},
		{
			key: "chapter",
			data: map[string]string{
				"ChapterTitle":       "Soil Basics",
				"BookTitle":          "Green Thumbs",
				"Audience":           "Beginners",
				"ChapterDescription": "Containers and compost",
			},
			want: "Target Audience: Beginners",
		},
		{
			key:  "cover",
			data: map[string]string{"Title": "Green Thumbs", "Topic": "urban gardening"},
			want: "No text on the image",
		},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			prompt, err := Render(BookFile, tt.key, tt.data)
			require.NoError(t, err)
			assert.Contains(t, prompt, tt.want)
			assert.Empty(t, Placeholders(prompt))
		})
	}
}

func TestRender_MissingValue(t *testing.T) {
	_, err := Render(BookFile, "cover", map[string]string{"Title": "Green Thumbs"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Topic")
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, Placeholders("{{.B}} {{.A}} {{.B}}"))
	assert.Empty(t, Placeholders("plain text {not one}"))
}
