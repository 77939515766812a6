// Package outline turns a topic into a structured book outline with a single
// structured-output call.
package outline

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"

	"github.com/jonathan/booksmith/internal/llm"
	"github.com/jonathan/booksmith/internal/prompts"
	"github.com/jonathan/booksmith/internal/schemas"
	"github.com/jonathan/booksmith/internal/types"
)

// ResponseSchema is the structured-output schema sent with the outline request.
var ResponseSchema = &llm.Schema{
	Type: llm.TypeObject,
	Properties: map[string]*llm.Schema{
		"title":          {Type: llm.TypeString, Description: "A catchy book title"},
		"targetAudience": {Type: llm.TypeString, Description: "Who the book is written for"},
		"chapters": {
			Type: llm.TypeArray,
			Items: &llm.Schema{
				Type: llm.TypeObject,
				Properties: map[string]*llm.Schema{
					"title":       {Type: llm.TypeString},
					"description": {Type: llm.TypeString},
				},
				Required: []string{"title", "description"},
			},
		},
	},
	Required: []string{"title", "targetAudience", "chapters"},
}

// payload is the wire shape returned by the model.
type payload struct {
	Title          string `json:"title"`
	TargetAudience string `json:"targetAudience"`
	Chapters       []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"chapters"`
}

// Synthesizer produces outlines.
type Synthesizer struct {
	client llm.Client
	logger *log.Logger
	// Tier selects the model; defaults to standard.
	Tier llm.ModelTier
}

// NewSynthesizer creates an outline synthesizer. A nil logger uses log.Default().
func NewSynthesizer(client llm.Client, logger *log.Logger) *Synthesizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Synthesizer{client: client, logger: logger, Tier: llm.TierStandard}
}

// Synthesize requests an outline for topic. It makes exactly one service
// call and never retries. Chapter counts outside 5 to 8 are accepted.
func (s *Synthesizer) Synthesize(ctx context.Context, topic string) (*types.Outline, error) {
	topic, err := types.NormalizeTopic(topic)
	if err != nil {
		return nil, &ValidationError{Field: "topic", Message: err.Error()}
	}

	prompt, err := prompts.Render(prompts.BookFile, "outline", map[string]string{
		"Topic":       topic,
		"MinChapters": strconv.Itoa(types.MinSuggestedChapters),
		"MaxChapters": strconv.Itoa(types.MaxSuggestedChapters),
	})
	if err != nil {
		return nil, &GenerationError{Message: "failed to build prompt", Cause: err}
	}

	raw, err := s.client.GenerateJSON(ctx, prompt, ResponseSchema, s.Tier)
	if err != nil {
		return nil, &GenerationError{Message: "service call failed", Cause: err}
	}

	outline, err := Decode(raw)
	if err != nil {
		return nil, err
	}

	if !outline.WithinSuggestedRange() {
		s.logger.Printf("outline for %q has %d chapters (suggested %d-%d); keeping as-is",
			topic, len(outline.Chapters), types.MinSuggestedChapters, types.MaxSuggestedChapters)
	}
	return outline, nil
}

// Decode parses and checks a raw outline payload.
func Decode(raw string) (*types.Outline, error) {
	raw = llm.CleanJSONBlock(raw)
	if err := schemas.ValidateOutline(raw); err != nil {
		return nil, &GenerationError{Message: "payload does not match outline schema", Cause: err}
	}

	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, &GenerationError{Message: "failed to decode payload", Cause: err}
	}

	outline := &types.Outline{
		Title:          strings.TrimSpace(p.Title),
		TargetAudience: strings.TrimSpace(p.TargetAudience),
		Chapters:       make([]types.ChapterStub, 0, len(p.Chapters)),
	}
	for _, ch := range p.Chapters {
		outline.Chapters = append(outline.Chapters, types.ChapterStub{
			Title:       strings.TrimSpace(ch.Title),
			Description: strings.TrimSpace(ch.Description),
		})
	}

	if err := outline.Validate(); err != nil {
		return nil, &GenerationError{Message: "outline is incomplete", Cause: err}
	}
	return outline, nil
}
