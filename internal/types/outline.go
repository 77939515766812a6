package types

import "strings"

// ChapterStub is a planned chapter before its content is written.
type ChapterStub struct {
	Title       string `json:"title" validate:"notblank"`
	Description string `json:"description" validate:"notblank"`
}

// Outline is the structured plan of a book.
type Outline struct {
	Title          string        `json:"title" validate:"notblank"`
	TargetAudience string        `json:"target_audience" validate:"notblank"`
	Chapters       []ChapterStub `json:"chapters" validate:"required,min=1,dive"`
}

// Recommended chapter-count range requested from the model. Counts outside it
// are accepted.
const (
	MinSuggestedChapters = 5
	MaxSuggestedChapters = 8
)

// Validate validates the Outline using the validator.
func (o *Outline) Validate() error {
	return newValidator().Struct(o)
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (o Outline) Trimmed() Outline {
	out := Outline{
		Title:          strings.TrimSpace(o.Title),
		TargetAudience: strings.TrimSpace(o.TargetAudience),
		Chapters:       make([]ChapterStub, len(o.Chapters)),
	}
	for i, ch := range o.Chapters {
		out.Chapters[i] = ChapterStub{
			Title:       strings.TrimSpace(ch.Title),
			Description: strings.TrimSpace(ch.Description),
		}
	}
	return out
}

// WithinSuggestedRange reports whether the chapter count is 5 to 8.
func (o *Outline) WithinSuggestedRange() bool {
	n := len(o.Chapters)
	return n >= MinSuggestedChapters && n <= MaxSuggestedChapters
}
