// Package types provides the document model shared by the generation pipeline,
// the packager and the presentation layers.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"errors"
	"strings"
)

// ErrEmptyTopic is returned when a topic is blank after trimming.
var ErrEmptyTopic = errors.New("topic must not be empty")

// NormalizeTopic trims a user-supplied topic and rejects blank input.
func NormalizeTopic(topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", ErrEmptyTopic
	}
	return topic, nil
}

// ChapterRecord is one chapter of a book: its outline stub plus generated content.
type ChapterRecord struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content,omitempty"`
	// Degraded marks content that is the substitute text rather than real prose.
	Degraded   bool `json:"degraded,omitempty"`
	Generating bool `json:"is_generating"`
	Done       bool `json:"is_done"`
}

// CoverStatus is the tag of a Cover value
type CoverStatus string

// Cover states. Absent is terminal and valid.
const (
	CoverPending CoverStatus = "pending"
	CoverPresent CoverStatus = "present"
	CoverAbsent  CoverStatus = "absent"
)

// Cover is the cover art of a book: pending, present with image bytes, or
// explicitly absent.
type Cover struct {
	Status   CoverStatus `json:"status"`
	MIMEType string      `json:"mime_type,omitempty"`
	Image    []byte      `json:"image,omitempty"`
	Reason   string      `json:"reason,omitempty"`
}

// PresentCover builds a cover that carries image data.
func PresentCover(image []byte, mimeType string) Cover {
	return Cover{Status: CoverPresent, MIMEType: mimeType, Image: image}
}

// AbsentCover builds a cover that was not produced.
func AbsentCover(reason string) Cover {
	return Cover{Status: CoverAbsent, Reason: reason}
}

// Clone returns a copy that does not share image bytes.
func (c Cover) Clone() Cover {
	if c.Image != nil {
		c.Image = append([]byte(nil), c.Image...)
	}
	return c
}

// IsPresent reports whether the cover has image data.
func (c Cover) IsPresent() bool {
	return c.Status == CoverPresent && len(c.Image) > 0
}

// Book is the document being built. Chapter count and order are fixed once
// the outline exists.
type Book struct {
	Title          string          `json:"title"`
	Topic          string          `json:"topic"`
	TargetAudience string          `json:"target_audience"`
	Chapters       []ChapterRecord `json:"chapters"`
	Cover          Cover           `json:"cover"`
}

// NewBook builds an outline-stage book from a topic and an outline.
func NewBook(topic string, outline Outline) Book {
	chapters := make([]ChapterRecord, len(outline.Chapters))
	for i, stub := range outline.Chapters {
		chapters[i] = ChapterRecord{Title: stub.Title, Description: stub.Description}
	}
	return Book{
		Title:          outline.Title,
		Topic:          topic,
		TargetAudience: outline.TargetAudience,
		Chapters:       chapters,
		Cover:          Cover{Status: CoverPending},
	}
}

// Outline returns the outline the book was built from.
func (b Book) Outline() Outline {
	stubs := make([]ChapterStub, len(b.Chapters))
	for i, ch := range b.Chapters {
		stubs[i] = ChapterStub{Title: ch.Title, Description: ch.Description}
	}
	return Outline{Title: b.Title, TargetAudience: b.TargetAudience, Chapters: stubs}
}

// HasOutline reports whether the book is ready for production.
func (b Book) HasOutline() bool {
	return strings.TrimSpace(b.Title) != "" && b.Topic != "" && len(b.Chapters) > 0
}

// IsComplete reports whether every chapter has content and the cover is resolved.
func (b Book) IsComplete() bool {
	if !b.HasOutline() || b.Cover.Status == CoverPending || b.Cover.Status == "" {
		return false
	}
	for _, ch := range b.Chapters {
		if ch.Content == "" {
			return false
		}
	}
	return true
}

// DegradedChapters returns the 1-based numbers of chapters holding substitute text.
func (b Book) DegradedChapters() []int {
	var out []int
	for i, ch := range b.Chapters {
		if ch.Degraded {
			out = append(out, i+1)
		}
	}
	return out
}

// Clone returns a deep copy safe to hand to another goroutine.
func (b Book) Clone() Book {
	out := b
	if b.Chapters != nil {
		out.Chapters = make([]ChapterRecord, len(b.Chapters))
		copy(out.Chapters, b.Chapters)
	}
	out.Cover = b.Cover.Clone()
	return out
}

// ResetContent discards generated chapter content and cover art, keeping the outline.
func (b *Book) ResetContent() {
	for i := range b.Chapters {
		b.Chapters[i].Content = ""
		b.Chapters[i].Degraded = false
		b.Chapters[i].Generating = false
		b.Chapters[i].Done = false
	}
	b.Cover = Cover{Status: CoverPending}
}
