// Package cover paints cover art. A missing image is a normal outcome, not an error.
package cover

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonathan/booksmith/internal/llm"
	"github.com/jonathan/booksmith/internal/prompts"
	"github.com/jonathan/booksmith/internal/types"
)

// ErrNoImage is the reason recorded when the model answered without an image.
var ErrNoImage = errors.New("response contained no image")

// Result is the outcome of one cover request. Image is nil when absent.
type Result struct {
	Image    []byte
	MIMEType string
	Reason   error
}

// Present reports whether an image was produced.
func (r Result) Present() bool {
	return len(r.Image) > 0
}

// Cover converts the result into the document's cover value.
func (r Result) Cover() types.Cover {
	if r.Present() {
		return types.PresentCover(r.Image, r.MIMEType)
	}
	reason := "unavailable"
	if r.Reason != nil {
		reason = r.Reason.Error()
	}
	return types.AbsentCover(reason)
}

// Painter produces cover art.
type Painter struct {
	client llm.Client
	// Tier selects the model; defaults to the image tier.
	Tier llm.ModelTier
}

// NewPainter creates a cover painter.
func NewPainter(client llm.Client) *Painter {
	return &Painter{client: client, Tier: llm.TierImage}
}

// Paint makes one image request for a book. It never returns an error; any
// failure yields an absent result carrying the reason.
func (p *Painter) Paint(ctx context.Context, title, topic string) Result {
	prompt, err := prompts.Render(prompts.BookFile, "cover", map[string]string{
		"Title": title,
		"Topic": topic,
	})
	if err != nil {
		return Result{Reason: err}
	}

	img, err := p.client.GenerateImage(ctx, prompt, p.Tier)
	if err != nil {
		return Result{Reason: fmt.Errorf("cover for %q: %w", title, err)}
	}
	if img == nil || len(img.Data) == 0 {
		return Result{Reason: ErrNoImage}
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return Result{Image: img.Data, MIMEType: mime}
}
