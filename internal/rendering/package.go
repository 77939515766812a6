package rendering

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/booksmith/internal/types"
)

// Format is an output format of the packager
type Format string

// Supported formats
const (
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "md"
)

// ParseFormat accepts a format name, case-insensitively. "markdown" is an
// alias of "md".
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "html":
		return FormatHTML, nil
	case "pdf":
		return FormatPDF, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want html, pdf or md)", name)
	}
}

// Artifact is a downloadable packaged book.
type Artifact struct {
	Filename    string
	ContentType string
	Data        []byte
}

// PDFRenderer turns a standalone HTML document into PDF bytes.
type PDFRenderer interface {
	RenderPDF(ctx context.Context, html string) ([]byte, error)
}

// Packager turns finished books into downloadable files.
type Packager struct {
	PDF PDFRenderer
}

// NewPackager creates a packager that prints PDFs with headless Chrome.
func NewPackager() *Packager {
	return &Packager{PDF: &ChromePDF{}}
}

// Package renders book in the requested format.
func (p *Packager) Package(ctx context.Context, book types.Book, format Format) (*Artifact, error) {
	base := Slugify(book.Title)

	switch format {
	case FormatHTML:
		html, err := RenderHTML(book)
		if err != nil {
			return nil, err
		}
		return &Artifact{Filename: base + ".html", ContentType: "text/html; charset=utf-8", Data: []byte(html)}, nil

	case FormatMarkdown:
		md, err := RenderMarkdown(book)
		if err != nil {
			return nil, err
		}
		return &Artifact{Filename: base + ".md", ContentType: "text/markdown; charset=utf-8", Data: []byte(md)}, nil

	case FormatPDF:
		if p.PDF == nil {
			return nil, &RenderError{Message: "no PDF renderer configured"}
		}
		html, err := RenderHTML(book)
		if err != nil {
			return nil, err
		}
		pdf, err := p.PDF.RenderPDF(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Artifact{Filename: base + ".pdf", ContentType: "application/pdf", Data: pdf}, nil

	default:
		return nil, &RenderError{Message: fmt.Sprintf("unsupported format %q", format)}
	}
}
