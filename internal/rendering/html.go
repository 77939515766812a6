package rendering

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/jonathan/booksmith/internal/types"
)

//go:embed templates/*.tmpl
var templateFiles embed.FS

var bookTemplate = template.Must(template.ParseFS(templateFiles, "templates/book.html.tmpl"))

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM, extension.Typographer))

// TemplateData is passed to the book HTML template
type TemplateData struct {
	Title    string
	Topic    string
	Audience string
	// CoverURI is a data URI of the cover image; empty selects the text fallback.
	CoverURI template.URL
	Chapters []ChapterSection
}

// ChapterSection is one rendered chapter
type ChapterSection struct {
	Number   int
	Title    string
	Anchor   string
	Body     template.HTML
	Degraded bool
}

// RenderHTML renders a finished book as a standalone HTML document.
func RenderHTML(book types.Book) (string, error) {
	if !book.IsComplete() {
		return "", &RenderError{Message: "book is not complete"}
	}

	data, err := buildTemplateData(book)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := bookTemplate.Execute(&buf, data); err != nil {
		return "", &TemplateError{Message: "failed to execute template", Cause: err}
	}
	return buf.String(), nil
}

func buildTemplateData(book types.Book) (*TemplateData, error) {
	data := &TemplateData{
		Title:    book.Title,
		Topic:    book.Topic,
		Audience: book.TargetAudience,
		Chapters: make([]ChapterSection, 0, len(book.Chapters)),
	}
	if book.Cover.IsPresent() {
		data.CoverURI = CoverDataURI(book.Cover)
	}

	for i, ch := range book.Chapters {
		section := ChapterSection{
			Number:   i + 1,
			Title:    ch.Title,
			Anchor:   fmt.Sprintf("chapter-%d-%s", i+1, Slugify(ch.Title)),
			Degraded: ch.Degraded,
		}
		if ch.Degraded {
			section.Body = template.HTML(template.HTMLEscapeString(ch.Content))
		} else {
			body, err := ChapterHTML(ch.Content)
			if err != nil {
				return nil, &RenderError{Message: fmt.Sprintf("failed to render chapter %d", i+1), Cause: err}
			}
			section.Body = template.HTML(body)
		}
		data.Chapters = append(data.Chapters, section)
	}
	return data, nil
}

// CoverDataURI encodes a present cover as a data URI.
func CoverDataURI(c types.Cover) template.URL {
	mime := c.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return template.URL("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(c.Image))
}

// ChapterHTML converts chapter Markdown to HTML. Raw HTML in the source is
// not passed through, and headings are demoted below the chapter title.
func ChapterHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return demoteHeadings(buf.String())
}

// demoteHeadings rewrites h1 and h2 in a chapter body to h3 so the chapter
// title stays the only h2.
func demoteHeadings(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + fragment + "</body>"))
	if err != nil {
		return "", err
	}
	doc.Find("h1, h2").Each(func(_ int, s *goquery.Selection) {
		inner, err := s.Html()
		if err != nil {
			return
		}
		s.ReplaceWithHtml("<h3>" + inner + "</h3>")
	})
	return doc.Find("body").Html()
}
