// Package artifact stores binary book outputs (cover art, HTML and PDF
// exports) in S3-compatible object storage.
package artifact

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("artifact not found")

// Well-known object names within a run.
const (
	CoverObject = "cover"
	HTMLObject  = "book.html"
	PDFObject   = "book.pdf"
	MDObject    = "book.md"
)

// Store is the object storage surface used by the server.
type Store interface {
	Put(ctx context.Context, runID, path, contentType string, content []byte) (string, error)
	Get(ctx context.Context, runID, path string) ([]byte, error)
	List(ctx context.Context, runID string) ([]string, error)
	GetURL(ctx context.Context, runID, path string) (string, error)
}

// CoverObjectName returns the object name for a cover with the given MIME type.
func CoverObjectName(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg", "image/jpg":
		return CoverObject + ".jpg"
	case "image/webp":
		return CoverObject + ".webp"
	default:
		return CoverObject + ".png"
	}
}

func objectKey(runID, path string) string {
	normalized := strings.TrimLeft(strings.TrimSpace(path), "/")
	return "runs/" + strings.TrimSpace(runID) + "/" + normalized
}
