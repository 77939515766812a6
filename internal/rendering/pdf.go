package rendering

import (
	"context"
	"log"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// DefaultPDFTimeout bounds one headless-browser print.
const DefaultPDFTimeout = 60 * time.Second

// ChromePDF prints HTML to PDF with a headless Chrome. Requires
// Chrome/Chromium to be installed on the system.
type ChromePDF struct {
	Timeout time.Duration
	Verbose bool
}

// RenderPDF loads html into a blank page and prints it.
func (c *ChromePDF) RenderPDF(ctx context.Context, html string) ([]byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultPDFTimeout
	}
	if c.Verbose {
		log.Printf("[PDF] Starting headless browser for %d bytes of HTML", len(html))
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var pdf []byte
	err := chromedp.Run(browserCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, &RenderError{Message: "browser PDF rendering failed", Cause: err}
	}

	if c.Verbose {
		log.Printf("[PDF] Rendered %d bytes", len(pdf))
	}
	return pdf, nil
}
