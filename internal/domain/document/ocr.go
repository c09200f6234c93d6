package document

import (
	"context"
	"iter"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// PageText is the OCR result for one page.
type PageText struct {
	Page    Page
	Text    string
	Elapsed time.Duration
}

// RecognizeAll runs OCR over pages with at most limit requests in flight.
// onPage, when set, is called for every page before it is recognized; an
// error from it stops the run. Results are returned in page order.
func RecognizeAll(ctx context.Context, ocr OCR, pages iter.Seq2[Page, error], limit int, onPage func(Page) error) ([]PageText, error) {
	if limit <= 0 {
		limit = 1
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	var results []*PageText
	for page, err := range pages {
		if err != nil {
			_ = eg.Wait()
			return nil, err
		}
		if gctx.Err() != nil {
			break
		}
		if onPage != nil {
			if err := onPage(page); err != nil {
				_ = eg.Wait()
				return nil, err
			}
		}

		result := &PageText{Page: page}
		results = append(results, result)
		eg.Go(func() error {
			text, elapsed, err := ocr.Recognize(gctx, page)
			if err != nil {
				return err
			}
			result.Text = text
			result.Elapsed = elapsed
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]PageText, len(results))
	for i, r := range results {
		out[i] = *r
	}
	return out, nil
}

// JoinPages concatenates page texts, skipping blank pages.
func JoinPages(pages []PageText) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		if t := strings.TrimSpace(p.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}
