// Package document turns stored bytes into text: native PDF text, PDF pages
// for OCR, and plain text exports.
package document

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/import/sniffer"
)

var (
	ErrEncrypted   = errors.New("Este PDF está protegido por senha.")
	ErrOCRDisabled = errors.New("ocr provider not configured")
)

// Page is one unit handed to OCR: a single-page PDF or an image.
type Page struct {
	Number   int
	MIMEType string
	Data     []byte
}

// TextExtractor reads the native text of a document.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (text string, scanned bool, err error)
}

// PageRasterizer yields the pages of a document lazily.
type PageRasterizer interface {
	Pages(ctx context.Context, data []byte) iter.Seq2[Page, error]
}

// OCR recognizes the text of one page.
type OCR interface {
	Recognize(ctx context.Context, page Page) (text string, elapsed time.Duration, err error)
}

// PlainText decodes a text export (UTF-8 or Latin-1) with normalized line
// endings.
func PlainText(data []byte) string {
	text := sniffer.DecodeText(data)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// ImagePage wraps a single image as a one-page document.
func ImagePage(mediaType string, data []byte) Page {
	if mediaType == "" || !strings.HasPrefix(mediaType, "image/") {
		mediaType = detectImageType(data)
	}
	return Page{Number: 1, MIMEType: mediaType, Data: data}
}

// DisabledOCR fails every page; used when no provider is configured.
type DisabledOCR struct{}

func (DisabledOCR) Recognize(context.Context, Page) (string, time.Duration, error) {
	return "", 0, ErrOCRDisabled
}
