package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Scan detection thresholds.
const (
	MinCharsPerPage = 30
	MinPagesWithText = 1
	MinTotalChars    = 80
)

// PDF reads native text through pdfcpu and splits documents into
// single-page PDFs for OCR.
type PDF struct {
	// MaxPages caps the pages yielded by Pages; zero means all.
	MaxPages int
}

func NewPDF(maxPages int) *PDF {
	return &PDF{MaxPages: maxPages}
}

func pdfConfig() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

func readContext(data []byte) (*model.Context, error) {
	ctx, err := api.ReadContext(bytes.NewReader(data), pdfConfig())
	if err != nil {
		if isPasswordError(err) {
			return nil, ErrEncrypted
		}
		return nil, fmt.Errorf("Erro ao processar PDF: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		if isPasswordError(err) {
			return nil, ErrEncrypted
		}
		return nil, fmt.Errorf("Erro ao processar PDF: %w", err)
	}
	return ctx, nil
}

func isPasswordError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "password")
}

// ExtractText joins the text of every page and reports whether the file is
// a scan: no page with enough text, or too little text overall, while
// images are present.
func (p *PDF) ExtractText(ctx context.Context, data []byte) (string, bool, error) {
	pdfCtx, err := readContext(data)
	if err != nil {
		return "", false, err
	}

	var (
		text           strings.Builder
		pagesWithText  int
		pagesWithImage int
	)
	for page := 1; page <= pdfCtx.PageCount; page++ {
		if err := ctx.Err(); err != nil {
			return "", false, err
		}

		pageText, err := pageText(pdfCtx, page)
		if err != nil {
			return "", false, fmt.Errorf("failed to read page %d: %w", page, err)
		}
		pageText = strings.TrimSpace(pageText)
		if len([]rune(pageText)) >= MinCharsPerPage {
			pagesWithText++
		}
		if pageText != "" {
			text.WriteString(pageText)
			text.WriteString("\n")
		}

		if images, err := pdfcpu.ExtractPageImages(pdfCtx, page, true); err == nil && len(images) > 0 {
			pagesWithImage++
		}
	}

	total := text.String()
	scanned := false
	if pdfCtx.PageCount > 0 && pagesWithImage > 0 {
		scanned = pagesWithText < MinPagesWithText || len([]rune(strings.TrimSpace(total))) < MinTotalChars
	}
	return total, scanned, nil
}

func pageText(pdfCtx *model.Context, page int) (string, error) {
	r, err := pdfcpu.ExtractPageContent(pdfCtx, page)
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", nil
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return ContentText(content), nil
}

// Pages splits the PDF into single-page files in a temporary directory and
// yields them one at a time, up to MaxPages.
func (p *PDF) Pages(ctx context.Context, data []byte) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		dir, err := os.MkdirTemp("", "ingest-pages-*")
		if err != nil {
			yield(Page{}, fmt.Errorf("failed to create temp dir: %w", err))
			return
		}
		defer os.RemoveAll(dir)

		source := filepath.Join(dir, "source.pdf")
		if err := os.WriteFile(source, data, 0o600); err != nil {
			yield(Page{}, fmt.Errorf("failed to write temp pdf: %w", err))
			return
		}

		count, err := api.PageCountFile(source)
		if err != nil {
			if isPasswordError(err) {
				err = ErrEncrypted
			}
			yield(Page{}, fmt.Errorf("failed to get page count: %w", err))
			return
		}
		if err := api.SplitFile(source, dir, 1, pdfConfig()); err != nil {
			yield(Page{}, fmt.Errorf("failed to split PDF: %w", err))
			return
		}

		if p.MaxPages > 0 && count > p.MaxPages {
			count = p.MaxPages
		}
		base := strings.TrimSuffix(source, filepath.Ext(source))
		for n := 1; n <= count; n++ {
			if err := ctx.Err(); err != nil {
				yield(Page{}, err)
				return
			}
			pageData, err := os.ReadFile(fmt.Sprintf("%s_%d.pdf", base, n))
			if err != nil {
				if !yield(Page{}, fmt.Errorf("failed to read page %d: %w", n, err)) {
					return
				}
				continue
			}
			if !yield(Page{Number: n, MIMEType: "application/pdf", Data: pageData}, nil) {
				return
			}
		}
	}
}

func detectImageType(data []byte) string {
	if ct := http.DetectContentType(data); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/png"
}
