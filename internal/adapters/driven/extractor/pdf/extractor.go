// Package pdf extracts plain text from PDF files page by page.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	lpdf "github.com/ledongthuc/pdf"

	"github.com/custodia-labs/ragbot/internal/core/domain"
	"github.com/custodia-labs/ragbot/internal/core/ports/driven"
	"github.com/custodia-labs/ragbot/internal/logger"
)

// Ensure Extractor implements the interface.
var _ driven.TextExtractor = (*Extractor)(nil)

// pdfMagic starts every PDF container.
var pdfMagic = []byte("%PDF-")

// pageSource is an opened PDF.
type pageSource interface {
	NumPage() int
	// PageText returns the text of the 1-based page num.
	PageText(num int) (string, error)
}

// Extractor reads PDFs with github.com/ledongthuc/pdf.
// Pages that fail or panic are skipped; the rest of the document is kept.
type Extractor struct {
	open func(data []byte) (pageSource, error)
}

// New creates a PDF text extractor.
func New() *Extractor {
	return &Extractor{open: openReader}
}

// Extract returns the text of every readable page, pages joined by newlines.
func (e *Extractor) Extract(ctx context.Context, data []byte) (*domain.ExtractedText, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic) {
		return nil, fmt.Errorf("%w: not a PDF file", domain.ErrExtraction)
	}

	src, err := e.open(data)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", domain.ErrExtraction, err)
	}

	out := &domain.ExtractedText{PageCount: src.NumPage()}
	texts := make([]string, 0, out.PageCount)
	for num := 1; num <= out.PageCount; num++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := readPage(src, num)
		if err != nil {
			logger.Warn("pdf: skipping page %d of %d: %v", num, out.PageCount, err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		out.Pages = append(out.Pages, domain.PageText{Number: num, Text: text})
		texts = append(texts, text)
	}

	if len(out.Pages) == 0 {
		return nil, fmt.Errorf("%w: no page of %d yielded text", domain.ErrExtraction, out.PageCount)
	}
	out.Text = strings.Join(texts, "\n")
	logger.Debug("pdf: extracted %d of %d pages", len(out.Pages), out.PageCount)
	return out, nil
}

// readPage isolates panics raised by malformed page content.
func readPage(src pageSource, num int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return src.PageText(num)
}

// reader adapts *lpdf.Reader to pageSource.
type reader struct {
	r *lpdf.Reader
}

func openReader(data []byte) (src pageSource, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	r, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return &reader{r: r}, nil
}

func (r *reader) NumPage() int {
	return r.r.NumPage()
}

func (r *reader) PageText(num int) (string, error) {
	page := r.r.Page(num)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}
