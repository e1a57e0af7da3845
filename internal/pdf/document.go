// Package pdf reads text with positions from PDF documents and writes
// highlighted derivatives, using pdfcpu for the document structure.
package pdf

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	domain "gazette_bot/internal/model"
)

// Document holds the text layout of every page of a PDF.
type Document struct {
	pages [][]domain.TextSpan
}

func newConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func readContext(rs io.ReadSeeker) (*model.Context, error) {
	ctx, err := api.ReadValidateAndOptimize(rs, newConfiguration())
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	return ctx, nil
}

// Inspect validates the PDF at path and returns its page count.
func Inspect(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	ctx, err := readContext(f)
	if err != nil {
		return 0, err
	}
	if ctx.PageCount < 1 {
		return 0, fmt.Errorf("document has no pages")
	}
	return ctx.PageCount, nil
}

// PageCount returns the number of pages of an in-memory PDF.
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), newConfiguration())
	if err != nil {
		return 0, fmt.Errorf("pdfcpu page count: %w", err)
	}
	return n, nil
}

// Open parses every page of the PDF at path into text spans.
func Open(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	ctx, err := readContext(f)
	if err != nil {
		return nil, err
	}

	res := newResolver(ctx)
	doc := &Document{pages: make([][]domain.TextSpan, ctx.PageCount)}
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
		if err != nil || r == nil {
			// Pages without a content stream carry no text.
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read page %d content: %w", pageNr, err)
		}
		_, _, inherited, err := ctx.PageDict(pageNr, false)
		if err != nil {
			return nil, fmt.Errorf("read page %d dict: %w", pageNr, err)
		}
		var dict types.Dict
		if inherited != nil {
			dict = inherited.Resources
		}
		doc.pages[pageNr-1] = parseContent(data, res.resources(dict))
	}
	return doc, nil
}

// NewDocument builds a Document from already extracted page spans.
func NewDocument(pages [][]domain.TextSpan) *Document {
	return &Document{pages: pages}
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return len(d.pages)
}

// PageSpans returns the text spans of a 1-based page in content order.
func (d *Document) PageSpans(page int) ([]domain.TextSpan, error) {
	if page < 1 || page > len(d.pages) {
		return nil, fmt.Errorf("page %d out of range 1..%d", page, len(d.pages))
	}
	return d.pages[page-1], nil
}

// PageText returns the plain text of a 1-based page, with spans joined
// by the same layout rules the search uses.
func (d *Document) PageText(page int) (string, error) {
	spans, err := d.PageSpans(page)
	if err != nil {
		return "", err
	}
	return domain.JoinSpans(spans), nil
}
