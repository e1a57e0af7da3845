package pdf

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/color"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	domain "gazette_bot/internal/model"
)

// highlightOpacity is the constant opacity of highlight annotations.
const highlightOpacity = 0.5

// Highlight marks one region of a page.
type Highlight struct {
	Page  int
	Box   domain.Rect
	Color [3]float64
	Title string
}

// Annotate writes the PDF at path to w with a highlight annotation added
// for each entry of hls.
func Annotate(path string, hls []Highlight, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	ctx, err := readContext(f)
	if err != nil {
		return err
	}

	byPage := make(map[int][]model.AnnotationRenderer)
	for i, h := range hls {
		if h.Page < 1 || h.Page > ctx.PageCount {
			return fmt.Errorf("highlight on page %d out of range 1..%d", h.Page, ctx.PageCount)
		}
		byPage[h.Page] = append(byPage[h.Page], highlightAnnotation(h, i))
	}

	if len(byPage) > 0 {
		if _, err := pdfcpu.AddAnnotationsMap(ctx, byPage, false); err != nil {
			return fmt.Errorf("pdfcpu annotate: %w", err)
		}
	}

	if err := api.WriteContext(ctx, w); err != nil {
		return fmt.Errorf("pdfcpu write: %w", err)
	}
	return nil
}

// highlightAnnotation returns a printable highlight covering h.Box, named
// by its index so every annotation of a page has a distinct id.
func highlightAnnotation(h Highlight, i int) model.HighlightAnnotation {
	rect := types.NewRectangle(h.Box.X0, h.Box.Y0, h.Box.X1, h.Box.Y1)
	col := color.SimpleColor{R: float32(h.Color[0]), G: float32(h.Color[1]), B: float32(h.Color[2])}
	ca := highlightOpacity
	return model.NewHighlightAnnotation(
		*rect,
		0,
		h.Title,
		fmt.Sprintf("highlight-%d", i),
		"",
		model.AnnPrint,
		&col,
		0, 0, 0,
		h.Title,
		nil,
		&ca,
		"", "",
		types.QuadPoints{*types.NewQuadLiteralForRect(rect)},
	)
}

// Extract writes to w a copy of the PDF in data holding only the given
// 1-based pages, renumbered contiguously.
func Extract(data []byte, pages []int, w io.Writer) error {
	if len(pages) == 0 {
		return fmt.Errorf("no pages selected")
	}
	sel := make([]string, len(pages))
	for i, p := range pages {
		sel[i] = strconv.Itoa(p)
	}
	if err := api.Trim(bytes.NewReader(data), w, sel, newConfiguration()); err != nil {
		return fmt.Errorf("pdfcpu trim: %w", err)
	}
	return nil
}
