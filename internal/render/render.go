// Package render produces highlighted copies of an edition.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gazette_bot/internal/model"
	"gazette_bot/internal/pdf"
)

// ErrNoMatches is returned when a matching-pages derivative is requested for
// a result without any match.
var ErrNoMatches = errors.New("no matches to render")

// Reason classifies a render failure.
type Reason string

const (
	// ReasonStaleEdition means the edition file could not be read back.
	// Re-fetching the edition and retrying may succeed.
	ReasonStaleEdition Reason = "stale-edition"
	// ReasonCorruptOutput means the produced document failed verification.
	ReasonCorruptOutput Reason = "corrupt-output"
)

// RenderError reports why a derivative could not be produced.
type RenderError struct {
	Reason Reason
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Reason, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// palette holds highlight colours, assigned by keyword position.
var palette = [][3]float64{
	{1, 1, 0},      // yellow
	{0.5, 1, 0.5},  // light green
	{1, 0.7, 0.7},  // pink
	{0.7, 0.85, 1}, // light blue
	{1, 0.8, 0.5},  // orange
	{0.9, 0.7, 1},  // light purple
	{0.5, 1, 1},    // cyan
}

// Color returns the highlight colour of the i-th keyword.
func Color(i int) [3]float64 {
	return palette[i%len(palette)]
}

// Renderer writes highlight derivatives of stored editions.
type Renderer struct {
	timeout time.Duration
	log     *slog.Logger
}

// New creates a Renderer. A zero timeout disables the time limit.
func New(timeout time.Duration, logger *slog.Logger) *Renderer {
	return &Renderer{timeout: timeout, log: logger}
}

type output struct {
	data []byte
	err  error
}

// Render returns a copy of ed with every match of result highlighted.
// In ModeFull the copy has all pages of the edition; in ModeMatchingPages
// only the pages holding a match, in ascending order.
func (r *Renderer) Render(ctx context.Context, ed *model.Edition, result model.SearchResult, mode model.Mode) ([]byte, error) {
	pages := result.Pages()
	if mode == model.ModeMatchingPages && len(pages) == 0 {
		return nil, ErrNoMatches
	}
	if mode != model.ModeFull && mode != model.ModeMatchingPages {
		return nil, fmt.Errorf("unknown render mode %q", mode)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	done := make(chan output, 1)
	go func() {
		data, err := r.render(ed, result, mode, pages)
		done <- output{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, &RenderError{Reason: ReasonStaleEdition, Err: ctx.Err()}
	case out := <-done:
		return out.data, out.err
	}
}

func (r *Renderer) render(ed *model.Edition, result model.SearchResult, mode model.Mode, pages []int) ([]byte, error) {
	if _, err := os.Stat(ed.Path); err != nil {
		return nil, &RenderError{Reason: ReasonStaleEdition, Err: err}
	}

	var annotated bytes.Buffer
	if err := pdf.Annotate(ed.Path, highlights(result), &annotated); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &RenderError{Reason: ReasonStaleEdition, Err: err}
		}
		return nil, r.corrupt(ed, fmt.Errorf("annotate: %w", err))
	}

	data, want := annotated.Bytes(), ed.PageCount
	if mode == model.ModeMatchingPages {
		var trimmed bytes.Buffer
		if err := pdf.Extract(data, pages, &trimmed); err != nil {
			return nil, r.corrupt(ed, fmt.Errorf("extract pages: %w", err))
		}
		data, want = trimmed.Bytes(), len(pages)
	}

	got, err := pdf.PageCount(data)
	if err != nil {
		return nil, r.corrupt(ed, fmt.Errorf("verify output: %w", err))
	}
	if want > 0 && got != want {
		return nil, r.corrupt(ed, fmt.Errorf("output has %d pages, want %d", got, want))
	}
	return data, nil
}

func (r *Renderer) corrupt(ed *model.Edition, err error) error {
	r.log.Error("Render produced unusable output", "edition", ed.Number, "error", err)
	return &RenderError{Reason: ReasonCorruptOutput, Err: err}
}

func highlights(result model.SearchResult) []pdf.Highlight {
	var hls []pdf.Highlight
	for i, kw := range result.Keywords {
		color := Color(i)
		for _, m := range result.Matches[kw] {
			for _, box := range m.Regions {
				hls = append(hls, pdf.Highlight{
					Page:  m.Page,
					Box:   box,
					Color: color,
					Title: kw,
				})
			}
		}
	}
	return hls
}
