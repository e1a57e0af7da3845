package render

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gazette_bot/internal/model"
	"gazette_bot/internal/pdf"
	"gazette_bot/internal/pdf/pdftest"
	"gazette_bot/internal/search"
)

func newRenderer() *Renderer {
	return New(time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func edition(t *testing.T, pages ...[]string) (*model.Edition, model.SearchResult) {
	t.Helper()
	path := pdftest.WriteFile(t, "DM_1.pdf", pages...)
	doc, err := pdf.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	res, err := search.Search(context.Background(), doc, []string{"Convita", "Lumig"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	ed := &model.Edition{
		EditionInfo: model.EditionInfo{Number: 1},
		Path:        path,
		PageCount:   doc.PageCount(),
	}
	return ed, res
}

func reopen(t *testing.T, data []byte) *pdf.Document {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	doc, err := pdf.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	return doc
}

func TestRenderFull(t *testing.T) {
	ed, res := edition(t, []string{"Convita approved"}, []string{"nothing"}, []string{"Lumig"})

	data, err := newRenderer().Render(context.Background(), ed, res, model.ModeFull)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	doc := reopen(t, data)
	if diff := cmp.Diff(3, doc.PageCount()); diff != "" {
		t.Errorf("pages (-want +got):\n%s", diff)
	}
}

func TestRenderMatchingPages(t *testing.T) {
	ed, res := edition(t, []string{"Convita approved"}, []string{"nothing"}, []string{"Lumig"}, []string{"again nothing"})

	data, err := newRenderer().Render(context.Background(), ed, res, model.ModeMatchingPages)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	doc := reopen(t, data)
	var got []string
	for p := 1; p <= doc.PageCount(); p++ {
		text, err := doc.PageText(p)
		if err != nil {
			t.Fatalf("page text %d: %v", p, err)
		}
		got = append(got, text)
	}
	if diff := cmp.Diff([]string{"Convita approved", "Lumig"}, got); diff != "" {
		t.Errorf("page texts (-want +got):\n%s", diff)
	}
}

func TestRenderMatchingPagesWithoutMatches(t *testing.T) {
	ed, res := edition(t, []string{"nothing here"})

	_, err := newRenderer().Render(context.Background(), ed, res, model.ModeMatchingPages)
	if !errors.Is(err, ErrNoMatches) {
		t.Fatalf("want ErrNoMatches, got %v", err)
	}
}

func TestRenderStaleEdition(t *testing.T) {
	ed, res := edition(t, []string{"Convita"})
	if err := os.Remove(ed.Path); err != nil {
		t.Fatal(err)
	}

	_, err := newRenderer().Render(context.Background(), ed, res, model.ModeFull)
	var rerr *RenderError
	if !errors.As(err, &rerr) {
		t.Fatalf("want RenderError, got %v", err)
	}
	if diff := cmp.Diff(ReasonStaleEdition, rerr.Reason); diff != "" {
		t.Errorf("reason (-want +got):\n%s", diff)
	}
}

func TestRenderCorruptOutput(t *testing.T) {
	ed, res := edition(t, []string{"Convita"})
	ed.PageCount = 5

	_, err := newRenderer().Render(context.Background(), ed, res, model.ModeFull)
	var rerr *RenderError
	if !errors.As(err, &rerr) {
		t.Fatalf("want RenderError, got %v", err)
	}
	if diff := cmp.Diff(ReasonCorruptOutput, rerr.Reason); diff != "" {
		t.Errorf("reason (-want +got):\n%s", diff)
	}
}

func TestRenderCancelled(t *testing.T) {
	ed, res := edition(t, []string{"Convita"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newRenderer().Render(ctx, ed, res, model.ModeFull)
	if err == nil {
		return // rendering may win the race against the cancelled context
	}
	var rerr *RenderError
	if !errors.As(err, &rerr) || rerr.Reason != ReasonStaleEdition {
		t.Fatalf("want stale-edition RenderError, got %v", err)
	}
}

func TestHighlightsUseKeywordColours(t *testing.T) {
	res := model.SearchResult{
		Keywords: []string{"a", "b"},
		Matches: map[string][]model.Match{
			"a": {{Keyword: "a", Page: 1, Regions: []model.Rect{{X1: 1}, {X1: 2}}}},
			"b": {{Keyword: "b", Page: 2, Regions: []model.Rect{{X1: 3}}}},
		},
	}
	want := []pdf.Highlight{
		{Page: 1, Box: model.Rect{X1: 1}, Color: Color(0), Title: "a"},
		{Page: 1, Box: model.Rect{X1: 2}, Color: Color(0), Title: "a"},
		{Page: 2, Box: model.Rect{X1: 3}, Color: Color(1), Title: "b"},
	}
	if diff := cmp.Diff(want, highlights(res)); diff != "" {
		t.Errorf("highlights (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Color(0), Color(len(palette))); diff != "" {
		t.Errorf("palette wraps (-want +got):\n%s", diff)
	}
}
