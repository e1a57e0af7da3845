// Package search locates keyword occurrences in the text layout of a document.
package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"gazette_bot/internal/model"
)

const snippetRadius = 50

// DocumentReader gives access to the text of a document, page by page.
// PageText must read spans the way model.JoinSpans does.
type DocumentReader interface {
	PageCount() int
	PageText(page int) (string, error)
	PageSpans(page int) ([]model.TextSpan, error)
}

// Search looks up every keyword on every page of doc.
// Matching is an accent- and case-insensitive substring match over the page
// text with whitespace collapsed. Every keyword gets an entry in the result,
// empty when it does not occur. Matches are ordered by page, then top to
// bottom and left to right on the page.
func Search(ctx context.Context, doc DocumentReader, keywords []string) (model.SearchResult, error) {
	kws := model.NormalizeKeywords(keywords)
	res := model.SearchResult{
		Keywords:  kws,
		Matches:   make(map[string][]model.Match, len(kws)),
		PageCount: doc.PageCount(),
	}
	needles := make([][]rune, len(kws))
	for i, kw := range kws {
		res.Matches[kw] = []model.Match{}
		needles[i] = []rune(model.FoldKeyword(kw))
	}

	for page := 1; page <= res.PageCount; page++ {
		if err := ctx.Err(); err != nil {
			return model.SearchResult{}, err
		}
		text, err := doc.PageText(page)
		if err != nil {
			return model.SearchResult{}, fmt.Errorf("read page %d: %w", page, err)
		}
		if !containsAny(fold([]rune(text)).runes, needles) {
			continue
		}
		spans, err := doc.PageSpans(page)
		if err != nil {
			return model.SearchResult{}, fmt.Errorf("read page %d: %w", page, err)
		}
		if len(spans) == 0 {
			continue
		}
		l := newLayout(spans)
		for i, kw := range kws {
			found := l.find(kw, needles[i], page)
			res.Matches[kw] = append(res.Matches[kw], found...)
		}
	}
	return res, nil
}

func containsAny(hay []rune, needles [][]rune) bool {
	for _, n := range needles {
		if index(hay, n, 0) >= 0 {
			return true
		}
	}
	return false
}

// position locates a rune of the page text inside the span it came from.
// Separators inserted between spans have span == -1.
type position struct {
	span  int
	index int
}

type layout struct {
	spans  []model.TextSpan
	text   []rune
	pos    []position
	folded folded
}

func newLayout(spans []model.TextSpan) *layout {
	l := &layout{spans: spans}
	for i, s := range spans {
		if i > 0 && model.SpanSeparator(spans[i-1], s) != "" {
			l.text = append(l.text, ' ')
			l.pos = append(l.pos, position{span: -1})
		}
		for j, r := range []rune(s.Text) {
			l.text = append(l.text, r)
			l.pos = append(l.pos, position{span: i, index: j})
		}
	}
	l.folded = fold(l.text)
	return l
}

func (l *layout) find(kw string, needle []rune, page int) []model.Match {
	var out []model.Match
	hay := l.folded.runes
	for i := index(hay, needle, 0); i >= 0; i = index(hay, needle, i+len(needle)) {
		first := l.folded.origin[i]
		last := l.folded.origin[i+len(needle)-1]
		out = append(out, model.Match{
			Keyword: kw,
			Page:    page,
			Regions: l.regions(first, last),
			Snippet: l.snippet(first, last),
		})
	}
	sort.SliceStable(out, func(a, b int) bool {
		return before(out[a].Regions, out[b].Regions)
	})
	return out
}

// regions returns one box per span covered by text runes first..last,
// sliced in proportion to the rune offsets inside each span.
func (l *layout) regions(first, last int) []model.Rect {
	var out []model.Rect
	cur, lo, hi := -1, 0, 0
	flush := func() {
		if cur < 0 {
			return
		}
		s := l.spans[cur]
		n := float64(len([]rune(s.Text)))
		w := s.Box.Width()
		out = append(out, model.Rect{
			X0: s.Box.X0 + w*float64(lo)/n,
			Y0: s.Box.Y0,
			X1: s.Box.X0 + w*float64(hi+1)/n,
			Y1: s.Box.Y1,
		})
	}
	for t := first; t <= last; t++ {
		p := l.pos[t]
		if p.span < 0 {
			continue
		}
		if p.span != cur {
			flush()
			cur, lo = p.span, p.index
		}
		hi = p.index
	}
	flush()
	return out
}

func (l *layout) snippet(first, last int) string {
	lo := max(0, first-snippetRadius)
	hi := min(len(l.text), last+1+snippetRadius)
	return strings.Join(strings.Fields(string(l.text[lo:hi])), " ")
}

// before orders region lists top to bottom, then left to right. Boxes whose
// tops are within a point of each other are on the same line.
func before(a, b []model.Rect) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) > len(b)
	}
	if math.Abs(a[0].Y1-b[0].Y1) > 1 {
		return a[0].Y1 > b[0].Y1
	}
	return a[0].X0 < b[0].X0
}
