// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// EditionInfo describes the latest edition as reported by the publisher.
type EditionInfo struct {
	Number int
	Date   string // dd/mm/yyyy, as printed by the publisher
	URL    string
}

// Edition is one downloaded gazette document.
// It is immutable once stored in the edition cache.
type Edition struct {
	EditionInfo
	Path      string
	Size      int64
	PageCount int
	FetchedAt time.Time
}

// ID identifies the stored copy of the edition. Two downloads of the same
// edition number get different IDs.
func (e *Edition) ID() string {
	return fmt.Sprintf("%d@%d", e.Number, e.FetchedAt.UnixNano())
}

// FileName returns the name under which the publisher serves the edition.
func (e *Edition) FileName() string {
	return fmt.Sprintf("DM_%d.pdf", e.Number)
}

// Subscriber is a chat identity with its keyword set.
type Subscriber struct {
	ChatID    int64
	Keywords  []string
	OptedIn   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Mode selects which pages a highlight derivative contains.
type Mode string

// Supported render modes.
const (
	ModeFull          Mode = "full"
	ModeMatchingPages Mode = "matching-pages"
)

// Rect is an axis-aligned box in PDF default user space (origin bottom-left).
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// Width returns the horizontal extent of the box.
func (r Rect) Width() float64 { return r.X1 - r.X0 }

// TextSpan is a run of text shown by a single text operator.
type TextSpan struct {
	Text string
	Box  Rect
}

// SpanSeparator returns what is read between two consecutive spans: a line
// break across lines, a space on the same line when there is a visible gap
// and nothing otherwise.
func SpanSeparator(prev, cur TextSpan) string {
	if strings.HasSuffix(prev.Text, " ") || strings.HasPrefix(cur.Text, " ") {
		return ""
	}
	height := prev.Box.Y1 - prev.Box.Y0
	if math.Abs(prev.Box.Y0-cur.Box.Y0) >= height/2 {
		return "\n"
	}
	if cur.Box.X0-prev.Box.X1 > height*0.15 {
		return " "
	}
	return ""
}

// JoinSpans returns the plain text of spans in content order.
func JoinSpans(spans []TextSpan) string {
	var b strings.Builder
	for i, s := range spans {
		if i > 0 {
			b.WriteString(SpanSeparator(spans[i-1], s))
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

// Match is one located occurrence of a keyword.
type Match struct {
	Keyword string
	Page    int // 1-based
	Regions []Rect
	Snippet string
}

// PageCount is the number of occurrences of a keyword on one page.
type PageCount struct {
	Page  int
	Count int
}

// CountByPage aggregates matches into per-page occurrence counts, ordered by page.
func CountByPage(matches []Match) []PageCount {
	var out []PageCount
	for _, m := range matches {
		if n := len(out); n > 0 && out[n-1].Page == m.Page {
			out[n-1].Count++
			continue
		}
		out = append(out, PageCount{Page: m.Page, Count: 1})
	}
	return out
}

// SearchResult holds the matches of every searched keyword.
// Every keyword in Keywords has an entry in Matches, possibly empty.
type SearchResult struct {
	Keywords  []string
	Matches   map[string][]Match
	PageCount int
}

// Total returns the number of occurrences across all keywords.
func (r SearchResult) Total() int {
	n := 0
	for _, m := range r.Matches {
		n += len(m)
	}
	return n
}

// Found returns the keywords with at least one match, in keyword order.
func (r SearchResult) Found() []string {
	var out []string
	for _, kw := range r.Keywords {
		if len(r.Matches[kw]) > 0 {
			out = append(out, kw)
		}
	}
	return out
}

// Pages returns the sorted set of pages holding at least one match.
func (r SearchResult) Pages() []int {
	seen := make(map[int]bool)
	var pages []int
	for _, ms := range r.Matches {
		for _, m := range ms {
			if !seen[m.Page] {
				seen[m.Page] = true
				pages = append(pages, m.Page)
			}
		}
	}
	sort.Ints(pages)
	return pages
}
