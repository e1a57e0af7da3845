// Package pdftest builds small, valid PDF documents for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Line positions used by Build: the first line of every page is drawn at
// (LeftMargin, TopLine) and each next line LineHeight points lower, in
// 12pt Helvetica.
const (
	LeftMargin = 72
	TopLine    = 720
	LineHeight = 20
	FontSize   = 12
)

// Type0 font metrics used by BuildType0. Character codes are two-byte
// glyph ids, GlyphOffset below the Unicode value of the letter they draw,
// the layout of a TrueType font subset in standard Macintosh order.
const (
	GlyphOffset = 29
	GlyphWidth  = 600
)

// writer numbers objects from 1 and records their offsets for the xref table.
type writer struct {
	b       bytes.Buffer
	offsets []int
}

func newWriter() *writer {
	w := &writer{}
	w.b.WriteString("%PDF-1.4\n")
	return w
}

func (w *writer) obj(body string) int {
	w.offsets = append(w.offsets, w.b.Len())
	fmt.Fprintf(&w.b, "%d 0 obj\n%s\nendobj\n", len(w.offsets), body)
	return len(w.offsets)
}

func (w *writer) stream(dict, data string) int {
	return w.obj(fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data))
}

func (w *writer) finish() []byte {
	xref := w.b.Len()
	fmt.Fprintf(&w.b, "xref\n0 %d\n0000000000 65535 f \n", len(w.offsets)+1)
	for _, off := range w.offsets {
		fmt.Fprintf(&w.b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&w.b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(w.offsets)+1, xref)
	return w.b.Bytes()
}

// Build returns a PDF with one page per element of pages; each page shows
// its lines top to bottom.
func Build(pages ...[]string) []byte {
	w := newWriter()

	// 1 catalog, 2 page tree, 3 font, then a page and a content object per page.
	kids := ""
	for i := range pages {
		kids += fmt.Sprintf("%d 0 R ", 4+2*i)
	}
	w.obj("<< /Type /Catalog /Pages 2 0 R >>")
	w.obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages)))
	w.obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	for i, lines := range pages {
		w.obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>", 5+2*i))
		w.stream("", showLines(lines, literal))
	}
	return w.finish()
}

// BuildForm returns a one-page PDF whose lines are drawn by a form
// XObject shifted 10 points up, with the font named only in the form's
// own resources.
func BuildForm(lines ...string) []byte {
	w := newWriter()
	w.obj("<< /Type /Catalog /Pages 2 0 R >>")
	w.obj("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	w.obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /XObject << /Fm1 5 0 R >> >> >>")
	w.stream("", "q /Fm1 Do Q")
	w.stream("/Type /XObject /Subtype /Form /BBox [0 0 612 792] /Matrix [1 0 0 1 0 10] /Resources << /Font << /F1 6 0 R >> >>",
		showLines(lines, literal))
	w.obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	return w.finish()
}

// BuildType0 returns a one-page PDF showing lines with an Identity-H
// Type0 font. The text is only recoverable through the font's ToUnicode
// CMap.
func BuildType0(lines ...string) []byte {
	w := newWriter()
	w.obj("<< /Type /Catalog /Pages 2 0 R >>")
	w.obj("<< /Type /Pages /Kids [3 0 R] /Count 1 >>")
	w.obj("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>")
	w.stream("", showLines(lines, glyphIDs))
	w.obj("<< /Type /Font /Subtype /Type0 /BaseFont /ABCDEF+Arial /Encoding /Identity-H /DescendantFonts [6 0 R] /ToUnicode 8 0 R >>")
	w.obj(fmt.Sprintf("<< /Type /Font /Subtype /CIDFontType2 /BaseFont /ABCDEF+Arial "+
		"/CIDSystemInfo << /Registry (Adobe) /Ordering (Identity) /Supplement 0 >> "+
		"/FontDescriptor 7 0 R /CIDToGIDMap /Identity /DW 1000 /W [3 400 %d] >>", GlyphWidth))
	w.obj("<< /Type /FontDescriptor /FontName /ABCDEF+Arial /Flags 32 /FontBBox [-665 -325 2000 1006] " +
		"/ItalicAngle 0 /Ascent 905 /Descent -212 /CapHeight 716 /StemV 80 >>")
	w.stream("", toUnicode(lines))
	return w.finish()
}

// WriteFile builds a PDF and stores it under t.TempDir, returning its path.
func WriteFile(t *testing.T, name string, pages ...[]string) string {
	t.Helper()
	return WriteData(t, name, Build(pages...))
}

// WriteData stores an already built PDF under t.TempDir, returning its path.
func WriteData(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write pdf fixture: %v", err)
	}
	return path
}

func showLines(lines []string, encode func(string) string) string {
	var cs strings.Builder
	for j, line := range lines {
		fmt.Fprintf(&cs, "BT\n/F1 %d Tf\n1 0 0 1 %d %d Tm\n%s Tj\nET\n",
			FontSize, LeftMargin, TopLine-j*LineHeight, encode(line))
	}
	return cs.String()
}

// literal encodes s as a PDF literal string in WinAnsi, using octal
// escapes for non-ASCII Latin-1 letters.
func literal(s string) string {
	var b strings.Builder
	b.WriteByte('(')
	for _, r := range s {
		switch {
		case r == '(' || r == ')' || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r < 0x80:
			b.WriteRune(r)
		case r <= 0xFF:
			fmt.Fprintf(&b, "\\%03o", r)
		default:
			b.WriteByte('?')
		}
	}
	b.WriteByte(')')
	return b.String()
}

// glyphIDs encodes s as a hex string of two-byte glyph ids.
func glyphIDs(s string) string {
	var b strings.Builder
	b.WriteByte('<')
	for _, r := range s {
		fmt.Fprintf(&b, "%04X", r-GlyphOffset)
	}
	b.WriteByte('>')
	return b.String()
}

// toUnicode returns a CMap mapping every glyph id used by lines back to
// its letter.
func toUnicode(lines []string) string {
	seen := map[rune]bool{}
	var chars []rune
	for _, line := range lines {
		for _, r := range line {
			if !seen[r] {
				seen[r] = true
				chars = append(chars, r)
			}
		}
	}

	var b strings.Builder
	b.WriteString("/CIDInit /ProcSet findresource begin\n12 dict begin\nbegincmap\n")
	b.WriteString("/CMapName /Adobe-Identity-UCS def\n/CMapType 2 def\n")
	b.WriteString("1 begincodespacerange\n<0000> <FFFF>\nendcodespacerange\n")
	for len(chars) > 0 {
		n := min(len(chars), 100)
		fmt.Fprintf(&b, "%d beginbfchar\n", n)
		for _, r := range chars[:n] {
			fmt.Fprintf(&b, "<%04X> <%04X>\n", r-GlyphOffset, r)
		}
		b.WriteString("endbfchar\n")
		chars = chars[n:]
	}
	b.WriteString("endcmap\nCMapName currentdict /CMap defineresource pop\nend\nend\n")
	return b.String()
}
