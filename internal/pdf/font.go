package pdf

import (
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// missingWidth is the advance, in thousandths of an em, of glyphs whose
// font gives no width.
const missingWidth = 500

// glyph is one decoded character code.
type glyph struct {
	text  string
	width float64 // thousandths of an em
	space bool    // single-byte code 32, widened by word spacing
}

// font decodes the strings shown with one PDF font.
type font struct {
	codeLen   int // bytes per character code
	encoding  [256]string
	toUnicode map[uint32]string
	widths    map[uint32]float64
	missing   float64
	scale     float64 // glyph space to thousandths of an em
}

// defaultFont reads strings as WinAnsi text when the font is unknown.
var defaultFont = newSimpleFont()

func newSimpleFont() *font {
	return &font{
		codeLen:  1,
		encoding: winAnsiEncoding,
		widths:   map[uint32]float64{},
		missing:  missingWidth,
		scale:    1,
	}
}

func (f *font) decode(b []byte) []glyph {
	n := f.codeLen
	out := make([]glyph, 0, len(b)/n)
	for i := 0; i+n <= len(b); i += n {
		var code uint32
		for _, c := range b[i : i+n] {
			code = code<<8 | uint32(c)
		}
		g := glyph{width: f.width(code), space: n == 1 && code == ' '}
		if s, ok := f.toUnicode[code]; ok {
			g.text = s
		} else if n == 1 {
			g.text = f.encoding[code]
		}
		out = append(out, g)
	}
	return out
}

func (f *font) width(code uint32) float64 {
	if w, ok := f.widths[code]; ok {
		return w * f.scale
	}
	return f.missing * f.scale
}

var (
	winAnsiEncoding  = byteEncoding(charmap.Windows1252)
	macRomanEncoding = byteEncoding(charmap.Macintosh)
)

func byteEncoding(cm *charmap.Charmap) [256]string {
	var enc [256]string
	for i := range enc {
		r := cm.DecodeByte(byte(i))
		if r < 0x20 || (r >= 0x7F && r < 0xA0) || r == utf8.RuneError {
			continue
		}
		enc[i] = string(r)
	}
	return enc
}

// baseEncoding returns the named simple font encoding. StandardEncoding
// shares the ASCII range with WinAnsi, which is all it is used for here.
func baseEncoding(name string) [256]string {
	if name == "MacRomanEncoding" {
		return macRomanEncoding
	}
	return winAnsiEncoding
}

var glyphNames = map[string]string{
	"space": " ", "nbspace": " ", "nonbreakingspace": " ",
	"exclam": "!", "quotedbl": "\"", "numbersign": "#", "dollar": "$",
	"percent": "%", "ampersand": "&", "quotesingle": "'", "quoteright": "’",
	"quoteleft": "‘", "parenleft": "(", "parenright": ")", "asterisk": "*",
	"plus": "+", "comma": ",", "hyphen": "-", "minus": "−", "period": ".",
	"slash": "/", "colon": ":", "semicolon": ";", "less": "<", "equal": "=",
	"greater": ">", "question": "?", "at": "@", "bracketleft": "[",
	"backslash": "\\", "bracketright": "]", "asciicircum": "^",
	"underscore": "_", "grave": "`", "braceleft": "{", "bar": "|",
	"braceright": "}", "asciitilde": "~",
	"zero": "0", "one": "1", "two": "2", "three": "3", "four": "4",
	"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
	"endash": "–", "emdash": "—", "bullet": "•", "ellipsis": "…",
	"quotedblleft": "“", "quotedblright": "”", "quotesinglbase": "‚",
	"quotedblbase": "„", "guillemotleft": "«", "guillemotright": "»",
	"degree": "°", "ordfeminine": "ª", "ordmasculine": "º", "section": "§",
	"paragraph": "¶", "copyright": "©", "registered": "®", "trademark": "™",
	"periodcentered": "·", "multiply": "×", "divide": "÷", "sterling": "£",
	"Euro": "€", "cent": "¢", "yen": "¥", "currency": "¤",
	"exclamdown": "¡", "questiondown": "¿", "dotlessi": "ı", "mu": "µ",
	"germandbls": "ß", "ae": "æ", "AE": "Æ", "oe": "œ", "OE": "Œ",
	"oslash": "ø", "Oslash": "Ø", "fi": "fi", "fl": "fl", "ff": "ff",
	"ffi": "ffi", "ffl": "ffl", "onehalf": "½", "onequarter": "¼",
	"threequarters": "¾", "dagger": "†", "daggerdbl": "‡",
}

// accents maps glyph name suffixes to combining marks.
var accents = map[string]rune{
	"acute":      '\u0301',
	"grave":      '\u0300',
	"circumflex": '\u0302',
	"tilde":      '\u0303',
	"dieresis":   '\u0308',
	"ring":       '\u030A',
	"cedilla":    '\u0327',
	"caron":      '\u030C',
}

// glyphText returns the text of a glyph name, or "" when it is unknown.
func glyphText(name string) string {
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	if s, ok := glyphNames[name]; ok {
		return s
	}
	if len(name) == 1 && (name[0] >= 'a' && name[0] <= 'z' || name[0] >= 'A' && name[0] <= 'Z') {
		return name
	}
	if hex, ok := strings.CutPrefix(name, "uni"); ok && len(hex) >= 4 {
		if v, err := strconv.ParseUint(hex[:4], 16, 32); err == nil {
			return string(rune(v))
		}
	}
	if hex, ok := strings.CutPrefix(name, "u"); ok && len(hex) >= 4 && len(hex) <= 6 {
		if v, err := strconv.ParseUint(hex, 16, 32); err == nil {
			return string(rune(v))
		}
	}
	if len(name) > 1 {
		if mark, ok := accents[name[1:]]; ok {
			return norm.NFC.String(name[:1] + string(mark))
		}
	}
	return ""
}

// parseCMap reads the bfchar and bfrange mappings of a ToUnicode CMap.
func parseCMap(data []byte) map[uint32]string {
	m := make(map[uint32]string)
	l := &lexer{data: data}
	for {
		tok, ok := l.next()
		if !ok {
			return m
		}
		if tok.kind != tokOperator {
			continue
		}
		switch string(tok.str) {
		case "beginbfchar":
			readBFChar(l, m)
		case "beginbfrange":
			readBFRange(l, m)
		}
	}
}

func readBFChar(l *lexer, m map[uint32]string) {
	for {
		src, ok := l.next()
		if !ok || src.kind != tokString {
			return
		}
		dst, ok := l.next()
		if !ok {
			return
		}
		switch dst.kind {
		case tokString:
			m[code(src.str)] = unicodeText(utf16Units(dst.str))
		case tokName:
			m[code(src.str)] = glyphText(string(dst.str))
		}
	}
}

func readBFRange(l *lexer, m map[uint32]string) {
	for {
		lo, ok := l.next()
		if !ok || lo.kind != tokString {
			return
		}
		hi, ok := l.next()
		if !ok || hi.kind != tokString {
			return
		}
		dst, ok := l.next()
		if !ok {
			return
		}
		first, last := code(lo.str), code(hi.str)
		valid := last >= first && last-first <= 0xFFFF

		switch dst.kind {
		case tokString:
			u := utf16Units(dst.str)
			for c := first; valid && c <= last && len(u) > 0; c++ {
				m[c] = unicodeText(u)
				next := make([]uint16, len(u))
				copy(next, u)
				next[len(next)-1]++
				u = next
			}
		case tokArrayStart:
			c := first
			for {
				t, ok := l.next()
				if !ok || t.kind == tokArrayEnd {
					break
				}
				if t.kind == tokString && valid && c <= last {
					m[c] = unicodeText(utf16Units(t.str))
				}
				c++
			}
		}
	}
}

func code(b []byte) uint32 {
	var c uint32
	for _, x := range b {
		c = c<<8 | uint32(x)
	}
	return c
}

func utf16Units(b []byte) []uint16 {
	u := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
	}
	if len(b)%2 == 1 {
		u = append(u, uint16(b[len(b)-1]))
	}
	return u
}

// unicodeText decodes UTF-16 units, dropping control characters.
func unicodeText(u []uint16) string {
	rs := utf16.Decode(u)
	out := rs[:0]
	for _, r := range rs {
		if r >= 0x20 && r != 0xFEFF {
			out = append(out, r)
		}
	}
	return string(out)
}
