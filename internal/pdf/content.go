package pdf

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"gazette_bot/internal/model"
)

// Glyph boxes span from descent below the baseline to ascent above it,
// in ems.
const (
	ascent  = 0.8
	descent = 0.2
)

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokString
	tokName
	tokArrayStart
	tokArrayEnd
	tokDictStart
	tokDictEnd
	tokOperator
)

type token struct {
	kind tokenKind
	num  float64
	str  []byte // decoded bytes for strings, raw text otherwise
}

// lexer splits a page content stream into tokens.
type lexer struct {
	data []byte
	pos  int
}

func isWhite(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *lexer) next() (token, bool) {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		switch {
		case isWhite(c):
			l.pos++
		case c == '%':
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
		case c == '(':
			l.pos++
			return token{kind: tokString, str: l.literal()}, true
		case c == '<':
			if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
				l.pos += 2
				return token{kind: tokDictStart}, true
			}
			l.pos++
			return token{kind: tokString, str: l.hex()}, true
		case c == '>':
			l.pos++
			if l.pos < len(l.data) && l.data[l.pos] == '>' {
				l.pos++
			}
			return token{kind: tokDictEnd}, true
		case c == '[':
			l.pos++
			return token{kind: tokArrayStart}, true
		case c == ']':
			l.pos++
			return token{kind: tokArrayEnd}, true
		case c == '{' || c == '}' || c == ')':
			l.pos++
		case c == '/':
			l.pos++
			return token{kind: tokName, str: l.word()}, true
		default:
			w := l.word()
			if len(w) == 0 {
				l.pos++
				continue
			}
			if n, err := strconv.ParseFloat(string(w), 64); err == nil {
				return token{kind: tokNumber, num: n}, true
			}
			return token{kind: tokOperator, str: w}, true
		}
	}
	return token{}, false
}

func (l *lexer) word() []byte {
	start := l.pos
	for l.pos < len(l.data) && !isWhite(l.data[l.pos]) && !isDelim(l.data[l.pos]) {
		l.pos++
	}
	return l.data[start:l.pos]
}

// literal reads a (...) string after the opening parenthesis, resolving
// escapes and balanced inner parentheses.
func (l *lexer) literal() []byte {
	var out []byte
	depth := 1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out
			}
			out = append(out, c)
		case '\\':
			if l.pos >= len(l.data) {
				return out
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b':
				out = append(out, '\b')
			case 'f':
				out = append(out, '\f')
			case '\r':
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; i++ {
						v = v*8 + int(l.data[l.pos]-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		default:
			out = append(out, c)
		}
	}
	return out
}

func (l *lexer) hex() []byte {
	var out []byte
	var hi byte
	half := false
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		if c == '>' {
			break
		}
		v, ok := hexVal(c)
		if !ok {
			continue
		}
		if half {
			out = append(out, hi<<4|v)
		} else {
			hi = v
		}
		half = !half
	}
	if half {
		out = append(out, hi<<4)
	}
	return out
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// skipInlineImage advances past the binary data of an inline image (BI ... ID data EI).
func (l *lexer) skipInlineImage() {
	for l.pos+2 <= len(l.data) {
		i := bytes.Index(l.data[l.pos:], []byte("EI"))
		if i < 0 {
			l.pos = len(l.data)
			return
		}
		at := l.pos + i
		l.pos = at + 2
		before := at == 0 || isWhite(l.data[at-1])
		after := l.pos >= len(l.data) || isWhite(l.data[l.pos])
		if before && after {
			return
		}
	}
	l.pos = len(l.data)
}

// matrix is a PDF transformation [a b c d e f].
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// mul returns m × n (m applied first).
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return x*m[0] + y*m[2] + m[4], x*m[1] + y*m[3] + m[5]
}

func translate(tx, ty float64) matrix {
	return matrix{1, 0, 0, 1, tx, ty}
}

// gstate is the part of the graphics state saved by q and restored by Q.
type gstate struct {
	ctm     matrix
	font    *font
	size    float64
	leading float64
	charSp  float64
	wordSp  float64
	hscale  float64
}

// textState tracks the graphics and text state needed to position text.
type textState struct {
	gstate
	stack    []gstate
	tm, tlm  matrix
	res      resources
	depth    int
	spans    []model.TextSpan
	operands []token
}

// parseContent interprets a page content stream and returns the text it
// shows. res resolves the fonts and forms the stream names; with nil
// resources every string is read as WinAnsi text.
func parseContent(data []byte, res resources) []model.TextSpan {
	s := &textState{
		gstate: gstate{ctm: identity, font: defaultFont, size: 12, hscale: 1},
		tm:     identity,
		tlm:    identity,
		res:    res,
	}
	s.run(data)
	return s.spans
}

func (s *textState) run(data []byte) {
	l := &lexer{data: data}
	var array []token
	inArray := false
	dictDepth := 0

	for {
		tok, ok := l.next()
		if !ok {
			return
		}
		switch tok.kind {
		case tokDictStart:
			dictDepth++
			continue
		case tokDictEnd:
			if dictDepth > 0 {
				dictDepth--
			}
			continue
		}
		if dictDepth > 0 {
			continue
		}
		switch tok.kind {
		case tokArrayStart:
			inArray = true
			array = array[:0]
		case tokArrayEnd:
			inArray = false
		case tokOperator:
			if inArray {
				continue
			}
			op := string(tok.str)
			s.exec(op, array)
			if op == "ID" {
				l.skipInlineImage()
			}
			s.operands = s.operands[:0]
		default:
			if inArray {
				array = append(array, tok)
			} else {
				s.operands = append(s.operands, tok)
			}
		}
	}
}

func (s *textState) num(i int) float64 {
	if i < 0 || i >= len(s.operands) || s.operands[i].kind != tokNumber {
		return 0
	}
	return s.operands[i].num
}

// name returns operand i when it is a name.
func (s *textState) name(i int) (string, bool) {
	if i < 0 || i >= len(s.operands) || s.operands[i].kind != tokName {
		return "", false
	}
	return string(s.operands[i].str), true
}

// lastString returns the last string operand, if any.
func (s *textState) lastString() ([]byte, bool) {
	for i := len(s.operands) - 1; i >= 0; i-- {
		if s.operands[i].kind == tokString {
			return s.operands[i].str, true
		}
	}
	return nil, false
}

func (s *textState) exec(op string, array []token) {
	n := len(s.operands)
	switch op {
	case "q":
		s.stack = append(s.stack, s.gstate)
	case "Q":
		if k := len(s.stack); k > 0 {
			s.gstate = s.stack[k-1]
			s.stack = s.stack[:k-1]
		}
	case "cm":
		if n >= 6 {
			s.ctm = matrix{s.num(0), s.num(1), s.num(2), s.num(3), s.num(4), s.num(5)}.mul(s.ctm)
		}
	case "BT":
		s.tm, s.tlm = identity, identity
	case "Tf":
		if n >= 2 {
			s.size = s.num(n - 1)
			s.font = defaultFont
			if name, ok := s.name(n - 2); ok && s.res != nil {
				s.font = s.res.font(name)
			}
		}
	case "TL":
		s.leading = s.num(n - 1)
	case "Tc":
		s.charSp = s.num(n - 1)
	case "Tw":
		s.wordSp = s.num(n - 1)
	case "Tz":
		s.hscale = s.num(n-1) / 100
	case "Td":
		s.moveText(s.num(n-2), s.num(n-1))
	case "TD":
		s.leading = -s.num(n - 1)
		s.moveText(s.num(n-2), s.num(n-1))
	case "Tm":
		if n >= 6 {
			s.tlm = matrix{s.num(0), s.num(1), s.num(2), s.num(3), s.num(4), s.num(5)}
			s.tm = s.tlm
		}
	case "T*":
		s.moveText(0, -s.leading)
	case "Tj":
		if str, ok := s.lastString(); ok {
			s.show(str)
		}
	case "'":
		s.moveText(0, -s.leading)
		if str, ok := s.lastString(); ok {
			s.show(str)
		}
	case "\"":
		if n >= 3 {
			s.wordSp, s.charSp = s.num(0), s.num(1)
		}
		s.moveText(0, -s.leading)
		if str, ok := s.lastString(); ok {
			s.show(str)
		}
	case "TJ":
		s.showArray(array)
	case "Do":
		if name, ok := s.name(n - 1); ok {
			s.drawForm(name)
		}
	}
}

// drawForm interprets a form XObject with the current graphics state,
// collecting its text as part of this stream.
func (s *textState) drawForm(name string) {
	if s.res == nil || s.depth >= maxFormDepth {
		return
	}
	f, ok := s.res.form(name)
	if !ok {
		return
	}
	sub := &textState{
		gstate: s.gstate,
		tm:     identity,
		tlm:    identity,
		res:    f.res,
		depth:  s.depth + 1,
	}
	sub.ctm = f.matrix.mul(s.ctm)
	sub.run(f.content)
	s.spans = append(s.spans, sub.spans...)
}

func (s *textState) moveText(tx, ty float64) {
	s.tlm = translate(tx, ty).mul(s.tlm)
	s.tm = s.tlm
}

// advance returns the horizontal displacement of g, in text space.
func (s *textState) advance(g glyph) float64 {
	w := g.width/1000*s.size + s.charSp
	if g.space {
		w += s.wordSp
	}
	return w * s.hscale
}

func (s *textState) show(str []byte) {
	var b strings.Builder
	adv := 0.0
	for _, g := range s.font.decode(str) {
		b.WriteString(g.text)
		adv += s.advance(g)
	}
	s.emit(b.String(), adv)
}

// showArray handles TJ: strings separated by kerning adjustments in
// thousandths of an em. An adjustment wider than a quarter em is read as
// a word gap.
func (s *textState) showArray(array []token) {
	var b strings.Builder
	adv := 0.0
	for _, t := range array {
		switch t.kind {
		case tokString:
			for _, g := range s.font.decode(t.str) {
				b.WriteString(g.text)
				adv += s.advance(g)
			}
		case tokNumber:
			adv -= t.num / 1000 * s.size * s.hscale
			if -t.num > 250 && b.Len() > 0 && !strings.HasSuffix(b.String(), " ") {
				b.WriteByte(' ')
			}
		}
	}
	s.emit(b.String(), adv)
}

// emit records text as a span covering adv units and moves past it.
func (s *textState) emit(text string, adv float64) {
	if text != "" {
		s.spans = append(s.spans, model.TextSpan{Text: text, Box: s.box(adv)})
	}
	s.tm = translate(adv, 0).mul(s.tm)
}

// box returns the bounding box in user space of a run advancing adv units.
func (s *textState) box(adv float64) model.Rect {
	m := s.tm.mul(s.ctm)
	xs := [4]float64{}
	ys := [4]float64{}
	xs[0], ys[0] = m.apply(0, -descent*s.size)
	xs[1], ys[1] = m.apply(adv, -descent*s.size)
	xs[2], ys[2] = m.apply(0, ascent*s.size)
	xs[3], ys[3] = m.apply(adv, ascent*s.size)
	r := model.Rect{X0: math.Inf(1), Y0: math.Inf(1), X1: math.Inf(-1), Y1: math.Inf(-1)}
	for i := range xs {
		r.X0 = math.Min(r.X0, xs[i])
		r.X1 = math.Max(r.X1, xs[i])
		r.Y0 = math.Min(r.Y0, ys[i])
		r.Y1 = math.Max(r.Y1, ys[i])
	}
	return r
}
