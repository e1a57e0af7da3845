package pdf

import (
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// maxFormDepth bounds the nesting of form XObjects drawn inside each other.
const maxFormDepth = 8

// resources resolves the fonts and form XObjects a content stream names.
type resources interface {
	font(name string) *font
	form(name string) (*form, bool)
}

// form is a form XObject ready to be interpreted.
type form struct {
	content []byte
	matrix  matrix
	res     resources
}

// resolver loads fonts and forms of one document. Fonts are shared by
// object number across pages.
type resolver struct {
	ctx   *model.Context
	fonts map[int]*font
}

func newResolver(ctx *model.Context) *resolver {
	return &resolver{ctx: ctx, fonts: make(map[int]*font)}
}

// resources returns the resolver for one resource dictionary.
func (r *resolver) resources(dict types.Dict) *resourceDict {
	return &resourceDict{r: r, dict: dict, fonts: make(map[string]*font)}
}

type resourceDict struct {
	r     *resolver
	dict  types.Dict
	fonts map[string]*font
}

func (d *resourceDict) font(name string) *font {
	if f, ok := d.fonts[name]; ok {
		return f
	}
	f := d.r.font(d.entry("Font", name))
	d.fonts[name] = f
	return f
}

func (d *resourceDict) form(name string) (*form, bool) {
	obj := d.entry("XObject", name)
	if obj == nil {
		return nil, false
	}
	sd, _, err := d.r.ctx.DereferenceStreamDict(obj)
	if err != nil || sd == nil {
		return nil, false
	}
	if st := sd.Dict.Subtype(); st == nil || *st != "Form" {
		return nil, false
	}
	content, ok := decodeStream(sd)
	if !ok {
		return nil, false
	}

	f := &form{content: content, matrix: identity, res: d}
	if m := d.r.numbers(sd.Dict["Matrix"]); len(m) == 6 {
		f.matrix = matrix{m[0], m[1], m[2], m[3], m[4], m[5]}
	}
	if obj, ok := sd.Dict.Find("Resources"); ok {
		if res, err := d.r.ctx.DereferenceDict(obj); err == nil && res != nil {
			f.res = d.r.resources(res)
		}
	}
	return f, true
}

// entry returns a named member of a resource category, such as /Font /F1.
func (d *resourceDict) entry(category, name string) types.Object {
	if d.dict == nil {
		return nil
	}
	obj, ok := d.dict.Find(category)
	if !ok {
		return nil
	}
	members, err := d.r.ctx.DereferenceDict(obj)
	if err != nil || members == nil {
		return nil
	}
	o, _ := members.Find(name)
	return o
}

func (r *resolver) font(obj types.Object) *font {
	if obj == nil {
		return defaultFont
	}
	key := -1
	if ref, ok := obj.(types.IndirectRef); ok {
		key = ref.ObjectNumber.Value()
		if f, ok := r.fonts[key]; ok {
			return f
		}
	}
	d, err := r.ctx.DereferenceDict(obj)
	if err != nil || d == nil {
		return defaultFont
	}
	f := r.loadFont(d)
	if key >= 0 {
		r.fonts[key] = f
	}
	return f
}

func (r *resolver) loadFont(d types.Dict) *font {
	f := newSimpleFont()
	subtype := ""
	if st := d.Subtype(); st != nil {
		subtype = *st
	}

	switch subtype {
	case "Type0":
		// Two-byte codes naming CIDs (Identity-H and the common UCS2 CMaps).
		f.codeLen = 2
		f.missing = 1000
		r.cidWidths(f, d)
	case "Type3":
		r.simpleEncoding(f, d)
		r.simpleWidths(f, d)
		if m := r.numbers(d["FontMatrix"]); len(m) == 6 && m[0] > 0 {
			f.scale = m[0] * 1000
		}
	default:
		r.simpleEncoding(f, d)
		r.simpleWidths(f, d)
	}

	if obj, ok := d.Find("ToUnicode"); ok {
		if sd, _, err := r.ctx.DereferenceStreamDict(obj); err == nil && sd != nil {
			if data, ok := decodeStream(sd); ok {
				f.toUnicode = parseCMap(data)
			}
		}
	}
	return f
}

func (r *resolver) simpleEncoding(f *font, d types.Dict) {
	obj, ok := d.Find("Encoding")
	if !ok {
		return
	}
	obj, err := r.ctx.Dereference(obj)
	if err != nil {
		return
	}
	switch enc := obj.(type) {
	case types.Name:
		f.encoding = baseEncoding(enc.Value())
	case types.Dict:
		if base := enc.NameEntry("BaseEncoding"); base != nil {
			f.encoding = baseEncoding(*base)
		}
		diffs, err := r.ctx.DereferenceArray(enc["Differences"])
		if err == nil {
			applyDifferences(&f.encoding, diffs)
		}
	}
}

// applyDifferences overrides codes of enc with the glyph names of an
// encoding /Differences array.
func applyDifferences(enc *[256]string, diffs types.Array) {
	code := -1
	for _, o := range diffs {
		switch v := o.(type) {
		case types.Integer:
			code = v.Value()
		case types.Name:
			if code >= 0 && code < len(enc) {
				enc[code] = glyphText(v.Value())
			}
			code++
		}
	}
}

func (r *resolver) simpleWidths(f *font, d types.Dict) {
	first := 0
	if v, ok := r.number(d["FirstChar"]); ok {
		first = int(v)
	}
	widths, err := r.ctx.DereferenceArray(d["Widths"])
	if err == nil {
		for i, o := range widths {
			if w, ok := r.number(o); ok {
				f.widths[uint32(first+i)] = w
			}
		}
	}
	if desc, err := r.ctx.DereferenceDict(d["FontDescriptor"]); err == nil && desc != nil {
		if w, ok := r.number(desc["MissingWidth"]); ok && w > 0 {
			f.missing = w
		}
	}
}

// cidWidths reads /DW and /W of the descendant font. W holds runs of
// either "c [w1 w2 ...]" or "cFirst cLast w".
func (r *resolver) cidWidths(f *font, d types.Dict) {
	desc, err := r.ctx.DereferenceArray(d["DescendantFonts"])
	if err != nil || len(desc) == 0 {
		return
	}
	cid, err := r.ctx.DereferenceDict(desc[0])
	if err != nil || cid == nil {
		return
	}
	if dw, ok := r.number(cid["DW"]); ok {
		f.missing = dw
	}
	w, err := r.ctx.DereferenceArray(cid["W"])
	if err != nil {
		return
	}
	for i := 0; i+1 < len(w); {
		first, ok := r.number(w[i])
		if !ok || first < 0 {
			return
		}
		next, err := r.ctx.Dereference(w[i+1])
		if err != nil {
			return
		}
		if list, ok := next.(types.Array); ok {
			for j, o := range list {
				if v, ok := r.number(o); ok {
					f.widths[uint32(first)+uint32(j)] = v
				}
			}
			i += 2
			continue
		}
		if i+2 >= len(w) {
			return
		}
		last, ok1 := r.number(w[i+1])
		v, ok2 := r.number(w[i+2])
		if !ok1 || !ok2 || last < first || last-first > 0xFFFF {
			return
		}
		for c := uint32(first); c <= uint32(last); c++ {
			f.widths[c] = v
		}
		i += 3
	}
}

func (r *resolver) number(obj types.Object) (float64, bool) {
	if obj == nil {
		return 0, false
	}
	v, err := r.ctx.DereferenceNumber(obj)
	return v, err == nil
}

func (r *resolver) numbers(obj types.Object) []float64 {
	a, err := r.ctx.DereferenceArray(obj)
	if err != nil {
		return nil
	}
	out := make([]float64, 0, len(a))
	for _, o := range a {
		v, ok := r.number(o)
		if !ok {
			return nil
		}
		out = append(out, v)
	}
	return out
}

func decodeStream(sd *types.StreamDict) ([]byte, bool) {
	if sd.Content == nil {
		if err := sd.Decode(); err != nil {
			return nil, false
		}
	}
	return sd.Content, true
}
