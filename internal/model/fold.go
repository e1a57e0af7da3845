package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// AppendFolded appends the comparison form of r to dst: lower case with
// diacritics removed. One source rune may fold to several.
func AppendFolded(dst []rune, r rune) []rune {
	if r < unicode.MaxASCII {
		return append(dst, unicode.ToLower(r))
	}
	for _, d := range norm.NFD.String(string(r)) {
		if unicode.Is(unicode.Mn, d) {
			continue
		}
		dst = append(dst, unicode.ToLower(d))
	}
	return dst
}

// FoldKeyword returns the comparison form of a keyword: whitespace
// collapsed, lower case and without diacritics. Keywords with the same form
// are duplicates.
func FoldKeyword(kw string) string {
	var r []rune
	for i, word := range strings.Fields(kw) {
		if i > 0 {
			r = append(r, ' ')
		}
		for _, c := range word {
			r = AppendFolded(r, c)
		}
	}
	return string(r)
}
