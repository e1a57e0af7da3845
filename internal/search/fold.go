package search

import (
	"unicode"

	"gazette_bot/internal/model"
)

// folded is page text reduced for comparison: accents removed, lower-cased,
// whitespace runs collapsed to one space. origin maps every folded rune
// back to the index of the source rune it came from.
type folded struct {
	runes  []rune
	origin []int
}

func fold(src []rune) folded {
	f := folded{runes: make([]rune, 0, len(src)), origin: make([]int, 0, len(src))}
	for i, r := range src {
		if unicode.IsSpace(r) {
			if n := len(f.runes); n == 0 || f.runes[n-1] == ' ' {
				continue
			}
			f.runes = append(f.runes, ' ')
			f.origin = append(f.origin, i)
			continue
		}
		n := len(f.runes)
		f.runes = model.AppendFolded(f.runes, r)
		for range len(f.runes) - n {
			f.origin = append(f.origin, i)
		}
	}
	return f
}

// index returns the first position at or after from where needle occurs in
// hay, or -1.
func index(hay, needle []rune, from int) int {
	if len(needle) == 0 {
		return -1
	}
outer:
	for i := from; i+len(needle) <= len(hay); i++ {
		for j, r := range needle {
			if hay[i+j] != r {
				continue outer
			}
		}
		return i
	}
	return -1
}
