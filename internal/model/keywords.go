package model

import "strings"

// DefaultKeywords is the keyword set given to new subscribers when no
// configuration overrides it.
var DefaultKeywords = []string{
	"Convita",
	"mg gestão ambiental",
	"Bioparque Zoobotânico",
	"r m estrutura e pavimentação",
	"Luiz Francisco do Rego Monteiro",
	"Lumig",
	"Molla",
}

// NormalizeKeyword trims a keyword and collapses inner whitespace.
func NormalizeKeyword(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeKeywords returns a copy of kws with empty entries removed and
// duplicates dropped, keeping first-seen order. Keywords differing only in
// case or accents are duplicates.
func NormalizeKeywords(kws []string) []string {
	out := make([]string, 0, len(kws))
	for _, kw := range kws {
		kw = NormalizeKeyword(kw)
		if kw == "" || indexKeyword(out, kw) >= 0 {
			continue
		}
		out = append(out, kw)
	}
	return out
}

// AddKeyword appends kw to kws. It reports false when kw is empty or
// already present, ignoring case and accents.
func AddKeyword(kws []string, kw string) ([]string, bool) {
	kw = NormalizeKeyword(kw)
	if kw == "" || indexKeyword(kws, kw) >= 0 {
		return kws, false
	}
	out := make([]string, len(kws), len(kws)+1)
	copy(out, kws)
	return append(out, kw), true
}

// RemoveKeyword removes kw from kws, ignoring case and accents, and returns
// the stored spelling of the removed keyword.
func RemoveKeyword(kws []string, kw string) ([]string, string, bool) {
	i := indexKeyword(kws, NormalizeKeyword(kw))
	if i < 0 {
		return kws, "", false
	}
	removed := kws[i]
	out := make([]string, 0, len(kws)-1)
	out = append(out, kws[:i]...)
	out = append(out, kws[i+1:]...)
	return out, removed, true
}

func indexKeyword(kws []string, kw string) int {
	key := FoldKeyword(kw)
	for i, k := range kws {
		if FoldKeyword(k) == key {
			return i
		}
	}
	return -1
}
