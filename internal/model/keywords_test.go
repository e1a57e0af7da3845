package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeKeywords(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "trims and collapses whitespace",
			in:   []string{"  mg   gestão\tambiental "},
			want: []string{"mg gestão ambiental"},
		},
		{
			name: "drops empty entries",
			in:   []string{"", "   ", "Lumig"},
			want: []string{"Lumig"},
		},
		{
			name: "case-insensitive dedupe keeps first spelling",
			in:   []string{"Convita", "CONVITA", "convita", "Molla"},
			want: []string{"Convita", "Molla"},
		},
		{
			name: "accent-insensitive dedupe keeps first spelling",
			in:   []string{"Gestão", "Gestao", "GESTÃO", "mg  gestão"},
			want: []string{"Gestão", "mg gestão"},
		},
		{
			name: "nil input",
			in:   nil,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeKeywords(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("NormalizeKeywords() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAddKeyword(t *testing.T) {
	tests := []struct {
		name   string
		kws    []string
		kw     string
		want   []string
		wantOK bool
	}{
		{
			name:   "append new keyword",
			kws:    []string{"Convita"},
			kw:     " Lumig ",
			want:   []string{"Convita", "Lumig"},
			wantOK: true,
		},
		{
			name:   "duplicate differing in case",
			kws:    []string{"Convita"},
			kw:     "convita",
			want:   []string{"Convita"},
			wantOK: false,
		},
		{
			name:   "duplicate differing in accents",
			kws:    []string{"Bioparque Zoobotânico"},
			kw:     "bioparque zoobotanico",
			want:   []string{"Bioparque Zoobotânico"},
			wantOK: false,
		},
		{
			name:   "empty keyword",
			kws:    []string{"Convita"},
			kw:     "   ",
			want:   []string{"Convita"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AddKeyword(tt.kws, tt.kw)
			if diff := cmp.Diff(tt.wantOK, ok); diff != "" {
				t.Errorf("ok mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("keywords mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAddKeywordDoesNotAlias(t *testing.T) {
	base := make([]string, 1, 4)
	base[0] = "Convita"
	a, _ := AddKeyword(base, "Lumig")
	b, _ := AddKeyword(base, "Molla")
	if diff := cmp.Diff([]string{"Convita", "Lumig"}, a); diff != "" {
		t.Errorf("first append clobbered (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Convita", "Molla"}, b); diff != "" {
		t.Errorf("second append mismatch (-want +got):\n%s", diff)
	}
}

func TestRemoveKeyword(t *testing.T) {
	kws := []string{"Convita", "Lumig", "Molla"}

	got, removed, ok := RemoveKeyword(kws, "LUMIG")
	if !ok {
		t.Fatal("expected keyword to be removed")
	}
	if diff := cmp.Diff("Lumig", removed); diff != "" {
		t.Errorf("removed spelling (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Convita", "Molla"}, got); diff != "" {
		t.Errorf("remaining (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Convita", "Lumig", "Molla"}, kws); diff != "" {
		t.Errorf("input mutated (-want +got):\n%s", diff)
	}

	got, removed, ok = RemoveKeyword([]string{"Gestão", "Lumig"}, "gestao")
	if !ok {
		t.Fatal("expected accent-insensitive removal")
	}
	if diff := cmp.Diff("Gestão", removed); diff != "" {
		t.Errorf("removed spelling (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Lumig"}, got); diff != "" {
		t.Errorf("remaining (-want +got):\n%s", diff)
	}

	if _, _, ok := RemoveKeyword(kws, "absent"); ok {
		t.Error("expected absent keyword to report false")
	}
}

func TestSearchResultHelpers(t *testing.T) {
	r := SearchResult{
		Keywords: []string{"Convita", "Lumig", "Molla"},
		Matches: map[string][]Match{
			"Convita": {{Keyword: "Convita", Page: 1}, {Keyword: "Convita", Page: 1}, {Keyword: "Convita", Page: 4}},
			"Lumig":   {},
			"Molla":   {{Keyword: "Molla", Page: 2}},
		},
	}

	if diff := cmp.Diff(4, r.Total()); diff != "" {
		t.Errorf("Total (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Convita", "Molla"}, r.Found()); diff != "" {
		t.Errorf("Found (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2, 4}, r.Pages()); diff != "" {
		t.Errorf("Pages (-want +got):\n%s", diff)
	}
	want := []PageCount{{Page: 1, Count: 2}, {Page: 4, Count: 1}}
	if diff := cmp.Diff(want, CountByPage(r.Matches["Convita"])); diff != "" {
		t.Errorf("CountByPage (-want +got):\n%s", diff)
	}
}

func TestFoldKeyword(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "  Bioparque   Zoobotânico ", want: "bioparque zoobotanico"},
		{in: "PAVIMENTAÇÃO", want: "pavimentacao"},
		{in: "mg\tgestão\nambiental", want: "mg gestao ambiental"},
		{in: "   ", want: ""},
	}

	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, FoldKeyword(tt.in)); diff != "" {
			t.Errorf("FoldKeyword(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}
