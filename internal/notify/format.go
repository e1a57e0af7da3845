package notify

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gazette_bot/internal/engine"
	"gazette_bot/internal/model"
)

const maxListedPages = 10

// Matching-pages summaries quote where each keyword was found; a search
// for a single term quotes one more.
const (
	maxSnippets       = 2
	maxSnippetsSingle = 3
)

// Summary formats the result of one edition as a Markdown message: one block
// per keyword with its occurrences on each page.
func Summary(rep *engine.Report, mode model.Mode) string {
	var b strings.Builder
	ed := rep.Edition
	if mode == model.ModeFull {
		b.WriteString("📊 *Resultado da pesquisa diária*\n")
		fmt.Fprintf(&b, "📰 Edição %d (%s)\n", ed.Number, ed.Date)
	} else {
		b.WriteString("📰 *Resultado da Pesquisa*\n")
		fmt.Fprintf(&b, "📅 Edição %d - %s\n", ed.Number, ed.Date)
		fmt.Fprintf(&b, "📄 Total de páginas: %d\n", rep.Result.PageCount)
	}

	if len(rep.Result.Keywords) == 0 {
		b.WriteString("\n📝 Nenhuma palavra-chave cadastrada.")
		return b.String()
	}

	for _, kw := range rep.Result.Keywords {
		name := tgbotapi.EscapeText(tgbotapi.ModeMarkdown, kw)
		counts := model.CountByPage(rep.Result.Matches[kw])
		if len(counts) == 0 {
			fmt.Fprintf(&b, "\n❌ *%s* - não encontrado", name)
			continue
		}
		fmt.Fprintf(&b, "\n✅ *%s*\n", name)
		fmt.Fprintf(&b, "   📍 %d ocorrência(s) em %d página(s)\n", len(rep.Result.Matches[kw]), len(counts))
		fmt.Fprintf(&b, "   📄 Páginas: %s", pageList(counts))
		if mode == model.ModeMatchingPages {
			limit := maxSnippets
			if len(rep.Result.Keywords) == 1 {
				limit = maxSnippetsSingle
			}
			for _, s := range snippets(rep.Result.Matches[kw], limit) {
				fmt.Fprintf(&b, "\n   💬 \"...%s...\"", tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s))
			}
		}
	}

	if rep.Result.Total() == 0 {
		b.WriteString("\n\n📭 Nenhuma das palavras-chave foi encontrada nesta edição (0 ocorrências).")
	}
	return b.String()
}

// pageList renders page numbers with their occurrence count when above one,
// e.g. "3 (2x), 7".
func pageList(counts []model.PageCount) string {
	shown := counts
	if len(shown) > maxListedPages {
		shown = shown[:maxListedPages]
	}
	parts := make([]string, len(shown))
	for i, pc := range shown {
		parts[i] = strconv.Itoa(pc.Page)
		if pc.Count > 1 {
			parts[i] += fmt.Sprintf(" (%dx)", pc.Count)
		}
	}
	s := strings.Join(parts, ", ")
	if extra := len(counts) - len(shown); extra > 0 {
		s += fmt.Sprintf("... (+%d)", extra)
	}
	return s
}

// snippets returns up to limit distinct non-empty snippets in match order.
func snippets(ms []model.Match, limit int) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range ms {
		if len(out) == limit {
			break
		}
		if m.Snippet == "" || seen[m.Snippet] {
			continue
		}
		seen[m.Snippet] = true
		out = append(out, m.Snippet)
	}
	return out
}

// Caption describes a highlighted copy.
func Caption(rep *engine.Report, mode model.Mode) string {
	pages := len(rep.Result.Pages())
	found := strings.Join(rep.Result.Found(), ", ")
	if mode == model.ModeMatchingPages {
		return fmt.Sprintf("📰 Edição %d\n📄 Contém apenas %d página(s) com as palavras encontradas\n🔍 Destacado: %s",
			rep.Edition.Number, pages, found)
	}
	return fmt.Sprintf("📰 Edição %d\n📄 %d página(s) com palavras encontradas\n🔍 Termos: %s",
		rep.Edition.Number, pages, found)
}

// OmittedNote tells the subscriber the highlighted copy was not attached.
func OmittedNote(rep *engine.Report) string {
	return fmt.Sprintf("⚠️ *Arquivo muito grande para enviar*\n\n%s\n\nO PDF excede o limite de anexos do Telegram e foi omitido.",
		tgbotapi.EscapeText(tgbotapi.ModeMarkdown, Caption(rep, model.ModeFull)))
}
