package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gazette_bot/internal/model"
)

const commandList = `*Comandos disponíveis:*
/start - Inscreve você nas notificações automáticas
/help - Exibe esta mensagem
/edicao - Mostra a edição atual
/baixar - Baixa o PDF da edição atual
/palavras - Lista suas palavras-chave
/adicionar <palavra> - Adiciona uma palavra-chave
/remover <palavra> - Remove uma palavra-chave
/limpar - Remove todas as palavras-chave
/resetar - Volta para palavras-chave padrão
/pesquisar - Pesquisa suas palavras-chave na edição atual
/buscar <termo> - Busca um termo específico (sem salvar)
/cache - Limpa cache (para baixar nova edição)
/desinscrever - Cancela notificações automáticas`

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func bulletList(kws []string) string {
	lines := make([]string, len(kws))
	for i, kw := range kws {
		lines[i] = "• " + escape(kw)
	}
	return strings.Join(lines, "\n")
}

// FormatWelcome formats the reply to /start.
func FormatWelcome(keywords []string, notifyAt string, subscribers int, joined bool) string {
	var b strings.Builder
	b.WriteString("🏛️ *Bot do Diário Oficial dos Municípios*\n\n")
	b.WriteString("Bem-vindo! Este bot pesquisa palavras-chave no Diário Oficial dos Municípios do Piauí.\n\n")
	b.WriteString(commandList)
	b.WriteString("\n\n*Suas palavras-chave atuais:*\n")
	if len(keywords) == 0 {
		b.WriteString("(nenhuma)")
	} else {
		b.WriteString(bulletList(keywords))
	}
	fmt.Fprintf(&b, "\n\n⏰ *Pesquisa automática:* Diariamente às %s\n", notifyAt)
	fmt.Fprintf(&b, "👥 *Usuários inscritos:* %d", subscribers)
	if joined {
		b.WriteString("\n\n✅ *Você foi inscrito nas notificações automáticas!*")
	}
	b.WriteString("\n\nUse /pesquisar para buscar agora!")
	return b.String()
}

// FormatHelp formats the reply to /help.
func FormatHelp(notifyAt string, optedIn bool) string {
	status := "❌ Você não está inscrito. Use /start para se inscrever."
	if optedIn {
		status = "✅ Você está inscrito."
	}
	return fmt.Sprintf("%s\n\n⏰ *Pesquisa automática:* Diariamente às %s\n%s", commandList, notifyAt, status)
}

// FormatEdition formats the current edition metadata.
func FormatEdition(ed *model.Edition) string {
	var b strings.Builder
	b.WriteString("📰 *Diário Oficial dos Municípios*\n\n")
	fmt.Fprintf(&b, "📅 *Data:* %s\n", ed.Date)
	fmt.Fprintf(&b, "📄 *Edição:* %d\n", ed.Number)
	if ed.PageCount > 0 {
		fmt.Fprintf(&b, "📑 *Páginas:* %d\n", ed.PageCount)
	}
	if ed.URL != "" {
		fmt.Fprintf(&b, "🔗 [Link do PDF](%s)", ed.URL)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatKeywords formats a keyword set for display.
func FormatKeywords(keywords []string) string {
	if len(keywords) == 0 {
		return "📝 Você não tem palavras-chave cadastradas.\nUse `/adicionar <palavra>` para adicionar."
	}
	return "🔑 *Suas palavras-chave:*\n\n" + bulletList(keywords)
}
