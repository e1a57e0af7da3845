package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gazette_bot/internal/engine"
	"gazette_bot/internal/model"
	"gazette_bot/internal/notify"
	"gazette_bot/internal/storage"
)

const (
	cmdDownload = "baixar"
	maxKeywords = 50

	msgStorageError = "❌ Erro ao acessar seus dados. Tente novamente."
	msgFullTooLarge = "❌ *Arquivo muito grande!*\n\n" +
		"O PDF é maior que o limite de anexos do Telegram.\n" +
		"Use /pesquisar para receber apenas as páginas com as palavras-chave."
)

// subscriber returns the record of chatID, or a new unsaved one holding the
// default keywords.
func (b *Bot) subscriber(ctx context.Context, chatID int64) (*model.Subscriber, error) {
	sub, err := b.store.GetSubscriber(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		return &model.Subscriber{ChatID: chatID, Keywords: b.defaultKeywords()}, nil
	}
	return sub, err
}

func (b *Bot) defaultKeywords() []string {
	return model.NormalizeKeywords(b.cfg.DefaultKeywords)
}

func (b *Bot) storageFailed(chatID int64, err error) {
	b.log.Error("storage", "chat_id", chatID, "error", err)
	b.reply(chatID, msgStorageError)
}

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	sub, err := b.subscriber(ctx, chatID)
	if err != nil {
		b.storageFailed(chatID, err)
		return
	}
	joined := !sub.OptedIn
	sub.OptedIn = true
	if err := b.store.SaveSubscriber(ctx, sub); err != nil {
		b.storageFailed(chatID, err)
		return
	}
	if joined {
		b.log.Info("Subscriber opted in", "chat_id", chatID)
	}

	subs, err := b.store.ListSubscribers(ctx, true)
	if err != nil {
		b.log.Error("list subscribers", "error", err)
	}
	b.reply(chatID, FormatWelcome(sub.Keywords, b.cfg.NotifyAt, len(subs), joined))
}

func (b *Bot) handleHelp(ctx context.Context, chatID int64) {
	sub, err := b.subscriber(ctx, chatID)
	if err != nil {
		b.storageFailed(chatID, err)
		return
	}
	b.reply(chatID, FormatHelp(b.cfg.NotifyAt, sub.OptedIn))
}

func (b *Bot) handleEdition(ctx context.Context, chatID int64) {
	ed, err := b.engine.Edition(ctx)
	if err != nil {
		b.reply(chatID, engine.UserMessage(err))
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatEdition(ed))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📥 Baixar PDF", FormatCallback(cbDownload, ed.Number)),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send edition", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleDownload(ctx context.Context, chatID int64) {
	b.reply(chatID, "⏳ Baixando PDF... Isso pode demorar alguns segundos.")
	b.sendFull(ctx, chatID, 0)
}

// sendFull sends the whole current edition. When want is set and no longer
// current, the user is told which edition is sent instead.
func (b *Bot) sendFull(ctx context.Context, chatID int64, want int) {
	ed, data, err := b.engine.DownloadFull(ctx, b.cfg.MaxAttachmentBytes())
	switch {
	case errors.Is(err, engine.ErrTooLarge):
		b.reply(chatID, msgFullTooLarge)
		return
	case err != nil:
		b.reply(chatID, engine.UserMessage(err))
		return
	}
	if want != 0 && want != ed.Number {
		b.reply(chatID, fmt.Sprintf("ℹ️ A edição %d não é mais a atual. Enviando a edição %d.", want, ed.Number))
	}

	caption := fmt.Sprintf("📰 Diário Oficial - Edição %d (%s)", ed.Number, ed.Date)
	err = b.SendDocument(ctx, chatID, ed.FileName(), data, caption)
	var derr *notify.DeliveryError
	switch {
	case errors.As(err, &derr) && derr.Reason == notify.ReasonTooLarge:
		b.reply(chatID, msgFullTooLarge)
	case err != nil:
		b.log.Error("send edition document", "chat_id", chatID, "edition", ed.Number, "error", err)
	}
}

func (b *Bot) handleListKeywords(ctx context.Context, chatID int64) {
	sub, err := b.subscriber(ctx, chatID)
	if err != nil {
		b.storageFailed(chatID, err)
		return
	}
	b.reply(chatID, FormatKeywords(sub.Keywords))
}

func (b *Bot) handleAddKeyword(ctx context.Context, chatID int64, args string) {
	kw, err := ParseTerm(args)
	if err != nil {
		b.reply(chatID, "❌ Use: `/adicionar <palavra-chave>`")
		return
	}
	sub, err := b.subscriber(ctx, chatID)
	if err != nil {
		b.storageFailed(chatID, err)
		return
	}
	if len(sub.Keywords) >= maxKeywords {
		b.reply(chatID, fmt.Sprintf("⚠️ Limite de %d palavras-chave atingido.", maxKeywords))
		return
	}

	kws, added := model.AddKeyword(sub.Keywords, kw)
	if !added {
		b.reply(chatID, fmt.Sprintf("⚠️ A palavra-chave '%s' já existe.", escape(kw)))
		return
	}
	sub.Keywords = kws
	if err := b.store.SaveSubscriber(ctx, sub); err != nil {
		b.storageFailed(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ Palavra-chave '%s' adicionada com sucesso!", escape(kw)))
}

func (b *Bot) handleRemoveKeyword(ctx context.Context, chatID int64, args string) {
	kw, err := ParseTerm(args)
	if err != nil {
		b.reply(chatID, "❌ Use: `/remover <palavra-chave>`")
		return
	}
	sub, err := b.subscriber(ctx, chatID)
	if err != nil {
		b.storageFailed(chatID, err)
		return
	}

	kws, removed, ok := model.RemoveKeyword(sub.Keywords, kw)
	if !ok {
		b.reply(chatID, fmt.Sprintf("⚠️ Palavra-chave '%s' não encontrada.", escape(kw)))
		return
	}
	sub.Keywords = kws
	if err := b.store.SaveSubscriber(ctx, sub); err != nil {
		b.storageFailed(chatID, err)
		return
	}
	b.reply(chatID, fmt.Sprintf("✅ Palavra-chave '%s' removida com sucesso!", escape(removed)))
}

func (b *Bot) handleClearKeywords(ctx context.Context, chatID int64) {
	sub, err := b.subscriber(ctx, chatID)
	if err != nil {
		b.storageFailed(chatID, err)
		return
	}
	sub.Keywords = []string{}
	if err := b.store.SaveSubscriber(ctx, sub); err != nil {
		b.storageFailed(chatID, err)
		return
	}
	b.reply(chatID, "✅ Todas as palavras-chave foram removidas.")
}

func (b *Bot) handleResetKeywords(ctx context.Context, chatID int64) {
	sub, err := b.subscriber(ctx, chatID)
	if err != nil {
		b.storageFailed(chatID, err)
		return
	}
	sub.Keywords = b.defaultKeywords()
	if err := b.store.SaveSubscriber(ctx, sub); err != nil {
		b.storageFailed(chatID, err)
		return
	}
	b.reply(chatID, "✅ Palavras-chave resetadas para o padrão:\n\n"+bulletList(sub.Keywords))
}

func (b *Bot) handleSearch(ctx context.Context, chatID int64) {
	sub, err := b.subscriber(ctx, chatID)
	if err != nil {
		b.storageFailed(chatID, err)
		return
	}
	if len(sub.Keywords) == 0 {
		b.reply(chatID, "❌ Você não tem palavras-chave cadastradas.\nUse `/adicionar <palavra>` primeiro.")
		return
	}
	b.reply(chatID, "🔍 Analisando PDF... Aguarde (pode demorar alguns minutos).")
	b.searchFor(ctx, *sub)
}

func (b *Bot) handleQuickSearch(ctx context.Context, chatID int64, args string) {
	term, err := ParseTerm(args)
	if err != nil {
		b.reply(chatID, "❌ Use: `/buscar <termo>`")
		return
	}
	b.reply(chatID, fmt.Sprintf("🔍 Buscando '%s'... Aguarde.", escape(term)))
	b.searchFor(ctx, model.Subscriber{ChatID: chatID, Keywords: []string{term}})
}

// searchFor delivers the matching pages of the current edition for the
// keywords of sub. Failures are reported to the chat by the dispatcher.
func (b *Bot) searchFor(ctx context.Context, sub model.Subscriber) {
	ed, err := b.engine.Edition(ctx)
	if err != nil {
		b.reply(sub.ChatID, engine.UserMessage(err))
		return
	}
	out := b.notifier.Notify(ctx, []model.Subscriber{sub}, ed, model.ModeMatchingPages)
	if err := out[0].Err; err != nil {
		b.log.Warn("On-demand search failed", "chat_id", sub.ChatID, "edition", ed.Number, "error", err)
		return
	}
	b.log.Info("On-demand search delivered",
		"chat_id", sub.ChatID,
		"edition", ed.Number,
		"occurrences", out[0].Occurrences,
		"attached", out[0].Attached,
	)
}

func (b *Bot) handleClearCache(chatID int64) {
	n, err := b.engine.Invalidate()
	switch {
	case err != nil:
		b.log.Error("clear cache", "error", err)
		b.reply(chatID, "❌ Erro ao limpar o cache.")
	case n > 0:
		b.reply(chatID, fmt.Sprintf("🗑️ Cache limpo! %d arquivo(s) removido(s).\nO próximo download irá baixar o PDF atualizado.", n))
	default:
		b.reply(chatID, "📁 Cache já está vazio.")
	}
}

func (b *Bot) handleUnsubscribe(ctx context.Context, chatID int64) {
	sub, err := b.store.GetSubscriber(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !sub.OptedIn) {
		b.reply(chatID, "ℹ️ Você não está inscrito nas notificações automáticas.\n\nUse /start para se inscrever.")
		return
	}
	if err != nil {
		b.storageFailed(chatID, err)
		return
	}

	sub.OptedIn = false
	if err := b.store.SaveSubscriber(ctx, sub); err != nil {
		b.storageFailed(chatID, err)
		return
	}
	b.log.Info("Subscriber opted out", "chat_id", chatID)
	b.reply(chatID, "✅ Você foi removido das notificações automáticas.\n\nUse /start para se inscrever novamente.")
}
