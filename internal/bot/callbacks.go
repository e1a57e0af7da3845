package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const cbDownload = "download"

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	callback := tgbotapi.NewCallback(cb.ID, "")
	if _, err := b.api.Request(callback); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	action, edition, err := ParseCallback(cb.Data)
	if err != nil {
		b.log.Warn("bad callback data", "data", cb.Data, "chat_id", chatID, "error", err)
		return
	}

	attrs := []any{"action", action, "edition", edition, "chat_id", chatID}
	if cb.From != nil {
		attrs = append(attrs, "user_id", cb.From.ID, "username", cb.From.UserName)
	}
	b.log.Info("callback", attrs...)

	switch action {
	case cbDownload:
		b.reply(chatID, "⏳ Baixando PDF...")
		b.sendFull(ctx, chatID, edition)
	}
}
