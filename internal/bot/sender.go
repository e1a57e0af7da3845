package bot

import (
	"context"
	"errors"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gazette_bot/internal/notify"
)

// SendText sends a Markdown message. A message Telegram cannot parse as
// Markdown is sent again as plain text.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	_, err := b.api.Send(msg)
	if err != nil && strings.Contains(err.Error(), "can't parse entities") {
		b.log.Warn("Markdown rejected, sending plain text", "chat_id", chatID, "error", err)
		msg.ParseMode = ""
		_, err = b.api.Send(msg)
	}
	return deliveryError(err)
}

// SendDocument sends a file with a plain text caption.
func (b *Bot) SendDocument(ctx context.Context, chatID int64, name string, data []byte, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = caption
	_, err := b.api.Send(doc)
	return deliveryError(err)
}

// deliveryError maps a Telegram API failure to a *notify.DeliveryError.
func deliveryError(err error) error {
	if err == nil {
		return nil
	}
	code := 0
	var terr *tgbotapi.Error
	if errors.As(err, &terr) {
		code = terr.Code
	}
	text := strings.ToLower(err.Error())

	switch {
	case code == http.StatusRequestEntityTooLarge || strings.Contains(text, "too large"):
		return &notify.DeliveryError{Reason: notify.ReasonTooLarge, Err: err}
	case code == http.StatusForbidden ||
		strings.Contains(text, "bot was blocked") ||
		strings.Contains(text, "chat not found") ||
		strings.Contains(text, "user is deactivated"):
		return &notify.DeliveryError{Reason: notify.ReasonUnreachable, Blocked: true, Err: err}
	default:
		return &notify.DeliveryError{Reason: notify.ReasonUnreachable, Err: err}
	}
}
