package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gazette_bot/internal/config"
	"gazette_bot/internal/model"
	"gazette_bot/internal/notify"
	"gazette_bot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Engine serves editions, searches and highlighted copies.
type Engine interface {
	notify.Engine
	Edition(ctx context.Context) (*model.Edition, error)
	DownloadFull(ctx context.Context, limit int64) (*model.Edition, []byte, error)
	Invalidate() (int, error)
}

// Bot is the Telegram bot that handles user commands and sends notifications.
type Bot struct {
	api      telegramAPI
	store    storage.Storage
	cfg      *config.Config
	engine   Engine
	notifier *notify.Dispatcher
	log      *slog.Logger
}

// New creates a Bot with the given Telegram token, storage, engine and config.
func New(token string, store storage.Storage, eng Engine, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return newBot(api, store, eng, cfg, log), nil
}

func newBot(api telegramAPI, store storage.Storage, eng Engine, cfg *config.Config, log *slog.Logger) *Bot {
	b := &Bot{
		api:    api,
		store:  store,
		cfg:    cfg,
		engine: eng,
		log:    log,
	}
	b.notifier = notify.New(eng, b, store, notify.Options{
		MaxAttachment: cfg.MaxAttachmentBytes(),
		Workers:       cfg.BroadcastWorkers,
	}, log)
	return b
}

// Broadcast delivers the current edition to every opted-in subscriber.
func (b *Bot) Broadcast(ctx context.Context, force bool) ([]notify.Outcome, error) {
	return b.notifier.Broadcast(ctx, force)
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled
// and every update in progress is handled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			wg.Go(func() { b.handleUpdate(ctx, update) })
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		if update.CallbackQuery.From != nil && !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
			return
		}
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	if update.Message == nil || !update.Message.IsCommand() {
		return
	}
	if update.Message.From == nil || !b.cfg.IsUserAllowed(update.Message.From.ID) {
		b.reply(update.Message.Chat.ID, "⛔ Acesso negado.")
		return
	}
	b.handleCommand(ctx, update.Message)
}

// SendMessage sends a Markdown text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	if err := b.SendText(context.Background(), chatID, text); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID)
	case "help":
		b.handleHelp(ctx, chatID)
	case "edicao":
		b.handleEdition(ctx, chatID)
	case cmdDownload:
		b.handleDownload(ctx, chatID)
	case "palavras":
		b.handleListKeywords(ctx, chatID)
	case "adicionar":
		b.handleAddKeyword(ctx, chatID, args)
	case "remover":
		b.handleRemoveKeyword(ctx, chatID, args)
	case "limpar":
		b.handleClearKeywords(ctx, chatID)
	case "resetar":
		b.handleResetKeywords(ctx, chatID)
	case "pesquisar":
		b.handleSearch(ctx, chatID)
	case "buscar":
		b.handleQuickSearch(ctx, chatID, args)
	case "cache":
		b.handleClearCache(chatID)
	case "desinscrever":
		b.handleUnsubscribe(ctx, chatID)
	default:
		b.reply(chatID, "❓ Comando desconhecido. Use /help para ver os comandos.")
	}
}
