package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	_ "time/tzdata"

	"gazette_bot/internal/bot"
	"gazette_bot/internal/config"
	"gazette_bot/internal/edition"
	"gazette_bot/internal/engine"
	"gazette_bot/internal/fetcher"
	"gazette_bot/internal/render"
	"gazette_bot/internal/scheduler"
	"gazette_bot/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	for _, dir := range []string{filepath.Dir(cfg.DatabasePath), cfg.CacheDir} {
		if dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	loc, _ := cfg.Location()
	hour, minute, _ := cfg.NotifyClock()

	f := fetcher.New(&http.Client{Timeout: cfg.FetchTimeout}, fetcher.Options{
		BaseURL:     cfg.PublisherURL,
		Dir:         cfg.CacheDir,
		EditionBase: cfg.EditionBase,
		Location:    loc,
	}, log)
	cache := edition.New(f, edition.OpenPDF, edition.Options{
		Dir:           cfg.CacheDir,
		FetchTimeout:  cfg.FetchTimeout,
		CheckInterval: cfg.CheckInterval,
	}, log)
	eng := engine.New(cache, render.New(cfg.RenderTimeout, log), log)

	b, err := bot.New(cfg.TelegramBotToken, store, eng, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(b, scheduler.Options{
		Hour:         hour,
		Minute:       minute,
		Location:     loc,
		RunOnStartup: cfg.RunOnStartup,
	}, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot", "notify_at", cfg.NotifyAt, "timezone", cfg.Timezone, "cache_dir", cfg.CacheDir)

	var wg sync.WaitGroup
	wg.Go(func() { sched.Run(ctx) })

	b.Run(ctx)
	wg.Wait()

	log.Info("bot stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
