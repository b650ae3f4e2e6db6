package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"reddit_monitor/internal/api"
	"reddit_monitor/internal/broadcast"
	"reddit_monitor/internal/config"
	"reddit_monitor/internal/drafter"
	"reddit_monitor/internal/monitor"
	"reddit_monitor/internal/notifier"
	"reddit_monitor/internal/reddit"
	"reddit_monitor/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
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

	events := broadcast.New(log)

	redditOpts := []reddit.ClientOption{reddit.WithUserAgent(cfg.RedditUserAgent)}
	if cfg.RedditClientID != "" {
		redditOpts = append(redditOpts, reddit.WithCredentials(reddit.Credentials{
			ClientID:     cfg.RedditClientID,
			ClientSecret: cfg.RedditClientSecret,
			Username:     cfg.RedditUsername,
			Password:     cfg.RedditPassword,
		}))
	}
	redditClient := reddit.NewClient(log, redditOpts...)

	var draft monitor.ReplyDrafter
	if cfg.DraftingEnabled() {
		draft = drafter.New(cfg.LLMAPIURL, cfg.LLMAPIKey, cfg.LLMModel, log)
		log.Info("reply drafting enabled", "model", cfg.LLMModel)
	} else {
		log.Info("reply drafting disabled (LLM_API_URL / LLM_API_KEY not set)")
	}

	mon := monitor.New(store, redditClient, draft, events, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.TelegramEnabled() {
		tg, err := notifier.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, events, log)
		if err != nil {
			log.Error("create telegram notifier", "error", err)
			os.Exit(1)
		}
		go tg.Run(ctx)
		log.Info("telegram notifier enabled", "chat_id", cfg.TelegramChatID)
	}

	// Resume monitoring if the persisted state says it was active when
	// the process last stopped.
	state, err := store.GetState(ctx)
	if err != nil {
		log.Error("load monitor state", "error", err)
	} else if state.IsActive && len(state.Subreddits) > 0 && len(state.Keywords) > 0 {
		log.Info("resuming monitoring from persisted state",
			"subreddits", state.Subreddits, "keywords", state.Keywords)
		if err := mon.Start(ctx, state.Subreddits, state.Keywords, state.IntervalMinutes); err != nil {
			log.Error("resume monitoring", "error", err)
		}
	}

	handler := api.NewHandler(mon, store, events, redditClient, log)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewServer(handler),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE connections stay open
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		log.Error("http server", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown", "error", err)
	}

	mon.Shutdown()

	log.Info("server stopped")
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
