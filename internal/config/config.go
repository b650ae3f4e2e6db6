// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath string
	Port         string
	LogLevel     string

	RedditUserAgent    string
	RedditClientID     string
	RedditClientSecret string
	RedditUsername     string
	RedditPassword     string

	LLMAPIURL string
	LLMAPIKey string
	LLMModel  string

	TelegramBotToken string
	TelegramChatID   int64
}

// Load reads configuration from environment variables. A .env file in
// the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabasePath:       envOrDefault("DATABASE_PATH", "./data/monitor.db"),
		Port:               envOrDefault("PORT", "8080"),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		RedditUserAgent:    envOrDefault("REDDIT_USER_AGENT", "RedditMonitor/1.0"),
		RedditClientID:     os.Getenv("REDDIT_CLIENT_ID"),
		RedditClientSecret: os.Getenv("REDDIT_CLIENT_SECRET"),
		RedditUsername:     os.Getenv("REDDIT_USERNAME"),
		RedditPassword:     os.Getenv("REDDIT_PASSWORD"),
		LLMAPIURL:          os.Getenv("LLM_API_URL"),
		LLMAPIKey:          os.Getenv("LLM_API_KEY"),
		LLMModel:           envOrDefault("LLM_MODEL", "gpt-4o-mini"),
		TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		chatID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", raw, err)
		}
		cfg.TelegramChatID = chatID
	}

	if cfg.TelegramBotToken != "" && cfg.TelegramChatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}

	return cfg, nil
}

// DraftingEnabled reports whether reply drafting is configured.
func (c *Config) DraftingEnabled() bool {
	return c.LLMAPIURL != "" && c.LLMAPIKey != ""
}

// TelegramEnabled reports whether the Telegram notifier is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
