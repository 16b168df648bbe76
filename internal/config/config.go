package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/liamashdown/whalewatch/internal/secrets"
	"github.com/shopspring/decimal"
)

// NotifyMode selects the single notification channel
type NotifyMode string

const (
	NotifyTelegram NotifyMode = "telegram"
	NotifyDiscord  NotifyMode = "discord"
	NotifyConsole  NotifyMode = "console"
)

// Config holds all process-level configuration
type Config struct {
	Environment string
	LogLevel    string

	// Watchlist
	WatchlistPath    string
	DefaultThreshold decimal.Decimal

	// Notification
	NotifyMode        NotifyMode
	TelegramToken     string
	TelegramChatID    string
	TelegramAPIURL    string
	DiscordWebhookURL string
	NotifyRPS         float64

	// Streaming sources
	CoinbaseWSURL       string
	BinanceWSURL        string // empty means derive from region
	ReconnectCloseDelay time.Duration
	ReconnectErrorDelay time.Duration

	// Polling source
	DexAPIBaseURL string
	DexAPIRPS     float64
	PollInterval  time.Duration

	// Health + metrics
	HealthPort int
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first; real environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment:         getEnv("ENVIRONMENT", "production"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		WatchlistPath:       getEnv("WATCHLIST_PATH", "config.json"),
		NotifyMode:          NotifyMode(strings.ToLower(getEnv("NOTIFY_MODE", string(NotifyTelegram)))),
		TelegramChatID:      getEnv("TELEGRAM_CHAT_ID", ""),
		TelegramAPIURL:      getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		NotifyRPS:           getEnvFloat("NOTIFY_RPS", 1.0),
		CoinbaseWSURL:       getEnv("COINBASE_WS_URL", "wss://ws-feed.exchange.coinbase.com"),
		BinanceWSURL:        getEnv("BINANCE_WS_URL", ""),
		ReconnectCloseDelay: time.Duration(getEnvInt("RECONNECT_CLOSED_DELAY_SEC", 5)) * time.Second,
		ReconnectErrorDelay: time.Duration(getEnvInt("RECONNECT_ERROR_DELAY_SEC", 15)) * time.Second,
		DexAPIBaseURL:       getEnv("DEX_API_BASE_URL", "https://api.dexscreener.com"),
		DexAPIRPS:           getEnvFloat("DEX_API_RPS", 4.0),
		PollInterval:        time.Duration(getEnvInt("POLL_INTERVAL_SEC", 30)) * time.Second,
		HealthPort:          getEnvInt("HEALTH_PORT", 8080),
	}

	threshold, err := decimal.NewFromString(getEnv("DEFAULT_ALERT_THRESHOLD", "50000"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_ALERT_THRESHOLD: %w", err)
	}
	cfg.DefaultThreshold = threshold

	if cfg.TelegramToken, err = secrets.Get("TELEGRAM_BOT_TOKEN", ""); err != nil {
		return nil, err
	}
	if cfg.DiscordWebhookURL, err = secrets.Get("DISCORD_WEBHOOK_URL", ""); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if !c.DefaultThreshold.IsPositive() {
		return fmt.Errorf("DEFAULT_ALERT_THRESHOLD must be positive, got %s", c.DefaultThreshold)
	}

	switch c.NotifyMode {
	case NotifyTelegram, NotifyDiscord, NotifyConsole:
	default:
		return fmt.Errorf("invalid NOTIFY_MODE: %s (valid values: telegram, discord, console)", c.NotifyMode)
	}

	if c.ReconnectCloseDelay <= 0 || c.ReconnectErrorDelay <= 0 {
		return fmt.Errorf("reconnect delays must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL_SEC must be positive")
	}

	return nil
}

// ApplyWatchlist fills notification settings the environment left unset
// from the watchlist file's "telegram" block.
func (c *Config) ApplyWatchlist(w *Watchlist) {
	if w == nil {
		return
	}
	if !secrets.Usable(c.TelegramToken) && secrets.Usable(w.Telegram.BotToken) {
		c.TelegramToken = w.Telegram.BotToken
	}
	if c.TelegramChatID == "" {
		c.TelegramChatID = w.Telegram.ChatID
	}
}

// EffectiveNotifyMode returns the mode that will actually be used: the
// configured one when its credential is present, console otherwise.
func (c *Config) EffectiveNotifyMode() NotifyMode {
	switch c.NotifyMode {
	case NotifyTelegram:
		if !secrets.Usable(c.TelegramToken) || c.TelegramChatID == "" {
			return NotifyConsole
		}
	case NotifyDiscord:
		if c.DiscordWebhookURL == "" {
			return NotifyConsole
		}
	}
	return c.NotifyMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
