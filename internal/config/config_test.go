package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/liamashdown/whalewatch/internal/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleWatchlist = `{
  "region": "us",
  "telegram": {"bot_token": "YOUR_BOT_TOKEN_HERE", "chat_id": "12345"},
  "watchlist": [
    {"symbol": "BTC/USDT", "exchange": "binance", "alert_threshold": 50000},
    {"symbol": "ETH/USDT", "exchange": "Binance", "alert_threshold": 25000, "region": "com"},
    {"symbol": "BTC-USD", "exchange": "coinbase", "alert_threshold": 100000},
    {"symbol": "PEPE", "exchange": "dexscreener", "alert_threshold": 500, "token_address": "0x6982508145454ce325ddbe47a25d4ec3d2311933"},
    {"symbol": "WIF", "exchange": "dex", "alert_threshold": 500},
    {"symbol": "DOGE/USDT", "exchange": "kraken", "alert_threshold": 1000},
    {"symbol": "SOL/USDT", "exchange": "binance", "alert_threshold": 0}
  ]
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadWatchlist(t *testing.T) {
	w, err := LoadWatchlist(writeFile(t, "config.json", sampleWatchlist))
	require.NoError(t, err)

	assert.Equal(t, RegionUS, w.Region)
	require.Len(t, w.Entries, 4)
	assert.Len(t, w.Rejected, 3, "missing token, unknown exchange, zero threshold")

	btc := w.Entries[0]
	assert.Equal(t, market.SourceBinance, btc.Source)
	assert.Equal(t, market.ClassStreaming, btc.Class)
	assert.Equal(t, RegionUS, btc.Region, "file-level region is the default")
	assert.Equal(t, "BTCUSDT", btc.CanonicalSymbol())
	assert.True(t, btc.AlertThreshold.Equal(decimal.NewFromInt(50000)))

	assert.Equal(t, RegionCom, w.Entries[1].Region, "entry region overrides file region")

	pepe := w.Entries[3]
	assert.Equal(t, market.SourceDexScreener, pepe.Source)
	assert.Equal(t, market.ClassPolling, pepe.Class)
	assert.NotEmpty(t, pepe.TokenAddress)

	assert.Len(t, w.BySource(market.SourceBinance), 2)
	assert.Len(t, w.BySource(market.SourceCoinbase), 1)
	assert.Len(t, w.BySource(market.SourceDexScreener), 1)
}

func TestLoadWatchlistYAML(t *testing.T) {
	path := writeFile(t, "watchlist.yaml", `
watchlist:
  - symbol: BTC/USDT
    exchange: binance
    alert_threshold: 75000
`)
	w, err := LoadWatchlist(path)
	require.NoError(t, err)
	require.Len(t, w.Entries, 1)
	assert.Equal(t, RegionCom, w.Entries[0].Region)
	assert.True(t, w.Entries[0].AlertThreshold.Equal(decimal.NewFromInt(75000)))
}

func TestLoadWatchlistMissing(t *testing.T) {
	_, err := LoadWatchlist(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoWatchlist))
}

func TestLoadWatchlistMalformed(t *testing.T) {
	_, err := LoadWatchlist(writeFile(t, "config.json", `{"watchlist": [`))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoWatchlist))
}

func TestWatchlistThresholds(t *testing.T) {
	w, err := LoadWatchlist(writeFile(t, "config.json", sampleWatchlist))
	require.NoError(t, err)

	th := w.Thresholds(market.SourceBinance, decimal.NewFromInt(50000))
	assert.True(t, th.For("ETHUSDT").Equal(decimal.NewFromInt(25000)))
	assert.True(t, th.For("XRPUSDT").Equal(decimal.NewFromInt(50000)))

	// coinbase thresholds are not visible to binance
	assert.True(t, th.For("BTCUSD").Equal(decimal.NewFromInt(50000)))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("NOTIFY_MODE", "Discord")
	t.Setenv("DEFAULT_ALERT_THRESHOLD", "750")
	t.Setenv("POLL_INTERVAL_SEC", "10")
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.example/webhook")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, NotifyDiscord, cfg.NotifyMode)
	assert.True(t, cfg.DefaultThreshold.Equal(decimal.NewFromInt(750)))
	assert.Equal(t, "10s", cfg.PollInterval.String())
	assert.Equal(t, NotifyDiscord, cfg.EffectiveNotifyMode())
}

func TestLoadSecretFile(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN_FILE", writeFile(t, "token", "123:abc\n"))
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "123:abc", cfg.TelegramToken)
	assert.Equal(t, NotifyTelegram, cfg.EffectiveNotifyMode())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DefaultThreshold:    decimal.NewFromInt(50000),
			NotifyMode:          NotifyTelegram,
			ReconnectCloseDelay: 1,
			ReconnectErrorDelay: 1,
			PollInterval:        1,
		}
	}

	require.NoError(t, base().Validate())

	c := base()
	c.DefaultThreshold = decimal.Zero
	assert.Error(t, c.Validate())

	c = base()
	c.NotifyMode = "pigeon"
	assert.Error(t, c.Validate())

	c = base()
	c.PollInterval = 0
	assert.Error(t, c.Validate())
}

func TestEffectiveNotifyModeFallsBackToConsole(t *testing.T) {
	w, err := LoadWatchlist(writeFile(t, "config.json", sampleWatchlist))
	require.NoError(t, err)

	cfg := &Config{NotifyMode: NotifyTelegram}
	cfg.ApplyWatchlist(w)

	// placeholder token from the file does not count as a credential
	assert.Equal(t, "12345", cfg.TelegramChatID)
	assert.Equal(t, NotifyConsole, cfg.EffectiveNotifyMode())

	cfg = &Config{NotifyMode: NotifyDiscord}
	assert.Equal(t, NotifyConsole, cfg.EffectiveNotifyMode())
}
