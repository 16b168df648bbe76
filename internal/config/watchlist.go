package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/liamashdown/whalewatch/internal/market"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Binance regions
const (
	RegionCom = "com"
	RegionUS  = "us"
)

// ErrNoWatchlist is returned when the watchlist file does not exist.
var ErrNoWatchlist = errors.New("watchlist file not found")

// WatchlistEntry is one watched instrument. Entries are immutable once
// loaded.
type WatchlistEntry struct {
	Symbol         string // as configured, e.g. BTC/USDT
	Exchange       string // as configured
	Source         string // normalized source tag
	Class          market.Class
	AlertThreshold decimal.Decimal
	TokenAddress   string
	Region         string
}

// CanonicalSymbol returns the symbol key shared with normalized events.
func (e WatchlistEntry) CanonicalSymbol() string {
	return market.CanonicalSymbol(e.Symbol)
}

// Watchlist is the parsed watchlist file
type Watchlist struct {
	Region   string
	Telegram TelegramSettings
	Entries  []WatchlistEntry
	// Rejected holds one error per entry that failed validation.
	Rejected []error
}

// TelegramSettings mirrors the "telegram" block of the watchlist file
type TelegramSettings struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

type watchlistFile struct {
	Region    string           `mapstructure:"region"`
	Telegram  TelegramSettings `mapstructure:"telegram"`
	Watchlist []watchlistRow   `mapstructure:"watchlist"`
}

type watchlistRow struct {
	Symbol         string  `mapstructure:"symbol"`
	Exchange       string  `mapstructure:"exchange"`
	AlertThreshold float64 `mapstructure:"alert_threshold"`
	TokenAddress   string  `mapstructure:"token_address"`
	Region         string  `mapstructure:"region"`
}

// LoadWatchlist reads the watchlist file at path. The format is taken
// from the extension (json, yaml, toml). A missing or unparseable file is
// an error; invalid entries are collected in Rejected and skipped.
func LoadWatchlist(path string) (*Watchlist, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("region", RegionCom)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || isNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoWatchlist, path)
		}
		return nil, fmt.Errorf("read watchlist %s: %w", path, err)
	}

	var file watchlistFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode watchlist %s: %w", path, err)
	}

	return buildWatchlist(file), nil
}

func buildWatchlist(file watchlistFile) *Watchlist {
	region := normalizeRegion(file.Region)
	if region == "" {
		region = RegionCom
	}

	w := &Watchlist{
		Region:   region,
		Telegram: file.Telegram,
	}

	for i, row := range file.Watchlist {
		entry, err := row.toEntry(region)
		if err != nil {
			w.Rejected = append(w.Rejected, fmt.Errorf("watchlist entry %d (%s): %w", i, row.Symbol, err))
			continue
		}
		w.Entries = append(w.Entries, entry)
	}

	return w
}

func (r watchlistRow) toEntry(defaultRegion string) (WatchlistEntry, error) {
	symbol := strings.TrimSpace(r.Symbol)
	if symbol == "" {
		return WatchlistEntry{}, errors.New("symbol is required")
	}

	source, class, err := classify(r.Exchange)
	if err != nil {
		return WatchlistEntry{}, err
	}

	threshold := decimal.NewFromFloat(r.AlertThreshold)
	if !threshold.IsPositive() {
		return WatchlistEntry{}, fmt.Errorf("alert_threshold must be positive, got %v", r.AlertThreshold)
	}

	token := strings.TrimSpace(r.TokenAddress)
	if class == market.ClassPolling && token == "" {
		return WatchlistEntry{}, errors.New("token_address is required for dex entries")
	}

	region := normalizeRegion(r.Region)
	if region == "" {
		region = defaultRegion
	}
	if region != RegionCom && region != RegionUS {
		return WatchlistEntry{}, fmt.Errorf("invalid region %q (valid values: us, com)", r.Region)
	}

	return WatchlistEntry{
		Symbol:         symbol,
		Exchange:       r.Exchange,
		Source:         source,
		Class:          class,
		AlertThreshold: threshold,
		TokenAddress:   token,
		Region:         region,
	}, nil
}

// classify maps the configured exchange name onto a source tag. Any
// exchange containing "dex" is served by the DexScreener poller.
func classify(exchange string) (string, market.Class, error) {
	ex := strings.ToLower(strings.TrimSpace(exchange))
	switch {
	case ex == market.SourceCoinbase:
		return market.SourceCoinbase, market.ClassStreaming, nil
	case ex == market.SourceBinance:
		return market.SourceBinance, market.ClassStreaming, nil
	case strings.Contains(ex, "dex"):
		return market.SourceDexScreener, market.ClassPolling, nil
	default:
		return "", "", fmt.Errorf("unsupported exchange %q (valid values: coinbase, binance, dex*)", exchange)
	}
}

// BySource returns the entries served by source, in file order.
func (w *Watchlist) BySource(source string) []WatchlistEntry {
	if w == nil {
		return nil
	}
	return lo.Filter(w.Entries, func(e WatchlistEntry, _ int) bool {
		return e.Source == source
	})
}

// Thresholds builds the immutable threshold table for one source.
func (w *Watchlist) Thresholds(source string, fallback decimal.Decimal) market.Thresholds {
	values := lo.SliceToMap(w.BySource(source), func(e WatchlistEntry) (string, decimal.Decimal) {
		return e.CanonicalSymbol(), e.AlertThreshold
	})
	return market.NewThresholds(values, fallback)
}

func normalizeRegion(r string) string {
	return strings.ToLower(strings.TrimSpace(r))
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
