package market

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the taker direction of an executed trade
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Class separates push-based sources from polled ones
type Class string

const (
	ClassStreaming Class = "streaming"
	ClassPolling   Class = "polling"
)

// Source tags
const (
	SourceCoinbase    = "coinbase"
	SourceBinance     = "binance"
	SourceDexScreener = "dexscreener"
)

// TradeEvent is a single executed trade in canonical form
type TradeEvent struct {
	Source     string
	Instrument string // identifier as the source knows it, e.g. BTC-USD
	Symbol     string // canonical, e.g. BTCUSD
	Base       string
	Quote      string
	Price      decimal.Decimal
	Size       decimal.Decimal
	Side       Side
	Time       time.Time
	Region     string // venue region, binance only
}

// Notional returns price * size.
func (t TradeEvent) Notional() decimal.Decimal {
	return t.Price.Mul(t.Size)
}

// ActivitySnapshot is the short-window state of a token on a polled source
type ActivitySnapshot struct {
	Source        string
	Symbol        string
	TokenAddress  string
	ChainID       string
	DexID         string
	PairAddress   string
	URL           string
	PriceUSD      decimal.Decimal
	PriceChange5m decimal.Decimal // percent
	Volume5m      decimal.Decimal // USD
	LiquidityUSD  decimal.Decimal
	Time          time.Time
}

// CanonicalSymbol upper-cases s and strips pair separators so that
// "btc/usdt", "BTC-USDT" and "BTC_USDT" all map to "BTCUSDT".
func CanonicalSymbol(s string) string {
	r := strings.NewReplacer("/", "", "-", "", "_", "", " ", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(s)))
}

// quoteAssets is ordered longest first so FDUSD wins over USD.
var quoteAssets = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "EUR", "USD", "BTC", "ETH", "BNB"}

// SplitPair splits a pair identifier into base and quote assets. Pairs
// with an explicit separator are split on it; otherwise a known quote
// suffix is used. Unknown pairs return the whole symbol as base.
func SplitPair(s string) (base, quote string) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, sep := range []string{"/", "-", "_"} {
		if i := strings.Index(s, sep); i > 0 {
			return s[:i], s[i+1:]
		}
	}
	for _, q := range quoteAssets {
		if len(s) > len(q) && strings.HasSuffix(s, q) {
			return strings.TrimSuffix(s, q), q
		}
	}
	return s, ""
}
