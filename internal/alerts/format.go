package alerts

import (
	"fmt"
	"strings"

	"github.com/liamashdown/whalewatch/internal/detector"
	"github.com/liamashdown/whalewatch/internal/market"
	"github.com/shopspring/decimal"
)

const rule = "----------------------------"

var dollarQuotes = map[string]bool{
	"":      true,
	"USD":   true,
	"USDT":  true,
	"USDC":  true,
	"BUSD":  true,
	"FDUSD": true,
	"TUSD":  true,
}

// FormatTrade renders a whale trade as a Telegram Markdown message.
func FormatTrade(t market.TradeEvent) string {
	direction := "🟢 BUY"
	emoji := "🐂"
	if t.Side == market.SideSell {
		direction = "🔴 SELL"
		emoji = "🐻"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s WHALE ALERT: %s*\n", emoji, t.Symbol)
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "*Source:* %s\n", t.Source)
	fmt.Fprintf(&b, "*Direction:* %s\n", direction)
	fmt.Fprintf(&b, "*Price:* %s\n", quoted(t.Quote, formatPrice(t.Price)))
	fmt.Fprintf(&b, "*Amount:* %s %s\n", Thousands(t.Size, 2), t.Base)
	fmt.Fprintf(&b, "*Value:* %s\n", quoted(t.Quote, Thousands(t.Notional(), 2)))
	b.WriteString(rule)

	if link := ChartURL(t); link != "" {
		fmt.Fprintf(&b, "\n[View Chart](%s)", link)
	}
	return b.String()
}

// FormatActivity renders a polled activity alert.
func FormatActivity(s market.ActivitySnapshot, reason detector.Reason) string {
	trend := "📈"
	sign := "+"
	if s.PriceChange5m.IsNegative() {
		trend = "📉"
		sign = ""
	}

	venue := s.Source
	if s.DexID != "" {
		venue = fmt.Sprintf("%s (%s on %s)", s.Source, s.DexID, s.ChainID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s DEX ACTIVITY: %s*\n", trend, s.Symbol)
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "*Source:* %s\n", venue)
	fmt.Fprintf(&b, "*Trigger:* %s\n", reason)
	fmt.Fprintf(&b, "*Price:* $%s\n", formatPrice(s.PriceUSD))
	fmt.Fprintf(&b, "*5m Change:* %s %s%s%%\n", trend, sign, s.PriceChange5m.StringFixed(2))
	fmt.Fprintf(&b, "*5m Volume:* $%s\n", Thousands(s.Volume5m, 2))
	fmt.Fprintf(&b, "*Liquidity:* $%s\n", Thousands(s.LiquidityUSD, 2))
	b.WriteString(rule)

	if s.URL != "" {
		fmt.Fprintf(&b, "\n[View Chart](%s)", s.URL)
	}
	return b.String()
}

// ChartURL returns a human-viewable chart for the trade's instrument.
func ChartURL(t market.TradeEvent) string {
	switch t.Source {
	case market.SourceBinance:
		if t.Quote == "" {
			return ""
		}
		if t.Region == "us" {
			return fmt.Sprintf("https://www.binance.us/spot-trade/%s_%s", strings.ToLower(t.Base), strings.ToLower(t.Quote))
		}
		return fmt.Sprintf("https://www.binance.com/en/trade/%s_%s", t.Base, t.Quote)
	case market.SourceCoinbase:
		return "https://www.coinbase.com/advanced-trade/spot/" + t.Instrument
	}
	return ""
}

// Thousands formats d with a fixed number of decimals and comma grouping.
func Thousands(d decimal.Decimal, places int32) string {
	rounded := d.Round(places)
	intPart, frac, _ := strings.Cut(rounded.Abs().StringFixed(places), ".")

	var b strings.Builder
	if rounded.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// formatPrice keeps sub-unit prices at full precision so micro-cap
// tokens do not render as 0.0000.
func formatPrice(p decimal.Decimal) string {
	if p.Abs().LessThan(decimal.NewFromInt(1)) {
		return p.String()
	}
	return Thousands(p, 4)
}

func quoted(quote, amount string) string {
	if dollarQuotes[quote] {
		return "$" + amount
	}
	return amount + " " + quote
}
