package market

import "github.com/shopspring/decimal"

// DefaultThreshold applies to symbols absent from the watchlist.
var DefaultThreshold = decimal.NewFromInt(50000)

// Thresholds maps canonical symbols to alert thresholds. It is built once
// and only read afterwards, so it is safe to share between goroutines.
type Thresholds struct {
	bySymbol map[string]decimal.Decimal
	fallback decimal.Decimal
}

// NewThresholds copies values so later changes to the input map are not
// observed. A non-positive fallback is replaced by DefaultThreshold.
func NewThresholds(values map[string]decimal.Decimal, fallback decimal.Decimal) Thresholds {
	if !fallback.IsPositive() {
		fallback = DefaultThreshold
	}
	m := make(map[string]decimal.Decimal, len(values))
	for sym, v := range values {
		m[CanonicalSymbol(sym)] = v
	}
	return Thresholds{bySymbol: m, fallback: fallback}
}

// For returns the configured threshold for symbol, or the fallback.
func (t Thresholds) For(symbol string) decimal.Decimal {
	if v, ok := t.bySymbol[CanonicalSymbol(symbol)]; ok {
		return v
	}
	if !t.fallback.IsPositive() {
		return DefaultThreshold
	}
	return t.fallback
}

// Default returns the threshold used for unconfigured symbols.
func (t Thresholds) Default() decimal.Decimal {
	if !t.fallback.IsPositive() {
		return DefaultThreshold
	}
	return t.fallback
}

// Len reports how many symbols carry an explicit threshold.
func (t Thresholds) Len() int {
	return len(t.bySymbol)
}
