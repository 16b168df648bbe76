package dexscreener

import "github.com/shopspring/decimal"

// Token identifies one side of a pair
type Token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// Windowed holds a value per rolling window
type Windowed struct {
	M5  decimal.Decimal `json:"m5"`
	H1  decimal.Decimal `json:"h1"`
	H6  decimal.Decimal `json:"h6"`
	H24 decimal.Decimal `json:"h24"`
}

// Liquidity is the pool depth of a pair
type Liquidity struct {
	USD   decimal.Decimal `json:"usd"`
	Base  decimal.Decimal `json:"base"`
	Quote decimal.Decimal `json:"quote"`
}

// Pair is a trading pair record from the tokens endpoint
type Pair struct {
	ChainID     string          `json:"chainId"`
	DexID       string          `json:"dexId"`
	URL         string          `json:"url"`
	PairAddress string          `json:"pairAddress"`
	BaseToken   Token           `json:"baseToken"`
	QuoteToken  Token           `json:"quoteToken"`
	PriceNative string          `json:"priceNative"`
	PriceUSD    decimal.Decimal `json:"priceUsd"`
	Volume      Windowed        `json:"volume"`
	PriceChange Windowed        `json:"priceChange"`
	Liquidity   *Liquidity      `json:"liquidity"`
	FDV         decimal.Decimal `json:"fdv"`
	CreatedAt   int64           `json:"pairCreatedAt"`
}

// LiquidityUSD returns the USD liquidity, zero when not reported.
func (p Pair) LiquidityUSD() decimal.Decimal {
	if p.Liquidity == nil {
		return decimal.Zero
	}
	return p.Liquidity.USD
}

// TokensResponse wraps the tokens endpoint response
type TokensResponse struct {
	SchemaVersion string `json:"schemaVersion"`
	Pairs         []Pair `json:"pairs"`
}
