package normalize

import (
	"strings"
	"time"

	"github.com/liamashdown/whalewatch/internal/dexscreener"
	"github.com/liamashdown/whalewatch/internal/market"
)

// TopPair picks the pair for token with the highest USD liquidity. Ties
// keep the first pair seen in response order. ok is false when no pair
// has token as its base token.
func TopPair(pairs []dexscreener.Pair, token string) (best dexscreener.Pair, ok bool) {
	for _, p := range pairs {
		if !strings.EqualFold(p.BaseToken.Address, token) {
			continue
		}
		if !ok || p.LiquidityUSD().GreaterThan(best.LiquidityUSD()) {
			best, ok = p, true
		}
	}
	return best, ok
}

// DexSnapshot builds the activity snapshot for a watched symbol from its
// selected pair.
func DexSnapshot(symbol, token string, p dexscreener.Pair, at time.Time) market.ActivitySnapshot {
	url := p.URL
	if url == "" && p.ChainID != "" && p.PairAddress != "" {
		url = "https://dexscreener.com/" + p.ChainID + "/" + p.PairAddress
	}

	return market.ActivitySnapshot{
		Source:        market.SourceDexScreener,
		Symbol:        market.CanonicalSymbol(symbol),
		TokenAddress:  token,
		ChainID:       p.ChainID,
		DexID:         p.DexID,
		PairAddress:   p.PairAddress,
		URL:           url,
		PriceUSD:      p.PriceUSD,
		PriceChange5m: p.PriceChange.M5,
		Volume5m:      p.Volume.M5,
		LiquidityUSD:  p.LiquidityUSD(),
		Time:          at.UTC(),
	}
}
