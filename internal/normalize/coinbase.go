package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/liamashdown/whalewatch/internal/market"
)

// coinbaseMessage covers every message type on the exchange feed; only
// the fields used by "match" are declared.
type coinbaseMessage struct {
	Type      string `json:"type"`
	TradeID   int64  `json:"trade_id"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Time      string `json:"time"`
	Message   string `json:"message"`
	Reason    string `json:"reason"`
}

// Coinbase normalizes a raw exchange feed message. ok is false for
// anything other than a live "match": subscription acks, heartbeats,
// errors, and the "last_match" replay sent after every subscribe.
//
// The feed reports the maker order side, so the taker direction is the
// opposite: side "sell" means a taker bought.
func Coinbase(raw []byte) (trade market.TradeEvent, ok bool, err error) {
	var msg coinbaseMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return market.TradeEvent{}, false, fmt.Errorf("decode coinbase message: %w", err)
	}

	switch msg.Type {
	case "match":
	case "error":
		return market.TradeEvent{}, false, fmt.Errorf("coinbase error: %s %s", msg.Message, msg.Reason)
	default:
		return market.TradeEvent{}, false, nil
	}

	if msg.ProductID == "" {
		return market.TradeEvent{}, false, missing("product_id")
	}

	price, err := positive("price", msg.Price)
	if err != nil {
		return market.TradeEvent{}, false, err
	}
	size, err := positive("size", msg.Size)
	if err != nil {
		return market.TradeEvent{}, false, err
	}

	var side market.Side
	switch strings.ToLower(msg.Side) {
	case "sell":
		side = market.SideBuy
	case "buy":
		side = market.SideSell
	case "":
		return market.TradeEvent{}, false, missing("side")
	default:
		return market.TradeEvent{}, false, invalid("side", msg.Side)
	}

	ts := receivedAt()
	if msg.Time != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, msg.Time); err == nil {
			ts = parsed.UTC()
		}
	}

	instrument := strings.ToUpper(msg.ProductID)
	base, quote := market.SplitPair(instrument)

	return market.TradeEvent{
		Source:     market.SourceCoinbase,
		Instrument: instrument,
		Symbol:     market.CanonicalSymbol(instrument),
		Base:       base,
		Quote:      quote,
		Price:      price,
		Size:       size,
		Side:       side,
		Time:       ts,
	}, true, nil
}

// CoinbaseProductID converts a configured symbol to a product id,
// e.g. "btc/usd" -> "BTC-USD".
func CoinbaseProductID(symbol string) string {
	base, quote := market.SplitPair(symbol)
	if quote == "" {
		return base
	}
	return base + "-" + quote
}
