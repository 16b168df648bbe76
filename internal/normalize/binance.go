package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/liamashdown/whalewatch/internal/market"
)

// binanceAggTrade is the <symbol>@aggTrade payload. encoding/json matches
// keys case-insensitively, so "E" and "M" are declared to keep them from
// landing in "e" and "m".
type binanceAggTrade struct {
	Event        string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	AggTradeID   int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker *bool  `json:"m"`
	Ignore       bool   `json:"M"`
}

// binanceEnvelope is the combined-stream wrapper ({"stream":..,"data":..}).
type binanceEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
	ID     *int64          `json:"id"`
	Error  *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

// Binance normalizes a raw market stream message. ok is false for
// subscription responses and any non-aggTrade event.
//
// m=true means the buyer was the maker, so the taker sold.
func Binance(raw []byte) (trade market.TradeEvent, ok bool, err error) {
	var env binanceEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return market.TradeEvent{}, false, fmt.Errorf("decode binance message: %w", err)
	}
	if env.Error != nil {
		return market.TradeEvent{}, false, fmt.Errorf("binance error %d: %s", env.Error.Code, env.Error.Msg)
	}
	if len(env.Data) > 0 {
		raw = env.Data
	}

	var msg binanceAggTrade
	if err := json.Unmarshal(raw, &msg); err != nil {
		return market.TradeEvent{}, false, fmt.Errorf("decode binance aggTrade: %w", err)
	}
	if msg.Event != "aggTrade" {
		return market.TradeEvent{}, false, nil
	}

	if msg.Symbol == "" {
		return market.TradeEvent{}, false, missing("s")
	}
	price, err := positive("p", msg.Price)
	if err != nil {
		return market.TradeEvent{}, false, err
	}
	size, err := positive("q", msg.Quantity)
	if err != nil {
		return market.TradeEvent{}, false, err
	}
	if msg.IsBuyerMaker == nil {
		return market.TradeEvent{}, false, missing("m")
	}

	side := market.SideBuy
	if *msg.IsBuyerMaker {
		side = market.SideSell
	}

	ts := receivedAt()
	switch {
	case msg.TradeTime > 0:
		ts = time.UnixMilli(msg.TradeTime).UTC()
	case msg.EventTime > 0:
		ts = time.UnixMilli(msg.EventTime).UTC()
	}

	symbol := strings.ToUpper(msg.Symbol)
	base, quote := market.SplitPair(symbol)

	return market.TradeEvent{
		Source:     market.SourceBinance,
		Instrument: symbol,
		Symbol:     market.CanonicalSymbol(symbol),
		Base:       base,
		Quote:      quote,
		Price:      price,
		Size:       size,
		Side:       side,
		Time:       ts,
	}, true, nil
}

// BinanceStream converts a configured symbol to its aggTrade stream name,
// e.g. "BTC/USDT" -> "btcusdt@aggTrade".
func BinanceStream(symbol string) string {
	return strings.ToLower(market.CanonicalSymbol(symbol)) + "@aggTrade"
}
