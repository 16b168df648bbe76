package stream

import (
	"github.com/liamashdown/whalewatch/internal/config"
	"github.com/liamashdown/whalewatch/internal/market"
	"github.com/liamashdown/whalewatch/internal/normalize"
	"github.com/samber/lo"
)

// Protocol describes one streaming venue: where to connect, what to
// subscribe to, and how to read its messages.
type Protocol interface {
	Source() string
	URL() string
	// Instruments are the identifiers carried by the subscription.
	Instruments() []string
	// Subscription is JSON-encoded and sent once per connection.
	Subscription() interface{}
	// Normalize returns ok=false for messages that are not trades.
	Normalize(raw []byte) (market.TradeEvent, bool, error)
}

// Coinbase speaks the Exchange websocket feed "matches" channel. The
// "heartbeat" channel keeps quiet products from hitting the read timeout.
type Coinbase struct {
	url      string
	products []string
}

// NewCoinbase builds the protocol for the given coinbase entries.
func NewCoinbase(url string, entries []config.WatchlistEntry) *Coinbase {
	products := lo.Uniq(lo.Map(entries, func(e config.WatchlistEntry, _ int) string {
		return normalize.CoinbaseProductID(e.Symbol)
	}))
	return &Coinbase{url: url, products: products}
}

func (c *Coinbase) Source() string        { return market.SourceCoinbase }
func (c *Coinbase) URL() string           { return c.url }
func (c *Coinbase) Instruments() []string { return c.products }

func (c *Coinbase) Subscription() interface{} {
	return map[string]interface{}{
		"type":        "subscribe",
		"product_ids": c.products,
		"channels":    []string{"heartbeat", "matches"},
	}
}

func (c *Coinbase) Normalize(raw []byte) (market.TradeEvent, bool, error) {
	return normalize.Coinbase(raw)
}

// Binance speaks the spot market streams with a SUBSCRIBE request for
// <symbol>@aggTrade streams.
type Binance struct {
	url     string
	region  string
	streams []string
}

// BinanceURL returns the raw stream endpoint for a region.
func BinanceURL(region string) string {
	if region == config.RegionUS {
		return "wss://stream.binance.us:9443/ws"
	}
	return "wss://stream.binance.com:9443/ws"
}

// NewBinance builds the protocol for entries of one region. An empty url
// selects the region's public endpoint.
func NewBinance(url, region string, entries []config.WatchlistEntry) *Binance {
	if url == "" {
		url = BinanceURL(region)
	}
	streams := lo.Uniq(lo.Map(entries, func(e config.WatchlistEntry, _ int) string {
		return normalize.BinanceStream(e.Symbol)
	}))
	return &Binance{url: url, region: region, streams: streams}
}

func (b *Binance) Source() string        { return market.SourceBinance }
func (b *Binance) URL() string           { return b.url }
func (b *Binance) Instruments() []string { return b.streams }

func (b *Binance) Subscription() interface{} {
	return map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": b.streams,
		"id":     1,
	}
}

func (b *Binance) Normalize(raw []byte) (market.TradeEvent, bool, error) {
	t, ok, err := normalize.Binance(raw)
	if ok {
		t.Region = b.region
	}
	return t, ok, err
}
