// Package detector decides which trades and activity snapshots are whale
// events.
package detector

import (
	"github.com/liamashdown/whalewatch/internal/market"
	"github.com/shopspring/decimal"
)

// SpikePercent is the absolute 5m price change that fires on its own.
var SpikePercent = decimal.NewFromFloat(3.0)

// Reason explains a decision
type Reason string

const (
	ReasonNotional    Reason = "notional"
	ReasonVolume      Reason = "volume"
	ReasonSpike       Reason = "spike"
	ReasonVolumeSpike Reason = "volume+spike"
	ReasonBelow       Reason = "below_threshold"
	ReasonUnchanged   Reason = "unchanged_volume"
)

// Decision is the outcome of evaluating one event
type Decision struct {
	Fire      bool
	Reason    Reason
	Threshold decimal.Decimal
	Trade     *market.TradeEvent
	Snapshot  *market.ActivitySnapshot
}

// EvaluateTrade fires when the trade notional reaches the symbol's
// threshold. Trades are discrete executions, so there is no dedup.
func EvaluateTrade(t market.TradeEvent, th market.Thresholds) Decision {
	limit := th.For(t.Symbol)
	d := Decision{Reason: ReasonBelow, Threshold: limit, Trade: &t}
	if t.Notional().GreaterThanOrEqual(limit) {
		d.Fire = true
		d.Reason = ReasonNotional
	}
	return d
}

// ActivityEvaluator evaluates polled snapshots and remembers the previous
// 5m volume per symbol. It belongs to a single poller loop and is not
// safe for concurrent use.
type ActivityEvaluator struct {
	thresholds market.Thresholds
	prevVolume map[string]decimal.Decimal
}

// NewActivityEvaluator creates an evaluator with empty history.
func NewActivityEvaluator(th market.Thresholds) *ActivityEvaluator {
	return &ActivityEvaluator{
		thresholds: th,
		prevVolume: make(map[string]decimal.Decimal),
	}
}

// Evaluate fires when 5m volume reaches the threshold or the 5m price
// change reaches SpikePercent in either direction. A snapshot whose volume
// equals the previous cycle's and which is not a spike is suppressed. The
// stored volume is replaced on every call, fired or not.
func (e *ActivityEvaluator) Evaluate(s market.ActivitySnapshot) Decision {
	limit := e.thresholds.For(s.Symbol)
	prev, seen := e.prevVolume[s.Symbol]
	e.prevVolume[s.Symbol] = s.Volume5m

	volumeHit := s.Volume5m.GreaterThanOrEqual(limit)
	spike := s.PriceChange5m.Abs().GreaterThanOrEqual(SpikePercent)

	d := Decision{Threshold: limit, Snapshot: &s}
	switch {
	case seen && s.Volume5m.Equal(prev) && !spike:
		d.Reason = ReasonUnchanged
	case volumeHit && spike:
		d.Fire, d.Reason = true, ReasonVolumeSpike
	case volumeHit:
		d.Fire, d.Reason = true, ReasonVolume
	case spike:
		d.Fire, d.Reason = true, ReasonSpike
	default:
		d.Reason = ReasonBelow
	}
	return d
}

// Tracked reports how many symbols have a stored previous volume.
func (e *ActivityEvaluator) Tracked() int {
	return len(e.prevVolume)
}
