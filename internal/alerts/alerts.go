package alerts

import (
	"context"
	"time"

	"github.com/liamashdown/whalewatch/internal/detector"
	"github.com/liamashdown/whalewatch/internal/market"
	"github.com/liamashdown/whalewatch/internal/metrics"
	"github.com/liamashdown/whalewatch/internal/ratelimit"
	"github.com/sirupsen/logrus"
)

// Deliverer hands a formatted message to the notification channel
type Deliverer interface {
	Deliver(ctx context.Context, message string) error
}

// Dispatcher formats whale events and delivers them. Delivery is best
// effort: failures are logged and counted, never retried or returned.
type Dispatcher struct {
	deliverer Deliverer
	channel   string
	limiter   *ratelimit.Limiter
	log       logrus.FieldLogger
}

// NewDispatcher creates a dispatcher for one channel. rps bounds the
// outbound message rate.
func NewDispatcher(deliverer Deliverer, channel string, rps float64, log logrus.FieldLogger) *Dispatcher {
	return &Dispatcher{
		deliverer: deliverer,
		channel:   channel,
		limiter:   ratelimit.New(rps),
		log:       log.WithField("channel", channel),
	}
}

// DispatchTrade sends a whale trade alert.
func (d *Dispatcher) DispatchTrade(ctx context.Context, t market.TradeEvent) {
	d.log.WithFields(logrus.Fields{
		"source":   t.Source,
		"symbol":   t.Symbol,
		"side":     t.Side,
		"notional": t.Notional().StringFixed(2),
	}).Info("Whale trade spotted")

	d.send(ctx, t.Source, t.Symbol, FormatTrade(t))
}

// DispatchActivity sends a polled activity alert.
func (d *Dispatcher) DispatchActivity(ctx context.Context, s market.ActivitySnapshot, reason detector.Reason) {
	d.log.WithFields(logrus.Fields{
		"source":    s.Source,
		"symbol":    s.Symbol,
		"reason":    reason,
		"volume_5m": s.Volume5m.StringFixed(2),
		"change_5m": s.PriceChange5m.String(),
		"pair":      s.PairAddress,
	}).Info("Whale activity spotted")

	d.send(ctx, s.Source, s.Symbol, FormatActivity(s, reason))
}

func (d *Dispatcher) send(ctx context.Context, source, symbol, message string) {
	fields := logrus.Fields{"source": source, "symbol": symbol}

	if err := d.limiter.Wait(ctx); err != nil {
		d.log.WithFields(fields).WithError(err).Warn("Alert dropped while waiting for rate limit")
		return
	}

	start := time.Now()
	err := d.deliverer.Deliver(ctx, message)
	metrics.RecordAlert(source, d.channel, time.Since(start), err)

	if err != nil {
		d.log.WithFields(fields).WithError(err).Error("Failed to deliver alert")
	}
}
