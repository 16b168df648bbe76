// Package poller periodically fetches DexScreener pair data for watched
// tokens and turns it into activity alerts.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/liamashdown/whalewatch/internal/config"
	"github.com/liamashdown/whalewatch/internal/detector"
	"github.com/liamashdown/whalewatch/internal/dexscreener"
	"github.com/liamashdown/whalewatch/internal/market"
	"github.com/liamashdown/whalewatch/internal/metrics"
	"github.com/liamashdown/whalewatch/internal/normalize"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// DefaultInterval between polls
const DefaultInterval = 30 * time.Second

// PairSource returns all pairs for a batch of token addresses
type PairSource interface {
	TokenPairs(ctx context.Context, addresses []string) ([]dexscreener.Pair, error)
}

// ActivityDispatcher receives snapshots that fired
type ActivityDispatcher interface {
	DispatchActivity(ctx context.Context, s market.ActivitySnapshot, reason detector.Reason)
}

// Poller runs the poll loop. Its dedup state lives in the evaluator and is
// only touched from Run.
type Poller struct {
	source     PairSource
	entries    []config.WatchlistEntry
	evaluator  *detector.ActivityEvaluator
	thresholds market.Thresholds
	dispatcher ActivityDispatcher
	interval   time.Duration
	log        logrus.FieldLogger
	now        func() time.Time
}

// New creates a poller for the given polling entries.
func New(source PairSource, entries []config.WatchlistEntry, th market.Thresholds, dispatcher ActivityDispatcher, interval time.Duration, log logrus.FieldLogger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		source:     source,
		entries:    entries,
		evaluator:  detector.NewActivityEvaluator(th),
		thresholds: th,
		dispatcher: dispatcher,
		interval:   interval,
		log:        log.WithField("source", market.SourceDexScreener),
		now:        time.Now,
	}
}

// Name identifies the poller
func (p *Poller) Name() string {
	return market.SourceDexScreener
}

// Run polls immediately and then once per interval until ctx is
// cancelled. Failed cycles are logged and the loop carries on.
func (p *Poller) Run(ctx context.Context) error {
	if len(p.entries) == 0 {
		p.log.Info("No watchlist entries, poller not started")
		return nil
	}

	p.log.WithFields(logrus.Fields{
		"tokens":            len(p.entries),
		"interval":          p.interval.String(),
		"thresholds":        p.thresholds.Len(),
		"default_threshold": p.thresholds.Default().String(),
	}).Info("Starting poller")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.poll(ctx)

		select {
		case <-ctx.Done():
			p.log.Info("Poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// poll runs one cycle: a single batched request, then one evaluation per
// watched token.
func (p *Poller) poll(ctx context.Context) {
	addresses := lo.Map(p.entries, func(e config.WatchlistEntry, _ int) string { return e.TokenAddress })

	pairs, err := p.source.TokenPairs(ctx, addresses)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		var statusErr *dexscreener.StatusError
		if errors.As(err, &statusErr) {
			metrics.PollCycles.WithLabelValues(market.SourceDexScreener, "http_error").Inc()
			p.log.WithField("status", statusErr.StatusCode).WithError(err).Warn("Poll rejected")
		} else {
			metrics.PollCycles.WithLabelValues(market.SourceDexScreener, "error").Inc()
			p.log.WithError(err).Error("Poll failed")
		}
		return
	}
	metrics.PollCycles.WithLabelValues(market.SourceDexScreener, "success").Inc()

	at := p.now()
	fired := 0
	for _, entry := range p.entries {
		pair, ok := normalize.TopPair(pairs, entry.TokenAddress)
		if !ok {
			metrics.SnapshotsEvaluated.WithLabelValues(market.SourceDexScreener, "missing").Inc()
			p.log.WithFields(logrus.Fields{
				"symbol": entry.Symbol,
				"token":  entry.TokenAddress,
			}).Debug("No pair returned for token")
			continue
		}

		snapshot := normalize.DexSnapshot(entry.Symbol, entry.TokenAddress, pair, at)
		decision := p.evaluator.Evaluate(snapshot)
		metrics.SnapshotsEvaluated.WithLabelValues(market.SourceDexScreener, outcome(decision)).Inc()
		if !decision.Fire {
			continue
		}

		fired++
		p.dispatcher.DispatchActivity(ctx, snapshot, decision.Reason)
	}

	p.log.WithFields(logrus.Fields{
		"pairs":   len(pairs),
		"fired":   fired,
		"tracked": p.evaluator.Tracked(),
	}).Debug("Poll cycle complete")
}

func outcome(d detector.Decision) string {
	switch {
	case d.Fire:
		return "fired"
	case d.Reason == detector.ReasonUnchanged:
		return "suppressed"
	default:
		return "below"
	}
}
