package alerts

import (
	"context"

	"github.com/liamashdown/whalewatch/internal/detector"
	"github.com/liamashdown/whalewatch/internal/market"
	"github.com/liamashdown/whalewatch/internal/metrics"
	"github.com/sirupsen/logrus"
)

// DefaultQueueSize is the number of pending alerts a queue holds before
// dropping new ones.
const DefaultQueueSize = 64

type job struct {
	source string
	symbol string
	send   func(ctx context.Context)
}

// Queue decouples one producer from delivery. Alerts are delivered in
// the order they were queued by a single goroutine started with Run;
// when the buffer is full new alerts are dropped and counted.
type Queue struct {
	name       string
	dispatcher *Dispatcher
	jobs       chan job
	log        logrus.FieldLogger
}

// NewQueue creates a queue in front of dispatcher. name identifies the
// producer in logs and metrics.
func NewQueue(name string, dispatcher *Dispatcher, size int, log logrus.FieldLogger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		name:       name,
		dispatcher: dispatcher,
		jobs:       make(chan job, size),
		log:        log.WithField("queue", name),
	}
}

// Name identifies the queue
func (q *Queue) Name() string {
	return "alerts-" + q.name
}

// DispatchTrade queues a trade alert without blocking.
func (q *Queue) DispatchTrade(ctx context.Context, t market.TradeEvent) {
	q.enqueue(job{
		source: t.Source,
		symbol: t.Symbol,
		send:   func(ctx context.Context) { q.dispatcher.DispatchTrade(ctx, t) },
	})
}

// DispatchActivity queues an activity alert without blocking.
func (q *Queue) DispatchActivity(ctx context.Context, s market.ActivitySnapshot, reason detector.Reason) {
	q.enqueue(job{
		source: s.Source,
		symbol: s.Symbol,
		send:   func(ctx context.Context) { q.dispatcher.DispatchActivity(ctx, s, reason) },
	})
}

func (q *Queue) enqueue(j job) {
	select {
	case q.jobs <- j:
	default:
		metrics.AlertsDropped.WithLabelValues(q.name).Inc()
		q.log.WithFields(logrus.Fields{
			"source": j.source,
			"symbol": j.symbol,
		}).Warn("Alert queue full, dropping alert")
	}
}

// Run delivers queued alerts until ctx is cancelled. Alerts still queued
// at shutdown are discarded.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if n := len(q.jobs); n > 0 {
				q.log.WithField("pending", n).Info("Discarding queued alerts on shutdown")
			}
			return nil
		case j := <-q.jobs:
			j.send(ctx)
		}
	}
}
