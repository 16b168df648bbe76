// Package stream runs websocket trade listeners. Each listener is a small
// state machine: Connecting -> Subscribing -> Receiving -> BackingOff ->
// Connecting, with the failure reason choosing the backoff delay.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/liamashdown/whalewatch/internal/detector"
	"github.com/liamashdown/whalewatch/internal/market"
	"github.com/liamashdown/whalewatch/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Defaults
const (
	DefaultClosedDelay = 5 * time.Second
	DefaultErrorDelay  = 15 * time.Second
	DefaultReadTimeout = 90 * time.Second
	writeTimeout       = 10 * time.Second
	handshakeTimeout   = 10 * time.Second
)

// State of a listener
type State int

const (
	StateConnecting State = iota
	StateSubscribing
	StateReceiving
	StateBackingOff
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateReceiving:
		return "receiving"
	case StateBackingOff:
		return "backing_off"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Reason is why a connection ended
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonClosed is an orderly close by the peer.
	ReasonClosed
	// ReasonError is any dial, write, or read failure.
	ReasonError
)

func (r Reason) String() string {
	switch r {
	case ReasonClosed:
		return "closed"
	case ReasonError:
		return "error"
	}
	return "none"
}

// Transition is reported to the observer on every state change
type Transition struct {
	From   State
	To     State
	Reason Reason
	Delay  time.Duration // set when entering BackingOff
	Err    error
}

// TradeDispatcher receives trades that cleared the threshold
type TradeDispatcher interface {
	DispatchTrade(ctx context.Context, t market.TradeEvent)
}

// Option configures a Listener
type Option func(*Listener)

// WithBackoff sets the fixed delays after a clean close and after an error.
func WithBackoff(closed, errored time.Duration) Option {
	return func(l *Listener) {
		l.closedDelay = closed
		l.errorDelay = errored
	}
}

// WithReadTimeout bounds how long a silent connection is kept.
func WithReadTimeout(d time.Duration) Option {
	return func(l *Listener) { l.readTimeout = d }
}

// WithObserver registers a callback for state transitions. It runs on the
// listener goroutine and must not block.
func WithObserver(fn func(Transition)) Option {
	return func(l *Listener) { l.observer = fn }
}

// Listener owns one websocket connection to a streaming source
type Listener struct {
	name        string
	proto       Protocol
	thresholds  market.Thresholds
	dispatcher  TradeDispatcher
	dialer      *websocket.Dialer
	closedDelay time.Duration
	errorDelay  time.Duration
	readTimeout time.Duration
	observer    func(Transition)
	log         logrus.FieldLogger
	state       State
}

// New creates a listener. name identifies it in logs and metrics.
func New(name string, proto Protocol, th market.Thresholds, dispatcher TradeDispatcher, log logrus.FieldLogger, opts ...Option) *Listener {
	l := &Listener{
		name:        name,
		proto:       proto,
		thresholds:  th,
		dispatcher:  dispatcher,
		dialer:      &websocket.Dialer{HandshakeTimeout: handshakeTimeout, Proxy: http.ProxyFromEnvironment},
		closedDelay: DefaultClosedDelay,
		errorDelay:  DefaultErrorDelay,
		readTimeout: DefaultReadTimeout,
		log:         log.WithFields(logrus.Fields{"listener": name, "source": proto.Source()}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name identifies the listener
func (l *Listener) Name() string {
	return l.name
}

// Run connects and processes trades until ctx is cancelled. It returns
// nil straight away when there is nothing to subscribe to; otherwise it
// only returns on cancellation.
func (l *Listener) Run(ctx context.Context) error {
	instruments := l.proto.Instruments()
	if len(instruments) == 0 {
		l.log.Info("No watchlist entries, listener not started")
		return nil
	}

	l.log.WithFields(logrus.Fields{
		"url":               l.proto.URL(),
		"instruments":       instruments,
		"thresholds":        l.thresholds.Len(),
		"default_threshold": l.thresholds.Default().String(),
	}).Info("Starting stream listener")

	var (
		conn   *websocket.Conn
		reason Reason
		err    error
	)

	l.state = StateConnecting
	metrics.ListenerState.WithLabelValues(l.name).Set(float64(l.state))

	for {
		if ctx.Err() != nil {
			if conn != nil {
				conn.Close()
			}
			l.log.Info("Stream listener stopped")
			return nil
		}

		switch l.state {
		case StateConnecting:
			conn, err = l.dial(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				reason = ReasonError
				l.transition(StateBackingOff, reason, err)
				continue
			}
			l.transition(StateSubscribing, ReasonNone, nil)

		case StateSubscribing:
			if err = l.subscribe(conn); err != nil {
				conn.Close()
				conn = nil
				reason = ReasonError
				l.transition(StateBackingOff, reason, err)
				continue
			}
			l.transition(StateReceiving, ReasonNone, nil)

		case StateReceiving:
			reason, err = l.receive(ctx, conn)
			conn.Close()
			conn = nil
			if ctx.Err() != nil {
				continue
			}
			l.transition(StateBackingOff, reason, err)

		case StateBackingOff:
			if !sleep(ctx, l.delay(reason)) {
				continue
			}
			l.transition(StateConnecting, ReasonNone, nil)
		}
	}
}

func (l *Listener) transition(to State, reason Reason, err error) {
	t := Transition{From: l.state, To: to, Reason: reason, Err: err}
	if to == StateBackingOff {
		t.Delay = l.delay(reason)
		metrics.Reconnects.WithLabelValues(l.proto.Source(), reason.String()).Inc()

		entry := l.log.WithFields(logrus.Fields{"reason": reason.String(), "backoff": t.Delay.String()})
		if reason == ReasonClosed {
			entry.Warn("Connection closed, reconnecting")
		} else {
			entry.WithError(err).Error("Connection failed, reconnecting")
		}
	}

	l.state = to
	metrics.ListenerState.WithLabelValues(l.name).Set(float64(to))
	if l.observer != nil {
		l.observer(t)
	}
}

func (l *Listener) delay(r Reason) time.Duration {
	if r == ReasonClosed {
		return l.closedDelay
	}
	return l.errorDelay
}

func (l *Listener) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := l.dialer.DialContext(ctx, l.proto.URL(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	l.log.Info("Connected")
	return conn, nil
}

func (l *Listener) subscribe(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(l.proto.Subscription()); err != nil {
		return fmt.Errorf("send subscription: %w", err)
	}
	l.log.WithField("count", len(l.proto.Instruments())).Info("Subscribed")
	return nil
}

// receive reads until the connection ends. Cancelling ctx closes the
// socket so a blocked read returns at once.
func (l *Listener) receive(ctx context.Context, conn *websocket.Conn) (Reason, error) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	// a ping proves the peer is alive even when no trades flow
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(l.readTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(l.readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return classify(err), err
		}
		l.handle(ctx, data)
	}
}

func (l *Listener) handle(ctx context.Context, data []byte) {
	source := l.proto.Source()

	trade, ok, err := l.proto.Normalize(data)
	if err != nil {
		metrics.MessagesReceived.WithLabelValues(source, "malformed").Inc()
		l.log.WithError(err).WithField("bytes", len(data)).Warn("Dropping malformed message")
		return
	}
	if !ok {
		metrics.MessagesReceived.WithLabelValues(source, "ignored").Inc()
		return
	}
	metrics.MessagesReceived.WithLabelValues(source, "trade").Inc()

	decision := detector.EvaluateTrade(trade, l.thresholds)
	if !decision.Fire {
		metrics.TradesEvaluated.WithLabelValues(source, "below").Inc()
		return
	}
	metrics.TradesEvaluated.WithLabelValues(source, "fired").Inc()

	l.dispatcher.DispatchTrade(ctx, trade)
}

// classify separates orderly closes from failures.
func classify(err error) Reason {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, io.EOF) {
		return ReasonClosed
	}
	return ReasonError
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
