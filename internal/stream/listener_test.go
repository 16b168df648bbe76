package stream

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/liamashdown/whalewatch/internal/alerts"
	"github.com/liamashdown/whalewatch/internal/config"
	"github.com/liamashdown/whalewatch/internal/market"
	"github.com/liamashdown/whalewatch/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 3 * time.Second

// wsServer accepts connections, records the first message of each as the
// subscription, and then hands the connection to script.
type wsServer struct {
	srv   *httptest.Server
	conns int32
	subs  chan []byte
}

func newWSServer(t *testing.T, script func(n int, c *websocket.Conn)) *wsServer {
	t.Helper()
	s := &wsServer{subs: make(chan []byte, 16)}
	upgrader := websocket.Upgrader{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		n := int(atomic.AddInt32(&s.conns, 1))

		_, sub, err := c.ReadMessage()
		if err != nil {
			return
		}
		s.subs <- sub
		script(n, c)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) nextSub(t *testing.T) []byte {
	t.Helper()
	select {
	case sub := <-s.subs:
		return sub
	case <-time.After(waitFor):
		t.Fatal("no subscription received")
		return nil
	}
}

// drain blocks until the client goes away.
func drain(c *websocket.Conn) {
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

type tradeSink struct {
	trades chan market.TradeEvent
}

func newTradeSink() *tradeSink {
	return &tradeSink{trades: make(chan market.TradeEvent, 16)}
}

func (s *tradeSink) DispatchTrade(ctx context.Context, t market.TradeEvent) {
	s.trades <- t
}

type transitions chan Transition

func (tc transitions) observe(t Transition) {
	select {
	case tc <- t:
	default:
	}
}

func (tc transitions) waitBackoff(t *testing.T) Transition {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case tr := <-tc:
			if tr.To == StateBackingOff {
				return tr
			}
		case <-deadline:
			t.Fatal("listener never backed off")
			return Transition{}
		}
	}
}

func btcEntries() []config.WatchlistEntry {
	return []config.WatchlistEntry{{
		Symbol:         "BTC/USDT",
		Exchange:       "binance",
		Source:         market.SourceBinance,
		AlertThreshold: decimal.NewFromInt(50000),
	}}
}

func btcThresholds() market.Thresholds {
	return market.NewThresholds(map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(50000)}, decimal.Zero)
}

func start(t *testing.T, l *Listener) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func waitDone(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("listener did not stop")
	}
}

func TestListenerDispatchesOnlyWhales(t *testing.T) {
	srv := newWSServer(t, func(n int, c *websocket.Conn) {
		msgs := []string{
			`{"result":null,"id":1}`,
			`{"e":"aggTrade","E":1700000000000,"s":"BTCUSDT","a":1,"p":"not-a-price","q":"1","T":1700000000000,"m":true}`,
			`{"e":"aggTrade","E":1700000000001,"s":"BTCUSDT","a":2,"p":"60000","q":"0.5","T":1700000000001,"m":false}`,
			`{"e":"aggTrade","E":1700000000002,"s":"BTCUSDT","a":3,"p":"60000","q":"1","T":1700000000002,"m":true}`,
		}
		for _, m := range msgs {
			if err := c.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		drain(c)
	})

	log, _ := logtest.NewNullLogger()
	sink := newTradeSink()
	l := New("binance-com", NewBinance(srv.url(), config.RegionCom, btcEntries()), btcThresholds(), sink, log)
	cancel, done := start(t, l)

	sub := srv.nextSub(t)
	assert.JSONEq(t, `{"method":"SUBSCRIBE","params":["btcusdt@aggTrade"],"id":1}`, string(sub))

	select {
	case tr := <-sink.trades:
		assert.Equal(t, "BTCUSDT", tr.Symbol)
		assert.Equal(t, market.SideSell, tr.Side)
		assert.Equal(t, config.RegionCom, tr.Region)
		assert.True(t, tr.Notional().Equal(decimal.NewFromInt(60000)))
	case <-time.After(waitFor):
		t.Fatal("whale trade not dispatched")
	}

	cancel()
	waitDone(t, done)
	assert.Empty(t, sink.trades, "only the trade above threshold is dispatched")
}

func TestListenerReconnectsAfterCleanClose(t *testing.T) {
	srv := newWSServer(t, func(n int, c *websocket.Conn) {
		if n == 1 {
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		}
		drain(c)
	})

	log, _ := logtest.NewNullLogger()
	seen := make(transitions, 64)
	proto := NewCoinbase(srv.url(), []config.WatchlistEntry{{Symbol: "BTC/USD"}, {Symbol: "eth-usd"}})
	l := New("coinbase", proto, btcThresholds(), newTradeSink(), log,
		WithBackoff(10*time.Millisecond, time.Hour),
		WithObserver(seen.observe))
	cancel, done := start(t, l)

	first := srv.nextSub(t)
	tr := seen.waitBackoff(t)
	assert.Equal(t, ReasonClosed, tr.Reason)
	assert.Equal(t, 10*time.Millisecond, tr.Delay)

	second := srv.nextSub(t)
	assert.JSONEq(t, string(first), string(second), "same subscription after reconnect")
	assert.JSONEq(t, `{"type":"subscribe","product_ids":["BTC-USD","ETH-USD"],"channels":["heartbeat","matches"]}`, string(second))

	cancel()
	waitDone(t, done)
}

func TestListenerBacksOffLongerAfterError(t *testing.T) {
	srv := newWSServer(t, func(n int, c *websocket.Conn) {
		if n == 1 {
			c.UnderlyingConn().Close()
			return
		}
		drain(c)
	})

	log, _ := logtest.NewNullLogger()
	seen := make(transitions, 64)
	l := New("binance-com", NewBinance(srv.url(), config.RegionCom, btcEntries()), btcThresholds(), newTradeSink(), log,
		WithBackoff(time.Hour, 20*time.Millisecond),
		WithObserver(seen.observe))
	cancel, done := start(t, l)

	first := srv.nextSub(t)
	tr := seen.waitBackoff(t)
	assert.Equal(t, ReasonError, tr.Reason)
	assert.Equal(t, 20*time.Millisecond, tr.Delay)
	assert.Error(t, tr.Err)

	second := srv.nextSub(t)
	assert.Equal(t, first, second)

	cancel()
	waitDone(t, done)
}

func TestListenerDialFailureBacksOff(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	seen := make(transitions, 64)
	l := New("binance-us", NewBinance("ws://127.0.0.1:1/ws", config.RegionUS, btcEntries()), btcThresholds(), newTradeSink(), log,
		WithBackoff(time.Hour, time.Hour),
		WithObserver(seen.observe))
	cancel, done := start(t, l)

	tr := seen.waitBackoff(t)
	assert.Equal(t, StateConnecting, tr.From)
	assert.Equal(t, ReasonError, tr.Reason)

	// cancellation interrupts the backoff sleep
	cancel()
	waitDone(t, done)
}

func TestListenerStopsWhileReceiving(t *testing.T) {
	srv := newWSServer(t, func(n int, c *websocket.Conn) { drain(c) })

	log, _ := logtest.NewNullLogger()
	l := New("binance-com", NewBinance(srv.url(), config.RegionCom, btcEntries()), btcThresholds(), newTradeSink(), log)
	cancel, done := start(t, l)

	srv.nextSub(t)
	cancel()
	waitDone(t, done)
	assert.Equal(t, int32(1), atomic.LoadInt32(&srv.conns))
}

func TestListenerWithoutEntriesExits(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	l := New("coinbase", NewCoinbase("ws://127.0.0.1:1", nil), btcThresholds(), newTradeSink(), log)

	require.NoError(t, l.Run(context.Background()))
}

func TestBinanceURL(t *testing.T) {
	assert.Equal(t, "wss://stream.binance.us:9443/ws", BinanceURL(config.RegionUS))
	assert.Equal(t, "wss://stream.binance.com:9443/ws", BinanceURL(config.RegionCom))
	assert.Equal(t, "wss://stream.binance.us:9443/ws", NewBinance("", config.RegionUS, nil).URL())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ReasonClosed, classify(&websocket.CloseError{Code: websocket.CloseNormalClosure}))
	assert.Equal(t, ReasonClosed, classify(&websocket.CloseError{Code: websocket.CloseGoingAway}))
	assert.Equal(t, ReasonError, classify(&websocket.CloseError{Code: websocket.CloseAbnormalClosure}))
}

const whaleTrade = `{"e":"aggTrade","E":1700000000000,"s":"BTCUSDT","a":9,"p":"60000","q":"1","T":1700000000000,"m":false}`

func TestListenerKeepsQuietConnectionWhilePinged(t *testing.T) {
	srv := newWSServer(t, func(n int, c *websocket.Conn) {
		// pings only, for well past the read timeout
		for i := 0; i < 20; i++ {
			if err := c.WriteControl(websocket.PingMessage, []byte("hb"), time.Now().Add(time.Second)); err != nil {
				return
			}
			time.Sleep(25 * time.Millisecond)
		}
		if err := c.WriteMessage(websocket.TextMessage, []byte(whaleTrade)); err != nil {
			return
		}
		drain(c)
	})

	log, _ := logtest.NewNullLogger()
	seen := make(transitions, 64)
	sink := newTradeSink()
	l := New("binance-com", NewBinance(srv.url(), config.RegionCom, btcEntries()), btcThresholds(), sink, log,
		WithReadTimeout(200*time.Millisecond),
		WithBackoff(time.Hour, time.Hour),
		WithObserver(seen.observe))
	cancel, done := start(t, l)

	select {
	case tr := <-sink.trades:
		assert.Equal(t, market.SideBuy, tr.Side)
	case <-time.After(waitFor):
		t.Fatal("trade after a quiet period was not dispatched")
	}

	cancel()
	waitDone(t, done)

	close(seen)
	for tr := range seen {
		assert.NotEqual(t, StateBackingOff, tr.To, "pinged connection must not be dropped")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&srv.conns))
}

// stuckDeliverer blocks every delivery until released or cancelled.
type stuckDeliverer struct {
	calls   int32
	release chan struct{}
}

func (d *stuckDeliverer) Deliver(ctx context.Context, message string) error {
	atomic.AddInt32(&d.calls, 1)
	select {
	case <-d.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestListenerKeepsReadingWhileDeliveryBlocks(t *testing.T) {
	srv := newWSServer(t, func(n int, c *websocket.Conn) {
		if n == 1 {
			for i := 0; i < 5; i++ {
				if err := c.WriteMessage(websocket.TextMessage, []byte(whaleTrade)); err != nil {
					return
				}
			}
			_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		}
		drain(c)
	})

	log, _ := logtest.NewNullLogger()
	stuck := &stuckDeliverer{release: make(chan struct{})}
	defer close(stuck.release)

	queue := alerts.NewQueue("binance-com", alerts.NewDispatcher(stuck, "test", 1000, log), 2, log)
	queueCtx, stopQueue := context.WithCancel(context.Background())
	defer stopQueue()
	go func() { _ = queue.Run(queueCtx) }()

	seen := make(transitions, 64)
	l := New("binance-com", NewBinance(srv.url(), config.RegionCom, btcEntries()), btcThresholds(), queue, log,
		WithBackoff(time.Hour, time.Hour),
		WithObserver(seen.observe))
	cancel, done := start(t, l)

	// every trade is read and the close frame seen while delivery is stuck
	tr := seen.waitBackoff(t)
	assert.Equal(t, ReasonClosed, tr.Reason)
	assert.LessOrEqual(t, atomic.LoadInt32(&stuck.calls), int32(1))

	cancel()
	waitDone(t, done)
}

func TestListenerShutdownDuringDialIsQuiet(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		// accept and never answer the handshake
		if c, err := ln.Accept(); err == nil {
			accepted <- c
		}
	}()

	log, hook := logtest.NewNullLogger()
	seen := make(transitions, 64)
	reconnects := testutil.ToFloat64(metrics.Reconnects.WithLabelValues(market.SourceBinance, "error"))

	l := New("binance-com", NewBinance("ws://"+ln.Addr().String()+"/ws", config.RegionCom, btcEntries()), btcThresholds(), newTradeSink(), log,
		WithObserver(seen.observe))
	l.dialer.HandshakeTimeout = 300 * time.Millisecond
	cancel, done := start(t, l)

	select {
	case c := <-accepted:
		defer c.Close()
	case <-time.After(waitFor):
		t.Fatal("listener never dialed")
	}
	cancel()
	waitDone(t, done)

	assert.Empty(t, seen, "no state change on shutdown")
	assert.Equal(t, reconnects, testutil.ToFloat64(metrics.Reconnects.WithLabelValues(market.SourceBinance, "error")))
	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, logrus.ErrorLevel, e.Level, e.Message)
	}
}
