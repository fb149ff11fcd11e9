package binance

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	appconfig "tickflow/config"
	"tickflow/logger"
	"tickflow/models"
)

// ConnectionState is the connector session phase.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handler receives every decoded stream event, one at a time, on the read
// loop goroutine.
type Handler func(models.StreamEvent)

// Stats is a snapshot of the connector counters.
type Stats struct {
	State          string
	TotalMessages  int64
	TradeCount     int64
	OrderbookCount int64
	ErrorCount     int64
	ReconnectCount int64
	UptimeSeconds  float64
	LastMessageAge float64
}

// Reader owns the multiplexed websocket session to the exchange. It
// reconnects with exponential backoff, watches for stale sessions through an
// independent health monitor, and forces a reconnect before the remote
// 24-hour session limit is reached.
type Reader struct {
	config  *appconfig.Config
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Entry

	connMu sync.Mutex
	conn   *websocket.Conn

	state       atomic.Int32
	backoff     *backoff.Backoff
	maxAttempts int
	failed      chan struct{}

	startTime   time.Time
	connectedAt atomic.Int64
	lastMessage atomic.Int64

	totalMessages  atomic.Int64
	tradeCount     atomic.Int64
	orderbookCount atomic.Int64
	errorCount     atomic.Int64
	reconnectCount atomic.Int64
}

// NewReader creates a connector for the configured symbol and stream set.
func NewReader(cfg *appconfig.Config, handler Handler) *Reader {
	r := &Reader{
		config:  cfg,
		handler: handler,
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger().WithComponent("stream_reader").WithFields(logger.Fields{"symbol": cfg.Stream.Symbol}),
		backoff: &backoff.Backoff{
			Min:    cfg.Stream.Reconnect.InitialBackoff,
			Max:    cfg.Stream.Reconnect.MaxBackoff,
			Factor: 2,
		},
		maxAttempts: cfg.Stream.Reconnect.MaxAttempts,
		failed:      make(chan struct{}),
	}
	r.state.Store(int32(StateDisconnected))
	return r
}

// URL builds the multiplexed stream URL from the configured symbol and
// stream types.
func (r *Reader) URL() string {
	return r.config.Stream.URL + "?streams=" + strings.Join(r.config.StreamNames(), "/")
}

// Start connects and runs the session until Stop or an exhausted reconnect
// budget.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("stream reader already running")
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.startTime = time.Now()
	r.mu.Unlock()

	r.log.WithFields(logger.Fields{"url": r.URL()}).Info("starting stream reader")

	r.wg.Add(2)
	go r.run()
	go r.healthLoop()

	return nil
}

// Stop closes the session and waits for all goroutines. Safe to invoke
// concurrently with an in-flight receive.
func (r *Reader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.log.Info("stopping stream reader")
	r.cancel()
	r.closeConn()
	r.wg.Wait()
	r.setState(StateDisconnected)

	r.log.WithFields(logger.Fields{
		"total_messages": r.totalMessages.Load(),
		"trades":         r.tradeCount.Load(),
		"orderbooks":     r.orderbookCount.Load(),
		"errors":         r.errorCount.Load(),
		"reconnects":     r.reconnectCount.Load(),
	}).Info("stream reader stopped")
}

// State returns the current connection state.
func (r *Reader) State() ConnectionState {
	return ConnectionState(r.state.Load())
}

// IsConnected reports whether the session is established.
func (r *Reader) IsConnected() bool {
	return r.State() == StateConnected
}

// Done is closed when the connector exhausts its reconnect budget and gives
// up. A clean Stop never closes it.
func (r *Reader) Done() <-chan struct{} {
	return r.failed
}

// Stats returns a snapshot of the connector counters.
func (r *Reader) Stats() Stats {
	stats := Stats{
		State:          r.State().String(),
		TotalMessages:  r.totalMessages.Load(),
		TradeCount:     r.tradeCount.Load(),
		OrderbookCount: r.orderbookCount.Load(),
		ErrorCount:     r.errorCount.Load(),
		ReconnectCount: r.reconnectCount.Load(),
	}
	if !r.startTime.IsZero() {
		stats.UptimeSeconds = time.Since(r.startTime).Seconds()
	}
	if last := r.lastMessage.Load(); last > 0 {
		stats.LastMessageAge = time.Since(time.Unix(0, last)).Seconds()
	}
	return stats
}

// run owns the connect/read/reconnect cycle. Consecutive connect failures
// back off exponentially; a successful connect resets the budget.
func (r *Reader) run() {
	defer r.wg.Done()

	attempts := 0
	for {
		if r.ctx.Err() != nil {
			return
		}

		if err := r.connect(); err != nil {
			attempts++
			if attempts > r.maxAttempts {
				r.setState(StateFailed)
				r.log.WithFields(logger.Fields{"max_attempts": r.maxAttempts}).Error("reconnect budget exhausted, giving up")
				close(r.failed)
				return
			}
			delay := r.backoff.Duration()
			r.setState(StateReconnecting)
			r.reconnectCount.Add(1)
			r.log.WithError(err).WithFields(logger.Fields{
				"attempt": attempts,
				"delay":   delay.String(),
			}).Warn("connect failed, retrying")

			select {
			case <-time.After(delay):
			case <-r.ctx.Done():
				return
			}
			continue
		}

		attempts = 0
		r.backoff.Reset()

		r.readLoop()
		if r.ctx.Err() != nil {
			return
		}
		r.setState(StateReconnecting)
		r.reconnectCount.Add(1)
	}
}

func (r *Reader) connect() error {
	r.setState(StateConnecting)
	r.log.Info("connecting")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(r.ctx, r.URL(), nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(r.config.Stream.ReadTimeout))
	})

	r.connMu.Lock()
	r.conn = conn
	r.connMu.Unlock()

	now := time.Now()
	r.connectedAt.Store(now.UnixNano())
	r.lastMessage.Store(now.UnixNano())
	r.setState(StateConnected)
	r.log.Info("connected")
	return nil
}

// readLoop receives until the connection errors, the session ages out, or
// the context is cancelled. A gorilla connection is unusable once a read
// deadline fires, so receive timeouts also end the loop; the health monitor
// covers staleness independently.
func (r *Reader) readLoop() {
	conn := r.currentConn()
	if conn == nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	r.wg.Add(1)
	go r.pingLoop(conn, done)

	defer r.closeConn()

	for {
		if r.ctx.Err() != nil {
			return
		}

		if age := time.Since(time.Unix(0, r.connectedAt.Load())); age >= r.config.Stream.SessionMaxAge {
			r.log.WithFields(logger.Fields{"session_age": age.String()}).Info("session age limit reached, reconnecting")
			return
		}

		if err := conn.SetReadDeadline(time.Now().Add(r.config.Stream.ReadTimeout)); err != nil {
			r.log.WithError(err).Warn("set read deadline failed")
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				r.log.Warn("message receive timeout")
			} else {
				r.log.WithError(err).Warn("websocket read error")
			}
			return
		}

		r.lastMessage.Store(time.Now().UnixNano())
		r.totalMessages.Add(1)
		r.dispatch(msg)
	}
}

// dispatch decodes and hands the event to the pipeline. Decode failures are
// counted and dropped, never propagated.
func (r *Reader) dispatch(msg []byte) {
	event, err := models.DecodeStreamEvent(msg)
	if err != nil {
		r.errorCount.Add(1)
		r.log.WithError(err).Debug("dropping undecodable message")
		return
	}

	switch event.Kind {
	case models.EventTrade:
		r.tradeCount.Add(1)
	case models.EventOrderbook:
		r.orderbookCount.Add(1)
	}

	r.handler(event)
}

// pingLoop sends protocol-level pings for the lifetime of one connection.
func (r *Reader) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Stream.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(r.config.Stream.PingTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				r.log.WithError(err).Debug("ping failed")
				return
			}
		case <-done:
			return
		case <-r.ctx.Done():
			return
		}
	}
}

// healthLoop independently watches message staleness and force-closes the
// socket when the stream goes quiet, which the read loop observes as an
// error and reconnects.
func (r *Reader) healthLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.Stream.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if r.State() != StateConnected {
				continue
			}
			age := time.Since(time.Unix(0, r.lastMessage.Load()))
			if age > r.config.Stream.StaleThreshold {
				r.log.WithFields(logger.Fields{"last_message_age": age.String()}).Warn("no messages received, forcing reconnect")
				r.closeConn()
			}
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Reader) currentConn() *websocket.Conn {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	return r.conn
}

func (r *Reader) closeConn() {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			r.log.WithError(err).Debug("close connection")
		}
		r.conn = nil
	}
}

func (r *Reader) setState(s ConnectionState) {
	r.state.Store(int32(s))
}
