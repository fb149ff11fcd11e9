package trader

import (
	"context"
	"sync"
	"time"

	appconfig "tickflow/config"
	"tickflow/logger"
	"tickflow/models"
	"tickflow/pipeline"
	"tickflow/signal"
)

// Verifier checks a streamed price against an independent reference before
// an order is placed. Implemented by the reconciliation layer.
type Verifier interface {
	VerifyBeforeOrder(ctx context.Context, streamedPrice float64) (bool, float64, error)
}

// Position is one open simulated position.
type Position struct {
	SignalID   string           `json:"signal_id"`
	Symbol     string           `json:"symbol"`
	Side       signal.Direction `json:"side"`
	EntryPrice float64          `json:"entry_price"`
	Quantity   float64          `json:"quantity"`
	Leverage   int              `json:"leverage"`
	StopPrice  float64          `json:"stop_price"`
	OpenedAt   time.Time        `json:"opened_at"`
}

// Stats is a snapshot of simulated trading results.
type Stats struct {
	TradesOpened  int64
	TradesClosed  int64
	Wins          int64
	RealizedPnL   float64
	VerifyRejects int64
	Open          bool
}

// Trader runs a single-position paper book on top of the signal engine.
// Entries are gated through the price verifier; a failed or rejected
// verification leaves the book flat. Updates arrive on the pipeline's
// processing goroutine; the mutex only covers the pull-based Stats path.
type Trader struct {
	log      *logger.Entry
	engine   *signal.Engine
	verifier Verifier
	baseCtx  context.Context

	positionSize  float64
	leverage      int
	stopLossPct   float64
	exitImbalance float64
	exitMomentum  float64
	verifyTimeout time.Duration

	mu       sync.Mutex
	position *Position
	stats    Stats

	now func() time.Time
}

// New builds a trader. verifier may be nil, in which case entries are taken
// on the streamed price alone. Verification requests are scoped to ctx so a
// shutdown cancels them instead of waiting out the request timeout.
func New(ctx context.Context, cfg *appconfig.Config, engine *signal.Engine, verifier Verifier) *Trader {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Trader{
		log:           logger.GetLogger().WithComponent("trader"),
		engine:        engine,
		verifier:      verifier,
		baseCtx:       ctx,
		positionSize:  cfg.Trading.PositionSize,
		leverage:      cfg.Trading.Leverage,
		stopLossPct:   cfg.Trading.StopLossPct,
		exitImbalance: cfg.Trading.ExitImbalance,
		exitMomentum:  cfg.Trading.ExitMomentum,
		verifyTimeout: cfg.Reconcile.RequestTimeout,
		now:           time.Now,
	}
}

// OnUpdate consumes one pipeline update. Trades feed the engine history and
// drive stop-loss checks; book updates drive entries and exit rules.
func (t *Trader) OnUpdate(u pipeline.Update) {
	switch u.Kind {
	case models.EventTrade:
		t.engine.OnTrade(u.Trade)
		t.checkStop(u.Trade.Price)
		t.checkMomentumExit(&u.State)
	case models.EventOrderbook:
		if t.current() != nil {
			t.checkBookExit(u.Orderbook, &u.State)
			return
		}
		if sig := t.engine.OnOrderbook(u.Orderbook); sig != nil {
			t.open(sig)
		}
	}
}

func (t *Trader) open(sig *signal.Signal) {
	price := sig.Price
	if t.verifier != nil {
		ctx, cancel := context.WithTimeout(t.baseCtx, t.verifyTimeout)
		ok, refPrice, err := t.verifier.VerifyBeforeOrder(ctx, price)
		cancel()
		if err != nil || !ok {
			t.mu.Lock()
			t.stats.VerifyRejects++
			t.mu.Unlock()
			entry := t.log.WithFields(logger.Fields{
				"signal_id":       sig.ID,
				"streamed_price":  price,
				"reference_price": refPrice,
			})
			if err != nil {
				entry.WithError(err).Warn("entry skipped, price verification failed")
			} else {
				entry.Warn("entry skipped, price divergence too large")
			}
			return
		}
	}

	pos := &Position{
		SignalID:   sig.ID,
		Symbol:     sig.Symbol,
		Side:       sig.Direction,
		EntryPrice: price,
		Quantity:   t.positionSize / price,
		Leverage:   t.leverage,
		OpenedAt:   t.now(),
	}
	if sig.Direction == signal.DirectionLong {
		pos.StopPrice = price * (1 - t.stopLossPct)
	} else {
		pos.StopPrice = price * (1 + t.stopLossPct)
	}

	t.mu.Lock()
	t.position = pos
	t.stats.TradesOpened++
	t.stats.Open = true
	t.mu.Unlock()

	t.log.WithFields(logger.Fields{
		"signal_id":   pos.SignalID,
		"side":        string(pos.Side),
		"entry_price": pos.EntryPrice,
		"quantity":    pos.Quantity,
		"stop_price":  pos.StopPrice,
		"strategy":    sig.Strategy,
	}).Info("position opened")
}

func (t *Trader) checkStop(price float64) {
	pos := t.current()
	if pos == nil {
		return
	}
	switch pos.Side {
	case signal.DirectionLong:
		if price <= pos.StopPrice {
			t.close(price, "stop_loss")
		}
	case signal.DirectionShort:
		if price >= pos.StopPrice {
			t.close(price, "stop_loss")
		}
	}
}

// checkMomentumExit closes once short-term momentum turns against the
// position past the configured threshold.
func (t *Trader) checkMomentumExit(st *models.MarketState) {
	pos := t.current()
	if pos == nil || st.LastPrice <= 0 {
		return
	}
	switch pos.Side {
	case signal.DirectionLong:
		if st.PriceMomentum < -t.exitMomentum {
			t.close(st.LastPrice, "momentum_reversal")
		}
	case signal.DirectionShort:
		if st.PriceMomentum > t.exitMomentum {
			t.close(st.LastPrice, "momentum_reversal")
		}
	}
}

// checkBookExit applies the book-driven exit rules: a hard imbalance flip
// past the threshold, then the engine's neutral-share predicate.
func (t *Trader) checkBookExit(book *models.NormalizedOrderbook, st *models.MarketState) {
	pos := t.current()
	if pos == nil {
		return
	}
	price := book.MidPrice
	if price <= 0 {
		price = pos.EntryPrice
	}

	switch pos.Side {
	case signal.DirectionLong:
		if book.Imbalance < -t.exitImbalance {
			t.close(price, "imbalance_flip")
			return
		}
	case signal.DirectionShort:
		if book.Imbalance > t.exitImbalance {
			t.close(price, "imbalance_flip")
			return
		}
	}

	if t.engine.CheckExit(st, pos.Side) {
		t.close(price, "pressure_lost")
	}
}

func (t *Trader) close(price float64, reason string) {
	t.mu.Lock()
	pos := t.position
	if pos == nil {
		t.mu.Unlock()
		return
	}
	t.position = nil

	change := (price - pos.EntryPrice) / pos.EntryPrice
	if pos.Side == signal.DirectionShort {
		change = -change
	}
	pnl := change * float64(pos.Leverage) * t.positionSize

	t.stats.TradesClosed++
	t.stats.RealizedPnL += pnl
	t.stats.Open = false
	if pnl > 0 {
		t.stats.Wins++
	}
	t.mu.Unlock()

	t.log.WithFields(logger.Fields{
		"signal_id":   pos.SignalID,
		"side":        string(pos.Side),
		"entry_price": pos.EntryPrice,
		"exit_price":  price,
		"pnl":         pnl,
		"reason":      reason,
		"held":        t.now().Sub(pos.OpenedAt).String(),
	}).Info("position closed")
}

// Position returns a copy of the open position, or nil when flat.
func (t *Trader) Position() *Position {
	pos := t.current()
	if pos == nil {
		return nil
	}
	cp := *pos
	return &cp
}

// Stats returns a snapshot of the trading results.
func (t *Trader) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	s.Open = t.position != nil
	return s
}

func (t *Trader) current() *Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position
}
