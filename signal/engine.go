package signal

import (
	"time"

	"github.com/google/uuid"

	appconfig "tickflow/config"
	"tickflow/logger"
	"tickflow/models"
)

// Direction of an entry signal.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Signal is a discrete trading signal emitted by the engine.
type Signal struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Price     float64   `json:"price"`
	Strategy  string    `json:"strategy"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// TradeSample is one qualifying trade retained by the engine for rule
// evaluation.
type TradeSample struct {
	Timestamp int64
	Price     float64
	Notional  float64
}

// Strategy evaluates entry rules against recent qualifying trade history and
// the latest book. Implementations are pure with respect to their inputs.
type Strategy interface {
	Name() string
	Evaluate(history []TradeSample, book *models.NormalizedOrderbook, nowMs int64) (Direction, string, bool)
}

const maxHistory = 1000

// Engine records qualifying trade history and evaluates the configured
// strategy on every book update. Stateless per evaluation call; the only
// state is the bounded trade history.
type Engine struct {
	log         *logger.Entry
	minNotional float64
	strategy    Strategy

	history []TradeSample

	now func() time.Time
}

// NewEngine builds an engine with the strategy selected by signal.policy.
func NewEngine(cfg *appconfig.Config) *Engine {
	var strategy Strategy
	switch cfg.Signal.Policy {
	case appconfig.PolicyMomentum:
		strategy = NewMomentumStrategy(cfg)
	default:
		strategy = NewConfluenceStrategy(cfg)
	}
	return &Engine{
		log:         logger.GetLogger().WithComponent("signal_engine"),
		minNotional: cfg.Signal.MinTradeNotional,
		strategy:    strategy,
		now:         time.Now,
	}
}

// OnTrade retains the trade when its notional qualifies. Small trades are
// ignored to bound memory and keep the history relevant.
func (e *Engine) OnTrade(trade *models.NormalizedTrade) {
	if trade.Notional < e.minNotional {
		return
	}
	e.history = append(e.history, TradeSample{
		Timestamp: trade.Timestamp,
		Price:     trade.Price,
		Notional:  trade.Notional,
	})
	if len(e.history) > maxHistory {
		e.history = e.history[1:]
	}
}

// OnOrderbook evaluates the entry rules and returns a signal or nil.
func (e *Engine) OnOrderbook(book *models.NormalizedOrderbook) *Signal {
	direction, reason, ok := e.strategy.Evaluate(e.history, book, e.now().UnixMilli())
	if !ok {
		return nil
	}

	sig := &Signal{
		ID:        uuid.NewString(),
		Symbol:    book.Symbol,
		Direction: direction,
		Price:     book.MidPrice,
		Strategy:  e.strategy.Name(),
		Reason:    reason,
		CreatedAt: e.now(),
	}
	e.log.WithFields(logger.Fields{
		"signal_id": sig.ID,
		"direction": string(direction),
		"strategy":  sig.Strategy,
		"reason":    reason,
	}).Info("entry signal")
	return sig
}

// CheckExit reports whether the current book turned against the position:
// a LONG exits once the bid share drops below neutral, a SHORT once it rises
// above neutral. Pure predicate over the market state.
func (e *Engine) CheckExit(st *models.MarketState, side Direction) bool {
	bidShare := st.BidShare()
	switch side {
	case DirectionLong:
		return bidShare < 0.5
	case DirectionShort:
		return bidShare > 0.5
	default:
		return false
	}
}
