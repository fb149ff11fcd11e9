package pipeline

import (
	"strings"
	"sync/atomic"

	appconfig "tickflow/config"
	"tickflow/logger"
	"tickflow/models"
	"tickflow/processor"
	"tickflow/state"
	"tickflow/storage"
)

// Update is handed to the callback after every successfully processed
// message. Exactly one of Trade or Orderbook is non-nil, selected by Kind.
// This is the sole hand-off point to strategy and execution logic.
type Update struct {
	Kind      models.EventKind
	Trade     *models.NormalizedTrade
	Orderbook *models.NormalizedOrderbook
	State     models.MarketState
}

// UpdateFunc consumes pipeline updates.
type UpdateFunc func(Update)

// PriceSink receives the last streamed price. Implemented by the
// reconciliation layer.
type PriceSink interface {
	UpdateStreamPrice(price float64)
}

// Stats is a snapshot of pipeline throughput counters.
type Stats struct {
	ProcessedTrades     int64
	ProcessedOrderbooks int64
	ValidationErrors    int64
}

// Pipeline sequences the per-message flow: validate, normalize, store,
// aggregate, notify. It runs entirely on the connector's read-loop
// goroutine, so every compound structure it owns is touched by exactly one
// writer.
type Pipeline struct {
	symbol string
	log    *logger.Entry

	validator  *processor.Validator
	normalizer *processor.Normalizer
	store      *storage.HotStore
	manager    *state.Manager

	priceSink PriceSink
	onUpdate  UpdateFunc

	tradeLogInterval int64
	bookLogInterval  int64

	processedTrades     atomic.Int64
	processedOrderbooks atomic.Int64
	validationErrors    atomic.Int64
}

// New builds the full processing chain for one symbol. onUpdate may be nil;
// priceSink may be nil when reconciliation is disabled.
func New(cfg *appconfig.Config, priceSink PriceSink, onUpdate UpdateFunc) *Pipeline {
	symbol := strings.ToUpper(cfg.Stream.Symbol)
	p := &Pipeline{
		symbol:           symbol,
		log:              logger.GetLogger().WithComponent("pipeline").WithFields(logger.Fields{"symbol": symbol}),
		validator:        processor.NewValidator(cfg),
		normalizer:       processor.NewNormalizer(cfg),
		store:            storage.NewHotStore(cfg, symbol),
		manager:          state.NewManager(symbol),
		priceSink:        priceSink,
		onUpdate:         onUpdate,
		tradeLogInterval: int64(cfg.Stats.TradeLogInterval),
		bookLogInterval:  int64(cfg.Stats.OrderbookLogInterval),
	}
	p.log.Info("pipeline initialized")
	return p
}

// HandleEvent processes one decoded stream event through the whole chain.
// Validation failures drop the event; nothing propagates to the caller.
func (p *Pipeline) HandleEvent(event models.StreamEvent) {
	switch event.Kind {
	case models.EventTrade:
		p.processTrade(event.Trade)
	case models.EventOrderbook:
		p.processOrderbook(event.Depth)
	default:
		p.log.WithFields(logger.Fields{"kind": string(event.Kind)}).Warn("unknown event kind")
	}
}

func (p *Pipeline) processTrade(raw *models.RawTrade) {
	if result := p.validator.ValidateTrade(raw); !result.Valid {
		p.validationErrors.Add(1)
		return
	}

	trade := p.normalizer.NormalizeTrade(raw)
	p.store.AddTrade(trade)
	p.manager.UpdateFromTrade(&trade)

	if p.priceSink != nil {
		p.priceSink.UpdateStreamPrice(trade.Price)
	}
	if p.onUpdate != nil {
		p.onUpdate(Update{Kind: models.EventTrade, Trade: &trade, State: p.manager.State()})
	}

	if n := p.processedTrades.Add(1); p.tradeLogInterval > 0 && n%p.tradeLogInterval == 0 {
		p.logStats()
	}
}

func (p *Pipeline) processOrderbook(raw *models.RawDepthUpdate) {
	if result := p.validator.ValidateOrderbook(raw); !result.Valid {
		p.validationErrors.Add(1)
		return
	}

	book := p.normalizer.NormalizeOrderbook(raw)
	p.store.AddOrderbook(book)
	p.manager.UpdateFromOrderbook(&book)

	if p.onUpdate != nil {
		p.onUpdate(Update{Kind: models.EventOrderbook, Orderbook: &book, State: p.manager.State()})
	}

	if n := p.processedOrderbooks.Add(1); p.bookLogInterval > 0 && n%p.bookLogInterval == 0 {
		p.manager.LogState()
	}
}

// State returns a copy of the current market state.
func (p *Pipeline) State() models.MarketState {
	return p.manager.State()
}

// Features returns the flat feature report for signal consumers.
func (p *Pipeline) Features() map[string]interface{} {
	return p.manager.Features()
}

// Store exposes the hot store for time-window queries.
func (p *Pipeline) Store() *storage.HotStore {
	return p.store
}

// Stats returns pipeline throughput counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		ProcessedTrades:     p.processedTrades.Load(),
		ProcessedOrderbooks: p.processedOrderbooks.Load(),
		ValidationErrors:    p.validationErrors.Load(),
	}
}

// ValidatorStats returns the validation counters.
func (p *Pipeline) ValidatorStats() processor.ValidatorStats {
	return p.validator.Stats()
}

// StorageStats returns the hot store occupancy counters.
func (p *Pipeline) StorageStats() storage.StoreStats {
	return p.store.Stats()
}

// Reset clears all pipeline state. Explicit restart only.
func (p *Pipeline) Reset() {
	p.normalizer.Reset()
	p.store.Clear()
	p.manager.Reset()
	p.log.Info("pipeline reset")
}

func (p *Pipeline) logStats() {
	p.log.WithFields(logger.Fields{
		"trades":            p.processedTrades.Load(),
		"orderbooks":        p.processedOrderbooks.Load(),
		"validation_errors": p.validationErrors.Load(),
		"error_rate":        p.validator.ErrorRate(),
	}).Info("pipeline stats")
}
