package state

import (
	"sync"
	"time"

	"tickflow/logger"
	"tickflow/models"
)

const (
	maxTradeHistory = 5000
	maxLargeHistory = 100
	maxPriceHistory = 100

	volumeShortWindow = time.Minute
	volumeLongWindow  = 5 * time.Minute
	momentumWindow    = 5 * time.Second
	largeTradeWindow  = time.Minute
)

type tradeSample struct {
	timestamp int64
	price     float64
	quantity  float64
	notional  float64
	isLarge   bool
}

type pricePoint struct {
	timestamp int64
	price     float64
}

// Manager maintains the single mutable MarketState for one symbol. It is
// updated synchronously by the pipeline driver on every accepted event; the
// mutex only makes pull-based snapshots safe.
type Manager struct {
	symbol string
	log    *logger.Entry

	mu    sync.RWMutex
	state models.MarketState

	tradeHistory []tradeSample
	largeHistory []tradeSample
	priceHistory []pricePoint

	now func() time.Time
}

// NewManager creates a manager for the given symbol.
func NewManager(symbol string) *Manager {
	m := &Manager{
		symbol: symbol,
		log:    logger.GetLogger().WithComponent("market_state").WithFields(logger.Fields{"symbol": symbol}),
		now:    time.Now,
	}
	m.state = models.MarketState{Timestamp: m.now().UnixMilli(), Symbol: symbol}
	return m
}

// UpdateFromTrade folds an accepted trade into the state and recomputes the
// rolling-window metrics.
func (m *Manager) UpdateFromTrade(trade *models.NormalizedTrade) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.TradeCount++
	m.state.LastPrice = trade.Price
	m.state.LastTradeTimestamp = trade.Timestamp

	sample := tradeSample{
		timestamp: trade.Timestamp,
		price:     trade.Price,
		quantity:  trade.Quantity,
		notional:  trade.Notional,
		isLarge:   trade.IsLarge,
	}
	m.tradeHistory = appendBounded(m.tradeHistory, sample, maxTradeHistory)
	m.priceHistory = appendBoundedPrice(m.priceHistory, pricePoint{timestamp: trade.Timestamp, price: trade.Price}, maxPriceHistory)
	if trade.IsLarge {
		m.largeHistory = appendBounded(m.largeHistory, sample, maxLargeHistory)
	}

	nowMs := m.now().UnixMilli()
	m.updateVolumeMetrics(nowMs)
	m.updatePriceMomentum(nowMs)
	m.updateLargeTradeCount(nowMs)

	m.state.Timestamp = nowMs
}

// UpdateFromOrderbook copies book-derived fields straight from the
// normalized record. No additional derivation happens here.
func (m *Manager) UpdateFromOrderbook(book *models.NormalizedOrderbook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.OrderbookCount++
	m.state.LastOrderbookTimestamp = book.Timestamp

	m.state.BestBid = book.BestBid
	m.state.BestAsk = book.BestAsk
	m.state.MidPrice = book.MidPrice
	m.state.Spread = book.Spread
	m.state.SpreadBps = book.SpreadBps
	m.state.TotalBidVolume = book.TotalBidVolume
	m.state.TotalAskVolume = book.TotalAskVolume
	m.state.BidAskRatio = book.BidAskRatio
	m.state.Imbalance = book.Imbalance

	m.state.Timestamp = m.now().UnixMilli()
}

// State returns a copy of the current market state.
func (m *Manager) State() models.MarketState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Features returns the flat key/value report consumed by monitoring.
func (m *Manager) Features() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"last_price":        m.state.LastPrice,
		"mid_price":         m.state.MidPrice,
		"spread_bps":        m.state.SpreadBps,
		"imbalance":         m.state.Imbalance,
		"bid_ask_ratio":     m.state.BidAskRatio,
		"volume_1m":         m.state.Volume1m,
		"volume_5m":         m.state.Volume5m,
		"vwap_1m":           m.state.VWAP1m,
		"price_momentum":    m.state.PriceMomentum,
		"volume_spike":      m.state.VolumeSpike,
		"large_trade_count": m.state.LargeTradeCount,
		"trade_count":       m.state.TradeCount,
		"orderbook_count":   m.state.OrderbookCount,
	}
}

// Reset clears all history and reinitializes the snapshot. Explicit restart
// only, never automatic.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = models.MarketState{Timestamp: m.now().UnixMilli(), Symbol: m.symbol}
	m.tradeHistory = nil
	m.largeHistory = nil
	m.priceHistory = nil
	m.log.Info("market state reset")
}

// LogState emits a one-line summary of the current state.
func (m *Manager) LogState() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.log.WithFields(logger.Fields{
		"last_price":        m.state.LastPrice,
		"momentum":          m.state.PriceMomentum,
		"imbalance":         m.state.Imbalance,
		"volume_1m":         m.state.Volume1m,
		"large_trade_count": m.state.LargeTradeCount,
	}).Info("market state")
}

func (m *Manager) updateVolumeMetrics(nowMs int64) {
	cutoff1m := nowMs - volumeShortWindow.Milliseconds()
	cutoff5m := nowMs - volumeLongWindow.Milliseconds()

	var volume1m, volume5m, totalPQ, totalQty float64
	for _, t := range m.tradeHistory {
		if t.timestamp >= cutoff5m {
			volume5m += t.quantity
		}
		if t.timestamp >= cutoff1m {
			volume1m += t.quantity
			totalPQ += t.price * t.quantity
			totalQty += t.quantity
		}
	}

	m.state.Volume1m = volume1m
	m.state.Volume5m = volume5m
	if totalQty > 0 {
		m.state.VWAP1m = totalPQ / totalQty
	} else {
		m.state.VWAP1m = 0
	}

	avgPerMinute := volume5m / 5
	m.state.VolumeSpike = volume1m > avgPerMinute*2
}

func (m *Manager) updatePriceMomentum(nowMs int64) {
	cutoff := nowMs - momentumWindow.Milliseconds()

	var first, last *pricePoint
	for i := range m.priceHistory {
		p := &m.priceHistory[i]
		if p.timestamp < cutoff {
			continue
		}
		if first == nil {
			first = p
		}
		last = p
	}

	if first == nil || first == last || first.price <= 0 {
		m.state.PriceMomentum = 0
		return
	}
	m.state.PriceMomentum = (last.price - first.price) / first.price
}

func (m *Manager) updateLargeTradeCount(nowMs int64) {
	cutoff := nowMs - largeTradeWindow.Milliseconds()
	count := 0
	for _, t := range m.largeHistory {
		if t.timestamp >= cutoff {
			count++
		}
	}
	m.state.LargeTradeCount = count
}

func appendBounded(history []tradeSample, sample tradeSample, max int) []tradeSample {
	history = append(history, sample)
	if len(history) > max {
		history = history[1:]
	}
	return history
}

func appendBoundedPrice(history []pricePoint, point pricePoint, max int) []pricePoint {
	history = append(history, point)
	if len(history) > max {
		history = history[1:]
	}
	return history
}
