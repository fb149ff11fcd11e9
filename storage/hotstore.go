package storage

import (
	"sort"
	"sync"
	"time"

	appconfig "tickflow/config"
	"tickflow/logger"
	"tickflow/models"
)

// HotStore is the bounded in-memory retention layer for normalized records.
// Ring buffers bound memory by count, timestamp-sorted indexes answer range
// queries and enforce the TTL. The two bounds are deliberately independent:
// the ring may still hold a record whose index entry has already expired.
type HotStore struct {
	symbol string
	log    *logger.Entry

	mu sync.RWMutex

	trades     *tradeRing
	orderbooks *bookRing

	tradeIndex []models.NormalizedTrade
	bookIndex  []models.NormalizedOrderbook

	latestTrade     *models.NormalizedTrade
	latestOrderbook *models.NormalizedOrderbook

	ttl time.Duration
	now func() time.Time

	totalTradesStored     int64
	totalOrderbooksStored int64
}

// StoreStats is a snapshot of store occupancy.
type StoreStats struct {
	Symbol                string
	TradesInMemory        int
	OrderbooksInMemory    int
	TotalTradesStored     int64
	TotalOrderbooksStored int64
	TradeIndexSize        int
	BookIndexSize         int
	LatestTradeTimestamp  int64
	LatestBookTimestamp   int64
}

// NewHotStore creates a store for one symbol from the storage config section.
func NewHotStore(cfg *appconfig.Config, symbol string) *HotStore {
	return &HotStore{
		symbol:     symbol,
		log:        logger.GetLogger().WithComponent("hot_store").WithFields(logger.Fields{"symbol": symbol}),
		trades:     newTradeRing(cfg.Storage.MaxTrades),
		orderbooks: newBookRing(cfg.Storage.MaxOrderbooks),
		ttl:        cfg.Storage.TTL,
		now:        time.Now,
	}
}

// AddTrade appends to the ring buffer and the time index, updates the latest
// pointer and prunes expired index entries.
func (s *HotStore) AddTrade(trade models.NormalizedTrade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades.push(trade)
	s.tradeIndex = insertTrade(s.tradeIndex, trade)
	s.latestTrade = &trade
	s.totalTradesStored++

	cutoff := s.cutoffMillis()
	kept := pruneTrades(s.tradeIndex, cutoff)
	if removed := len(s.tradeIndex) - len(kept); removed > 0 {
		s.log.WithFields(logger.Fields{"removed": removed}).Debug("expired trades pruned")
	}
	s.tradeIndex = kept
}

// AddOrderbook appends to the ring buffer and the time index, updates the
// latest pointer and prunes expired index entries.
func (s *HotStore) AddOrderbook(book models.NormalizedOrderbook) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orderbooks.push(book)
	s.bookIndex = insertBook(s.bookIndex, book)
	s.latestOrderbook = &book
	s.totalOrderbooksStored++

	cutoff := s.cutoffMillis()
	kept := pruneBooks(s.bookIndex, cutoff)
	if removed := len(s.bookIndex) - len(kept); removed > 0 {
		s.log.WithFields(logger.Fields{"removed": removed}).Debug("expired orderbooks pruned")
	}
	s.bookIndex = kept
}

// LatestTrade returns the most recently inserted trade, or nil.
func (s *HotStore) LatestTrade() *models.NormalizedTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestTrade
}

// LatestOrderbook returns the most recently inserted orderbook, or nil.
func (s *HotStore) LatestOrderbook() *models.NormalizedOrderbook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestOrderbook
}

// TradesSince returns all indexed trades with timestamp >= ts.
func (s *HotStore) TradesSince(ts int64) []models.NormalizedTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := sort.Search(len(s.tradeIndex), func(i int) bool { return s.tradeIndex[i].Timestamp >= ts })
	return append([]models.NormalizedTrade(nil), s.tradeIndex[idx:]...)
}

// TradesRange returns all indexed trades with start <= timestamp <= end.
func (s *HotStore) TradesRange(start, end int64) []models.NormalizedTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo := sort.Search(len(s.tradeIndex), func(i int) bool { return s.tradeIndex[i].Timestamp >= start })
	hi := sort.Search(len(s.tradeIndex), func(i int) bool { return s.tradeIndex[i].Timestamp > end })
	return append([]models.NormalizedTrade(nil), s.tradeIndex[lo:hi]...)
}

// RecentTrades returns the most recent n trades from the ring buffer, oldest
// first. The ring has no time bound, only a count bound.
func (s *HotStore) RecentTrades(n int) []models.NormalizedTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trades.recent(n)
}

// OrderbooksSince returns all indexed orderbooks with timestamp >= ts.
func (s *HotStore) OrderbooksSince(ts int64) []models.NormalizedOrderbook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := sort.Search(len(s.bookIndex), func(i int) bool { return s.bookIndex[i].Timestamp >= ts })
	return append([]models.NormalizedOrderbook(nil), s.bookIndex[idx:]...)
}

// RecentOrderbooks returns the most recent n orderbooks from the ring
// buffer, oldest first.
func (s *HotStore) RecentOrderbooks(n int) []models.NormalizedOrderbook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderbooks.recent(n)
}

// TradesInWindow returns the indexed trades of the trailing window.
func (s *HotStore) TradesInWindow(window time.Duration) []models.NormalizedTrade {
	start := s.now().Add(-window).UnixMilli()
	return s.TradesSince(start)
}

// VolumeInWindow sums traded quantity over the trailing window.
func (s *HotStore) VolumeInWindow(window time.Duration) float64 {
	var volume float64
	for _, t := range s.TradesInWindow(window) {
		volume += t.Quantity
	}
	return volume
}

// VWAPInWindow computes the volume-weighted average price over the trailing
// window, 0 when no volume traded.
func (s *HotStore) VWAPInWindow(window time.Duration) float64 {
	var totalPQ, totalQty float64
	for _, t := range s.TradesInWindow(window) {
		totalPQ += t.Price * t.Quantity
		totalQty += t.Quantity
	}
	if totalQty == 0 {
		return 0
	}
	return totalPQ / totalQty
}

// LargeTradesInWindow returns the large trades of the trailing window.
func (s *HotStore) LargeTradesInWindow(window time.Duration) []models.NormalizedTrade {
	all := s.TradesInWindow(window)
	large := make([]models.NormalizedTrade, 0, len(all))
	for _, t := range all {
		if t.IsLarge {
			large = append(large, t)
		}
	}
	return large
}

// Stats returns a snapshot of store occupancy.
func (s *HotStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := StoreStats{
		Symbol:                s.symbol,
		TradesInMemory:        s.trades.len(),
		OrderbooksInMemory:    s.orderbooks.len(),
		TotalTradesStored:     s.totalTradesStored,
		TotalOrderbooksStored: s.totalOrderbooksStored,
		TradeIndexSize:        len(s.tradeIndex),
		BookIndexSize:         len(s.bookIndex),
	}
	if s.latestTrade != nil {
		stats.LatestTradeTimestamp = s.latestTrade.Timestamp
	}
	if s.latestOrderbook != nil {
		stats.LatestBookTimestamp = s.latestOrderbook.Timestamp
	}
	return stats
}

// Clear drops all stored records. Used only for explicit restart.
func (s *HotStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades.clear()
	s.orderbooks.clear()
	s.tradeIndex = nil
	s.bookIndex = nil
	s.latestTrade = nil
	s.latestOrderbook = nil
	s.log.Info("storage cleared")
}

func (s *HotStore) cutoffMillis() int64 {
	return s.now().Add(-s.ttl).UnixMilli()
}

// insertTrade keeps the index sorted by timestamp. The common case is an
// append; late arrivals are placed by binary search.
func insertTrade(index []models.NormalizedTrade, trade models.NormalizedTrade) []models.NormalizedTrade {
	if n := len(index); n == 0 || index[n-1].Timestamp <= trade.Timestamp {
		return append(index, trade)
	}
	pos := sort.Search(len(index), func(i int) bool { return index[i].Timestamp > trade.Timestamp })
	index = append(index, models.NormalizedTrade{})
	copy(index[pos+1:], index[pos:])
	index[pos] = trade
	return index
}

func insertBook(index []models.NormalizedOrderbook, book models.NormalizedOrderbook) []models.NormalizedOrderbook {
	if n := len(index); n == 0 || index[n-1].Timestamp <= book.Timestamp {
		return append(index, book)
	}
	pos := sort.Search(len(index), func(i int) bool { return index[i].Timestamp > book.Timestamp })
	index = append(index, models.NormalizedOrderbook{})
	copy(index[pos+1:], index[pos:])
	index[pos] = book
	return index
}

func pruneTrades(index []models.NormalizedTrade, cutoff int64) []models.NormalizedTrade {
	idx := sort.Search(len(index), func(i int) bool { return index[i].Timestamp >= cutoff })
	if idx == 0 {
		return index
	}
	return append(index[:0], index[idx:]...)
}

func pruneBooks(index []models.NormalizedOrderbook, cutoff int64) []models.NormalizedOrderbook {
	idx := sort.Search(len(index), func(i int) bool { return index[i].Timestamp >= cutoff })
	if idx == 0 {
		return index
	}
	return append(index[:0], index[idx:]...)
}
