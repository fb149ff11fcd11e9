package storage

import (
	"testing"
	"time"

	appconfig "tickflow/config"
	"tickflow/models"
)

func minimalConfig() *appconfig.Config {
	cfg := appconfig.Default()
	cfg.Storage.MaxTrades = 5
	cfg.Storage.MaxOrderbooks = 5
	cfg.Storage.TTL = time.Hour
	return cfg
}

func testStore(t *testing.T, cfg *appconfig.Config, at time.Time) *HotStore {
	t.Helper()
	s := NewHotStore(cfg, "BTCUSDT")
	s.now = func() time.Time { return at }
	return s
}

func trade(id, ts int64, price, qty float64) models.NormalizedTrade {
	return models.NormalizedTrade{
		Timestamp: ts,
		Symbol:    "BTCUSDT",
		TradeID:   id,
		Price:     price,
		Quantity:  qty,
		Notional:  price * qty,
	}
}

func book(ts int64, mid float64) models.NormalizedOrderbook {
	return models.NormalizedOrderbook{Timestamp: ts, Symbol: "BTCUSDT", MidPrice: mid}
}

func TestLatestPointers(t *testing.T) {
	now := time.Now()
	s := testStore(t, minimalConfig(), now)

	if s.LatestTrade() != nil || s.LatestOrderbook() != nil {
		t.Fatalf("empty store should have nil latest records")
	}

	base := now.UnixMilli()
	s.AddTrade(trade(1, base, 100, 1))
	s.AddTrade(trade(2, base+1, 101, 1))
	s.AddOrderbook(book(base, 100.5))

	if got := s.LatestTrade(); got == nil || got.TradeID != 2 {
		t.Fatalf("expected latest trade id 2, got %+v", got)
	}
	if got := s.LatestOrderbook(); got == nil || got.MidPrice != 100.5 {
		t.Fatalf("expected latest book mid 100.5, got %+v", got)
	}
}

func TestRingEviction(t *testing.T) {
	now := time.Now()
	s := testStore(t, minimalConfig(), now)
	base := now.UnixMilli()

	for i := int64(1); i <= 6; i++ {
		s.AddTrade(trade(i, base+i, 100, 1))
	}

	recent := s.RecentTrades(10)
	if len(recent) != 5 {
		t.Fatalf("ring should hold 5 trades, got %d", len(recent))
	}
	if recent[0].TradeID != 2 {
		t.Fatalf("oldest trade should have been evicted, first is %d", recent[0].TradeID)
	}
	if recent[len(recent)-1].TradeID != 6 {
		t.Fatalf("newest trade missing, last is %d", recent[len(recent)-1].TradeID)
	}
	if got := s.Stats().TotalTradesStored; got != 6 {
		t.Fatalf("lifetime counter should survive eviction, got %d", got)
	}
}

func TestRecentTradesPartial(t *testing.T) {
	now := time.Now()
	s := testStore(t, minimalConfig(), now)
	base := now.UnixMilli()
	for i := int64(1); i <= 4; i++ {
		s.AddTrade(trade(i, base+i, 100, 1))
	}

	recent := s.RecentTrades(2)
	if len(recent) != 2 || recent[0].TradeID != 3 || recent[1].TradeID != 4 {
		t.Fatalf("expected trades 3,4 got %+v", recent)
	}
}

func TestTTLPrunesIndexNotRing(t *testing.T) {
	cfg := minimalConfig()
	cfg.Storage.TTL = time.Minute
	now := time.Now()
	s := testStore(t, cfg, now)

	old := now.Add(-2 * time.Minute).UnixMilli()
	s.AddTrade(trade(1, old, 100, 1))
	fresh := now.UnixMilli()
	s.AddTrade(trade(2, fresh, 101, 1))

	stats := s.Stats()
	if stats.TradeIndexSize != 1 {
		t.Fatalf("expired trade should leave the index, size %d", stats.TradeIndexSize)
	}
	if stats.TradesInMemory != 2 {
		t.Fatalf("ring is count-bounded only, got %d", stats.TradesInMemory)
	}
	if got := s.TradesSince(0); len(got) != 1 || got[0].TradeID != 2 {
		t.Fatalf("index queries should only see fresh trades, got %+v", got)
	}
}

func TestRangeQueries(t *testing.T) {
	now := time.Now()
	s := testStore(t, minimalConfig(), now)
	base := now.UnixMilli()
	for i := int64(0); i < 5; i++ {
		s.AddTrade(trade(i+1, base+i*1000, 100+float64(i), 1))
	}

	since := s.TradesSince(base + 3000)
	if len(since) != 2 {
		t.Fatalf("expected 2 trades since, got %d", len(since))
	}

	ranged := s.TradesRange(base+1000, base+3000)
	if len(ranged) != 3 {
		t.Fatalf("expected 3 trades in range, got %d", len(ranged))
	}
	if ranged[0].TradeID != 2 || ranged[2].TradeID != 4 {
		t.Fatalf("range bounds inclusive, got %+v", ranged)
	}
}

func TestOutOfOrderInsertKeepsIndexSorted(t *testing.T) {
	now := time.Now()
	s := testStore(t, minimalConfig(), now)
	base := now.UnixMilli()

	s.AddTrade(trade(1, base+2000, 100, 1))
	s.AddTrade(trade(2, base, 99, 1))
	s.AddTrade(trade(3, base+1000, 100.5, 1))

	all := s.TradesSince(0)
	for i := 1; i < len(all); i++ {
		if all[i-1].Timestamp > all[i].Timestamp {
			t.Fatalf("index not sorted at %d: %+v", i, all)
		}
	}
}

func TestWindowAggregates(t *testing.T) {
	now := time.Now()
	s := testStore(t, minimalConfig(), now)

	inside := now.Add(-30 * time.Second).UnixMilli()
	outside := now.Add(-2 * time.Minute).UnixMilli()

	s.AddTrade(trade(1, outside, 50, 10))
	s.AddTrade(trade(2, inside, 100, 2))
	tr := trade(3, now.UnixMilli(), 200, 2)
	tr.IsLarge = true
	s.AddTrade(tr)

	if got := s.VolumeInWindow(time.Minute); got != 4 {
		t.Fatalf("expected window volume 4, got %v", got)
	}
	if got := s.VWAPInWindow(time.Minute); got != 150 {
		t.Fatalf("expected window vwap 150, got %v", got)
	}
	if got := s.LargeTradesInWindow(time.Minute); len(got) != 1 || got[0].TradeID != 3 {
		t.Fatalf("expected one large trade, got %+v", got)
	}
	if got := s.VWAPInWindow(time.Millisecond); got != 0 {
		t.Fatalf("empty window vwap should be 0, got %v", got)
	}
}

func TestOrderbookQueries(t *testing.T) {
	now := time.Now()
	s := testStore(t, minimalConfig(), now)
	base := now.UnixMilli()

	for i := int64(0); i < 6; i++ {
		s.AddOrderbook(book(base+i, 100+float64(i)))
	}

	recent := s.RecentOrderbooks(3)
	if len(recent) != 3 || recent[2].MidPrice != 105 {
		t.Fatalf("unexpected recent orderbooks: %+v", recent)
	}
	if got := s.OrderbooksSince(base + 4); len(got) != 2 {
		t.Fatalf("expected 2 books since, got %d", len(got))
	}
}

func TestClear(t *testing.T) {
	now := time.Now()
	s := testStore(t, minimalConfig(), now)
	s.AddTrade(trade(1, now.UnixMilli(), 100, 1))
	s.AddOrderbook(book(now.UnixMilli(), 100))

	s.Clear()

	stats := s.Stats()
	if stats.TradesInMemory != 0 || stats.OrderbooksInMemory != 0 || stats.TradeIndexSize != 0 {
		t.Fatalf("clear left records behind: %+v", stats)
	}
	if s.LatestTrade() != nil || s.LatestOrderbook() != nil {
		t.Fatalf("latest pointers should be nil after clear")
	}
}
