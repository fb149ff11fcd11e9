package processor

import (
	"testing"

	appconfig "tickflow/config"
	"tickflow/models"
)

func minimalConfig() *appconfig.Config {
	cfg := appconfig.Default()
	cfg.Validator.Symbols = []string{"BTCUSDT"}
	cfg.Validator.MaxRecentTradeIDs = 5
	cfg.Normalize.OrderbookDepth = 5
	return cfg
}

func validTrade(id int64) *models.RawTrade {
	return &models.RawTrade{
		EventType:    "aggTrade",
		Symbol:       "BTCUSDT",
		TradeID:      id,
		Price:        "50000.5",
		Quantity:     "0.25",
		TradeTime:    1700000000000 + id,
		IsBuyerMaker: false,
	}
}

func validDepth() *models.RawDepthUpdate {
	return &models.RawDepthUpdate{
		EventType: "depthUpdate",
		EventTime: 1700000000000,
		Symbol:    "BTCUSDT",
		Bids:      [][]string{{"50000.0", "1.5"}, {"49999.5", "2.0"}},
		Asks:      [][]string{{"50000.5", "1.0"}, {"50001.0", "3.0"}},
	}
}

func TestValidateTradeAccepts(t *testing.T) {
	v := NewValidator(minimalConfig())
	if res := v.ValidateTrade(validTrade(1)); !res.Valid {
		t.Fatalf("expected valid, got %s: %s", res.ErrorType, res.Message)
	}
}

func TestValidateTradeRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.RawTrade)
		errType ErrorType
	}{
		{"missing price", func(tr *models.RawTrade) { tr.Price = "" }, ErrNullValue},
		{"unparseable price", func(tr *models.RawTrade) { tr.Price = "abc" }, ErrNullValue},
		{"zero price", func(tr *models.RawTrade) { tr.Price = "0" }, ErrNegativePrice},
		{"negative price", func(tr *models.RawTrade) { tr.Price = "-1" }, ErrNegativePrice},
		{"zero quantity", func(tr *models.RawTrade) { tr.Quantity = "0" }, ErrNegativeQuantity},
		{"bad timestamp", func(tr *models.RawTrade) { tr.TradeTime = 0 }, ErrInvalidTimestamp},
		{"wrong symbol", func(tr *models.RawTrade) { tr.Symbol = "ETHUSDT" }, ErrInvalidSymbol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(minimalConfig())
			tr := validTrade(1)
			tt.mutate(tr)
			res := v.ValidateTrade(tr)
			if res.Valid {
				t.Fatalf("expected rejection")
			}
			if res.ErrorType != tt.errType {
				t.Fatalf("expected %s, got %s", tt.errType, res.ErrorType)
			}
		})
	}
}

func TestValidateTradeDuplicate(t *testing.T) {
	v := NewValidator(minimalConfig())
	if res := v.ValidateTrade(validTrade(42)); !res.Valid {
		t.Fatalf("first pass should be valid: %s", res.Message)
	}
	res := v.ValidateTrade(validTrade(42))
	if res.Valid {
		t.Fatalf("duplicate should be rejected")
	}
	if res.ErrorType != ErrDuplicate {
		t.Fatalf("expected %s, got %s", ErrDuplicate, res.ErrorType)
	}
}

func TestValidateTradeDedupBounded(t *testing.T) {
	cfg := minimalConfig()
	cfg.Validator.MaxRecentTradeIDs = 3
	v := NewValidator(cfg)
	for id := int64(1); id <= 10; id++ {
		if res := v.ValidateTrade(validTrade(id)); !res.Valid {
			t.Fatalf("trade %d should be valid: %s", id, res.Message)
		}
	}
	if got := len(v.recentTradeIDs); got > 3 {
		t.Fatalf("dedup set grew to %d, want <= 3", got)
	}
	// The most recent id is never the one evicted.
	if res := v.ValidateTrade(validTrade(10)); res.Valid {
		t.Fatalf("latest id should still be remembered")
	}
}

func TestValidateTradeOutOfOrderPasses(t *testing.T) {
	v := NewValidator(minimalConfig())
	early := validTrade(1)
	late := validTrade(2)
	late.TradeTime = early.TradeTime + 5000
	if res := v.ValidateTrade(late); !res.Valid {
		t.Fatalf("late trade should be valid: %s", res.Message)
	}
	if res := v.ValidateTrade(early); !res.Valid {
		t.Fatalf("out of order trade should still be valid: %s", res.Message)
	}
	if got := v.Stats().OutOfOrder; got != 1 {
		t.Fatalf("expected 1 out of order, got %d", got)
	}
	// High water mark did not regress.
	if v.lastTradeTS != late.TradeTime {
		t.Fatalf("expected last ts %d, got %d", late.TradeTime, v.lastTradeTS)
	}
}

func TestValidateOrderbookAccepts(t *testing.T) {
	v := NewValidator(minimalConfig())
	if res := v.ValidateOrderbook(validDepth()); !res.Valid {
		t.Fatalf("expected valid, got %s: %s", res.ErrorType, res.Message)
	}
}

func TestValidateOrderbookRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.RawDepthUpdate)
		errType ErrorType
	}{
		{"empty bids", func(d *models.RawDepthUpdate) { d.Bids = nil }, ErrEmptyOrderbook},
		{"empty asks", func(d *models.RawDepthUpdate) { d.Asks = nil }, ErrEmptyOrderbook},
		{"bad timestamp", func(d *models.RawDepthUpdate) { d.EventTime = 0 }, ErrInvalidTimestamp},
		{"wrong symbol", func(d *models.RawDepthUpdate) { d.Symbol = "DOGEUSDT" }, ErrInvalidSymbol},
		{"malformed level", func(d *models.RawDepthUpdate) { d.Bids[0] = []string{"50000.0"} }, ErrNullValue},
		{"negative bid price", func(d *models.RawDepthUpdate) { d.Bids[0] = []string{"-1", "1.0"} }, ErrNegativePrice},
		{"bad ask quantity", func(d *models.RawDepthUpdate) { d.Asks[0] = []string{"50000.5", "x"} }, ErrNullValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(minimalConfig())
			d := validDepth()
			tt.mutate(d)
			res := v.ValidateOrderbook(d)
			if res.Valid {
				t.Fatalf("expected rejection")
			}
			if res.ErrorType != tt.errType {
				t.Fatalf("expected %s, got %s", tt.errType, res.ErrorType)
			}
		})
	}
}

func TestValidateOrderbookIgnoresDeepLevels(t *testing.T) {
	cfg := minimalConfig()
	cfg.Normalize.OrderbookDepth = 2
	v := NewValidator(cfg)
	d := validDepth()
	// Garbage outside the inspected depth must not fail validation.
	d.Bids = append(d.Bids, []string{"bad", "level"})
	if res := v.ValidateOrderbook(d); !res.Valid {
		t.Fatalf("deep garbage should be ignored: %s", res.Message)
	}
}

func TestValidatorStats(t *testing.T) {
	v := NewValidator(minimalConfig())
	v.ValidateTrade(validTrade(1))
	bad := validTrade(2)
	bad.Price = "-5"
	v.ValidateTrade(bad)

	stats := v.Stats()
	if stats.TotalValidated != 2 {
		t.Fatalf("expected 2 validated, got %d", stats.TotalValidated)
	}
	if stats.TotalErrors != 1 {
		t.Fatalf("expected 1 error, got %d", stats.TotalErrors)
	}
	if stats.ErrorCounts[ErrNegativePrice] != 1 {
		t.Fatalf("expected negative_price count 1, got %d", stats.ErrorCounts[ErrNegativePrice])
	}
	if want := 0.5; stats.ErrorRate != want {
		t.Fatalf("expected error rate %v, got %v", want, stats.ErrorRate)
	}
}

func TestErrorRateEmpty(t *testing.T) {
	v := NewValidator(minimalConfig())
	if got := v.ErrorRate(); got != 0 {
		t.Fatalf("expected 0 rate on empty validator, got %v", got)
	}
}
