package processor

import (
	"fmt"
	"strconv"
	"sync"

	appconfig "tickflow/config"
	"tickflow/logger"
	"tickflow/models"
)

// ErrorType classifies why a record failed validation.
type ErrorType string

const (
	ErrNullValue        ErrorType = "null_value"
	ErrNegativePrice    ErrorType = "negative_price"
	ErrNegativeQuantity ErrorType = "negative_quantity"
	ErrInvalidTimestamp ErrorType = "invalid_timestamp"
	ErrDuplicate        ErrorType = "duplicate"
	ErrEmptyOrderbook   ErrorType = "empty_orderbook"
	ErrInvalidSymbol    ErrorType = "invalid_symbol"
)

// ValidationResult is the outcome of a single validation call.
type ValidationResult struct {
	Valid     bool
	ErrorType ErrorType
	Message   string
}

// ValidatorStats is a snapshot of validation counters.
type ValidatorStats struct {
	TotalValidated int64
	TotalErrors    int64
	OutOfOrder     int64
	ErrorRate      float64
	ErrorCounts    map[ErrorType]int64
}

// Validator rejects malformed, duplicate and out-of-range records before
// they enter the pipeline. It is owned by the pipeline driver; the mutex
// only protects the counters against concurrent stats reads.
type Validator struct {
	log             *logger.Entry
	expectedSymbols map[string]struct{}
	orderbookDepth  int

	// Dedup horizon. Bounded in size; eviction order is arbitrary.
	recentTradeIDs map[int64]struct{}
	maxTradeIDs    int

	lastTradeTS     int64
	lastOrderbookTS int64

	mu             sync.RWMutex
	totalValidated int64
	totalErrors    int64
	outOfOrder     int64
	errorCounts    map[ErrorType]int64
}

// NewValidator creates a validator for the configured symbol set.
func NewValidator(cfg *appconfig.Config) *Validator {
	symbols := make(map[string]struct{}, len(cfg.Validator.Symbols))
	for _, s := range cfg.Validator.Symbols {
		symbols[s] = struct{}{}
	}
	return &Validator{
		log:             logger.GetLogger().WithComponent("validator"),
		expectedSymbols: symbols,
		orderbookDepth:  cfg.Normalize.OrderbookDepth,
		recentTradeIDs:  make(map[int64]struct{}, cfg.Validator.MaxRecentTradeIDs),
		maxTradeIDs:     cfg.Validator.MaxRecentTradeIDs,
		errorCounts:     make(map[ErrorType]int64),
	}
}

// ValidateTrade checks a raw trade, short-circuiting on the first failure.
// Out-of-order timestamps are logged but do not fail validation since
// network reordering is expected.
func (v *Validator) ValidateTrade(trade *models.RawTrade) ValidationResult {
	v.countValidated()

	if trade.Price == "" || trade.Quantity == "" {
		return v.recordError(ErrNullValue, fmt.Sprintf("price or quantity missing for trade %d", trade.TradeID))
	}

	price, err := strconv.ParseFloat(trade.Price, 64)
	if err != nil {
		return v.recordError(ErrNullValue, fmt.Sprintf("cannot parse price %q: %v", trade.Price, err))
	}
	quantity, err := strconv.ParseFloat(trade.Quantity, 64)
	if err != nil {
		return v.recordError(ErrNullValue, fmt.Sprintf("cannot parse quantity %q: %v", trade.Quantity, err))
	}

	if price <= 0 {
		return v.recordError(ErrNegativePrice, fmt.Sprintf("invalid price: %v", price))
	}
	if quantity <= 0 {
		return v.recordError(ErrNegativeQuantity, fmt.Sprintf("invalid quantity: %v", quantity))
	}

	if trade.TradeTime <= 0 {
		return v.recordError(ErrInvalidTimestamp, fmt.Sprintf("invalid timestamp: %d", trade.TradeTime))
	}

	if _, ok := v.expectedSymbols[trade.Symbol]; !ok {
		return v.recordError(ErrInvalidSymbol, fmt.Sprintf("unexpected symbol: %s", trade.Symbol))
	}

	if _, dup := v.recentTradeIDs[trade.TradeID]; dup {
		return v.recordError(ErrDuplicate, fmt.Sprintf("duplicate trade id: %d", trade.TradeID))
	}

	if trade.TradeTime < v.lastTradeTS {
		v.countOutOfOrder()
		v.log.WithFields(logger.Fields{
			"current": trade.TradeTime,
			"last":    v.lastTradeTS,
		}).Warn("out of order trade")
	}

	v.rememberTradeID(trade.TradeID)
	if trade.TradeTime > v.lastTradeTS {
		v.lastTradeTS = trade.TradeTime
	}

	return ValidationResult{Valid: true}
}

// ValidateOrderbook checks a raw depth update, short-circuiting on the first
// failure. Only the top-N levels are inspected.
func (v *Validator) ValidateOrderbook(depth *models.RawDepthUpdate) ValidationResult {
	v.countValidated()

	if len(depth.Bids) == 0 || len(depth.Asks) == 0 {
		return v.recordError(ErrEmptyOrderbook, "bids or asks is empty")
	}

	if depth.EventTime <= 0 {
		return v.recordError(ErrInvalidTimestamp, fmt.Sprintf("invalid timestamp: %d", depth.EventTime))
	}

	if _, ok := v.expectedSymbols[depth.Symbol]; !ok {
		return v.recordError(ErrInvalidSymbol, fmt.Sprintf("unexpected symbol: %s", depth.Symbol))
	}

	if res := v.checkLevels(depth.Bids, "bid"); !res.Valid {
		return res
	}
	if res := v.checkLevels(depth.Asks, "ask"); !res.Valid {
		return res
	}

	if depth.EventTime < v.lastOrderbookTS {
		v.countOutOfOrder()
		v.log.WithFields(logger.Fields{
			"current": depth.EventTime,
			"last":    v.lastOrderbookTS,
		}).Warn("out of order orderbook")
	}
	if depth.EventTime > v.lastOrderbookTS {
		v.lastOrderbookTS = depth.EventTime
	}

	return ValidationResult{Valid: true}
}

func (v *Validator) checkLevels(levels [][]string, side string) ValidationResult {
	n := len(levels)
	if n > v.orderbookDepth {
		n = v.orderbookDepth
	}
	for _, level := range levels[:n] {
		if len(level) < 2 {
			return v.recordError(ErrNullValue, fmt.Sprintf("malformed %s level: %v", side, level))
		}
		price, err := strconv.ParseFloat(level[0], 64)
		if err != nil {
			return v.recordError(ErrNullValue, fmt.Sprintf("cannot parse %s price %q: %v", side, level[0], err))
		}
		qty, err := strconv.ParseFloat(level[1], 64)
		if err != nil {
			return v.recordError(ErrNullValue, fmt.Sprintf("cannot parse %s quantity %q: %v", side, level[1], err))
		}
		if price <= 0 || qty < 0 {
			return v.recordError(ErrNegativePrice, fmt.Sprintf("invalid %s level: price=%v qty=%v", side, price, qty))
		}
	}
	return ValidationResult{Valid: true}
}

// rememberTradeID inserts into the dedup set, evicting an arbitrary member
// when full. Bounded size is the contract here, not eviction order.
func (v *Validator) rememberTradeID(id int64) {
	v.recentTradeIDs[id] = struct{}{}
	if len(v.recentTradeIDs) > v.maxTradeIDs {
		for old := range v.recentTradeIDs {
			if old == id {
				continue
			}
			delete(v.recentTradeIDs, old)
			break
		}
	}
}

func (v *Validator) countValidated() {
	v.mu.Lock()
	v.totalValidated++
	v.mu.Unlock()
}

func (v *Validator) countOutOfOrder() {
	v.mu.Lock()
	v.outOfOrder++
	v.mu.Unlock()
}

func (v *Validator) recordError(errType ErrorType, msg string) ValidationResult {
	v.mu.Lock()
	v.totalErrors++
	v.errorCounts[errType]++
	v.mu.Unlock()

	v.log.WithFields(logger.Fields{"error_type": string(errType)}).Warn(msg)

	return ValidationResult{Valid: false, ErrorType: errType, Message: msg}
}

// ErrorRate reports the fraction of validated records that failed.
func (v *Validator) ErrorRate() float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.totalValidated == 0 {
		return 0
	}
	return float64(v.totalErrors) / float64(v.totalValidated)
}

// Stats returns a snapshot of the validation counters.
func (v *Validator) Stats() ValidatorStats {
	v.mu.RLock()
	defer v.mu.RUnlock()

	counts := make(map[ErrorType]int64, len(v.errorCounts))
	for k, c := range v.errorCounts {
		counts[k] = c
	}
	rate := 0.0
	if v.totalValidated > 0 {
		rate = float64(v.totalErrors) / float64(v.totalValidated)
	}
	return ValidatorStats{
		TotalValidated: v.totalValidated,
		TotalErrors:    v.totalErrors,
		OutOfOrder:     v.outOfOrder,
		ErrorRate:      rate,
		ErrorCounts:    counts,
	}
}
