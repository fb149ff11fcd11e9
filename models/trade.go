package models

// Trade sides as derived from the buyer-maker flag.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// RawTrade mirrors Binance's aggTrade websocket event structure. Price and
// quantity arrive as strings and are only parsed after validation.
type RawTrade struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	TradeID      int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	FirstTradeID int64  `json:"f"`
	LastTradeID  int64  `json:"l"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// NormalizedTrade is the enriched, typed form of a validated trade.
// Instances are immutable once created.
type NormalizedTrade struct {
	Timestamp    int64   `json:"timestamp"`
	Symbol       string  `json:"symbol"`
	TradeID      int64   `json:"trade_id"`
	Price        float64 `json:"price"`
	Quantity     float64 `json:"quantity"`
	Notional     float64 `json:"notional"`
	Side         string  `json:"side"`
	IsBuyerMaker bool    `json:"is_buyer_maker"`

	IsLarge          bool    `json:"is_large"`
	VWAP             float64 `json:"vwap"`
	CumulativeVolume float64 `json:"cumulative_volume"`
}
