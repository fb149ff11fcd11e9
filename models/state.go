package models

// MarketState is the point-in-time aggregate view of a single symbol. One
// mutable instance lives inside the state manager; consumers receive copies.
type MarketState struct {
	Timestamp int64  `json:"timestamp"`
	Symbol    string `json:"symbol"`

	LastPrice float64 `json:"last_price"`
	BestBid   float64 `json:"best_bid"`
	BestAsk   float64 `json:"best_ask"`
	MidPrice  float64 `json:"mid_price"`
	Spread    float64 `json:"spread"`
	SpreadBps float64 `json:"spread_bps"`

	TotalBidVolume float64 `json:"total_bid_volume"`
	TotalAskVolume float64 `json:"total_ask_volume"`
	BidAskRatio    float64 `json:"bid_ask_ratio"`
	Imbalance      float64 `json:"imbalance"`

	Volume1m float64 `json:"volume_1m"`
	Volume5m float64 `json:"volume_5m"`
	VWAP1m   float64 `json:"vwap_1m"`

	PriceMomentum   float64 `json:"price_momentum"`
	VolumeSpike     bool    `json:"volume_spike"`
	LargeTradeCount int     `json:"large_trade_count"`

	TradeCount             int64 `json:"trade_count"`
	OrderbookCount         int64 `json:"orderbook_count"`
	LastTradeTimestamp     int64 `json:"last_trade_timestamp"`
	LastOrderbookTimestamp int64 `json:"last_orderbook_timestamp"`
}

// BidShare is the bid side's share of the aggregated book volume, in [0,1]
// with 0.5 meaning a balanced book.
func (s *MarketState) BidShare() float64 {
	return (s.Imbalance + 1) / 2
}
