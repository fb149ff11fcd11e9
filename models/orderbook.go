package models

// PriceLevel represents a single price level in the order book.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// RawDepthUpdate mirrors Binance's depth websocket event structure. Bid and
// ask levels arrive as [price, quantity] string pairs, best levels first.
type RawDepthUpdate struct {
	EventType     string     `json:"e"`
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateID int64      `json:"U"`
	FinalUpdateID int64      `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

// NormalizedOrderbook is the enriched, typed form of a validated depth
// update, aggregated over the configured top-N levels. Immutable once
// created.
type NormalizedOrderbook struct {
	Timestamp int64  `json:"timestamp"`
	Symbol    string `json:"symbol"`
	UpdateID  int64  `json:"update_id"`

	BestBid   float64 `json:"best_bid"`
	BestAsk   float64 `json:"best_ask"`
	MidPrice  float64 `json:"mid_price"`
	Spread    float64 `json:"spread"`
	SpreadBps float64 `json:"spread_bps"`

	TotalBidVolume float64 `json:"total_bid_volume"`
	TotalAskVolume float64 `json:"total_ask_volume"`
	BidAskRatio    float64 `json:"bid_ask_ratio"`
	Imbalance      float64 `json:"imbalance"`

	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

// BidShare converts the signed imbalance back to the bid side's share of the
// aggregated top-N volume, in [0,1] with 0.5 meaning a balanced book.
func (o *NormalizedOrderbook) BidShare() float64 {
	return (o.Imbalance + 1) / 2
}
