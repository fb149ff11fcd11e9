package processor

import (
	"strconv"

	appconfig "tickflow/config"
	"tickflow/logger"
	"tickflow/models"
)

type recentTrade struct {
	price    float64
	quantity float64
}

// Normalizer converts validated raw records into enriched domain records.
// Its only internal state is a bounded window of recent trades used for the
// trailing VWAP plus a cumulative volume counter.
type Normalizer struct {
	log                 *logger.Entry
	largeTradeThreshold float64
	orderbookDepth      int

	recentTrades     []recentTrade
	vwapWindow       int
	cumulativeVolume float64
}

// NewNormalizer creates a normalizer from the normalize config section.
func NewNormalizer(cfg *appconfig.Config) *Normalizer {
	window := cfg.Normalize.VWAPWindow
	if window < 1 {
		window = 100
	}
	return &Normalizer{
		log:                 logger.GetLogger().WithComponent("normalizer"),
		largeTradeThreshold: cfg.Normalize.LargeTradeThreshold,
		orderbookDepth:      cfg.Normalize.OrderbookDepth,
		recentTrades:        make([]recentTrade, 0, window),
		vwapWindow:          window,
	}
}

// NormalizeTrade enriches a validated trade. The trailing VWAP reflects the
// window before this trade; the window is updated afterwards.
func (n *Normalizer) NormalizeTrade(trade *models.RawTrade) models.NormalizedTrade {
	price, _ := strconv.ParseFloat(trade.Price, 64)
	quantity, _ := strconv.ParseFloat(trade.Quantity, 64)
	notional := price * quantity

	side := models.SideBuy
	if trade.IsBuyerMaker {
		side = models.SideSell
	}

	isLarge := notional >= n.largeTradeThreshold
	vwap := n.trailingVWAP()

	n.cumulativeVolume += quantity
	n.recentTrades = append(n.recentTrades, recentTrade{price: price, quantity: quantity})
	if len(n.recentTrades) > n.vwapWindow {
		n.recentTrades = n.recentTrades[1:]
	}

	normalized := models.NormalizedTrade{
		Timestamp:        trade.TradeTime,
		Symbol:           trade.Symbol,
		TradeID:          trade.TradeID,
		Price:            price,
		Quantity:         quantity,
		Notional:         notional,
		Side:             side,
		IsBuyerMaker:     trade.IsBuyerMaker,
		IsLarge:          isLarge,
		VWAP:             vwap,
		CumulativeVolume: n.cumulativeVolume,
	}

	if isLarge {
		n.log.WithFields(logger.Fields{
			"side":     side,
			"notional": notional,
			"price":    price,
			"quantity": quantity,
		}).Info("large trade")
	}

	return normalized
}

// NormalizeOrderbook aggregates the top-N levels of a validated depth
// update. An empty side should not survive validation, but the normalizer
// still degrades to a zero-valued record instead of failing.
func (n *Normalizer) NormalizeOrderbook(depth *models.RawDepthUpdate) models.NormalizedOrderbook {
	bids := parseLevels(depth.Bids, n.orderbookDepth)
	asks := parseLevels(depth.Asks, n.orderbookDepth)

	if len(bids) == 0 || len(asks) == 0 {
		n.log.Warn("empty bids or asks in orderbook")
		return models.NormalizedOrderbook{
			Timestamp: depth.EventTime,
			Symbol:    depth.Symbol,
			UpdateID:  depth.FinalUpdateID,
		}
	}

	bestBid := bids[0].Price
	bestAsk := asks[0].Price
	midPrice := (bestBid + bestAsk) / 2
	spread := bestAsk - bestBid

	spreadBps := 0.0
	if midPrice > 0 {
		spreadBps = spread / midPrice * 10000
	}

	var bidVolume, askVolume float64
	for _, l := range bids {
		bidVolume += l.Quantity
	}
	for _, l := range asks {
		askVolume += l.Quantity
	}

	ratio := 0.0
	if askVolume > 0 {
		ratio = bidVolume / askVolume
	}
	imbalance := 0.0
	if total := bidVolume + askVolume; total > 0 {
		imbalance = (bidVolume - askVolume) / total
	}

	return models.NormalizedOrderbook{
		Timestamp:      depth.EventTime,
		Symbol:         depth.Symbol,
		UpdateID:       depth.FinalUpdateID,
		BestBid:        bestBid,
		BestAsk:        bestAsk,
		MidPrice:       midPrice,
		Spread:         spread,
		SpreadBps:      spreadBps,
		TotalBidVolume: bidVolume,
		TotalAskVolume: askVolume,
		BidAskRatio:    ratio,
		Imbalance:      imbalance,
		Bids:           bids,
		Asks:           asks,
	}
}

// Reset clears the VWAP window and the cumulative volume counter.
func (n *Normalizer) Reset() {
	n.recentTrades = n.recentTrades[:0]
	n.cumulativeVolume = 0
	n.log.Info("normalizer reset")
}

func (n *Normalizer) trailingVWAP() float64 {
	var totalPQ, totalQty float64
	for _, t := range n.recentTrades {
		totalPQ += t.price * t.quantity
		totalQty += t.quantity
	}
	if totalQty == 0 {
		return 0
	}
	return totalPQ / totalQty
}

func parseLevels(levels [][]string, depth int) []models.PriceLevel {
	n := len(levels)
	if n > depth {
		n = depth
	}
	out := make([]models.PriceLevel, 0, n)
	for _, level := range levels[:n] {
		if len(level) < 2 {
			continue
		}
		price, err1 := strconv.ParseFloat(level[0], 64)
		qty, err2 := strconv.ParseFloat(level[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, models.PriceLevel{Price: price, Quantity: qty})
	}
	return out
}
