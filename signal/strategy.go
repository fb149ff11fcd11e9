package signal

import (
	"fmt"
	"time"

	appconfig "tickflow/config"
	"tickflow/models"
)

// priceChange computes the fractional change between the first and last
// qualifying trade inside the trailing window. ok is false with fewer than
// two samples in the window.
func priceChange(history []TradeSample, window time.Duration, nowMs int64) (float64, bool) {
	cutoff := nowMs - window.Milliseconds()

	var first, last *TradeSample
	for i := range history {
		s := &history[i]
		if s.Timestamp < cutoff {
			continue
		}
		if first == nil {
			first = s
		}
		last = s
	}
	if first == nil || first == last || first.Price <= 0 {
		return 0, false
	}
	return (last.Price - first.Price) / first.Price, true
}

// notionalRate sums qualifying notional inside the trailing window and
// normalizes it to a per-second rate.
func notionalRate(history []TradeSample, window time.Duration, nowMs int64) float64 {
	cutoff := nowMs - window.Milliseconds()
	var total float64
	for _, s := range history {
		if s.Timestamp >= cutoff {
			total += s.Notional
		}
	}
	return total / window.Seconds()
}

// MomentumStrategy is the loose policy: price direction alone decides, with
// no volume or imbalance gate.
type MomentumStrategy struct {
	window    time.Duration
	threshold float64
}

// NewMomentumStrategy builds the loose policy from the signal config.
func NewMomentumStrategy(cfg *appconfig.Config) *MomentumStrategy {
	return &MomentumStrategy{
		window:    cfg.Signal.PriceWindow,
		threshold: cfg.Signal.PriceThreshold,
	}
}

func (s *MomentumStrategy) Name() string { return appconfig.PolicyMomentum }

func (s *MomentumStrategy) Evaluate(history []TradeSample, _ *models.NormalizedOrderbook, nowMs int64) (Direction, string, bool) {
	change, ok := priceChange(history, s.window, nowMs)
	if !ok {
		return "", "", false
	}
	switch {
	case change >= s.threshold:
		return DirectionLong, fmt.Sprintf("price up %.3f%% in %s", change*100, s.window), true
	case change <= -s.threshold:
		return DirectionShort, fmt.Sprintf("price down %.3f%% in %s", change*100, s.window), true
	default:
		return "", "", false
	}
}

// ConfluenceStrategy is the strict policy: a volume spike, a price move and
// a directionally consistent book imbalance must all hold simultaneously.
type ConfluenceStrategy struct {
	priceWindow    time.Duration
	priceThreshold float64

	spikeMultiple  float64
	shortWindow    time.Duration
	baselineWindow time.Duration

	imbalanceThreshold float64
}

// NewConfluenceStrategy builds the strict policy from the signal config.
func NewConfluenceStrategy(cfg *appconfig.Config) *ConfluenceStrategy {
	return &ConfluenceStrategy{
		priceWindow:        cfg.Signal.PriceWindow,
		priceThreshold:     cfg.Signal.PriceThreshold,
		spikeMultiple:      cfg.Signal.VolumeSpikeMultiple,
		shortWindow:        cfg.Signal.VolumeShortWindow,
		baselineWindow:     cfg.Signal.VolumeBaselineWindow,
		imbalanceThreshold: cfg.Signal.ImbalanceThreshold,
	}
}

func (s *ConfluenceStrategy) Name() string { return appconfig.PolicyConfluence }

func (s *ConfluenceStrategy) Evaluate(history []TradeSample, book *models.NormalizedOrderbook, nowMs int64) (Direction, string, bool) {
	change, ok := priceChange(history, s.priceWindow, nowMs)
	if !ok {
		return "", "", false
	}

	var direction Direction
	switch {
	case change >= s.priceThreshold:
		direction = DirectionLong
	case change <= -s.priceThreshold:
		direction = DirectionShort
	default:
		return "", "", false
	}

	recentRate := notionalRate(history, s.shortWindow, nowMs)
	baselineRate := notionalRate(history, s.baselineWindow, nowMs)
	if baselineRate <= 0 || recentRate < baselineRate*s.spikeMultiple {
		return "", "", false
	}

	bidShare := book.BidShare()
	switch direction {
	case DirectionLong:
		if bidShare < s.imbalanceThreshold {
			return "", "", false
		}
	case DirectionShort:
		if 1-bidShare < s.imbalanceThreshold {
			return "", "", false
		}
	}

	reason := fmt.Sprintf("price %.3f%%, volume rate x%.1f, bid share %.2f",
		change*100, recentRate/baselineRate, bidShare)
	return direction, reason, true
}
