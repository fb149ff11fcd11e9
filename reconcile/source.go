package reconcile

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/adshao/go-binance/v2/futures"

	appconfig "tickflow/config"
)

// PriceSource fetches the reference last price for a symbol from a source
// independent of the websocket stream.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
}

// binanceSource reads the futures 24h ticker through the REST API. The base
// URL is overridable for testing.
type binanceSource struct {
	client *futures.Client
}

// NewBinanceSource builds the production price source from the reconcile
// config section. Requests are bounded by the configured timeout.
func NewBinanceSource(cfg *appconfig.Config) PriceSource {
	client := futures.NewClient("", "")
	if cfg.Reconcile.BaseURL != "" {
		client.BaseURL = cfg.Reconcile.BaseURL
	}
	client.HTTPClient = &http.Client{Timeout: cfg.Reconcile.RequestTimeout}
	return &binanceSource{client: client}
}

func (s *binanceSource) LastPrice(ctx context.Context, symbol string) (float64, error) {
	stats, err := s.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch ticker: %w", err)
	}
	if len(stats) == 0 {
		return 0, fmt.Errorf("empty ticker response for %s", symbol)
	}
	price, err := strconv.ParseFloat(stats[0].LastPrice, 64)
	if err != nil {
		return 0, fmt.Errorf("parse lastPrice %q: %w", stats[0].LastPrice, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive reference price %v", price)
	}
	return price, nil
}
