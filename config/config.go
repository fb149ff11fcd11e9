package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Tickflow  TickflowConfig  `yaml:"tickflow"`
	Logging   LoggingConfig   `yaml:"logging"`
	Stream    StreamConfig    `yaml:"stream"`
	Validator ValidatorConfig `yaml:"validator"`
	Normalize NormalizeConfig `yaml:"normalize"`
	Storage   StorageConfig   `yaml:"storage"`
	Signal    SignalConfig    `yaml:"signal"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Trading   TradingConfig   `yaml:"trading"`
	Stats     StatsConfig     `yaml:"stats"`
}

type TickflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type StreamConfig struct {
	URL            string          `yaml:"url"`
	Symbol         string          `yaml:"symbol"`
	Streams        []string        `yaml:"streams"`
	ReadTimeout    time.Duration   `yaml:"read_timeout"`
	PingInterval   time.Duration   `yaml:"ping_interval"`
	PingTimeout    time.Duration   `yaml:"ping_timeout"`
	StaleThreshold time.Duration   `yaml:"stale_threshold"`
	HealthInterval time.Duration   `yaml:"health_interval"`
	SessionMaxAge  time.Duration   `yaml:"session_max_age"`
	Reconnect      ReconnectConfig `yaml:"reconnect"`
}

type ReconnectConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type ValidatorConfig struct {
	Symbols           []string `yaml:"symbols"`
	MaxRecentTradeIDs int      `yaml:"max_recent_trade_ids"`
}

type NormalizeConfig struct {
	LargeTradeThreshold float64 `yaml:"large_trade_threshold"`
	OrderbookDepth      int     `yaml:"orderbook_depth"`
	VWAPWindow          int     `yaml:"vwap_window"`
}

type StorageConfig struct {
	MaxTrades     int           `yaml:"max_trades"`
	MaxOrderbooks int           `yaml:"max_orderbooks"`
	TTL           time.Duration `yaml:"ttl"`
}

type SignalConfig struct {
	Policy               string        `yaml:"policy"`
	MinTradeNotional     float64       `yaml:"min_trade_notional"`
	PriceWindow          time.Duration `yaml:"price_window"`
	PriceThreshold       float64       `yaml:"price_threshold"`
	ImbalanceThreshold   float64       `yaml:"imbalance_threshold"`
	VolumeSpikeMultiple  float64       `yaml:"volume_spike_multiple"`
	VolumeShortWindow    time.Duration `yaml:"volume_short_window"`
	VolumeBaselineWindow time.Duration `yaml:"volume_baseline_window"`
}

type ReconcileConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Interval          time.Duration `yaml:"interval"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	WarnThreshold     float64       `yaml:"warn_threshold"`
	RejectThreshold   float64       `yaml:"reject_threshold"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

type TradingConfig struct {
	Leverage     int     `yaml:"leverage"`
	PositionSize float64 `yaml:"position_size"`
	StopLossPct  float64 `yaml:"stop_loss_pct"`

	ExitImbalance float64 `yaml:"exit_imbalance"`
	ExitMomentum  float64 `yaml:"exit_momentum"`
}

type StatsConfig struct {
	TradeLogInterval     int `yaml:"trade_log_interval"`
	OrderbookLogInterval int `yaml:"orderbook_log_interval"`
}

// Signal engine policies selectable through SignalConfig.Policy.
const (
	PolicyMomentum   = "momentum"
	PolicyConfluence = "confluence"
)

// defaults mirrors the reference deployment settings. LoadConfig starts from
// these and lets the yaml file override.
func defaults() Config {
	return Config{
		Tickflow: TickflowConfig{Name: "tickflow", Version: "dev"},
		Logging:  LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Stream: StreamConfig{
			URL:            "wss://fstream.binance.com/stream",
			Symbol:         "btcusdt",
			Streams:        []string{"aggTrade", "depth"},
			ReadTimeout:    30 * time.Second,
			PingInterval:   20 * time.Second,
			PingTimeout:    10 * time.Second,
			StaleThreshold: 60 * time.Second,
			HealthInterval: 5 * time.Second,
			SessionMaxAge:  23*time.Hour + 30*time.Minute,
			Reconnect: ReconnectConfig{
				MaxAttempts:    10,
				InitialBackoff: time.Second,
				MaxBackoff:     60 * time.Second,
			},
		},
		Validator: ValidatorConfig{
			Symbols:           []string{"BTCUSDT"},
			MaxRecentTradeIDs: 1000,
		},
		Normalize: NormalizeConfig{
			LargeTradeThreshold: 10000,
			OrderbookDepth:      5,
			VWAPWindow:          100,
		},
		Storage: StorageConfig{
			MaxTrades:     10000,
			MaxOrderbooks: 1000,
			TTL:           time.Hour,
		},
		Signal: SignalConfig{
			Policy:               PolicyConfluence,
			MinTradeNotional:     10000,
			PriceWindow:          2 * time.Second,
			PriceThreshold:       0.003,
			ImbalanceThreshold:   0.65,
			VolumeSpikeMultiple:  5,
			VolumeShortWindow:    2 * time.Second,
			VolumeBaselineWindow: 60 * time.Second,
		},
		Reconcile: ReconcileConfig{
			BaseURL:           "https://fapi.binance.com",
			Interval:          60 * time.Second,
			RequestTimeout:    5 * time.Second,
			WarnThreshold:     0.001,
			RejectThreshold:   0.005,
			RequestsPerSecond: 2,
		},
		Trading: TradingConfig{
			Leverage:      10,
			PositionSize:  1000000,
			StopLossPct:   0.05,
			ExitImbalance: 0.3,
			ExitMomentum:  0.002,
		},
		Stats: StatsConfig{
			TradeLogInterval:     100,
			OrderbookLogInterval: 50,
		},
	}
}

// LoadConfig reads the yaml configuration file, applies defaults for absent
// values and validates the result. Configuration is treated as immutable
// after this point; components receive it by construction.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaults()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if v := os.Getenv("TICKFLOW_SYMBOL"); v != "" {
		config.Stream.Symbol = strings.ToLower(strings.TrimSpace(v))
		config.Validator.Symbols = []string{strings.ToUpper(strings.TrimSpace(v))}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// Default returns the validated built-in configuration.
func Default() *Config {
	cfg := defaults()
	return &cfg
}

// Validate rejects out-of-range settings up front so components can assume
// sane values.
func (c *Config) Validate() error {
	if c.Stream.Symbol == "" {
		return fmt.Errorf("stream.symbol must be set")
	}
	if len(c.Stream.Streams) == 0 {
		return fmt.Errorf("stream.streams must not be empty")
	}
	if c.Stream.Reconnect.MaxAttempts < 1 {
		return fmt.Errorf("stream.reconnect.max_attempts must be at least 1")
	}
	if c.Stream.Reconnect.InitialBackoff <= 0 || c.Stream.Reconnect.MaxBackoff < c.Stream.Reconnect.InitialBackoff {
		return fmt.Errorf("stream.reconnect backoff range is invalid")
	}
	if c.Stream.StaleThreshold <= 0 || c.Stream.HealthInterval <= 0 {
		return fmt.Errorf("stream health settings must be positive")
	}
	if c.Validator.MaxRecentTradeIDs < 1 {
		return fmt.Errorf("validator.max_recent_trade_ids must be at least 1")
	}
	if len(c.Validator.Symbols) == 0 {
		return fmt.Errorf("validator.symbols must not be empty")
	}
	if c.Normalize.OrderbookDepth < 1 {
		return fmt.Errorf("normalize.orderbook_depth must be at least 1")
	}
	if c.Normalize.LargeTradeThreshold <= 0 {
		return fmt.Errorf("normalize.large_trade_threshold must be positive")
	}
	if c.Storage.MaxTrades < 1 || c.Storage.MaxOrderbooks < 1 {
		return fmt.Errorf("storage capacities must be at least 1")
	}
	if c.Storage.TTL <= 0 {
		return fmt.Errorf("storage.ttl must be positive")
	}
	switch c.Signal.Policy {
	case PolicyMomentum, PolicyConfluence:
	default:
		return fmt.Errorf("signal.policy must be %q or %q", PolicyMomentum, PolicyConfluence)
	}
	if c.Signal.PriceThreshold <= 0 || c.Signal.PriceThreshold >= 1 {
		return fmt.Errorf("signal.price_threshold must be between 0 and 1")
	}
	if c.Signal.ImbalanceThreshold <= 0.5 || c.Signal.ImbalanceThreshold >= 1 {
		return fmt.Errorf("signal.imbalance_threshold must be between 0.5 and 1")
	}
	if c.Signal.VolumeSpikeMultiple <= 1 {
		return fmt.Errorf("signal.volume_spike_multiple must be greater than 1")
	}
	if c.Signal.PriceWindow <= 0 || c.Signal.VolumeShortWindow <= 0 || c.Signal.VolumeBaselineWindow <= c.Signal.VolumeShortWindow {
		return fmt.Errorf("signal windows are invalid")
	}
	if c.Reconcile.WarnThreshold <= 0 || c.Reconcile.WarnThreshold >= 1 {
		return fmt.Errorf("reconcile.warn_threshold must be between 0 and 1")
	}
	if c.Reconcile.RejectThreshold <= 0 || c.Reconcile.RejectThreshold >= 1 {
		return fmt.Errorf("reconcile.reject_threshold must be between 0 and 1")
	}
	if c.Reconcile.Interval <= 0 || c.Reconcile.RequestTimeout <= 0 {
		return fmt.Errorf("reconcile intervals must be positive")
	}
	if c.Trading.Leverage < 1 || c.Trading.Leverage > 125 {
		return fmt.Errorf("trading.leverage must be between 1 and 125")
	}
	if c.Trading.StopLossPct <= 0 || c.Trading.StopLossPct >= 1 {
		return fmt.Errorf("trading.stop_loss_pct must be between 0 and 1")
	}
	if c.Trading.ExitImbalance <= 0 || c.Trading.ExitImbalance >= 1 {
		return fmt.Errorf("trading.exit_imbalance must be between 0 and 1")
	}
	if c.Trading.ExitMomentum <= 0 || c.Trading.ExitMomentum >= 1 {
		return fmt.Errorf("trading.exit_momentum must be between 0 and 1")
	}
	return nil
}

// StreamNames returns the symbol@stream combinations used to build the
// multiplexed stream URL.
func (c *Config) StreamNames() []string {
	names := make([]string, 0, len(c.Stream.Streams))
	sym := strings.ToLower(c.Stream.Symbol)
	for _, s := range c.Stream.Streams {
		names = append(names, sym+"@"+s)
	}
	return names
}
