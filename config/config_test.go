package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
stream:
  symbol: ethusdt
  read_timeout: 10s
validator:
  symbols: ["ETHUSDT"]
signal:
  policy: momentum
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Stream.Symbol != "ethusdt" {
		t.Fatalf("expected symbol override, got %q", cfg.Stream.Symbol)
	}
	if cfg.Stream.ReadTimeout != 10*time.Second {
		t.Fatalf("expected read timeout override, got %v", cfg.Stream.ReadTimeout)
	}
	if cfg.Signal.Policy != PolicyMomentum {
		t.Fatalf("expected momentum policy, got %q", cfg.Signal.Policy)
	}
	// Untouched sections keep their defaults.
	if cfg.Stream.Reconnect.MaxAttempts != 10 {
		t.Fatalf("expected default reconnect attempts, got %d", cfg.Stream.Reconnect.MaxAttempts)
	}
	if cfg.Storage.MaxTrades != 10000 {
		t.Fatalf("expected default storage capacity, got %d", cfg.Storage.MaxTrades)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadConfigMalformedYaml(t *testing.T) {
	path := writeConfig(t, "stream: [not a map")
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadConfigSymbolEnvOverride(t *testing.T) {
	t.Setenv("TICKFLOW_SYMBOL", " SOLUSDT ")
	path := writeConfig(t, "stream:\n  symbol: btcusdt\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Stream.Symbol != "solusdt" {
		t.Fatalf("env override should win, got %q", cfg.Stream.Symbol)
	}
	if len(cfg.Validator.Symbols) != 1 || cfg.Validator.Symbols[0] != "SOLUSDT" {
		t.Fatalf("validator symbols should follow the override, got %v", cfg.Validator.Symbols)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty symbol", func(c *Config) { c.Stream.Symbol = "" }},
		{"no streams", func(c *Config) { c.Stream.Streams = nil }},
		{"zero reconnect attempts", func(c *Config) { c.Stream.Reconnect.MaxAttempts = 0 }},
		{"inverted backoff range", func(c *Config) { c.Stream.Reconnect.MaxBackoff = c.Stream.Reconnect.InitialBackoff / 2 }},
		{"zero dedup capacity", func(c *Config) { c.Validator.MaxRecentTradeIDs = 0 }},
		{"no validator symbols", func(c *Config) { c.Validator.Symbols = nil }},
		{"zero orderbook depth", func(c *Config) { c.Normalize.OrderbookDepth = 0 }},
		{"zero storage capacity", func(c *Config) { c.Storage.MaxTrades = 0 }},
		{"negative ttl", func(c *Config) { c.Storage.TTL = -time.Second }},
		{"unknown policy", func(c *Config) { c.Signal.Policy = "vibes" }},
		{"price threshold too big", func(c *Config) { c.Signal.PriceThreshold = 1.5 }},
		{"imbalance threshold at coin flip", func(c *Config) { c.Signal.ImbalanceThreshold = 0.5 }},
		{"spike multiple too small", func(c *Config) { c.Signal.VolumeSpikeMultiple = 1 }},
		{"baseline shorter than burst", func(c *Config) { c.Signal.VolumeBaselineWindow = c.Signal.VolumeShortWindow }},
		{"warn threshold zero", func(c *Config) { c.Reconcile.WarnThreshold = 0 }},
		{"reject threshold one", func(c *Config) { c.Reconcile.RejectThreshold = 1 }},
		{"leverage too high", func(c *Config) { c.Trading.Leverage = 200 }},
		{"stop loss zero", func(c *Config) { c.Trading.StopLossPct = 0 }},
		{"exit imbalance one", func(c *Config) { c.Trading.ExitImbalance = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestStreamNames(t *testing.T) {
	cfg := Default()
	cfg.Stream.Symbol = "BTCUSDT"
	cfg.Stream.Streams = []string{"aggTrade", "depth"}

	names := cfg.StreamNames()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %d", len(names))
	}
	if names[0] != "btcusdt@aggTrade" || names[1] != "btcusdt@depth" {
		t.Fatalf("unexpected stream names: %v", names)
	}
}
