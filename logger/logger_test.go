package logger

import (
	"errors"
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := GetLogger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestEntryChaining(t *testing.T) {
	log := GetLogger()
	entry := log.WithComponent("test").WithFields(Fields{"symbol": "BTCUSDT"}).WithError(errors.New("boom"))
	if v := entry.Entry.Data["component"]; v != "test" {
		t.Fatalf("component lost in chain: %v", entry.Entry.Data)
	}
	if v := entry.Entry.Data["symbol"]; v != "BTCUSDT" {
		t.Fatalf("field lost in chain: %v", entry.Entry.Data)
	}
	if _, ok := entry.Entry.Data["error"]; !ok {
		t.Fatalf("error field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := New()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := New()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestConfigureLevelEnvOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	log := New()
	if err := log.Configure("warn", "json", "stdout", 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if got := log.GetLevel().String(); got != "debug" {
		t.Fatalf("LOG_LEVEL should win, got %s", got)
	}
}
