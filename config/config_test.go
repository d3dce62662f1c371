package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bot.Symbol != "BTCUSDT" {
		t.Errorf("Symbol = %q, want BTCUSDT", cfg.Bot.Symbol)
	}
	if cfg.Bot.MinConfidence != 70 {
		t.Errorf("MinConfidence = %v, want 70", cfg.Bot.MinConfidence)
	}
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"bot":{"symbol":"ETHUSDT","min_confidence":80}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bot.Symbol != "ETHUSDT" {
		t.Errorf("Symbol = %q, want ETHUSDT", cfg.Bot.Symbol)
	}
	if cfg.Bot.MinConfidence != 80 {
		t.Errorf("MinConfidence = %v, want 80", cfg.Bot.MinConfidence)
	}
	// Fields absent from the file fall back to their compiled defaults.
	if cfg.Bot.MaxDailyTrades != 3 {
		t.Errorf("MaxDailyTrades = %v, want 3 (default)", cfg.Bot.MaxDailyTrades)
	}
}

func TestRiskCapFor(t *testing.T) {
	caps := RiskCaps{High: 3, Medium: 5, Low: 10}
	cases := map[string]float64{"high": 3, "medium": 5, "low": 10, "unknown": 3}
	for level, want := range cases {
		if got := caps.RiskCapFor(level); got != want {
			t.Errorf("RiskCapFor(%q) = %v, want %v", level, got, want)
		}
	}
}
