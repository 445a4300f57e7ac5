package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config must validate, got: %v", err)
	}

	if len(cfg.Sectors) != 4 {
		t.Errorf("expected 4 sectors, got %d", len(cfg.Sectors))
	}
	if got := len(cfg.AllCodes()); got != 12 {
		t.Errorf("expected 12 pool symbols, got %d", got)
	}
}

func TestSectorLookups(t *testing.T) {
	cfg := Default()

	if got := cfg.SectorOf("002371"); got != "semiconductor" {
		t.Errorf("SectorOf(002371) = %q, want semiconductor", got)
	}
	if got := cfg.SectorOf("999999"); got != "" {
		t.Errorf("SectorOf(unknown) = %q, want empty", got)
	}
	if got := cfg.NameOf("300308"); got != "Zhongji Innolight" {
		t.Errorf("NameOf(300308) = %q", got)
	}
	if got := cfg.NameOf("999999"); got != "999999" {
		t.Errorf("NameOf(unknown) = %q, want the code itself", got)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	cfg := Default()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "strategy.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	loaded, raw, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(raw) == 0 {
		t.Error("expected raw bytes back")
	}
	if loaded.Benchmark.IndexCode != "399006" {
		t.Errorf("benchmark index = %s, want 399006", loaded.Benchmark.IndexCode)
	}

	// Same parameterization, same hash.
	h1, err := Hash(cfg)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	h2, _ := Hash(loaded)
	if h1 != h2 {
		t.Error("hash must be identical for identical configs")
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 char hash, got %d", len(h1))
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strategy.yaml")
	if err := os.WriteFile(path, []byte("meta:\n  strategy_idd: oops\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, _, err := Load(path); err == nil {
		t.Error("expected unknown field to fail the load")
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{"missing strategy id", func(c *Config) { c.Meta.StrategyID = "" }},
		{"missing benchmark", func(c *Config) { c.Benchmark.IndexCode = "" }},
		{"zero max price", func(c *Config) { c.HardFilter.MaxPrice = 0 }},
		{"inverted caps", func(c *Config) { c.HardFilter.MaxMarketCap = c.HardFilter.MinMarketCap }},
		{"inverted rsi band", func(c *Config) { c.Entry.RSIMin = 90 }},
		{"positive stop loss", func(c *Config) { c.Exit.HardStopLoss = 0.1 }},
		{"overbought below entry band", func(c *Config) { c.Exit.RSIOverbought = 70 }},
		{"odd lot size", func(c *Config) { c.Exit.MinPositionShares = 150 }},
		{"bad window order", func(c *Config) { c.Window.ConfirmationTime = "15:30" }},
		{"bad date", func(c *Config) { c.Backtest.StressStart = "2022/01/01" }},
		{"short warmup", func(c *Config) { c.Backtest.WarmupSessions = 10 }},
		{"too few sectors", func(c *Config) { c.Sectors = c.Sectors[:1] }},
		{"duplicate sector", func(c *Config) { c.Sectors[1].Name = c.Sectors[0].Name }},
		{"one bellwether", func(c *Config) { c.Sectors[0].ProxyStocks = c.Sectors[0].ProxyStocks[:1] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation to fail")
			}
		})
	}
}
