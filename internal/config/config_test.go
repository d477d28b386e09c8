package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
environment:
  mode: paper
  log_level: info

venues:
  backpack:
    api_key: bp-key
    api_secret: bp-secret
  hyperliquid:
    api_key: hl-key
    api_secret: hl-secret

strategy:
  trading_pairs:
    - symbol: BTC
      max_position_size: 0.5
      min_volume: 0.001
      tick_size: 0.5
      price_precision: 1
    - symbol: ETH
      max_position_size: 5
      min_volume: 0.01
      tick_size: 0.05
      price_precision: 2
  max_positions_count: 3
  check_interval: 30s
  open_conditions:
    condition_type: funding_only
    min_funding_diff: 0.0001
    max_slippage_percent: 0.5
  close_conditions:
    condition_type: any
    funding_diff_sign_change: true
    min_funding_diff: 0.00005
    min_profit_percent: 0.1
    max_close_slippage_percent: 0.5
  trade_size_usd:
    BTC: 1000

execution:
  settle_delay: 3s
  order_pacing: 500ms

slippage:
  depth_levels: 10

storage:
  path: data/funding_diff_signs.json

dashboard:
  enabled: true
  port: 8080
  auth_token: secret
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Expected config to load successfully, got error: %v", err)
	}

	if !cfg.IsPaperTrading() {
		t.Error("Expected paper trading mode")
	}
	if got := cfg.Symbols(); len(got) != 2 || got[0] != "BTC" || got[1] != "ETH" {
		t.Errorf("Symbols() = %v", got)
	}
	if cfg.GetCheckInterval() != 30*time.Second {
		t.Errorf("GetCheckInterval() = %v", cfg.GetCheckInterval())
	}
	if cfg.GetOrderPacing() != 500*time.Millisecond {
		t.Errorf("GetOrderPacing() = %v", cfg.GetOrderPacing())
	}
	// Normalized defaults
	if cfg.Execution.OpenFillRatio != 0.8 || cfg.Execution.CloseFillRatio != 0.9 {
		t.Errorf("fill ratios = %v / %v", cfg.Execution.OpenFillRatio, cfg.Execution.CloseFillRatio)
	}
	if cfg.Execution.LimitPriceAggression != 0.005 {
		t.Errorf("limit_price_aggression = %v", cfg.Execution.LimitPriceAggression)
	}
	if cfg.Slippage.DefaultSlippagePercent != 0.1 {
		t.Errorf("default_slippage_percent = %v", cfg.Slippage.DefaultSlippagePercent)
	}
}

func TestLoad_CloseConditionDefaults(t *testing.T) {
	body := strings.Replace(validYAML, `  close_conditions:
    condition_type: any
    funding_diff_sign_change: true
    min_funding_diff: 0.00005
    min_profit_percent: 0.1
    max_close_slippage_percent: 0.5
`, "", 1)
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cc := cfg.Strategy.CloseConditions
	if cc.ConditionType != "any" {
		t.Errorf("condition_type = %q, expected any", cc.ConditionType)
	}
	if cc.FundingDiffSignChange == nil || !*cc.FundingDiffSignChange {
		t.Error("funding_diff_sign_change should default to enabled")
	}
	if cc.MinFundingDiff != 5e-6 {
		t.Errorf("min_funding_diff = %v, expected 5e-6", cc.MinFundingDiff)
	}
	if cc.MinProfitPercent != 0.1 {
		t.Errorf("min_profit_percent = %v, expected 0.1", cc.MinProfitPercent)
	}
	if cc.MaxCloseSlippagePercent != 0.5 {
		t.Errorf("max_close_slippage_percent = %v, expected 0.5", cc.MaxCloseSlippagePercent)
	}
}

func TestLoad_CloseSignChangeExplicitFalse(t *testing.T) {
	body := strings.Replace(validYAML, "funding_diff_sign_change: true", "funding_diff_sign_change: false", 1)
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cc := cfg.Strategy.CloseConditions
	if cc.FundingDiffSignChange == nil || *cc.FundingDiffSignChange {
		t.Error("an explicit false must survive normalization")
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	configPath := filepath.Join("..", "..", "config.yaml.example")
	if _, err := Load(configPath); err != nil {
		t.Errorf("Expected example config to load successfully, got error: %v", err)
	}
}

func TestLoad_InvalidPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Error("Expected error when loading nonexistent config file, got nil")
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	body := strings.Replace(validYAML, "check_interval: 30s", "check_interval: 30s\n  surprise_field: 1", 1)
	if _, err := Load(writeConfig(t, body)); err == nil {
		t.Error("Expected unknown field to fail strict decoding")
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("BP_API_KEY", "expanded-key")
	body := strings.Replace(validYAML, "api_key: bp-key", "api_key: ${BP_API_KEY}", 1)
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Venues.Backpack.APIKey != "expanded-key" {
		t.Errorf("api_key = %q, expected env expansion", cfg.Venues.Backpack.APIKey)
	}
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) *Config {
		cfg, err := Load(writeConfig(t, validYAML))
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	t.Run("live mode requires credentials", func(t *testing.T) {
		cfg := base(t)
		cfg.Environment.Mode = "live"
		cfg.Venues.Hyperliquid.APISecret = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for live mode without hyperliquid credentials")
		}
	})

	t.Run("bad mode", func(t *testing.T) {
		cfg := base(t)
		cfg.Environment.Mode = "backtest"
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for unsupported mode")
		}
	})

	t.Run("no trading pairs", func(t *testing.T) {
		cfg := base(t)
		cfg.Strategy.TradingPairs = nil
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for empty trading_pairs")
		}
	})

	t.Run("duplicate symbol", func(t *testing.T) {
		cfg := base(t)
		cfg.Strategy.TradingPairs = append(cfg.Strategy.TradingPairs, cfg.Strategy.TradingPairs[0])
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for duplicate trading pair")
		}
	})

	t.Run("min_volume above max_position_size", func(t *testing.T) {
		cfg := base(t)
		cfg.Strategy.TradingPairs[0].MinVolume = 1
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error when min_volume exceeds max_position_size")
		}
	})

	t.Run("bad condition type", func(t *testing.T) {
		cfg := base(t)
		cfg.Strategy.OpenConditions.ConditionType = "sometimes"
		err := cfg.Validate()
		if err == nil {
			t.Fatal("Expected error for unknown condition_type")
		}
		if !strings.Contains(err.Error(), "condition_type") {
			t.Errorf("Unexpected error: %v", err)
		}
	})

	t.Run("bad check interval", func(t *testing.T) {
		cfg := base(t)
		cfg.Strategy.CheckInterval = "sometimes"
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for unparseable check_interval")
		}
	})

	t.Run("fill ratio out of range", func(t *testing.T) {
		cfg := base(t)
		cfg.Execution.OpenFillRatio = 1.5
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for open_fill_ratio > 1")
		}
	})

	t.Run("slippage default outside bounds", func(t *testing.T) {
		cfg := base(t)
		cfg.Slippage.DefaultSlippagePercent = 0.9
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for default slippage above max")
		}
	})

	t.Run("dashboard port", func(t *testing.T) {
		cfg := base(t)
		cfg.Dashboard.Port = 70000
		if err := cfg.Validate(); err == nil {
			t.Error("Expected error for out-of-range dashboard port")
		}
	})
}
