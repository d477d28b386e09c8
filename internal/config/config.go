// Package config provides configuration management for the trading bot.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Defaults applied during normalization.
const (
	// defaultCheckInterval is used when strategy.check_interval is unset
	defaultCheckInterval = "30s"
	// defaultMaxPositionsCount caps distinct symbols held across both venues
	defaultMaxPositionsCount = 5
	// defaultSettleDelay is how long to wait after dispatch before
	// trusting position queries
	defaultSettleDelay = "3s"
	// defaultOrderPacing spaces consecutive pair executions in a cycle
	defaultOrderPacing = "500ms"
	// defaultErrorBackoff is the pause after a failed cycle
	defaultErrorBackoff = "5s"
	// defaultStoragePath is where funding-diff signs are persisted
	defaultStoragePath = "data/funding_diff_signs.json"
	// defaultDashboardPort serves the monitoring API
	defaultDashboardPort = 8080
)

// Config represents the complete application configuration.
type Config struct {
	Environment  EnvironmentConfig  `yaml:"environment"`
	Venues       VenuesConfig       `yaml:"venues"`
	Strategy     StrategyConfig     `yaml:"strategy"`
	Execution    ExecutionConfig    `yaml:"execution"`
	Slippage     SlippageConfig     `yaml:"slippage"`
	Storage      StorageConfig      `yaml:"storage"`
	Dashboard    DashboardConfig    `yaml:"dashboard"`
	Notification NotificationConfig `yaml:"notification"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// VenuesConfig holds per-venue connection settings.
type VenuesConfig struct {
	Backpack    VenueConfig `yaml:"backpack"`
	Hyperliquid VenueConfig `yaml:"hyperliquid"`
}

// VenueConfig defines one venue's API settings. Paper seeds are only
// read in paper mode.
type VenueConfig struct {
	APIKey          string    `yaml:"api_key"`
	APISecret       string    `yaml:"api_secret"`
	BaseURL         string    `yaml:"base_url"`
	RateLimitPerSec float64   `yaml:"rate_limit_per_sec"`
	Paper           PaperSeed `yaml:"paper"`
}

// PaperSeed pre-loads a paper venue with marks and funding rates,
// keyed by base symbol.
type PaperSeed struct {
	Marks    map[string]float64 `yaml:"marks"`
	Fundings map[string]float64 `yaml:"fundings"`
}

// StrategyConfig defines trading strategy parameters.
type StrategyConfig struct {
	TradingPairs      []PairConfig       `yaml:"trading_pairs"`
	MaxPositionsCount int                `yaml:"max_positions_count"`
	CheckInterval     string             `yaml:"check_interval"`
	OpenConditions    OpenConditions     `yaml:"open_conditions"`
	CloseConditions   CloseConditions    `yaml:"close_conditions"`
	TradeSizeUSD      map[string]float64 `yaml:"trade_size_usd"`
}

// PairConfig defines one tradable symbol's bounds and grid.
type PairConfig struct {
	Symbol          string  `yaml:"symbol"` // base symbol, e.g. BTC
	MaxPositionSize float64 `yaml:"max_position_size"`
	MinVolume       float64 `yaml:"min_volume"`
	TickSize        float64 `yaml:"tick_size"`
	PricePrecision  int     `yaml:"price_precision"`
}

// OpenConditions defines entry criteria for opening new pairs.
type OpenConditions struct {
	ConditionType             string  `yaml:"condition_type"` // funding_only | price_only | all | any
	MinFundingDiff            float64 `yaml:"min_funding_diff"`
	MinPriceDiffPercent       float64 `yaml:"min_price_diff_percent"`
	MaxPriceDiffPercent       float64 `yaml:"max_price_diff_percent"`
	MaxSlippagePercent        float64 `yaml:"max_slippage_percent"`
	IgnoreHighSlippage        bool    `yaml:"ignore_high_slippage"`
	CheckDirectionConsistency bool    `yaml:"check_direction_consistency"`
}

// CloseConditions defines exit criteria for closing held pairs.
// MaxLossPercent and MaxPositionTime are accepted for forward
// compatibility; the current gates do not use them.
// FundingDiffSignChange is a pointer so an omitted key defaults to
// enabled while an explicit false still disables the gate.
type CloseConditions struct {
	ConditionType             string  `yaml:"condition_type"`
	FundingDiffSignChange     *bool   `yaml:"funding_diff_sign_change"`
	PriceDiffSignChange       bool    `yaml:"price_diff_sign_change"`
	MinFundingDiff            float64 `yaml:"min_funding_diff"`
	MinProfitPercent          float64 `yaml:"min_profit_percent"`
	MaxLossPercent            float64 `yaml:"max_loss_percent"`
	MaxCloseSlippagePercent   float64 `yaml:"max_close_slippage_percent"`
	IgnoreCloseSlippage       bool    `yaml:"ignore_close_slippage"`
	MaxPositionTime           string  `yaml:"max_position_time"`
	CheckDirectionConsistency bool    `yaml:"check_direction_consistency"`
}

// ExecutionConfig defines order execution parameters.
type ExecutionConfig struct {
	SettleDelay          string  `yaml:"settle_delay"`
	OrderPacing          string  `yaml:"order_pacing"`
	ErrorBackoff         string  `yaml:"error_backoff"`
	OpenFillRatio        float64 `yaml:"open_fill_ratio"`
	CloseFillRatio       float64 `yaml:"close_fill_ratio"`
	LimitPriceAggression float64 `yaml:"limit_price_aggression"`
}

// SlippageConfig defines order book depth analysis parameters.
type SlippageConfig struct {
	DepthLevels            int     `yaml:"depth_levels"`
	MinSlippagePercent     float64 `yaml:"min_slippage_percent"`
	MaxSlippagePercent     float64 `yaml:"max_slippage_percent"`
	DefaultSlippagePercent float64 `yaml:"default_slippage_percent"`
}

// StorageConfig defines storage settings for the sign store.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the monitoring API settings.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// NotificationConfig defines optional order webhooks.
type NotificationConfig struct {
	OrderWebhookURL string `yaml:"order_webhook_url"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and
// consistent, normalizing defaults first.
func (c *Config) Validate() error {
	c.normalize()

	// Environment validation
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	// Live trading needs credentials for both venues
	if c.Environment.Mode == "live" {
		if c.Venues.Backpack.APIKey == "" || c.Venues.Backpack.APISecret == "" {
			return fmt.Errorf("venues.backpack api_key and api_secret are required in live mode")
		}
		if c.Venues.Hyperliquid.APIKey == "" || c.Venues.Hyperliquid.APISecret == "" {
			return fmt.Errorf("venues.hyperliquid api_key and api_secret are required in live mode")
		}
	}

	// Strategy validation
	if len(c.Strategy.TradingPairs) == 0 {
		return fmt.Errorf("strategy.trading_pairs must list at least one pair")
	}
	seen := make(map[string]struct{}, len(c.Strategy.TradingPairs))
	for i, pair := range c.Strategy.TradingPairs {
		if pair.Symbol == "" {
			return fmt.Errorf("strategy.trading_pairs[%d].symbol is required", i)
		}
		if _, dup := seen[pair.Symbol]; dup {
			return fmt.Errorf("strategy.trading_pairs: duplicate symbol %s", pair.Symbol)
		}
		seen[pair.Symbol] = struct{}{}
		if pair.MaxPositionSize <= 0 {
			return fmt.Errorf("strategy.trading_pairs[%s].max_position_size must be > 0", pair.Symbol)
		}
		if pair.MinVolume <= 0 || pair.MinVolume > pair.MaxPositionSize {
			return fmt.Errorf("strategy.trading_pairs[%s].min_volume must be in (0, max_position_size]", pair.Symbol)
		}
		if pair.TickSize < 0 {
			return fmt.Errorf("strategy.trading_pairs[%s].tick_size must be >= 0", pair.Symbol)
		}
		if pair.PricePrecision < 0 {
			return fmt.Errorf("strategy.trading_pairs[%s].price_precision must be >= 0", pair.Symbol)
		}
	}
	if c.Strategy.MaxPositionsCount <= 0 {
		return fmt.Errorf("strategy.max_positions_count must be > 0")
	}
	if _, err := time.ParseDuration(c.Strategy.CheckInterval); err != nil {
		return fmt.Errorf("strategy.check_interval invalid: %w", err)
	}

	if err := validateConditionType(c.Strategy.OpenConditions.ConditionType, "strategy.open_conditions"); err != nil {
		return err
	}
	if err := validateConditionType(c.Strategy.CloseConditions.ConditionType, "strategy.close_conditions"); err != nil {
		return err
	}
	if c.Strategy.OpenConditions.MaxPriceDiffPercent < c.Strategy.OpenConditions.MinPriceDiffPercent {
		return fmt.Errorf("strategy.open_conditions.max_price_diff_percent must be >= min_price_diff_percent")
	}
	if c.Strategy.CloseConditions.MaxPositionTime != "" {
		if _, err := time.ParseDuration(c.Strategy.CloseConditions.MaxPositionTime); err != nil {
			return fmt.Errorf("strategy.close_conditions.max_position_time invalid: %w", err)
		}
	}

	// Execution validation
	for key, value := range map[string]string{
		"execution.settle_delay":  c.Execution.SettleDelay,
		"execution.order_pacing":  c.Execution.OrderPacing,
		"execution.error_backoff": c.Execution.ErrorBackoff,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s invalid: %w", key, err)
		}
	}
	if c.Execution.OpenFillRatio <= 0 || c.Execution.OpenFillRatio > 1 {
		return fmt.Errorf("execution.open_fill_ratio must be in (0, 1]")
	}
	if c.Execution.CloseFillRatio <= 0 || c.Execution.CloseFillRatio > 1 {
		return fmt.Errorf("execution.close_fill_ratio must be in (0, 1]")
	}
	if c.Execution.LimitPriceAggression <= 0 || c.Execution.LimitPriceAggression >= 0.1 {
		return fmt.Errorf("execution.limit_price_aggression must be in (0, 0.1)")
	}

	// Slippage validation
	if c.Slippage.DepthLevels <= 0 {
		return fmt.Errorf("slippage.depth_levels must be > 0")
	}
	if c.Slippage.MinSlippagePercent <= 0 || c.Slippage.MaxSlippagePercent <= c.Slippage.MinSlippagePercent {
		return fmt.Errorf("slippage min/max percent must satisfy 0 < min < max")
	}
	if c.Slippage.DefaultSlippagePercent < c.Slippage.MinSlippagePercent ||
		c.Slippage.DefaultSlippagePercent > c.Slippage.MaxSlippagePercent {
		return fmt.Errorf("slippage.default_slippage_percent must be within [min, max]")
	}

	// Dashboard validation
	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be a valid TCP port")
	}

	return nil
}

func validateConditionType(value, section string) error {
	switch value {
	case "funding_only", "price_only", "all", "any":
		return nil
	default:
		return fmt.Errorf("%s.condition_type must be one of funding_only, price_only, all, any", section)
	}
}

// IsPaperTrading returns true if the bot is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// GetCheckInterval returns the configured cycle interval duration.
func (c *Config) GetCheckInterval() time.Duration {
	return parseDurationOr(c.Strategy.CheckInterval, 30*time.Second)
}

// GetSettleDelay returns the post-dispatch settle delay.
func (c *Config) GetSettleDelay() time.Duration {
	return parseDurationOr(c.Execution.SettleDelay, 3*time.Second)
}

// GetOrderPacing returns the delay between pair executions in a cycle.
func (c *Config) GetOrderPacing() time.Duration {
	return parseDurationOr(c.Execution.OrderPacing, 500*time.Millisecond)
}

// GetErrorBackoff returns the pause applied after a failed cycle.
func (c *Config) GetErrorBackoff() time.Duration {
	return parseDurationOr(c.Execution.ErrorBackoff, 5*time.Second)
}

// Symbols returns the configured base symbols in declaration order.
func (c *Config) Symbols() []string {
	out := make([]string, 0, len(c.Strategy.TradingPairs))
	for _, pair := range c.Strategy.TradingPairs {
		out = append(out, pair.Symbol)
	}
	return out
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// normalize sets defaults for unset values before validation.
func (c *Config) normalize() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Strategy.CheckInterval == "" {
		c.Strategy.CheckInterval = defaultCheckInterval
	}
	if c.Strategy.MaxPositionsCount == 0 {
		c.Strategy.MaxPositionsCount = defaultMaxPositionsCount
	}
	if c.Strategy.OpenConditions.ConditionType == "" {
		c.Strategy.OpenConditions.ConditionType = "funding_only"
	}
	if c.Strategy.OpenConditions.MaxPriceDiffPercent == 0 {
		c.Strategy.OpenConditions.MaxPriceDiffPercent = 1.0
	}
	if c.Strategy.OpenConditions.MaxSlippagePercent == 0 {
		c.Strategy.OpenConditions.MaxSlippagePercent = 0.5
	}
	if c.Strategy.CloseConditions.ConditionType == "" {
		c.Strategy.CloseConditions.ConditionType = "any"
	}
	if c.Strategy.CloseConditions.FundingDiffSignChange == nil {
		enabled := true
		c.Strategy.CloseConditions.FundingDiffSignChange = &enabled
	}
	if c.Strategy.CloseConditions.MinFundingDiff == 0 {
		c.Strategy.CloseConditions.MinFundingDiff = 5e-6
	}
	if c.Strategy.CloseConditions.MinProfitPercent == 0 {
		c.Strategy.CloseConditions.MinProfitPercent = 0.1
	}
	if c.Strategy.CloseConditions.MaxCloseSlippagePercent == 0 {
		c.Strategy.CloseConditions.MaxCloseSlippagePercent = 0.5
	}
	if c.Execution.SettleDelay == "" {
		c.Execution.SettleDelay = defaultSettleDelay
	}
	if c.Execution.OrderPacing == "" {
		c.Execution.OrderPacing = defaultOrderPacing
	}
	if c.Execution.ErrorBackoff == "" {
		c.Execution.ErrorBackoff = defaultErrorBackoff
	}
	if c.Execution.OpenFillRatio == 0 {
		c.Execution.OpenFillRatio = 0.8
	}
	if c.Execution.CloseFillRatio == 0 {
		c.Execution.CloseFillRatio = 0.9
	}
	if c.Execution.LimitPriceAggression == 0 {
		c.Execution.LimitPriceAggression = 0.005
	}
	if c.Slippage.DepthLevels == 0 {
		c.Slippage.DepthLevels = 10
	}
	if c.Slippage.MinSlippagePercent == 0 {
		c.Slippage.MinSlippagePercent = 0.01
	}
	if c.Slippage.MaxSlippagePercent == 0 {
		c.Slippage.MaxSlippagePercent = 0.5
	}
	if c.Slippage.DefaultSlippagePercent == 0 {
		c.Slippage.DefaultSlippagePercent = 0.1
	}
	if c.Storage.Path == "" {
		c.Storage.Path = defaultStoragePath
	}
	if c.Dashboard.Enabled && c.Dashboard.Port == 0 {
		c.Dashboard.Port = defaultDashboardPort
	}
}
