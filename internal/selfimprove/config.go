package selfimprove

import (
	"path/filepath"
	"time"

	"dex-perp-bot/config"
	"dex-perp-bot/internal/adjuster"
	"dex-perp-bot/internal/outcome"
	"dex-perp-bot/internal/performance"
)

// Config controls the learning loop of one bot instance
type Config struct {
	BotID                  string                 `json:"bot_id"`
	LogDir                 string                 `json:"log_dir"`
	OutcomeFile            string                 `json:"outcome_file"`
	FilterFile             string                 `json:"filter_file"`
	ReviewInterval         int                    `json:"review_interval"`
	MinTradesForAnalysis   int                    `json:"min_trades_for_analysis"`
	RollingWindow          int                    `json:"rolling_window"`
	AutoApplyFilters       bool                   `json:"auto_apply_filters"`
	DefaultPositionSizeUSD float64                `json:"default_position_size_usd"`
	FilterExpiryTrades     int                    `json:"filter_expiry_trades"`
	Thresholds             performance.Thresholds `json:"thresholds"`
	// HookTimeout bounds each cache/archive call made after a mutation
	HookTimeout time.Duration `json:"hook_timeout"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		BotID:                  "default",
		LogDir:                 "learning_logs",
		OutcomeFile:            "trade_outcomes.json",
		FilterFile:             "strategy_filters.json",
		ReviewInterval:         10,
		MinTradesForAnalysis:   10,
		RollingWindow:          outcome.DefaultWindow,
		AutoApplyFilters:       true,
		DefaultPositionSizeUSD: 100,
		FilterExpiryTrades:     adjuster.DefaultExpiryTrades,
		Thresholds:             performance.DefaultThresholds(),
		HookTimeout:            2 * time.Second,
	}
}

// FromLearningConfig maps the file/env configuration onto a strategy
// config. Thresholds and the hook timeout keep their defaults.
func FromLearningConfig(lc config.LearningConfig) Config {
	cfg := DefaultConfig()
	cfg.BotID = lc.BotID
	cfg.LogDir = lc.LogDir
	cfg.OutcomeFile = lc.OutcomeFile
	cfg.FilterFile = lc.FilterFile
	cfg.ReviewInterval = lc.ReviewInterval
	cfg.MinTradesForAnalysis = lc.MinTradesForAnalysis
	cfg.RollingWindow = lc.RollingWindow
	cfg.AutoApplyFilters = lc.AutoApplyFilters
	cfg.DefaultPositionSizeUSD = lc.DefaultPositionSizeUSD
	cfg.FilterExpiryTrades = lc.FilterExpiryTrades
	return cfg.withDefaults()
}

// withDefaults fills zero values from DefaultConfig. AutoApplyFilters is
// taken as given.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BotID == "" {
		c.BotID = d.BotID
	}
	if c.LogDir == "" {
		c.LogDir = d.LogDir
	}
	if c.OutcomeFile == "" {
		c.OutcomeFile = d.OutcomeFile
	}
	if c.FilterFile == "" {
		c.FilterFile = d.FilterFile
	}
	if c.ReviewInterval <= 0 {
		c.ReviewInterval = d.ReviewInterval
	}
	if c.MinTradesForAnalysis <= 0 {
		c.MinTradesForAnalysis = d.MinTradesForAnalysis
	}
	if c.RollingWindow <= 0 {
		c.RollingWindow = d.RollingWindow
	}
	if c.DefaultPositionSizeUSD <= 0 {
		c.DefaultPositionSizeUSD = d.DefaultPositionSizeUSD
	}
	if c.FilterExpiryTrades <= 0 {
		c.FilterExpiryTrades = d.FilterExpiryTrades
	}
	if c.Thresholds == (performance.Thresholds{}) {
		c.Thresholds = d.Thresholds
	}
	if c.HookTimeout <= 0 {
		c.HookTimeout = d.HookTimeout
	}
	return c
}

// OutcomePath is the outcome ledger location
func (c Config) OutcomePath() string {
	return filepath.Join(c.LogDir, c.OutcomeFile)
}

// FilterPath is the filter ledger location
func (c Config) FilterPath() string {
	return filepath.Join(c.LogDir, c.FilterFile)
}
