package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode           string   `yaml:"mode"`
	Exchange       string   `yaml:"exchange"`
	Symbols        []string `yaml:"symbols"`
	InitialBalance float64  `yaml:"initial_balance"`
	Risk           struct {
		MaxLeverage        int     `yaml:"max_leverage"`
		MaxPositions       int     `yaml:"max_positions"`
		MinConfidence      float64 `yaml:"min_confidence"`
		DefaultRiskPercent float64 `yaml:"default_risk_percent"`
		MaxExposurePercent float64 `yaml:"max_exposure_percent"`
		MaxPerAssetPercent float64 `yaml:"max_per_asset_percent"`
	} `yaml:"risk"`
	Survival struct {
		HysteresisThreshold int `yaml:"hysteresis_threshold"`
	} `yaml:"survival"`
	Feed struct {
		StreamURL             string `yaml:"stream_url"`
		RestURL               string `yaml:"rest_url"`
		PollSeconds           int    `yaml:"poll_seconds"`
		ConnectTimeoutSeconds int    `yaml:"connect_timeout_seconds"`
		MaxReconnectAttempts  int    `yaml:"max_reconnect_attempts"`
		ReconnectBaseMs       int    `yaml:"reconnect_base_ms"`
		ReconnectMaxMs        int    `yaml:"reconnect_max_ms"`
		RSIPeriod             int    `yaml:"rsi_period"`
		ATRPeriod             int    `yaml:"atr_period"`
	} `yaml:"feed"`
	Oracle struct {
		Provider       string  `yaml:"provider"` // CLAUDE, OPENAI or empty for noop
		Model          string  `yaml:"model"`
		MaxTokens      int     `yaml:"max_tokens"`
		Temperature    float32 `yaml:"temperature"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		System         string  `yaml:"system"`
	} `yaml:"oracle"`
	Agent struct {
		BaseIntervalMs      int    `yaml:"base_interval_ms"`
		SignalWindowMinutes int    `yaml:"signal_window_minutes"`
		SignalsFile         string `yaml:"signals_file"`
	} `yaml:"agent"`
	Store struct {
		PositionsFile string `yaml:"positions_file"`
		StateFile     string `yaml:"state_file"`
		JournalFile   string `yaml:"journal_file"`
	} `yaml:"store"`
	Metrics struct {
		ListenAddr string `yaml:"listen_addr"` // empty disables the endpoint
	} `yaml:"metrics"`
	Scraper struct {
		Enabled         bool `yaml:"enabled"`
		IntervalMinutes int  `yaml:"interval_minutes"`
	} `yaml:"scraper"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if len(c.Symbols) == 0 {
		return errors.New("symbols cannot be empty")
	}
	if c.InitialBalance <= 0 {
		return fmt.Errorf("initial_balance must be positive, got %.2f", c.InitialBalance)
	}
	if c.Risk.MaxLeverage < 1 {
		return fmt.Errorf("risk.max_leverage must be >= 1, got %d", c.Risk.MaxLeverage)
	}
	if c.Risk.DefaultRiskPercent <= 0 || c.Risk.DefaultRiskPercent > 100 {
		return fmt.Errorf("risk.default_risk_percent must be between 0-100, got %.2f", c.Risk.DefaultRiskPercent)
	}
	if c.Risk.MinConfidence < 0 || c.Risk.MinConfidence > 1 {
		return fmt.Errorf("risk.min_confidence must be between 0-1, got %.2f", c.Risk.MinConfidence)
	}
	return nil
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Exchange == "" {
		c.Exchange = "sim"
	}
	if c.Risk.MaxPositions == 0 {
		c.Risk.MaxPositions = 5
	}
	if c.Risk.MaxExposurePercent == 0 {
		c.Risk.MaxExposurePercent = 300
	}
	if c.Risk.MaxPerAssetPercent == 0 {
		c.Risk.MaxPerAssetPercent = 150
	}
	if c.Survival.HysteresisThreshold == 0 {
		c.Survival.HysteresisThreshold = 3
	}
	if c.Feed.PollSeconds == 0 {
		c.Feed.PollSeconds = 15
	}
	if c.Feed.ConnectTimeoutSeconds == 0 {
		c.Feed.ConnectTimeoutSeconds = 10
	}
	if c.Feed.MaxReconnectAttempts == 0 {
		c.Feed.MaxReconnectAttempts = 5
	}
	if c.Feed.ReconnectBaseMs == 0 {
		c.Feed.ReconnectBaseMs = 1000
	}
	if c.Feed.ReconnectMaxMs == 0 {
		c.Feed.ReconnectMaxMs = 30000
	}
	if c.Feed.RSIPeriod == 0 {
		c.Feed.RSIPeriod = 14
	}
	if c.Feed.ATRPeriod == 0 {
		c.Feed.ATRPeriod = 14
	}
	if c.Oracle.MaxTokens == 0 {
		c.Oracle.MaxTokens = 1024
	}
	if c.Oracle.TimeoutSeconds == 0 {
		c.Oracle.TimeoutSeconds = 45
	}
	if c.Agent.BaseIntervalMs == 0 {
		c.Agent.BaseIntervalMs = 60000
	}
	if c.Agent.SignalWindowMinutes == 0 {
		c.Agent.SignalWindowMinutes = 30
	}
	if c.Agent.SignalsFile == "" {
		c.Agent.SignalsFile = "data/signals.json"
	}
	if c.Store.PositionsFile == "" {
		c.Store.PositionsFile = "data/positions.json"
	}
	if c.Store.StateFile == "" {
		c.Store.StateFile = "data/agent_state.json"
	}
	if c.Store.JournalFile == "" {
		c.Store.JournalFile = "data/journal.db"
	}
	if c.Scraper.IntervalMinutes == 0 {
		c.Scraper.IntervalMinutes = 15
	}
}

// SignalWindow returns the alpha-signal recency window as a duration.
func (c *Config) SignalWindow() time.Duration {
	return time.Duration(c.Agent.SignalWindowMinutes) * time.Minute
}

// BaseInterval returns the orchestrator's base cycle interval.
func (c *Config) BaseInterval() time.Duration {
	return time.Duration(c.Agent.BaseIntervalMs) * time.Millisecond
}
