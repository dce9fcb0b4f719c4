// Package config provides configuration management for the trading bot.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/nileshsurve/dalal_condor/internal/calendar"
)

// Defaults applied when the corresponding field is unset.
const (
	defaultAPIURL     = "https://api.mstock.trade"
	defaultAPIVersion = "1"

	defaultBaseInvestment    = 200000.0
	defaultLotSize           = 75
	defaultLotsPerInvestment = 1
	defaultInvestmentPerLot  = 150000.0

	defaultStrangleDistance   = 1000
	defaultSellExpiryWeeks    = 5
	defaultCloseAfterWeeks    = 4
	defaultHedgeExpiryWeeks   = 1
	defaultStopLossTrigger    = 0.25
	defaultStopLossPercentage = 0.90
	defaultMartingaleTrigger  = 2.0
	defaultMartingaleMult     = 2.0
	defaultMartingaleDivisor  = 2.0
	defaultLegPremiumTarget   = 0.025

	defaultStartTime     = "09:15:00"
	defaultEndTime       = "15:30:00"
	defaultCheckInterval = 300

	defaultProbeInterval     = 600
	defaultMaxReconnects     = 5
	defaultReconnectDelaySec = 60
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Investment  InvestmentConfig  `yaml:"investment"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Reconnect   ReconnectConfig   `yaml:"reconnect"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode string `yaml:"mode"` // paper | live
}

// BrokerConfig defines mStock API settings. Credentials may reference
// environment variables in the YAML (e.g. ${MSTOCK_API_KEY}).
type BrokerConfig struct {
	APIKey       string `yaml:"api_key"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	RequestToken string `yaml:"request_token"`
	APIURL       string `yaml:"api_url"`
	Version      string `yaml:"version"`
}

// InvestmentConfig defines position sizing.
type InvestmentConfig struct {
	BaseInvestment    float64 `yaml:"base_investment"`
	LotSize           int     `yaml:"lot_size"`
	LotsPerInvestment int     `yaml:"lots_per_investment"`
	InvestmentPerLot  float64 `yaml:"investment_per_lot"`
}

// StrategyConfig defines the iron-condor thresholds.
type StrategyConfig struct {
	StrangleDistance             int     `yaml:"strangle_distance"`
	SellExpiryWeeks              int     `yaml:"sell_expiry_weeks"`
	CloseAfterWeeks              int     `yaml:"close_after_weeks"`
	HedgeExpiryWeeks             int     `yaml:"hedge_expiry_weeks"`
	StopLossTrigger              float64 `yaml:"stop_loss_trigger"`
	StopLossPercentage           float64 `yaml:"stop_loss_percentage"`
	MartingaleTrigger            float64 `yaml:"martingale_trigger"`
	MartingaleQuantityMultiplier float64 `yaml:"martingale_quantity_multiplier"`
	MartingalePremiumDivisor     float64 `yaml:"martingale_premium_divisor"`
	LegPremiumTarget             float64 `yaml:"leg_premium_target"`
}

// ScheduleConfig defines trading hours, polling cadence and the holiday set.
type ScheduleConfig struct {
	StartTime            string   `yaml:"start_time"`
	EndTime              string   `yaml:"end_time"`
	CheckIntervalSeconds int      `yaml:"check_interval_seconds"`
	Holidays             []string `yaml:"holidays"`
}

// ReconnectConfig defines the connectivity watchdog behavior.
type ReconnectConfig struct {
	ProbeIntervalSeconds int `yaml:"probe_interval_seconds"`
	MaxAttempts          int `yaml:"max_attempts"`
	RetryDelaySeconds    int `yaml:"retry_delay_seconds"`
}

// DashboardConfig defines the control console HTTP server.
type DashboardConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
	AuthToken  string `yaml:"auth_token"`
}

// LoggingConfig defines log file rotation.
type LoggingConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// LoadConfig reads, expands, parses and validates the YAML config at path.
// Unknown fields are rejected.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Broker.APIURL == "" {
		c.Broker.APIURL = defaultAPIURL
	}
	if c.Broker.Version == "" {
		c.Broker.Version = defaultAPIVersion
	}
	if c.Investment.BaseInvestment == 0 {
		c.Investment.BaseInvestment = defaultBaseInvestment
	}
	if c.Investment.LotSize == 0 {
		c.Investment.LotSize = defaultLotSize
	}
	if c.Investment.LotsPerInvestment == 0 {
		c.Investment.LotsPerInvestment = defaultLotsPerInvestment
	}
	if c.Investment.InvestmentPerLot == 0 {
		c.Investment.InvestmentPerLot = defaultInvestmentPerLot
	}
	if c.Strategy.StrangleDistance == 0 {
		c.Strategy.StrangleDistance = defaultStrangleDistance
	}
	if c.Strategy.SellExpiryWeeks == 0 {
		c.Strategy.SellExpiryWeeks = defaultSellExpiryWeeks
	}
	if c.Strategy.CloseAfterWeeks == 0 {
		c.Strategy.CloseAfterWeeks = defaultCloseAfterWeeks
	}
	if c.Strategy.HedgeExpiryWeeks == 0 {
		c.Strategy.HedgeExpiryWeeks = defaultHedgeExpiryWeeks
	}
	if c.Strategy.StopLossTrigger == 0 {
		c.Strategy.StopLossTrigger = defaultStopLossTrigger
	}
	if c.Strategy.StopLossPercentage == 0 {
		c.Strategy.StopLossPercentage = defaultStopLossPercentage
	}
	if c.Strategy.MartingaleTrigger == 0 {
		c.Strategy.MartingaleTrigger = defaultMartingaleTrigger
	}
	if c.Strategy.MartingaleQuantityMultiplier == 0 {
		c.Strategy.MartingaleQuantityMultiplier = defaultMartingaleMult
	}
	if c.Strategy.MartingalePremiumDivisor == 0 {
		c.Strategy.MartingalePremiumDivisor = defaultMartingaleDivisor
	}
	if c.Strategy.LegPremiumTarget == 0 {
		c.Strategy.LegPremiumTarget = defaultLegPremiumTarget
	}
	if c.Schedule.StartTime == "" {
		c.Schedule.StartTime = defaultStartTime
	}
	if c.Schedule.EndTime == "" {
		c.Schedule.EndTime = defaultEndTime
	}
	if c.Schedule.CheckIntervalSeconds == 0 {
		c.Schedule.CheckIntervalSeconds = defaultCheckInterval
	}
	if c.Reconnect.ProbeIntervalSeconds == 0 {
		c.Reconnect.ProbeIntervalSeconds = defaultProbeInterval
	}
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = defaultMaxReconnects
	}
	if c.Reconnect.RetryDelaySeconds == 0 {
		c.Reconnect.RetryDelaySeconds = defaultReconnectDelaySec
	}
	if c.Dashboard.ListenAddr == "" {
		c.Dashboard.ListenAddr = ":8080"
	}
	if c.Logging.File == "" {
		c.Logging.File = "dalal_condor.log"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 20
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = 30
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	if c.Environment.Mode == "live" {
		if c.Broker.APIKey == "" {
			return fmt.Errorf("broker.api_key is required in live mode")
		}
		if c.Broker.Username == "" {
			return fmt.Errorf("broker.username is required in live mode")
		}
		if c.Broker.Password == "" {
			return fmt.Errorf("broker.password is required in live mode")
		}
	}

	if c.Investment.LotSize <= 0 {
		return fmt.Errorf("investment.lot_size must be positive")
	}
	if c.Investment.LotsPerInvestment <= 0 {
		return fmt.Errorf("investment.lots_per_investment must be positive")
	}
	if c.Investment.BaseInvestment <= 0 {
		return fmt.Errorf("investment.base_investment must be positive")
	}

	if c.Strategy.StrangleDistance <= 0 {
		return fmt.Errorf("strategy.strangle_distance must be positive")
	}
	if c.Strategy.StrangleDistance%50 != 0 {
		return fmt.Errorf("strategy.strangle_distance must be a multiple of 50")
	}
	if c.Strategy.StopLossTrigger <= 0 || c.Strategy.StopLossTrigger >= 1 {
		return fmt.Errorf("strategy.stop_loss_trigger must be in (0, 1)")
	}
	if c.Strategy.StopLossPercentage <= 0 || c.Strategy.StopLossPercentage > 1 {
		return fmt.Errorf("strategy.stop_loss_percentage must be in (0, 1]")
	}
	if c.Strategy.MartingaleTrigger <= 1 {
		return fmt.Errorf("strategy.martingale_trigger must be greater than 1")
	}
	if c.Strategy.MartingaleQuantityMultiplier < 1 {
		return fmt.Errorf("strategy.martingale_quantity_multiplier must be at least 1")
	}
	if c.Strategy.MartingalePremiumDivisor <= 0 {
		return fmt.Errorf("strategy.martingale_premium_divisor must be positive")
	}
	if c.Strategy.HedgeExpiryWeeks > c.Strategy.SellExpiryWeeks {
		return fmt.Errorf("strategy.hedge_expiry_weeks cannot exceed sell_expiry_weeks")
	}
	if c.Strategy.CloseAfterWeeks > c.Strategy.SellExpiryWeeks {
		return fmt.Errorf("strategy.close_after_weeks cannot exceed sell_expiry_weeks")
	}

	start, err := calendar.ParseClock(c.Schedule.StartTime)
	if err != nil {
		return fmt.Errorf("schedule.start_time: %w", err)
	}
	end, err := calendar.ParseClock(c.Schedule.EndTime)
	if err != nil {
		return fmt.Errorf("schedule.end_time: %w", err)
	}
	if end.String() <= start.String() {
		return fmt.Errorf("schedule.end_time must be after start_time")
	}
	if c.Schedule.CheckIntervalSeconds <= 0 {
		return fmt.Errorf("schedule.check_interval_seconds must be positive")
	}
	for _, h := range c.Schedule.Holidays {
		if _, err := time.Parse(calendar.DateLayout, h); err != nil {
			return fmt.Errorf("schedule.holidays entry %q: %w", h, err)
		}
	}

	if c.Reconnect.MaxAttempts <= 0 {
		return fmt.Errorf("reconnect.max_attempts must be positive")
	}
	if c.Reconnect.ProbeIntervalSeconds <= 0 {
		return fmt.Errorf("reconnect.probe_interval_seconds must be positive")
	}

	if c.Dashboard.Enabled && c.Dashboard.AuthToken == "" {
		return fmt.Errorf("dashboard.auth_token is required when the dashboard is enabled")
	}

	return nil
}

// TradingStart returns the parsed session open time.
func (c *Config) TradingStart() calendar.Clock {
	clock, _ := calendar.ParseClock(c.Schedule.StartTime)
	return clock
}

// TradingEnd returns the parsed session close time.
func (c *Config) TradingEnd() calendar.Clock {
	clock, _ := calendar.ParseClock(c.Schedule.EndTime)
	return clock
}

// HolidaySet returns the holiday set for calendar predicates.
func (c *Config) HolidaySet() calendar.HolidaySet {
	return calendar.NewHolidaySet(c.Schedule.Holidays)
}

// CheckInterval returns the control loop cadence.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Schedule.CheckIntervalSeconds) * time.Second
}

// ProbeInterval returns the watchdog probe cadence.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Reconnect.ProbeIntervalSeconds) * time.Second
}

// RetryDelay returns the pause between reconnection attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Reconnect.RetryDelaySeconds) * time.Second
}
