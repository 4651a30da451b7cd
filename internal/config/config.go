// Package config provides configuration management for the trading engine.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"alpaca-trader/internal/errors"
)

// StrategyMode selects the signal generator implementation.
type StrategyMode string

const (
	ModeCrossover StrategyMode = "crossover"
	ModeORFVG     StrategyMode = "or_fvg"
)

// Config holds all engine configuration.
type Config struct {
	Symbol       string `mapstructure:"symbol"`
	BarTimeframe string `mapstructure:"bar_timeframe"`
	PollInterval int    `mapstructure:"poll_interval"` // seconds

	Strategy  StrategyConfig  `mapstructure:"strategy"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Session   SessionConfig   `mapstructure:"session"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`

	Credentials Credentials `mapstructure:"-"` // environment only, never from files
}

// StrategyConfig holds signal generation configuration.
type StrategyConfig struct {
	Mode              StrategyMode `mapstructure:"mode"`
	ShortWindow       int          `mapstructure:"short_window"`
	LongWindow        int          `mapstructure:"long_window"`
	UseEMA            bool         `mapstructure:"use_ema"`
	CrossoverLookback int          `mapstructure:"crossover_lookback"`
	MinSignalStrength float64      `mapstructure:"min_signal_strength"`

	ADXThreshold         float64 `mapstructure:"adx_threshold"`
	RegimeDetection      bool    `mapstructure:"regime_detection"`
	ATRHighVolPercentile float64 `mapstructure:"atr_high_vol_percentile"`
	ATRLowVolPercentile  float64 `mapstructure:"atr_low_vol_percentile"`

	RSIBuyMax          float64 `mapstructure:"rsi_buy_max"`
	RSISellMin         float64 `mapstructure:"rsi_sell_min"`
	RSISellMax         float64 `mapstructure:"rsi_sell_max"`
	RSIRangeOversold   float64 `mapstructure:"rsi_range_oversold"`
	RSIRangeOverbought float64 `mapstructure:"rsi_range_overbought"`

	VolumeMultiplier      float64 `mapstructure:"volume_multiplier"`
	RequireMACDConfirm    bool    `mapstructure:"require_macd_confirmation"`
	RequireCandlePattern  bool    `mapstructure:"require_candle_pattern"`
	MultiframeFilter      bool    `mapstructure:"multiframe_filter"`
	Use200SMAFilter       bool    `mapstructure:"use_200_sma_filter"`
	UseVIXFilter          bool    `mapstructure:"use_vix_filter"`
	VIXThreshold          float64 `mapstructure:"vix_threshold"`
	EnableShortSelling    bool    `mapstructure:"enable_short_selling"`

	ORFVG ORFVGConfig `mapstructure:"or_fvg"`
}

// ORFVGConfig holds opening-range / fair-value-gap strategy configuration.
type ORFVGConfig struct {
	OpeningRangeMinutes  int     `mapstructure:"opening_range_minutes"`
	MinGapSize           float64 `mapstructure:"min_gap_size"` // percent of mid bar price
	MaxEntryTime         string  `mapstructure:"max_entry_time"` // "HH:MM" session-local
	RequireVolumeConfirm bool    `mapstructure:"require_volume_confirm"`
	VolumeConfirmRatio   float64 `mapstructure:"volume_confirm_ratio"`
}

// RiskConfig holds risk sizing configuration.
type RiskConfig struct {
	RiskPerTrade      float64 `mapstructure:"risk_per_trade"`
	ATRStopMultiplier float64 `mapstructure:"atr_stop_multiplier"`
	MinRiskReward     float64 `mapstructure:"min_risk_reward"`
	MaxDrawdown       float64 `mapstructure:"max_drawdown"`
	MaxTradesPerDay   int     `mapstructure:"max_trades_per_day"`
	MaxHoldTime       int     `mapstructure:"max_hold_time"` // seconds, 0 disables
	MinNotional       float64 `mapstructure:"min_notional"`
	MaxNotionalPct    float64 `mapstructure:"max_notional_pct"` // fraction of equity
	LotSize           int     `mapstructure:"lot_size"`
	ProfitTarget1     float64 `mapstructure:"profit_target_1"` // R-multiple
	ProfitTarget2     float64 `mapstructure:"profit_target_2"` // R-multiple
	ScaleOutFraction  float64 `mapstructure:"scale_out_fraction"`
	UseTrailingStop   bool    `mapstructure:"use_trailing_stop"`
	PDTRule           bool    `mapstructure:"pdt_rule"`
	PDTMinEquity      float64 `mapstructure:"pdt_min_equity"`
}

// ExecutionConfig holds order execution configuration.
type ExecutionConfig struct {
	Paper             bool    `mapstructure:"paper"`
	UseLimitOrders    bool    `mapstructure:"use_limit_orders"`
	LimitOrderTimeout int     `mapstructure:"limit_order_timeout"` // seconds
	MarketFallback    bool    `mapstructure:"market_fallback"`
	SlippagePct       float64 `mapstructure:"slippage_pct"`
	CommissionPct     float64 `mapstructure:"commission_pct"`
	StopOnClose       bool    `mapstructure:"stop_on_close"` // evaluate stop on close vs intrabar
}

// SessionConfig holds trading session and settlement configuration.
type SessionConfig struct {
	Timezone           string  `mapstructure:"timezone"`
	OpenTime           string  `mapstructure:"open_time"`  // "HH:MM"
	CloseTime          string  `mapstructure:"close_time"` // "HH:MM"
	T1Settlement       bool    `mapstructure:"t1_settlement"`
	CashReservePct     float64 `mapstructure:"cash_reserve_pct"`
	RequireCashAccount bool    `mapstructure:"require_cash_account"`
}

// LoggingConfig holds log output configuration.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
	DBPath   string `mapstructure:"db_path"`
	CSVDir   string `mapstructure:"csv_dir"`
}

// MetricsConfig holds the Prometheus listener configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// Credentials holds API credentials, consumed only by the gateway.
type Credentials struct {
	APIKeyID     string
	APISecretKey string
	BaseURL      string
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/alpaca-trader"
	}
	return filepath.Join(home, ".config", "alpaca-trader")
}

// Load loads configuration from the specified directory. If configDir is
// empty, the default config directory is used. A missing config file is
// not an error: defaults apply. Invalid values are fatal.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "reading config.toml")
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshalling config")
	}

	loadCredentials(configDir, &cfg.Credentials)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("symbol", "SPY")
	v.SetDefault("bar_timeframe", "5Min")
	v.SetDefault("poll_interval", 30)

	v.SetDefault("strategy.mode", string(ModeCrossover))
	v.SetDefault("strategy.short_window", 10)
	v.SetDefault("strategy.long_window", 30)
	v.SetDefault("strategy.use_ema", true)
	v.SetDefault("strategy.crossover_lookback", 3)
	v.SetDefault("strategy.min_signal_strength", 0.4)
	v.SetDefault("strategy.adx_threshold", 30.0)
	v.SetDefault("strategy.regime_detection", true)
	v.SetDefault("strategy.atr_high_vol_percentile", 70.0)
	v.SetDefault("strategy.atr_low_vol_percentile", 30.0)
	v.SetDefault("strategy.rsi_buy_max", 65.0)
	v.SetDefault("strategy.rsi_sell_min", 35.0)
	v.SetDefault("strategy.rsi_sell_max", 70.0)
	v.SetDefault("strategy.rsi_range_oversold", 30.0)
	v.SetDefault("strategy.rsi_range_overbought", 70.0)
	v.SetDefault("strategy.volume_multiplier", 0.7)
	v.SetDefault("strategy.require_macd_confirmation", false)
	v.SetDefault("strategy.require_candle_pattern", false)
	v.SetDefault("strategy.multiframe_filter", false)
	v.SetDefault("strategy.use_200_sma_filter", false)
	v.SetDefault("strategy.use_vix_filter", false)
	v.SetDefault("strategy.vix_threshold", 30.0)
	v.SetDefault("strategy.enable_short_selling", false)
	v.SetDefault("strategy.or_fvg.opening_range_minutes", 15)
	v.SetDefault("strategy.or_fvg.min_gap_size", 0.05)
	v.SetDefault("strategy.or_fvg.max_entry_time", "10:30")
	v.SetDefault("strategy.or_fvg.require_volume_confirm", true)
	v.SetDefault("strategy.or_fvg.volume_confirm_ratio", 1.2)

	v.SetDefault("risk.risk_per_trade", 0.01)
	v.SetDefault("risk.atr_stop_multiplier", 2.0)
	v.SetDefault("risk.min_risk_reward", 2.0)
	v.SetDefault("risk.max_drawdown", 0.08)
	v.SetDefault("risk.max_trades_per_day", 3)
	v.SetDefault("risk.max_hold_time", 3600)
	v.SetDefault("risk.min_notional", 1.0)
	v.SetDefault("risk.max_notional_pct", 0.25)
	v.SetDefault("risk.lot_size", 1)
	v.SetDefault("risk.profit_target_1", 2.0)
	v.SetDefault("risk.profit_target_2", 4.0)
	v.SetDefault("risk.scale_out_fraction", 0.5)
	v.SetDefault("risk.use_trailing_stop", true)
	v.SetDefault("risk.pdt_rule", false)
	v.SetDefault("risk.pdt_min_equity", 25000.0)

	v.SetDefault("execution.paper", true)
	v.SetDefault("execution.use_limit_orders", false)
	v.SetDefault("execution.limit_order_timeout", 60)
	v.SetDefault("execution.market_fallback", true)
	v.SetDefault("execution.slippage_pct", 0.0005)
	v.SetDefault("execution.commission_pct", 0.0005)
	v.SetDefault("execution.stop_on_close", true)

	v.SetDefault("session.timezone", "America/New_York")
	v.SetDefault("session.open_time", "09:30")
	v.SetDefault("session.close_time", "16:00")
	v.SetDefault("session.t1_settlement", false)
	v.SetDefault("session.cash_reserve_pct", 0.0)
	v.SetDefault("session.require_cash_account", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(DefaultConfigDir(), "logs", "trader.log"))
	v.SetDefault("logging.db_path", filepath.Join(DefaultConfigDir(), "trader.db"))
	v.SetDefault("logging.csv_dir", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", ":9090")
}

// loadCredentials reads gateway credentials from the environment, with a
// .env file in the config directory as a fallback source. Credentials
// never come from config.toml.
func loadCredentials(configDir string, creds *Credentials) {
	envPath := filepath.Join(configDir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		_ = godotenv.Load(envPath)
	}

	creds.APIKeyID = os.Getenv("APCA_API_KEY_ID")
	creds.APISecretKey = os.Getenv("APCA_API_SECRET_KEY")
	creds.BaseURL = os.Getenv("APCA_API_BASE_URL")
	if creds.BaseURL == "" {
		creds.BaseURL = "https://paper-api.alpaca.markets"
	}
}

// Validate validates the configuration. Any violation is fatal.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return errors.NewConfigError("symbol", c.Symbol, "must not be empty")
	}
	if c.PollInterval <= 0 {
		return errors.NewConfigError("poll_interval", c.PollInterval, "must be positive")
	}
	if c.Strategy.Mode != ModeCrossover && c.Strategy.Mode != ModeORFVG {
		return errors.NewConfigError("strategy.mode", c.Strategy.Mode, "must be 'crossover' or 'or_fvg'")
	}
	if c.Strategy.ShortWindow >= c.Strategy.LongWindow {
		return errors.NewConfigError("strategy.short_window", c.Strategy.ShortWindow, "must be less than long_window")
	}
	if c.Strategy.CrossoverLookback <= 0 {
		return errors.NewConfigError("strategy.crossover_lookback", c.Strategy.CrossoverLookback, "must be positive")
	}
	if c.Strategy.MinSignalStrength < 0 || c.Strategy.MinSignalStrength > 1 {
		return errors.NewConfigError("strategy.min_signal_strength", c.Strategy.MinSignalStrength, "must be in [0,1]")
	}
	if c.Strategy.ATRLowVolPercentile < 0 || c.Strategy.ATRHighVolPercentile > 100 ||
		c.Strategy.ATRLowVolPercentile >= c.Strategy.ATRHighVolPercentile {
		return errors.NewConfigError("strategy.atr_high_vol_percentile", c.Strategy.ATRHighVolPercentile, "percentile bounds must satisfy 0 <= low < high <= 100")
	}
	if c.Strategy.ORFVG.OpeningRangeMinutes <= 0 {
		return errors.NewConfigError("strategy.or_fvg.opening_range_minutes", c.Strategy.ORFVG.OpeningRangeMinutes, "must be positive")
	}
	if _, err := ParseClock(c.Strategy.ORFVG.MaxEntryTime); err != nil {
		return errors.NewConfigError("strategy.or_fvg.max_entry_time", c.Strategy.ORFVG.MaxEntryTime, "must be HH:MM")
	}
	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade > 0.5 {
		return errors.NewConfigError("risk.risk_per_trade", c.Risk.RiskPerTrade, "must be in (0, 0.5]")
	}
	if c.Risk.ATRStopMultiplier <= 0 {
		return errors.NewConfigError("risk.atr_stop_multiplier", c.Risk.ATRStopMultiplier, "must be positive")
	}
	if c.Risk.MinRiskReward < 0 {
		return errors.NewConfigError("risk.min_risk_reward", c.Risk.MinRiskReward, "must be non-negative")
	}
	if c.Risk.MaxDrawdown <= 0 || c.Risk.MaxDrawdown >= 1 {
		return errors.NewConfigError("risk.max_drawdown", c.Risk.MaxDrawdown, "must be in (0,1)")
	}
	if c.Risk.MaxTradesPerDay <= 0 {
		return errors.NewConfigError("risk.max_trades_per_day", c.Risk.MaxTradesPerDay, "must be positive")
	}
	if c.Risk.MaxNotionalPct <= 0 || c.Risk.MaxNotionalPct > 1 {
		return errors.NewConfigError("risk.max_notional_pct", c.Risk.MaxNotionalPct, "must be in (0,1]")
	}
	if c.Risk.LotSize <= 0 {
		return errors.NewConfigError("risk.lot_size", c.Risk.LotSize, "must be positive")
	}
	if c.Risk.ProfitTarget1 <= 0 || c.Risk.ProfitTarget2 <= c.Risk.ProfitTarget1 {
		return errors.NewConfigError("risk.profit_target_2", c.Risk.ProfitTarget2, "targets must be positive and ascending")
	}
	if c.Risk.ScaleOutFraction <= 0 || c.Risk.ScaleOutFraction >= 1 {
		return errors.NewConfigError("risk.scale_out_fraction", c.Risk.ScaleOutFraction, "must be in (0,1)")
	}
	if c.Execution.SlippagePct < 0 || c.Execution.CommissionPct < 0 {
		return errors.NewConfigError("execution.slippage_pct", c.Execution.SlippagePct, "must be non-negative")
	}
	if c.Execution.LimitOrderTimeout <= 0 {
		return errors.NewConfigError("execution.limit_order_timeout", c.Execution.LimitOrderTimeout, "must be positive")
	}
	if c.Session.CashReservePct < 0 || c.Session.CashReservePct >= 1 {
		return errors.NewConfigError("session.cash_reserve_pct", c.Session.CashReservePct, "must be in [0,1)")
	}
	if _, err := time.LoadLocation(c.Session.Timezone); err != nil {
		return errors.NewConfigError("session.timezone", c.Session.Timezone, "unknown timezone")
	}
	if _, err := ParseClock(c.Session.OpenTime); err != nil {
		return errors.NewConfigError("session.open_time", c.Session.OpenTime, "must be HH:MM")
	}
	if _, err := ParseClock(c.Session.CloseTime); err != nil {
		return errors.NewConfigError("session.close_time", c.Session.CloseTime, "must be HH:MM")
	}
	return nil
}

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

// ParseClock parses an "HH:MM" string.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

// On returns the clock time anchored to the date of t in t's location.
func (c Clock) On(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), int(c)/60, int(c)%60, 0, 0, t.Location())
}

// PollDuration returns the inter-tick sleep interval.
func (c *Config) PollDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// MaxHoldDuration returns the maximum hold time, or zero when disabled.
func (c *Config) MaxHoldDuration() time.Duration {
	return time.Duration(c.Risk.MaxHoldTime) * time.Second
}

// LimitTimeout returns the limit order fill timeout.
func (c *Config) LimitTimeout() time.Duration {
	return time.Duration(c.Execution.LimitOrderTimeout) * time.Second
}
