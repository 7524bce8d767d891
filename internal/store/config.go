package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Ticker       string  `yaml:"ticker"`
	StartingCash float64 `yaml:"starting_cash"`
	DataSource   string  `yaml:"data_source"`
	CSVPath      string  `yaml:"csv_path"`
	DataDir      string  `yaml:"data_dir"`
	Exchange     string  `yaml:"exchange"`
	Timezone     string  `yaml:"timezone"`
	Interval     string  `yaml:"interval"`
	LookbackDays int     `yaml:"lookback_days"`
	Session      struct {
		Start string `yaml:"start"`
		End   string `yaml:"end"`
	} `yaml:"session"`
	Runner struct {
		FastIntervalMs     int `yaml:"fast_interval_ms"`
		RealtimeIntervalMs int `yaml:"realtime_interval_ms"`
	} `yaml:"runner"`
	Policy PolicyConfig `yaml:"policy"`
	LLM    struct {
		Provider       string  `yaml:"provider"`
		Model          string  `yaml:"model"`
		Endpoint       string  `yaml:"endpoint"`
		MaxTokens      int     `yaml:"max_tokens"`
		Temperature    float32 `yaml:"temperature"`
		System         string  `yaml:"system"`
		Schema         string  `yaml:"schema"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		RatePerMinute  int     `yaml:"rate_per_minute"`
	} `yaml:"llm"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Logs struct {
		Dir           string `yaml:"dir"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"logs"`
}

// PolicyConfig holds the rule-based policy thresholds. Percentages are in
// percent units (0.1 means 0.1%), fractions are plain ratios.
type PolicyConfig struct {
	MinHistory        int     `yaml:"min_history"`
	WinRateWindow     int     `yaml:"win_rate_window"`
	StrongVolumeSpike float64 `yaml:"strong_volume_spike"`
	StrongMomentumPct float64 `yaml:"strong_momentum_pct"`
	StrongPriceVsSMA5 float64 `yaml:"strong_price_vs_sma5_pct"`
	MediumVolumeSpike float64 `yaml:"medium_volume_spike"`
	ExitMomentumPct   float64 `yaml:"exit_momentum_pct"`
	StopLossFrac      float64 `yaml:"stop_loss_frac"`
	TakeProfitFrac    float64 `yaml:"take_profit_frac"`
	ManualBuyCashFrac float64 `yaml:"manual_buy_cash_frac"`
}

// DefaultPolicy returns the thresholds the rule-based policy ships with.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		MinHistory:        5,
		WinRateWindow:     10,
		StrongVolumeSpike: 1.5,
		StrongMomentumPct: 0.1,
		StrongPriceVsSMA5: 0.05,
		MediumVolumeSpike: 1.2,
		ExitMomentumPct:   -0.15,
		StopLossFrac:      0.02,
		TakeProfitFrac:    0.03,
		ManualBuyCashFrac: 0.95,
	}
}

// Default returns a config usable without a file: CSV source, rules only.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.StartingCash == 0 {
		c.StartingCash = 10000
	}
	if c.DataSource == "" {
		c.DataSource = "CSV"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Exchange == "" {
		c.Exchange = "NSE"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Kolkata"
	}
	if c.Interval == "" {
		c.Interval = "minute"
	}
	if c.LookbackDays == 0 {
		c.LookbackDays = 10
	}
	if c.Session.Start == "" {
		c.Session.Start = "09:15"
	}
	if c.Session.End == "" {
		c.Session.End = "15:30"
	}
	if c.Runner.FastIntervalMs == 0 {
		c.Runner.FastIntervalMs = 1_000
	}
	def := DefaultPolicy()
	if c.Policy.MinHistory == 0 {
		c.Policy.MinHistory = def.MinHistory
	}
	if c.Policy.WinRateWindow == 0 {
		c.Policy.WinRateWindow = def.WinRateWindow
	}
	if c.Policy.StrongVolumeSpike == 0 {
		c.Policy.StrongVolumeSpike = def.StrongVolumeSpike
	}
	if c.Policy.StrongMomentumPct == 0 {
		c.Policy.StrongMomentumPct = def.StrongMomentumPct
	}
	if c.Policy.StrongPriceVsSMA5 == 0 {
		c.Policy.StrongPriceVsSMA5 = def.StrongPriceVsSMA5
	}
	if c.Policy.MediumVolumeSpike == 0 {
		c.Policy.MediumVolumeSpike = def.MediumVolumeSpike
	}
	if c.Policy.ExitMomentumPct == 0 {
		c.Policy.ExitMomentumPct = def.ExitMomentumPct
	}
	if c.Policy.StopLossFrac == 0 {
		c.Policy.StopLossFrac = def.StopLossFrac
	}
	if c.Policy.TakeProfitFrac == 0 {
		c.Policy.TakeProfitFrac = def.TakeProfitFrac
	}
	if c.Policy.ManualBuyCashFrac == 0 {
		c.Policy.ManualBuyCashFrac = def.ManualBuyCashFrac
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "NONE"
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 20
	}
	if c.LLM.RatePerMinute == 0 {
		c.LLM.RatePerMinute = 30
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 300
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Logs.Dir == "" {
		c.Logs.Dir = "logs"
	}
}

func (c *Config) Validate() error {
	if c.StartingCash <= 0 {
		return fmt.Errorf("starting_cash must be > 0, got %.2f", c.StartingCash)
	}
	switch c.DataSource {
	case "CSV":
		if c.CSVPath == "" {
			return errors.New("csv_path is required when data_source is CSV")
		}
	case "KITE":
		if c.Ticker == "" {
			return errors.New("ticker is required when data_source is KITE")
		}
	default:
		return fmt.Errorf("invalid data_source '%s': must be 'CSV' or 'KITE'", c.DataSource)
	}
	switch c.LLM.Provider {
	case "NONE", "RULES", "NOOP", "OPENAI", "CLAUDE":
	default:
		return fmt.Errorf("invalid llm.provider '%s'", c.LLM.Provider)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
	}
	if _, err := ParseClock(c.Session.Start); err != nil {
		return fmt.Errorf("session.start: %w", err)
	}
	if _, err := ParseClock(c.Session.End); err != nil {
		return fmt.Errorf("session.end: %w", err)
	}
	switch c.LLM.Provider {
	case "OPENAI", "CLAUDE":
		if c.LLM.TimeoutSeconds <= 0 {
			return fmt.Errorf("llm.timeout_seconds must be > 0 for provider %s, got %d", c.LLM.Provider, c.LLM.TimeoutSeconds)
		}
	}
	if c.Runner.FastIntervalMs < 0 || c.Runner.RealtimeIntervalMs < 0 {
		return errors.New("runner intervals must not be negative")
	}
	if c.Policy.ManualBuyCashFrac <= 0 || c.Policy.ManualBuyCashFrac > 1 {
		return fmt.Errorf("policy.manual_buy_cash_frac must be in (0,1], got %.2f", c.Policy.ManualBuyCashFrac)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(b)
}

func ParseConfig(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.DataSource = strings.ToUpper(c.DataSource)
	c.LLM.Provider = strings.ToUpper(c.LLM.Provider)
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

// Location returns the configured exchange time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.FixedZone("IST", 19800)
	}
	return loc
}

func (c *Config) FastInterval() time.Duration {
	return time.Duration(c.Runner.FastIntervalMs) * time.Millisecond
}

// RealtimeInterval returns the pause between bars in real-time mode. An
// explicit realtime_interval_ms wins. Otherwise it is the observed bar
// spacing, then the duration named by interval, then one minute.
func (c *Config) RealtimeInterval(observed time.Duration) time.Duration {
	if c.Runner.RealtimeIntervalMs > 0 {
		return time.Duration(c.Runner.RealtimeIntervalMs) * time.Millisecond
	}
	if observed > 0 {
		return observed
	}
	if d, ok := IntervalDuration(c.Interval); ok {
		return d
	}
	return time.Minute
}

var kiteIntervals = map[string]time.Duration{
	"minute":   time.Minute,
	"3minute":  3 * time.Minute,
	"5minute":  5 * time.Minute,
	"10minute": 10 * time.Minute,
	"15minute": 15 * time.Minute,
	"30minute": 30 * time.Minute,
	"60minute": time.Hour,
	"day":      24 * time.Hour,
}

// IntervalDuration maps a Kite candle interval name to its bar length.
func IntervalDuration(name string) (time.Duration, bool) {
	d, ok := kiteIntervals[strings.ToLower(strings.TrimSpace(name))]
	return d, ok
}

func (c *Config) DecisionTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

// ParseClock parses "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock '%s': want HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
