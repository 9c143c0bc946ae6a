package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the root configuration for the analysis engine.
type Config struct {
	LoggingConfig    LoggingConfig    `json:"logging"`
	PipelineConfig   PipelineConfig   `json:"pipeline"`
	ValidationConfig ValidationConfig `json:"validation"`
	QueueConfig      QueueConfig      `json:"queue"`
	SignalConfig     SignalConfig     `json:"signal"`
	CacheConfig      CacheConfig      `json:"cache"`
	BreakerConfig    BreakerConfig    `json:"circuit_breaker"`
	ScannerConfig    ScannerConfig    `json:"scanner"`
	ServerConfig     ServerConfig     `json:"server"`
	DatabaseConfig   DatabaseConfig   `json:"database"`
	RedisConfig      RedisConfig      `json:"redis"`
	MarketDataConfig MarketDataConfig `json:"market_data"`
}

type LoggingConfig struct {
	Level      string `json:"level" default:"info"`
	Output     string `json:"output" default:"stdout"`
	JSONFormat bool   `json:"json_format" default:"true"`
}

// PipelineConfig controls the stage coordinator and its worker pool.
type PipelineConfig struct {
	MaxConcurrency  int `json:"max_concurrency" default:"10" validate:"gte=1"`
	StageTimeoutSec int `json:"stage_timeout_sec" default:"30" validate:"gte=1"`
	MinBars         int `json:"min_bars" default:"20" validate:"gte=1"`
}

// VolumeThresholds holds the non-negotiable volume-ratio boundaries per
// pattern. All boundaries are exclusive: a ratio exactly at a threshold
// fails, because the underlying rule is "strictly better than average".
type VolumeThresholds struct {
	SpringMax float64 `json:"spring_max" default:"0.7" validate:"gt=0"`
	SOSMin    float64 `json:"sos_min" default:"1.5" validate:"gt=0"`
	LPSLow    float64 `json:"lps_low" default:"0.5" validate:"gt=0"`
	LPSHigh   float64 `json:"lps_high" default:"1.5" validate:"gt=0"`
	UTADMin   float64 `json:"utad_min" default:"1.5" validate:"gt=0"`
}

// ValidationConfig is the typed replacement for the loose config bag
// the validators consume. Validated at construction.
type ValidationConfig struct {
	Stock VolumeThresholds `json:"stock"`
	Forex VolumeThresholds `json:"forex"`

	// AsianSessionFactor tightens forex thresholds during the Asian
	// session where baseline liquidity is lower. Max-type thresholds
	// shrink, min-type thresholds grow.
	AsianSessionFactor float64 `json:"asian_session_factor" default:"0.15" validate:"gte=0,lte=1"`

	MinRMultiple     float64  `json:"min_r_multiple" default:"2.0" validate:"gt=0"`
	MinConfidence    float64  `json:"min_confidence" default:"70" validate:"gte=0,lte=100"`
	LevelTolerance   float64  `json:"level_tolerance" default:"0.02" validate:"gt=0"`
	EnabledPatterns  []string `json:"enabled_patterns"`
	RMultipleEpsilon float64  `json:"r_multiple_epsilon" default:"0.01" validate:"gt=0"`
}

// QueueConfig holds the priority-score weights and normalization bounds.
type QueueConfig struct {
	ConfidenceWeight float64 `json:"confidence_weight" default:"0.40" validate:"gte=0,lte=1"`
	RMultipleWeight  float64 `json:"r_multiple_weight" default:"0.30" validate:"gte=0,lte=1"`
	PatternWeight    float64 `json:"pattern_weight" default:"0.30" validate:"gte=0,lte=1"`

	ConfidenceFloor float64 `json:"confidence_floor" default:"70"`
	ConfidenceCeil  float64 `json:"confidence_ceil" default:"95"`
	RMultipleFloor  float64 `json:"r_multiple_floor" default:"2.0"`
	RMultipleCeil   float64 `json:"r_multiple_ceil" default:"6.0"`
}

type CacheConfig struct {
	MaxEntries int `json:"max_entries" default:"512" validate:"gte=1"`
	TTLSec     int `json:"ttl_sec" default:"300" validate:"gte=1"`
}

type BreakerConfig struct {
	FailureThreshold uint32 `json:"failure_threshold" default:"3" validate:"gte=1"`
	CooldownSec      int    `json:"cooldown_sec" default:"60" validate:"gte=1"`
}

type ScannerConfig struct {
	Enabled         bool     `json:"enabled" default:"true"`
	ScanIntervalSec int      `json:"scan_interval_sec" default:"300" validate:"gte=1"`
	Symbols         []string `json:"symbols"`
	Timeframe       string   `json:"timeframe" default:"1h"`
	LookbackBars    int      `json:"lookback_bars" default:"200" validate:"gte=1"`

	// ForexSymbols names the scanned symbols that trade as forex pairs;
	// they get the forex thresholds and session-aware tightening. Every
	// other symbol is treated as a stock.
	ForexSymbols []string `json:"forex_symbols"`
}

// SignalConfig holds the account-level sizing inputs the signal builder
// turns into position sizes.
type SignalConfig struct {
	AccountEquity   float64 `json:"account_equity" default:"10000" validate:"gt=0"`
	RiskPerTradePct float64 `json:"risk_per_trade_pct" default:"1.0" validate:"gt=0,lte=100"`
}

type ServerConfig struct {
	Enabled bool   `json:"enabled" default:"true"`
	Port    int    `json:"port" default:"8080" validate:"gte=1,lte=65535"`
	Mode    string `json:"mode" default:"release"`
}

type DatabaseConfig struct {
	Enabled bool   `json:"enabled" default:"false"`
	URL     string `json:"url"`
	MaxConn int32  `json:"max_conn" default:"5" validate:"gte=1"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled" default:"false"`
	Addr     string `json:"addr" default:"localhost:6379"`
	Password string `json:"password"`
	DB       int    `json:"db" default:"0"`
}

type MarketDataConfig struct {
	WebSocketURL string `json:"websocket_url"`
	ReconnectSec int    `json:"reconnect_sec" default:"5" validate:"gte=1"`
	PingSec      int    `json:"ping_sec" default:"30" validate:"gte=1"`
}

// Default returns a Config populated with defaults only.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("applying config defaults: %w", err)
	}
	cfg.ValidationConfig.EnabledPatterns = []string{"SPRING", "SOS", "LPS", "UTAD"}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads configuration from CONFIG_FILE (default config.json when
// present), applies defaults for missing fields, overlays environment
// variables, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("applying config defaults: %w", err)
	}

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.json"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if len(cfg.ValidationConfig.EnabledPatterns) == 0 {
		cfg.ValidationConfig.EnabledPatterns = []string{"SPRING", "SOS", "LPS", "UTAD"}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces field constraints plus cross-field rules the tag
// syntax cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	w := c.QueueConfig
	total := w.ConfidenceWeight + w.RMultipleWeight + w.PatternWeight
	if total < 0.999 || total > 1.001 {
		return fmt.Errorf("queue weights must sum to 1.0, got %.3f", total)
	}
	if c.ValidationConfig.Stock.LPSLow >= c.ValidationConfig.Stock.LPSHigh {
		return fmt.Errorf("stock LPS band is empty: low %.2f >= high %.2f",
			c.ValidationConfig.Stock.LPSLow, c.ValidationConfig.Stock.LPSHigh)
	}
	if c.ValidationConfig.Forex.LPSLow >= c.ValidationConfig.Forex.LPSHigh {
		return fmt.Errorf("forex LPS band is empty: low %.2f >= high %.2f",
			c.ValidationConfig.Forex.LPSLow, c.ValidationConfig.Forex.LPSHigh)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LoggingConfig.Level = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseConfig.URL = v
		cfg.DatabaseConfig.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisConfig.Addr = v
		cfg.RedisConfig.Enabled = true
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.ServerConfig.Port = port
		}
	}
	if v := os.Getenv("MARKET_WS_URL"); v != "" {
		cfg.MarketDataConfig.WebSocketURL = v
	}
}
