package store

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config drives the whole service. Values come from an optional config.yaml
// and are overridden field-by-field by environment variables, so a bare
// environment (the usual deployment) needs no file at all.
type Config struct {
	Port int `yaml:"port"`

	Paths struct {
		SnapshotFile string `yaml:"snapshot_file"`
		FirstCloseDB string `yaml:"first_close_db"`
		PaperDB      string `yaml:"paper_db"`
		TicksFile    string `yaml:"ticks_file"`
		ExportDir    string `yaml:"export_dir"`
	} `yaml:"paths"`

	Paper struct {
		Timeframe   string `yaml:"timeframe"`    // 1m | 5m | 15m
		Factor      string `yaml:"factor"`       // micro | mini | mega | smart
		FactorMCX   string `yaml:"factor_mcx"`   // factor used for MCX rows
		CooldownSec int    `yaml:"cooldown_sec"` // re-entry cooldown after close
		CycleMs     int    `yaml:"cycle_ms"`     // engine poll interval
	} `yaml:"paper"`

	Trade struct {
		Mode        string `yaml:"mode"` // paper | live
		EnableLive  bool   `yaml:"enable_live"`
		TrendOnly   bool   `yaml:"trend_only"`
		JackpotOnly bool   `yaml:"jackpot_only"`
	} `yaml:"trade"`

	Entry struct {
		MinConfirmation        int     `yaml:"min_confirmation"`
		MinRR                  float64 `yaml:"min_rr"`
		JackpotLookbackSec     int     `yaml:"jackpot_touch_lookback_sec"`
		JackpotMinConfirmation int     `yaml:"jackpot_min_confirmation"`
		JackpotMinRR           float64 `yaml:"jackpot_min_rr"`
		MinVolumeAccel         float64 `yaml:"min_volume_accel"`
		MinProbabilityScore    int     `yaml:"min_probability_score"`
		MaxSpikePointsMult     float64 `yaml:"max_spike_points_mult"`
	} `yaml:"entry"`

	Limits struct {
		MaxOrdersPerDay  int     `yaml:"max_orders_per_day"`
		MaxOpenPositions int     `yaml:"max_open_positions"`
		MaxMarginUsedPct float64 `yaml:"max_margin_used_pct"`
	} `yaml:"limits"`
}

func defaults() *Config {
	c := &Config{}
	c.Port = 8787
	c.Paths.SnapshotFile = "data/ui_snapshot.json"
	c.Paths.FirstCloseDB = "data/first_closes.db"
	c.Paths.PaperDB = "data/paper_trades.db"
	c.Paths.TicksFile = "data/ticks.jsonl"
	c.Paths.ExportDir = "exports"
	c.Paper.Timeframe = "5m"
	c.Paper.Factor = "smart"
	c.Paper.FactorMCX = "mini"
	c.Paper.CooldownSec = 30
	c.Paper.CycleMs = 1500
	c.Trade.Mode = "paper"
	c.Trade.TrendOnly = true
	c.Entry.MinConfirmation = 2
	c.Entry.MinRR = 0.5
	c.Entry.JackpotLookbackSec = 1800
	c.Entry.MinVolumeAccel = 1.15
	c.Entry.MinProbabilityScore = 35
	c.Entry.MaxSpikePointsMult = 2.5
	c.Limits.MaxOrdersPerDay = 2000
	c.Limits.MaxOpenPositions = 100
	c.Limits.MaxMarginUsedPct = 80
	return c
}

func (c *Config) Validate() error {
	switch c.Paper.Timeframe {
	case "1m", "5m", "15m":
	default:
		return fmt.Errorf("invalid timeframe '%s': must be '1m', '5m' or '15m'", c.Paper.Timeframe)
	}
	switch c.Paper.Factor {
	case "micro", "mini", "mega", "smart":
	default:
		return fmt.Errorf("invalid factor '%s': must be 'micro', 'mini', 'mega' or 'smart'", c.Paper.Factor)
	}
	switch c.Paper.FactorMCX {
	case "micro", "mini", "mega":
	default:
		return fmt.Errorf("invalid factor_mcx '%s': must be 'micro', 'mini' or 'mega'", c.Paper.FactorMCX)
	}
	if c.Trade.Mode != "paper" && c.Trade.Mode != "live" {
		return fmt.Errorf("invalid trade mode '%s': must be 'paper' or 'live'", c.Trade.Mode)
	}
	if c.Paper.CycleMs < 500 {
		c.Paper.CycleMs = 500
	}
	if c.Limits.MaxOrdersPerDay <= 0 || c.Limits.MaxOpenPositions <= 0 {
		return fmt.Errorf("limits must be positive, got orders=%d positions=%d",
			c.Limits.MaxOrdersPerDay, c.Limits.MaxOpenPositions)
	}
	return nil
}

// LiveEnabled reports whether real order placement is armed. Both switches
// are required: TRADE_MODE=live and ENABLE_LIVE_TRADING=1.
func (c *Config) LiveEnabled() bool {
	return c.Trade.Mode == "live" && c.Trade.EnableLive
}

// LoadConfig reads the optional yaml file at path, applies environment
// overrides, derives dependent defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	c := defaults()
	if path != "" {
		if b, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(b, c); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	c.applyEnv()

	// Jackpot thresholds floor at the regular entry thresholds.
	if c.Entry.JackpotMinConfirmation < c.Entry.MinConfirmation {
		c.Entry.JackpotMinConfirmation = c.Entry.MinConfirmation
	}
	if c.Entry.JackpotMinConfirmation < 3 {
		c.Entry.JackpotMinConfirmation = 3
	}
	if c.Entry.JackpotMinRR < c.Entry.MinRR {
		c.Entry.JackpotMinRR = c.Entry.MinRR
	}
	if c.Entry.JackpotMinRR < 2.2 {
		c.Entry.JackpotMinRR = 2.2
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	c.Port = envInt("PORT", c.Port)
	c.Paths.SnapshotFile = envStr("SNAPSHOT_FILE", c.Paths.SnapshotFile)
	c.Paths.FirstCloseDB = envStr("FIRSTCLOSE_DB", c.Paths.FirstCloseDB)
	c.Paths.PaperDB = envStr("PAPER_DB", c.Paths.PaperDB)
	c.Paths.TicksFile = envStr("TICKS_FILE", c.Paths.TicksFile)
	c.Paths.ExportDir = envStr("EXPORT_DIR", c.Paths.ExportDir)

	c.Paper.Timeframe = envStr("PAPER_TF", c.Paper.Timeframe)
	c.Paper.Factor = envStr("PAPER_FACTOR", c.Paper.Factor)
	c.Paper.FactorMCX = envStr("PAPER_FACTOR_MCX", c.Paper.FactorMCX)
	c.Paper.CooldownSec = envInt("PAPER_COOLDOWN_SEC", c.Paper.CooldownSec)
	c.Paper.CycleMs = envInt("PAPER_CYCLE_MS", c.Paper.CycleMs)

	c.Trade.Mode = strings.ToLower(envStr("TRADE_MODE", c.Trade.Mode))
	c.Trade.EnableLive = envBool("ENABLE_LIVE_TRADING", c.Trade.EnableLive)
	c.Trade.TrendOnly = envBool("TREND_ONLY", c.Trade.TrendOnly)
	c.Trade.JackpotOnly = envBool("JACKPOT_ONLY", c.Trade.JackpotOnly)

	c.Entry.MinConfirmation = envInt("MIN_CONFIRMATION", c.Entry.MinConfirmation)
	c.Entry.MinRR = envFloat("MIN_RR", c.Entry.MinRR)
	c.Entry.JackpotLookbackSec = envInt("JACKPOT_TOUCH_LOOKBACK_SEC", c.Entry.JackpotLookbackSec)
	c.Entry.JackpotMinConfirmation = envInt("JACKPOT_MIN_CONFIRMATION", c.Entry.JackpotMinConfirmation)
	c.Entry.JackpotMinRR = envFloat("JACKPOT_MIN_RR", c.Entry.JackpotMinRR)
	c.Entry.MinVolumeAccel = envFloat("MIN_VOLUME_ACCEL", c.Entry.MinVolumeAccel)
	c.Entry.MinProbabilityScore = envInt("MIN_PROBABILITY_SCORE", c.Entry.MinProbabilityScore)
	c.Entry.MaxSpikePointsMult = envFloat("MAX_SPIKE_POINTS_MULT", c.Entry.MaxSpikePointsMult)

	c.Limits.MaxOrdersPerDay = envInt("MAX_ORDERS_PER_DAY", c.Limits.MaxOrdersPerDay)
	c.Limits.MaxOpenPositions = envInt("MAX_OPEN_POSITIONS", c.Limits.MaxOpenPositions)
	c.Limits.MaxMarginUsedPct = envFloat("MAX_MARGIN_USED_PCT", c.Limits.MaxMarginUsedPct)
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
