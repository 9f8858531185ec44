// Package config loads, defaults and validates the run configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full description of one run.
type Config struct {
	Seed       int64 `yaml:"seed"`
	Steps      int   `yaml:"steps"`
	Workers    int   `yaml:"workers"`     // Plan-phase parallelism; 0 = GOMAXPROCS
	LogEvery   int   `yaml:"log_every"`   // Steps between progress reports; 0 = never
	IntervalMS int   `yaml:"interval_ms"` // Pacing between steps; 0 = as fast as possible

	Map        MapConfig         `yaml:"map"`
	Regions    []RegionConfig    `yaml:"regions"`
	Markets    []MarketConfig    `yaml:"markets"`
	Corporates []CorporateConfig `yaml:"corporates"`
	Banks      []BankConfig      `yaml:"banks"`
	Collector  CollectorConfig   `yaml:"collector"`
	Logging    LoggingConfig     `yaml:"logging"`
}

// MapConfig mirrors world.GenConfig; the seed comes from Config.Seed.
type MapConfig struct {
	Radius       int     `yaml:"radius"`
	BaseResource float64 `yaml:"base_resource"`
	Variation    float64 `yaml:"variation"`
	Frequency    float64 `yaml:"frequency"`
	Octaves      int     `yaml:"octaves"`
	Regen        float64 `yaml:"regen"`
}

// RegionConfig describes one monetary region and its central bank.
type RegionConfig struct {
	ID        string       `yaml:"id"`
	Currency  string       `yaml:"currency"`
	AnchorQ   int          `yaml:"anchor_q"`
	AnchorR   int          `yaml:"anchor_r"`
	Inflation float64      `yaml:"inflation"`
	OutputGap float64      `yaml:"output_gap"`
	Rate      float64      `yaml:"rate"`
	Taylor    TaylorConfig `yaml:"taylor"`
	Macro     MacroConfig  `yaml:"macro"`
}

type TaylorConfig struct {
	Neutral     float64 `yaml:"neutral"`
	Target      float64 `yaml:"target"`
	A           float64 `yaml:"a"`
	B           float64 `yaml:"b"`
	Persistence float64 `yaml:"persistence"`
	Floor       float64 `yaml:"floor"`
	Ceiling     float64 `yaml:"ceiling"`
}

type MacroConfig struct {
	InflationMean  float64 `yaml:"inflation_mean"`
	InflationRho   float64 `yaml:"inflation_rho"`
	InflationSigma float64 `yaml:"inflation_sigma"`
	GapMean        float64 `yaml:"gap_mean"`
	GapRho         float64 `yaml:"gap_rho"`
	GapSigma       float64 `yaml:"gap_sigma"`
	Transmission   float64 `yaml:"transmission"`
}

// MarketConfig describes one order book. Base and Quote are currency codes
// that must belong to configured regions.
type MarketConfig struct {
	ID        string  `yaml:"id"`
	Base      string  `yaml:"base"`
	Quote     string  `yaml:"quote"`
	SeedPrice float64 `yaml:"seed_price"`
	Tick      float64 `yaml:"tick"`
	Lot       float64 `yaml:"lot"`
	TTL       int     `yaml:"ttl"`
	PriceRule string  `yaml:"price_rule"` // "maker" (default) or "midpoint"
}

// CorporateConfig spawns Count corporates of one role in one region.
type CorporateConfig struct {
	Region      string  `yaml:"region"`
	Count       int     `yaml:"count"`
	Role        string  `yaml:"role"`
	Market      string  `yaml:"market"`
	Threshold   float64 `yaml:"threshold"`
	Fraction    float64 `yaml:"fraction"`
	Usage       float64 `yaml:"usage"`
	Target      float64 `yaml:"target"`
	Sensitivity float64 `yaml:"sensitivity"`
	Spread      float64 `yaml:"spread"`
}

// BankConfig spawns Count trading agents of one kind.
type BankConfig struct {
	Kind       string  `yaml:"kind"` // "bank" or "international_bank"
	Region     string  `yaml:"region"`
	Count      int     `yaml:"count"`
	Market     string  `yaml:"market"`
	Risk       float64 `yaml:"risk"`
	Spread     float64 `yaml:"spread"`
	Noise      float64 `yaml:"noise"`
	Aversion   float64 `yaml:"aversion"`
	OrderScale float64 `yaml:"order_scale"`
	Base       float64 `yaml:"base"`  // Starting base-currency balance
	Quote      float64 `yaml:"quote"` // Starting quote-currency balance
}

type CollectorConfig struct {
	DepthLevels int `yaml:"depth_levels"` // Book levels kept per side in each snapshot
}

// LoggingConfig selects the slog handler and optional rotated file output.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`   // Empty logs to stdout only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Interval returns the pacing between steps.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// Population returns the number of corporates and trading agents configured.
func (c *Config) Population() int {
	n := 0
	for _, g := range c.Corporates {
		n += g.Count
	}
	for _, g := range c.Banks {
		n += g.Count
	}
	return n
}

// Region returns the region with the given id.
func (c *Config) Region(id string) (RegionConfig, bool) {
	for _, r := range c.Regions {
		if r.ID == id {
			return r, true
		}
	}
	return RegionConfig{}, false
}

// RegionForCurrency returns the region that issues a currency.
func (c *Config) RegionForCurrency(currency string) (RegionConfig, bool) {
	for _, r := range c.Regions {
		if r.Currency == currency {
			return r, true
		}
	}
	return RegionConfig{}, false
}

// Market returns the market with the given id.
func (c *Config) Market(id string) (MarketConfig, bool) {
	for _, m := range c.Markets {
		if m.ID == id {
			return m, true
		}
	}
	return MarketConfig{}, false
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
