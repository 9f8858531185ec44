package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 76, cfg.Population())

	jp, ok := cfg.RegionForCurrency("JPY")
	require.True(t, ok)
	assert.Equal(t, "JP", jp.ID)
	assert.Equal(t, -1.0, jp.Taylor.Floor)
	_, ok = cfg.Market("international")
	assert.True(t, ok)
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty population", func(c *Config) { c.Corporates, c.Banks = nil, nil }, "population"},
		{"zero counts", func(c *Config) {
			for i := range c.Corporates {
				c.Corporates[i].Count = 0
			}
			for i := range c.Banks {
				c.Banks[i].Count = 0
			}
		}, "population"},
		{"empty map", func(c *Config) { c.Map.Radius = -1 }, "map.radius"},
		{"negative steps", func(c *Config) { c.Steps = -3 }, "steps"},
		{"floor above ceiling", func(c *Config) { c.Regions[1].Taylor.Floor = 20 }, "regions[1].taylor.floor"},
		{"persistence out of range", func(c *Config) { c.Regions[0].Taylor.Persistence = 1.5 }, "regions[0].taylor.persistence"},
		{"duplicate region", func(c *Config) { c.Regions[1].ID = "US" }, "regions[1].id"},
		{"unknown currency", func(c *Config) { c.Markets[0].Quote = "EUR" }, "markets[0].quote"},
		{"bad price rule", func(c *Config) { c.Markets[1].PriceRule = "vwap" }, "markets[1].price_rule"},
		{"zero tick", func(c *Config) { c.Markets[0].Tick = 0 }, "markets[0].tick"},
		{"unknown corporate region", func(c *Config) { c.Corporates[2].Region = "EU" }, "corporates[2].region"},
		{"unknown corporate role", func(c *Config) { c.Corporates[0].Role = "trader" }, "corporates[0].role"},
		{"corporate spread too wide", func(c *Config) { c.Corporates[1].Spread = 1 }, "corporates[1].spread"},
		{"bank spread too wide", func(c *Config) { c.Banks[2].Spread = 1.2 }, "banks[2].spread"},
		{"unknown bank market", func(c *Config) { c.Banks[3].Market = "otc" }, "banks[3].market"},
		{"bad bank kind", func(c *Config) { c.Banks[0].Kind = "hedge_fund" }, "banks[0].kind"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			var cerr *ConfigurationError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Equal(t, tc.field, cerr.Field)
		})
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	raw := []byte("seed: 7\nsteps: 30\nmap:\n  radius: 4\n  base_resource: 0\nlogging:\n  level: debug\n")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 30, cfg.Steps)
	assert.Equal(t, 4, cfg.Map.Radius)
	assert.Zero(t, cfg.Map.BaseResource)
	assert.Equal(t, 3, cfg.Map.Octaves, "unset keys keep their defaults")
	assert.Len(t, cfg.Regions, 2)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadWrapsConfigurationError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("corporates: []\nbanks: []\n"), 0o644))

	_, err := Load(path)
	var cerr *ConfigurationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "population", cerr.Field)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("steps: [1, 2\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestDefaultFileMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "default.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
