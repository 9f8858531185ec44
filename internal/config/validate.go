package config

import (
	"fmt"
	"math"
)

// ConfigurationError rejects a run before step 0.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks population, map, coefficients and cross references. It
// returns the first problem found as a *ConfigurationError.
func (c *Config) Validate() error {
	if c.Steps < 0 {
		return invalid("steps", "must not be negative, got %d", c.Steps)
	}
	if c.Workers < 0 {
		return invalid("workers", "must not be negative, got %d", c.Workers)
	}
	if c.Population() <= 0 {
		return invalid("population", "no corporates or banks configured")
	}
	if err := c.validateMap(); err != nil {
		return err
	}
	if err := c.validateRegions(); err != nil {
		return err
	}
	if err := c.validateMarkets(); err != nil {
		return err
	}
	for i, g := range c.Corporates {
		if err := c.validateCorporates(i, g); err != nil {
			return err
		}
	}
	for i, g := range c.Banks {
		if err := c.validateBanks(i, g); err != nil {
			return err
		}
	}
	if c.Collector.DepthLevels < 0 {
		return invalid("collector.depth_levels", "must not be negative")
	}
	return nil
}

func (c *Config) validateMap() error {
	m := c.Map
	switch {
	case m.Radius < 0:
		return invalid("map.radius", "map is empty (radius %d)", m.Radius)
	case !finite(m.BaseResource) || m.BaseResource < 0:
		return invalid("map.base_resource", "must be a non-negative number")
	case !finite(m.Variation) || m.Variation < 0 || m.Variation > 1:
		return invalid("map.variation", "must be in [0, 1]")
	case !finite(m.Regen) || m.Regen < 0 || m.Regen > 1:
		return invalid("map.regen", "must be in [0, 1]")
	}
	return nil
}

func (c *Config) validateRegions() error {
	if len(c.Regions) == 0 {
		return invalid("regions", "at least one region is required")
	}
	ids := make(map[string]bool)
	currencies := make(map[string]bool)
	for i, r := range c.Regions {
		field := fmt.Sprintf("regions[%d]", i)
		if r.ID == "" {
			return invalid(field+".id", "must not be empty")
		}
		if ids[r.ID] {
			return invalid(field+".id", "duplicate region %q", r.ID)
		}
		ids[r.ID] = true
		if r.Currency == "" || currencies[r.Currency] {
			return invalid(field+".currency", "missing or duplicate currency %q", r.Currency)
		}
		currencies[r.Currency] = true

		t := r.Taylor
		for name, v := range map[string]float64{
			"neutral": t.Neutral, "target": t.Target, "a": t.A, "b": t.B,
			"floor": t.Floor, "ceiling": t.Ceiling,
		} {
			if !finite(v) {
				return invalid(field+".taylor."+name, "must be finite")
			}
		}
		if !finite(t.Persistence) || t.Persistence < 0 || t.Persistence > 1 {
			return invalid(field+".taylor.persistence", "must be in [0, 1], got %v", t.Persistence)
		}
		if t.Floor > t.Ceiling {
			return invalid(field+".taylor.floor", "floor %v above ceiling %v", t.Floor, t.Ceiling)
		}
		if !finite(r.Inflation) || !finite(r.OutputGap) || !finite(r.Rate) {
			return invalid(field, "initial macro state must be finite")
		}
		mc := r.Macro
		if mc.InflationSigma < 0 || mc.GapSigma < 0 {
			return invalid(field+".macro", "sigma must not be negative")
		}
		if !finite(mc.InflationRho) || !finite(mc.GapRho) || !finite(mc.Transmission) {
			return invalid(field+".macro", "coefficients must be finite")
		}
	}
	return nil
}

func (c *Config) validateMarkets() error {
	if len(c.Markets) == 0 {
		return invalid("markets", "at least one market is required")
	}
	ids := make(map[string]bool)
	for i, m := range c.Markets {
		field := fmt.Sprintf("markets[%d]", i)
		if m.ID == "" || ids[m.ID] {
			return invalid(field+".id", "missing or duplicate market %q", m.ID)
		}
		ids[m.ID] = true
		if _, ok := c.RegionForCurrency(m.Base); !ok {
			return invalid(field+".base", "currency %q is not issued by any region", m.Base)
		}
		if _, ok := c.RegionForCurrency(m.Quote); !ok {
			return invalid(field+".quote", "currency %q is not issued by any region", m.Quote)
		}
		if m.Base == m.Quote {
			return invalid(field, "base and quote are both %q", m.Base)
		}
		if !finite(m.SeedPrice) || m.SeedPrice <= 0 {
			return invalid(field+".seed_price", "must be positive")
		}
		if !finite(m.Tick) || m.Tick <= 0 {
			return invalid(field+".tick", "must be positive")
		}
		if !finite(m.Lot) || m.Lot <= 0 {
			return invalid(field+".lot", "must be positive")
		}
		if m.TTL < 0 {
			return invalid(field+".ttl", "must not be negative")
		}
		switch m.PriceRule {
		case "", "maker", "midpoint":
		default:
			return invalid(field+".price_rule", "unknown rule %q", m.PriceRule)
		}
	}
	return nil
}

func (c *Config) validateCorporates(i int, g CorporateConfig) error {
	field := fmt.Sprintf("corporates[%d]", i)
	if g.Count < 0 {
		return invalid(field+".count", "must not be negative")
	}
	if _, ok := c.Region(g.Region); !ok {
		return invalid(field+".region", "unknown region %q", g.Region)
	}
	if _, ok := c.Market(g.Market); !ok {
		return invalid(field+".market", "unknown market %q", g.Market)
	}
	if g.Role != "importer" && g.Role != "exporter" {
		return invalid(field+".role", "must be importer or exporter, got %q", g.Role)
	}
	if !finite(g.Threshold) || g.Threshold < 0 {
		return invalid(field+".threshold", "must be a non-negative number")
	}
	if !finite(g.Fraction) || g.Fraction < 0 || g.Fraction > 1 {
		return invalid(field+".fraction", "must be in [0, 1]")
	}
	for name, v := range map[string]float64{
		"usage": g.Usage, "target": g.Target, "sensitivity": g.Sensitivity, "spread": g.Spread,
	} {
		if !finite(v) || v < 0 {
			return invalid(field+"."+name, "must be a non-negative number")
		}
	}
	if g.Spread >= 1 {
		return invalid(field+".spread", "must be below 1")
	}
	return nil
}

func (c *Config) validateBanks(i int, g BankConfig) error {
	field := fmt.Sprintf("banks[%d]", i)
	if g.Count < 0 {
		return invalid(field+".count", "must not be negative")
	}
	if g.Kind != "bank" && g.Kind != "international_bank" {
		return invalid(field+".kind", "must be bank or international_bank, got %q", g.Kind)
	}
	if _, ok := c.Region(g.Region); !ok {
		return invalid(field+".region", "unknown region %q", g.Region)
	}
	if _, ok := c.Market(g.Market); !ok {
		return invalid(field+".market", "unknown market %q", g.Market)
	}
	for name, v := range map[string]float64{
		"risk": g.Risk, "spread": g.Spread, "noise": g.Noise, "aversion": g.Aversion,
		"order_scale": g.OrderScale, "base": g.Base, "quote": g.Quote,
	} {
		if !finite(v) || v < 0 {
			return invalid(field+"."+name, "must be a non-negative number")
		}
	}
	if g.Spread >= 1 {
		return invalid(field+".spread", "must be below 1")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
