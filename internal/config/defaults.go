package config

// Default returns the two-region USD/JPY setup: a US economy near target with
// a positive neutral rate, and a Japan economy with low inflation and a
// negative gap whose Taylor rate sits on the -1% floor.
func Default() Config {
	return Config{
		Seed:     42,
		Steps:    100,
		LogEvery: 10,
		Map: MapConfig{
			Radius:       10,
			BaseResource: 100,
			Variation:    0.8,
			Frequency:    0.12,
			Octaves:      3,
			Regen:        0.05,
		},
		Regions: []RegionConfig{
			{
				ID: "US", Currency: "USD", AnchorQ: -5, AnchorR: 0,
				Inflation: 2.5, OutputGap: 0.5, Rate: 2.5,
				Taylor: TaylorConfig{Neutral: 2.5, Target: 2, A: 0.5, B: 0.5, Persistence: 0.8, Floor: -1, Ceiling: 10},
				Macro: MacroConfig{
					InflationMean: 2.5, InflationRho: 0.9, InflationSigma: 0.1,
					GapMean: 0.5, GapRho: 0.9, GapSigma: 0.2,
					Transmission: 0.05,
				},
			},
			{
				ID: "JP", Currency: "JPY", AnchorQ: 5, AnchorR: 0,
				Inflation: 0.3, OutputGap: -1.5, Rate: -0.1,
				Taylor: TaylorConfig{Neutral: 0, Target: 2, A: 1.5, B: 0.5, Persistence: 0.8, Floor: -1, Ceiling: 10},
				Macro: MacroConfig{
					InflationMean: 0.3, InflationRho: 0.9, InflationSigma: 0.05,
					GapMean: -1.5, GapRho: 0.9, GapSigma: 0.2,
					Transmission: 0.05,
				},
			},
		},
		Markets: []MarketConfig{
			{ID: "banks", Base: "USD", Quote: "JPY", SeedPrice: 150, Tick: 0.01, Lot: 1, TTL: 5, PriceRule: "maker"},
			{ID: "international", Base: "USD", Quote: "JPY", SeedPrice: 150, Tick: 0.01, Lot: 1, TTL: 10, PriceRule: "maker"},
		},
		Corporates: []CorporateConfig{
			corporates("US", "exporter", 20),
			corporates("US", "importer", 10),
			corporates("JP", "exporter", 20),
			corporates("JP", "importer", 10),
		},
		Banks: []BankConfig{
			banks("bank", "US", "banks", 5),
			banks("bank", "JP", "banks", 5),
			banks("international_bank", "US", "international", 3),
			banks("international_bank", "JP", "international", 3),
		},
		Collector: CollectorConfig{DepthLevels: 10},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

func corporates(region, role string, count int) CorporateConfig {
	return CorporateConfig{
		Region: region, Count: count, Role: role, Market: "banks",
		Threshold: 1, Fraction: 0.1, Usage: 2, Target: 20, Sensitivity: 0.5, Spread: 0.002,
	}
}

func banks(kind, region, market string, count int) BankConfig {
	return BankConfig{
		Kind: kind, Region: region, Count: count, Market: market,
		Risk: 1, Spread: 0.001, Noise: 1, Aversion: 2, OrderScale: 10,
		Base: 1000, Quote: 150000,
	}
}
