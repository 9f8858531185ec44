package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/talgya/abm-fx/internal/agents"
	"github.com/talgya/abm-fx/internal/config"
	"github.com/talgya/abm-fx/internal/economy"
	"github.com/talgya/abm-fx/internal/world"
)

// Build generates the map, spawns every agent and opens the books described
// by cfg. Ids are issued central banks first, then corporates, then trading
// agents, each in configuration order.
func Build(cfg config.Config) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := world.Generate(world.GenConfig{
		Radius:       cfg.Map.Radius,
		Seed:         cfg.Seed,
		BaseResource: cfg.Map.BaseResource,
		Variation:    cfg.Map.Variation,
		Frequency:    cfg.Map.Frequency,
		Octaves:      cfg.Map.Octaves,
		Regen:        cfg.Map.Regen,
	})
	if m.CellCount() == 0 {
		return nil, &config.ConfigurationError{Field: "map", Reason: "map has no cells"}
	}

	anchors := make([]world.RegionAnchor, 0, len(cfg.Regions))
	for _, r := range cfg.Regions {
		anchors = append(anchors, world.RegionAnchor{
			Region: world.RegionID(r.ID),
			Coord:  world.HexCoord{Q: r.AnchorQ, R: r.AnchorR},
		})
	}
	if err := world.AssignRegions(m, anchors); err != nil {
		return nil, &config.ConfigurationError{Field: "regions", Reason: err.Error()}
	}

	spawner := agents.NewSpawner(cfg.Seed)

	states := make([]agents.RegionState, 0, len(cfg.Regions))
	cbs := make([]*agents.CentralBank, 0, len(cfg.Regions))
	for _, r := range cfg.Regions {
		id := world.RegionID(r.ID)
		taylor := taylorParams(r.Taylor)
		states = append(states, agents.RegionState{
			ID:        id,
			Currency:  r.Currency,
			Inflation: r.Inflation,
			OutputGap: r.OutputGap,
			Rate:      taylor.Clamp(r.Rate),
		})
		cbs = append(cbs, spawner.SpawnCentralBank(id, taylor, macroParams(r.Macro)))
	}

	markets := make([]*Market, 0, len(cfg.Markets))
	for _, mc := range cfg.Markets {
		base, _ := cfg.RegionForCurrency(mc.Base)
		quote, _ := cfg.RegionForCurrency(mc.Quote)
		rule, err := economy.ParsePriceRule(mc.PriceRule)
		if err != nil {
			return nil, &config.ConfigurationError{Field: "markets." + mc.ID + ".price_rule", Reason: err.Error()}
		}
		tick := decimal.NewFromFloat(mc.Tick)
		markets = append(markets, &Market{
			ID:          economy.MarketID(mc.ID),
			BaseRegion:  world.RegionID(base.ID),
			QuoteRegion: world.RegionID(quote.ID),
			SeedPrice:   decimal.NewFromFloat(mc.SeedPrice),
			Tick:        tick,
			Lot:         decimal.NewFromFloat(mc.Lot),
			Book: economy.NewBook(economy.BookConfig{
				Market:    economy.MarketID(mc.ID),
				TickSize:  tick,
				TTL:       mc.TTL,
				PriceRule: rule,
			}),
		})
	}

	var corps []*agents.Corporate
	for i, g := range cfg.Corporates {
		role, err := agents.ParseRole(g.Role)
		if err != nil {
			return nil, &config.ConfigurationError{Field: "corporates", Reason: err.Error()}
		}
		region := world.RegionID(g.Region)
		cells := m.CellsIn(region)
		if len(cells) == 0 && g.Count > 0 {
			return nil, &config.ConfigurationError{
				Field:  fmt.Sprintf("corporates[%d].region", i),
				Reason: fmt.Sprintf("region %q has no cells", g.Region),
			}
		}
		spawned := spawner.SpawnCorporates(g.Count, region, cells, agents.CorporateParams{
			Role:        role,
			Market:      economy.MarketID(g.Market),
			Threshold:   g.Threshold,
			Fraction:    g.Fraction,
			Usage:       g.Usage,
			Target:      g.Target,
			Sensitivity: g.Sensitivity,
			Spread:      g.Spread,
		})
		for _, c := range spawned {
			m.Occupy(world.OccupantID(c.ID()), world.NoCell, c.Cell())
		}
		corps = append(corps, spawned...)
	}

	var banks []*agents.Bank
	for _, g := range cfg.Banks {
		kind := agents.KindBank
		if g.Kind == "international_bank" {
			kind = agents.KindInternationalBank
		}
		banks = append(banks, spawner.SpawnBanks(g.Count, kind, world.RegionID(g.Region), agents.BankParams{
			Market:     economy.MarketID(g.Market),
			Risk:       g.Risk,
			Spread:     g.Spread,
			Noise:      g.Noise,
			Aversion:   g.Aversion,
			OrderScale: g.OrderScale,
		}, agents.Wallet{
			Base:  decimal.NewFromFloat(g.Base),
			Quote: decimal.NewFromFloat(g.Quote),
		})...)
	}

	if len(corps)+len(banks) == 0 {
		return nil, &config.ConfigurationError{Field: "population", Reason: "no agents spawned"}
	}

	sim := NewSimulation(m, states, cbs, corps, banks, markets)
	sim.SetWorkers(cfg.Workers)
	sim.SetDepthLevels(cfg.Collector.DepthLevels)
	return sim, nil
}

func taylorParams(t config.TaylorConfig) agents.TaylorParams {
	return agents.TaylorParams{
		Neutral:     t.Neutral,
		Target:      t.Target,
		A:           t.A,
		B:           t.B,
		Persistence: t.Persistence,
		Floor:       t.Floor,
		Ceiling:     t.Ceiling,
	}
}

func macroParams(m config.MacroConfig) agents.MacroParams {
	return agents.MacroParams{
		InflationMean:  m.InflationMean,
		InflationRho:   m.InflationRho,
		InflationSigma: m.InflationSigma,
		GapMean:        m.GapMean,
		GapRho:         m.GapRho,
		GapSigma:       m.GapSigma,
		Transmission:   m.Transmission,
	}
}
