package engine

import (
	"github.com/shopspring/decimal"

	"github.com/talgya/abm-fx/internal/agents"
	"github.com/talgya/abm-fx/internal/economy"
	"github.com/talgya/abm-fx/internal/world"
)

// ModelSnapshot is the state of the model after one step. It is never
// modified once recorded.
type ModelSnapshot struct {
	Step          int                                   `json:"step"`
	Regions       map[world.RegionID]agents.RegionState `json:"regions"`
	Markets       map[economy.MarketID]MarketState      `json:"markets"`
	Population    map[world.RegionID]int                `json:"population"` // Corporates per region of their cell
	TotalResource float64                               `json:"total_resource"`
	MeanResource  float64                               `json:"mean_resource"`
	Counters      StepCounters                          `json:"counters"`
	Agents        []agents.State                        `json:"agents"`
}

// MarketState is one book at the end of a step.
type MarketState struct {
	BestBid   decimal.NullDecimal `json:"best_bid"`
	BestAsk   decimal.NullDecimal `json:"best_ask"`
	LastPrice decimal.NullDecimal `json:"last_price"`
	Volume    decimal.Decimal     `json:"volume"` // Traded this step
	Trades    int                 `json:"trades"` // Fills this step
	BidVolume decimal.Decimal     `json:"bid_volume"`
	AskVolume decimal.Decimal     `json:"ask_volume"`
	Resting   int                 `json:"resting"`
	Depth     economy.Depth       `json:"depth"`
}

// StepCounters count what happened during one step.
type StepCounters struct {
	Moves     int `json:"moves"`
	Submitted int `json:"submitted"`
	Rejected  int `json:"rejected"`
	Purged    int `json:"purged"`
	Trades    int `json:"trades"`
}

// Rate returns a region's policy rate in the snapshot.
func (s ModelSnapshot) Rate(region world.RegionID) float64 {
	return s.Regions[region].Rate
}

// TrajectoryPoint is one agent's position and inventory after a step.
type TrajectoryPoint struct {
	Step      int          `json:"step"`
	Cell      world.CellID `json:"cell"`
	Inventory float64      `json:"inventory"`
}

// clone returns a deep copy so callers cannot reach the recorded series.
func (s ModelSnapshot) clone() ModelSnapshot {
	out := s
	if s.Regions != nil {
		out.Regions = make(map[world.RegionID]agents.RegionState, len(s.Regions))
		for id, r := range s.Regions {
			out.Regions[id] = r
		}
	}
	if s.Markets != nil {
		out.Markets = make(map[economy.MarketID]MarketState, len(s.Markets))
		for id, m := range s.Markets {
			m.Depth = economy.Depth{Bids: cloneLevels(m.Depth.Bids), Asks: cloneLevels(m.Depth.Asks)}
			out.Markets[id] = m
		}
	}
	if s.Population != nil {
		out.Population = make(map[world.RegionID]int, len(s.Population))
		for id, n := range s.Population {
			out.Population[id] = n
		}
	}
	if s.Agents != nil {
		out.Agents = make([]agents.State, len(s.Agents))
		copy(out.Agents, s.Agents)
	}
	return out
}

func cloneLevels(levels []economy.Level) []economy.Level {
	if levels == nil {
		return nil
	}
	out := make([]economy.Level, len(levels))
	copy(out, levels)
	return out
}
