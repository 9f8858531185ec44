package agents

import (
	"github.com/shopspring/decimal"

	"github.com/talgya/abm-fx/internal/economy"
	"github.com/talgya/abm-fx/internal/world"
)

// MapReader is the read-only view of the resource map used while planning.
type MapReader interface {
	ResourceAt(id world.CellID) float64
	Neighbors(id world.CellID) []world.CellID
	RegionOf(id world.CellID) world.RegionID
}

// MarketView is a market as seen at the start of the trading phase.
type MarketView struct {
	ID          economy.MarketID
	BaseRegion  world.RegionID // Region whose currency is the base
	QuoteRegion world.RegionID
	Ref         decimal.Decimal // Last trade, else mid, else seed price
	Tick        decimal.Decimal
	Lot         decimal.Decimal
	Exposures   map[economy.ParticipantID]economy.Exposure
}

// Exposure returns a participant's open exposure in this market.
func (v *MarketView) Exposure(id AgentID) economy.Exposure {
	if e, ok := v.Exposures[id.Participant()]; ok {
		return e
	}
	return economy.Exposure{BuyNotional: decimal.Zero, SellQuantity: decimal.Zero}
}

// RoundPrice snaps a price to the market tick, never below one tick.
func (v *MarketView) RoundPrice(p decimal.Decimal) decimal.Decimal {
	if !v.Tick.IsPositive() {
		return p
	}
	p = p.Div(v.Tick).Round(0).Mul(v.Tick)
	if p.LessThan(v.Tick) {
		return v.Tick
	}
	return p
}

// RoundLot rounds a quantity down to the lot size.
func (v *MarketView) RoundLot(q decimal.Decimal) decimal.Decimal {
	if q.IsNegative() {
		return decimal.Zero
	}
	if !v.Lot.IsPositive() {
		return q
	}
	return q.Div(v.Lot).Floor().Mul(v.Lot)
}

// StepContext is the state every agent plans against. It is built by the
// engine once per phase and shared read-only between planners.
type StepContext struct {
	Step    int
	Map     MapReader
	Regions map[world.RegionID]RegionState
	Markets map[economy.MarketID]*MarketView
}

// Rate returns a region's policy rate, 0 for unknown regions.
func (c *StepContext) Rate(id world.RegionID) float64 {
	return c.Regions[id].Rate
}
