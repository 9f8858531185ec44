// Corporate agents: move across the resource map, consume, emit FX flow.
package agents

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/talgya/abm-fx/internal/economy"
	"github.com/talgya/abm-fx/internal/world"
)

// CorporateParams configure a corporate agent.
type CorporateParams struct {
	Role        Role
	Market      economy.MarketID
	Threshold   float64 // Minimum resource advantage needed to move
	Fraction    float64 // Share of the target cell's resource requested per step
	Usage       float64 // Inventory burned per step
	Target      float64 // Inventory level with no FX need
	Sensitivity float64 // FX quantity per unit of inventory gap
	Spread      float64 // Price concession off the reference, as a fraction
}

// Corporate is a mobile agent tied to a home region.
type Corporate struct {
	id        AgentID
	region    world.RegionID
	cell      world.CellID
	inventory float64
	moves     int
	params    CorporateParams
}

// NewCorporate places a corporate on a cell.
func NewCorporate(id AgentID, region world.RegionID, cell world.CellID, inventory float64, params CorporateParams) *Corporate {
	if inventory < 0 || math.IsNaN(inventory) {
		inventory = 0
	}
	return &Corporate{id: id, region: region, cell: cell, inventory: inventory, params: params}
}

func (c *Corporate) ID() AgentID            { return c.id }
func (c *Corporate) Kind() Kind             { return KindCorporate }
func (c *Corporate) Region() world.RegionID { return c.region }
func (c *Corporate) Cell() world.CellID     { return c.cell }
func (c *Corporate) Inventory() float64     { return c.inventory }
func (c *Corporate) Moves() int             { return c.moves }
func (c *Corporate) Params() CorporateParams {
	return c.params
}

// Plan picks the cell to occupy and the resource to request from it. Only
// neighbours inside the home region are candidates; the richest wins with
// ties going to the lowest cell id, and a move needs a strict advantage
// larger than the threshold.
func (c *Corporate) Plan(ctx *StepContext) Plan {
	current := ctx.Map.ResourceAt(c.cell)
	best := world.NoCell
	bestLevel := math.Inf(-1)
	for _, n := range ctx.Map.Neighbors(c.cell) {
		if ctx.Map.RegionOf(n) != c.region {
			continue
		}
		if level := ctx.Map.ResourceAt(n); level > bestLevel {
			best, bestLevel = n, level
		}
	}

	target := c.cell
	if best != world.NoCell && bestLevel > current+c.params.Threshold {
		target = best
	}

	consume := c.params.Fraction * ctx.Map.ResourceAt(target)
	if !(consume > 0) {
		consume = 0
	}
	return Plan{Agent: c.id, Move: target, Consume: consume}
}

// Commit applies the engine's resolution of this step's plan: the agent now
// stands on target and received consumed. Usage burns afterwards.
func (c *Corporate) Commit(target world.CellID, consumed float64) {
	if target != c.cell {
		c.moves++
		c.cell = target
	}
	if consumed > 0 {
		c.inventory += consumed
	}
	c.inventory -= c.params.Usage
	if c.inventory < 0 || math.IsNaN(c.inventory) {
		c.inventory = 0
	}
}

// Intents turns the inventory gap into an FX order on the configured market.
func (c *Corporate) Intents(ctx *StepContext) []OrderIntent {
	mv, ok := ctx.Markets[c.params.Market]
	if !ok || !mv.Ref.IsPositive() {
		return nil
	}
	gap := math.Abs(c.inventory - c.params.Target)
	if !(gap > 0) || math.IsInf(gap, 0) {
		return nil
	}
	qty := mv.RoundLot(decimal.NewFromFloat(c.params.Sensitivity * gap))
	if !qty.IsPositive() {
		return nil
	}

	side := c.Side(mv)
	concession := decimal.NewFromFloat(c.params.Spread * float64(side.Sign()))
	price := mv.RoundPrice(mv.Ref.Mul(decimal.NewFromInt(1).Add(concession)))
	return []OrderIntent{{Market: mv.ID, Side: side, Price: price, Quantity: qty}}
}

// Side translates the role onto the market's orientation. Exporters buy their
// home currency and importers sell it; whether that is the base or the quote
// decides the book side.
func (c *Corporate) Side(mv *MarketView) economy.Side {
	buysHome := c.params.Role == Exporter
	homeIsBase := c.region == mv.BaseRegion
	if buysHome == homeIsBase {
		return economy.Buy
	}
	return economy.Sell
}

// State reports the corporate's position and inventory.
func (c *Corporate) State() State {
	return State{
		ID:        c.id,
		Kind:      KindCorporate,
		Region:    c.region,
		Cell:      c.cell,
		Inventory: c.inventory,
		Base:      decimal.Zero,
		Quote:     decimal.Zero,
	}
}
