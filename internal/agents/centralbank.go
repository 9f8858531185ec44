// Central bank policy: Taylor rule with smoothing toward the previous rate.
package agents

import (
	"math"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/talgya/abm-fx/internal/world"
)

// Rate applies the Taylor rule, smooths it toward prev and clamps the result
// into [Floor, Ceiling]. Non-finite inputs saturate instead of propagating.
func (p TaylorParams) Rate(inflation, gap, prev float64) float64 {
	if math.IsNaN(prev) || math.IsInf(prev, 0) {
		prev = p.Clamp(p.Neutral)
	}
	taylor := p.Neutral + p.A*(inflation-p.Target) + p.B*gap
	rate := p.Persistence*prev + (1-p.Persistence)*taylor
	if math.IsNaN(rate) {
		rate = prev
	}
	return p.Clamp(rate)
}

// Clamp bounds a rate to [Floor, Ceiling]. NaN maps to the floor.
func (p TaylorParams) Clamp(rate float64) float64 {
	if math.IsNaN(rate) {
		return p.Floor
	}
	if rate < p.Floor {
		return p.Floor
	}
	if rate > p.Ceiling {
		return p.Ceiling
	}
	return rate
}

// CentralBank sets its region's policy rate each step. It is the only writer
// of its RegionState.
type CentralBank struct {
	id     AgentID
	region world.RegionID
	taylor TaylorParams
	macro  MacroParams
	rng    *rand.Rand
}

// NewCentralBank creates the central bank of a region.
func NewCentralBank(id AgentID, region world.RegionID, taylor TaylorParams, macro MacroParams, seed int64) *CentralBank {
	return &CentralBank{
		id:     id,
		region: region,
		taylor: taylor,
		macro:  macro,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (cb *CentralBank) ID() AgentID            { return cb.id }
func (cb *CentralBank) Kind() Kind             { return KindCentralBank }
func (cb *CentralBank) Region() world.RegionID { return cb.region }

// Taylor returns the policy coefficients.
func (cb *CentralBank) Taylor() TaylorParams { return cb.taylor }

// Plan computes the region's next macro state and policy rate.
func (cb *CentralBank) Plan(ctx *StepContext) Plan {
	next := cb.Advance(ctx.Regions[cb.region])
	return Plan{Agent: cb.id, Move: world.NoCell, Policy: &next}
}

// State reports the central bank's row; it has no position or wallet.
func (cb *CentralBank) State() State {
	return State{ID: cb.id, Kind: KindCentralBank, Region: cb.region, Cell: world.NoCell, Base: decimal.Zero, Quote: decimal.Zero}
}

// Advance moves inflation and output gap one AR(1) step, then sets the rate.
func (cb *CentralBank) Advance(prev RegionState) RegionState {
	next := prev
	next.ID = cb.region
	m := cb.macro
	next.Inflation = ar1(prev.Inflation, m.InflationMean, m.InflationRho, m.InflationSigma, cb.rng)
	next.OutputGap = ar1(prev.OutputGap, m.GapMean, m.GapRho, m.GapSigma, cb.rng) -
		m.Transmission*(prev.Rate-cb.taylor.Neutral)
	if math.IsNaN(next.OutputGap) || math.IsInf(next.OutputGap, 0) {
		next.OutputGap = prev.OutputGap
	}
	next.Rate = cb.taylor.Rate(next.Inflation, next.OutputGap, prev.Rate)
	return next
}

// ar1 draws x' = mean + rho*(x - mean) + sigma*N(0,1). A zero sigma draws nothing.
func ar1(x, mean, rho, sigma float64, rng *rand.Rand) float64 {
	next := mean + rho*(x-mean)
	if sigma > 0 {
		next += sigma * rng.NormFloat64()
	}
	if math.IsNaN(next) || math.IsInf(next, 0) {
		return x
	}
	return next
}
