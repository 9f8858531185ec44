package agents

import "github.com/talgya/abm-fx/internal/world"

// RegionState is the macro state of one region. Rates are in percent
// (-1.0 means -1%).
type RegionState struct {
	ID        world.RegionID `json:"id"`
	Currency  string         `json:"currency"`
	Inflation float64        `json:"inflation"`
	OutputGap float64        `json:"output_gap"`
	Rate      float64        `json:"rate"`
}

// TaylorParams are the policy coefficients of one region.
type TaylorParams struct {
	Neutral     float64 // Neutral nominal rate
	Target      float64 // Inflation target
	A           float64 // Weight on the inflation deviation
	B           float64 // Weight on the output gap
	Persistence float64 // Weight on the previous rate, in [0, 1]
	Floor       float64
	Ceiling     float64
}

// MacroParams drive the AR(1) process for inflation and output gap.
type MacroParams struct {
	InflationMean  float64
	InflationRho   float64
	InflationSigma float64
	GapMean        float64
	GapRho         float64
	GapSigma       float64
	Transmission   float64 // Gap response to last step's rate above neutral
}
