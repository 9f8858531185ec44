// Package agents provides the central bank, corporate and trading agents and
// the per-step context they plan against.
package agents

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/talgya/abm-fx/internal/economy"
	"github.com/talgya/abm-fx/internal/world"
)

// AgentID is a unique identifier for an agent.
type AgentID uint64

// Participant maps the agent onto its order book identity.
func (id AgentID) Participant() economy.ParticipantID {
	return economy.ParticipantID(id)
}

// Kind tags the agent variant.
type Kind uint8

const (
	KindCentralBank Kind = iota
	KindCorporate
	KindBank
	KindInternationalBank
)

var kindNames = [...]string{"central_bank", "corporate", "bank", "international_bank"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// MarshalText renders the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	for i, name := range kindNames {
		if name == string(b) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown agent kind %q", string(b))
}

// Role fixes which way a corporate's FX flow runs.
type Role uint8

const (
	Importer Role = iota // Pays foreign suppliers: sells home currency
	Exporter             // Earns foreign currency: buys home currency
)

func (r Role) String() string {
	if r == Exporter {
		return "exporter"
	}
	return "importer"
}

// ParseRole maps a config string onto a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "importer":
		return Importer, nil
	case "exporter":
		return Exporter, nil
	default:
		return Importer, fmt.Errorf("unknown corporate role %q", s)
	}
}

// Agent is the step-update capability shared by every variant. Plan reads only
// the context and the agent's own state; the engine commits the result.
type Agent interface {
	ID() AgentID
	Kind() Kind
	Region() world.RegionID
	Plan(ctx *StepContext) Plan
	State() State
}

// State is one agent's row in a snapshot.
type State struct {
	ID        AgentID         `json:"id"`
	Kind      Kind            `json:"kind"`
	Region    world.RegionID  `json:"region"`
	Cell      world.CellID    `json:"cell"`      // NoCell for agents without a position
	Inventory float64         `json:"inventory"` // Resource units, corporates only
	Base      decimal.Decimal `json:"base"`      // Wallet balances, trading agents only
	Quote     decimal.Decimal `json:"quote"`
}

// OrderIntent is an order an agent wants submitted this step.
type OrderIntent struct {
	Market   economy.MarketID
	Side     economy.Side
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Plan is what one agent decided for one step.
type Plan struct {
	Agent   AgentID
	Move    world.CellID // Target cell; NoCell when the agent has no position
	Consume float64      // Resource requested from the target cell
	Orders  []OrderIntent
	Policy  *RegionState // Next region state, central banks only
}
