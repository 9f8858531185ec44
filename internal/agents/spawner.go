// Agent spawning: creates the initial population of every variant.
package agents

import (
	"math/rand"

	"github.com/talgya/abm-fx/internal/world"
)

// Spawner creates agents for the simulation. Ids are issued in spawn order,
// and every agent gets its own seed drawn from the spawner's stream.
type Spawner struct {
	rng    *rand.Rand
	nextID AgentID
}

// NewSpawner creates an agent spawner with the given seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{
		rng:    rand.New(rand.NewSource(seed + 300)),
		nextID: 1,
	}
}

// NextID returns the id the next agent will receive.
func (s *Spawner) NextID() AgentID {
	return s.nextID
}

func (s *Spawner) issue() AgentID {
	id := s.nextID
	s.nextID++
	return id
}

// SpawnCentralBank creates the central bank of a region.
func (s *Spawner) SpawnCentralBank(region world.RegionID, taylor TaylorParams, macro MacroParams) *CentralBank {
	return NewCentralBank(s.issue(), region, taylor, macro, s.rng.Int63())
}

// SpawnCorporates places count corporates on random cells of their region.
// Starting inventory is drawn around the configured target.
func (s *Spawner) SpawnCorporates(count int, region world.RegionID, cells []world.CellID, params CorporateParams) []*Corporate {
	if count <= 0 || len(cells) == 0 {
		return nil
	}
	out := make([]*Corporate, 0, count)
	for i := 0; i < count; i++ {
		cell := cells[s.rng.Intn(len(cells))]
		out = append(out, NewCorporate(s.issue(), region, cell, s.startingInventory(params.Target), params))
	}
	return out
}

// startingInventory is uniform in [0.75, 1.25] x target.
func (s *Spawner) startingInventory(target float64) float64 {
	return target * (0.75 + 0.5*s.rng.Float64())
}

// SpawnBanks creates count trading agents of one kind. Risk appetite varies
// between 0.5x and 1.5x the configured value.
func (s *Spawner) SpawnBanks(count int, kind Kind, region world.RegionID, params BankParams, wallet Wallet) []*Bank {
	if count <= 0 {
		return nil
	}
	out := make([]*Bank, 0, count)
	for i := 0; i < count; i++ {
		p := params
		p.Risk = params.Risk * (0.5 + s.rng.Float64())
		out = append(out, NewBank(s.issue(), kind, region, p, wallet, s.rng.Int63()))
	}
	return out
}
