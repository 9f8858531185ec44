package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/talgya/abm-fx/internal/agents"
	"github.com/talgya/abm-fx/internal/economy"
	"github.com/talgya/abm-fx/internal/world"
)

// ErrUnknownMarket is returned for queries naming a market the run does not have.
var ErrUnknownMarket = errors.New("unknown market")

// SnapshotSink receives every snapshot after it is recorded. Sinks run on the
// stepping goroutine.
type SnapshotSink interface {
	WriteSnapshot(snap ModelSnapshot) error
}

// Collector is the append-only time series of a run. Readers may query it
// while the run is still writing and see a consistent prefix.
type Collector struct {
	mu        sync.RWMutex
	snapshots []ModelSnapshot
	trades    map[economy.MarketID][]economy.Trade
	sinks     []SnapshotSink
}

// NewCollector creates an empty collector for the given markets.
func NewCollector(markets []economy.MarketID) *Collector {
	c := &Collector{trades: make(map[economy.MarketID][]economy.Trade, len(markets))}
	for _, m := range markets {
		c.trades[m] = nil
	}
	return c
}

// AddSink registers a sink for future snapshots.
func (c *Collector) AddSink(s SnapshotSink) {
	c.mu.Lock()
	c.sinks = append(c.sinks, s)
	c.mu.Unlock()
}

// Record appends a snapshot and the step's trades, then notifies sinks.
// Sink failures are logged and never stop the run.
func (c *Collector) Record(snap ModelSnapshot, trades []economy.Trade) error {
	c.mu.Lock()
	if n := len(c.snapshots); n > 0 && snap.Step <= c.snapshots[n-1].Step {
		c.mu.Unlock()
		return fmt.Errorf("record step %d: already have step %d", snap.Step, c.snapshots[n-1].Step)
	}
	snap = snap.clone()
	c.snapshots = append(c.snapshots, snap)
	for _, t := range trades {
		c.trades[t.Market] = append(c.trades[t.Market], t)
	}
	sinks := c.sinks
	c.mu.Unlock()

	for _, s := range sinks {
		if err := s.WriteSnapshot(snap.clone()); err != nil {
			slog.Warn("snapshot sink failed", "step", snap.Step, "error", err)
		}
	}
	return nil
}

// Len returns the number of recorded snapshots.
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snapshots)
}

// Snapshots returns copies of the recorded prefix in step order.
func (c *Collector) Snapshots() []ModelSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ModelSnapshot, len(c.snapshots))
	for i, s := range c.snapshots {
		out[i] = s.clone()
	}
	return out
}

// Range returns snapshots with from <= step <= to.
func (c *Collector) Range(from, to int) []ModelSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []ModelSnapshot
	for _, s := range c.snapshots {
		if s.Step >= from && s.Step <= to {
			out = append(out, s.clone())
		}
	}
	return out
}

// Latest returns the most recent snapshot.
func (c *Collector) Latest() (ModelSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.snapshots) == 0 {
		return ModelSnapshot{}, false
	}
	return c.snapshots[len(c.snapshots)-1].clone(), true
}

// Trajectory returns, for every agent with a position, its cell and
// inventory at each recorded step in [from, to].
func (c *Collector) Trajectory(from, to int) map[agents.AgentID][]TrajectoryPoint {
	out := make(map[agents.AgentID][]TrajectoryPoint)
	for _, s := range c.Range(from, to) {
		for _, a := range s.Agents {
			if a.Cell == world.NoCell {
				continue
			}
			out[a.ID] = append(out[a.ID], TrajectoryPoint{Step: s.Step, Cell: a.Cell, Inventory: a.Inventory})
		}
	}
	return out
}

// Trades returns the full trade log of one market.
func (c *Collector) Trades(market economy.MarketID) ([]economy.Trade, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	log, ok := c.trades[market]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMarket, market)
	}
	out := make([]economy.Trade, len(log))
	copy(out, log)
	return out, nil
}
