package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/abm-fx/internal/agents"
	"github.com/talgya/abm-fx/internal/config"
	"github.com/talgya/abm-fx/internal/economy"
	"github.com/talgya/abm-fx/internal/world"
)

// RunHandle owns one simulation run and answers queries about it. Queries
// are safe while Run executes on another goroutine.
type RunHandle struct {
	id      uuid.UUID
	cfg     config.Config
	created time.Time

	mu        sync.RWMutex // Guards sim between steps
	sim       *Simulation
	engine    *Engine
	collector *Collector
	logEvery  int
}

// NewRun validates cfg and builds a run that has not stepped yet.
func NewRun(cfg config.Config) (*RunHandle, error) {
	sim, err := Build(cfg)
	if err != nil {
		return nil, err
	}

	ids := make([]economy.MarketID, 0, len(sim.Markets()))
	for _, m := range sim.Markets() {
		ids = append(ids, m.ID)
	}
	h := &RunHandle{
		id:        uuid.New(),
		cfg:       cfg,
		created:   time.Now().UTC(),
		sim:       sim,
		engine:    NewEngine(),
		collector: NewCollector(ids),
		logEvery:  cfg.LogEvery,
	}
	h.engine.Interval = cfg.Interval()
	h.engine.OnStep = h.step

	slog.Info("run created", "run", h.id.String(), "cells", sim.WorldMap.CellCount(),
		"corporates", len(sim.Corporates()), "banks", len(sim.Banks()), "markets", len(ids))
	return h, nil
}

// RunModel builds a run and steps it to completion. On a mid-run failure the
// handle is returned together with the error so the recorded prefix stays
// inspectable.
func RunModel(ctx context.Context, steps int, cfg config.Config) (*RunHandle, error) {
	if steps < 0 {
		return nil, &config.ConfigurationError{Field: "steps", Reason: fmt.Sprintf("must not be negative, got %d", steps)}
	}
	h, err := NewRun(cfg)
	if err != nil {
		return nil, err
	}
	if err := h.Run(ctx, steps); err != nil {
		return h, err
	}
	return h, nil
}

// Run advances the model by steps more steps.
func (h *RunHandle) Run(ctx context.Context, steps int) error {
	if steps < 0 {
		return &config.ConfigurationError{Field: "steps", Reason: fmt.Sprintf("must not be negative, got %d", steps)}
	}
	return h.engine.Run(ctx, steps)
}

func (h *RunHandle) step(ctx context.Context, step int) error {
	h.mu.Lock()
	err := h.sim.Step(ctx, step)
	var snap ModelSnapshot
	var trades []economy.Trade
	if err == nil {
		snap = h.sim.Snapshot()
		trades = h.sim.StepTrades()
	}
	h.mu.Unlock()
	if err != nil {
		return err
	}

	if err := h.collector.Record(snap, trades); err != nil {
		return err
	}
	if h.logEvery > 0 && step%h.logEvery == 0 {
		h.sim.LogProgress(snap)
	}
	return nil
}

// ID returns the run's unique id.
func (h *RunHandle) ID() string { return h.id.String() }

// Created returns when the run was built.
func (h *RunHandle) Created() time.Time { return h.created }

// Config returns the configuration the run was built from.
func (h *RunHandle) Config() config.Config { return h.cfg }

// Collector exposes the underlying time series, e.g. to attach sinks.
func (h *RunHandle) Collector() *Collector { return h.collector }

// Steps returns the number of completed steps.
func (h *RunHandle) Steps() int { return h.collector.Len() }

// Snapshots returns every recorded snapshot in step order.
func (h *RunHandle) Snapshots() []ModelSnapshot { return h.collector.Snapshots() }

// Trajectory returns per-agent (cell, inventory) sequences for steps in [from, to].
func (h *RunHandle) Trajectory(from, to int) map[agents.AgentID][]TrajectoryPoint {
	return h.collector.Trajectory(from, to)
}

// Trades returns a market's trade log in execution order.
func (h *RunHandle) Trades(market economy.MarketID) ([]economy.Trade, error) {
	return h.collector.Trades(market)
}

// Markets returns the market ids in matching order.
func (h *RunHandle) Markets() []economy.MarketID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]economy.MarketID, 0, len(h.sim.Markets()))
	for _, m := range h.sim.Markets() {
		ids = append(ids, m.ID)
	}
	return ids
}

// Depth aggregates the live book of a market.
func (h *RunHandle) Depth(market economy.MarketID, levels int) (economy.Depth, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	m, ok := h.sim.Market(market)
	if !ok {
		return economy.Depth{}, fmt.Errorf("%w: %q", ErrUnknownMarket, market)
	}
	return m.Book.Depth(levels), nil
}

// Map returns a copy of every cell with its current resource level.
func (h *RunHandle) Map() []world.Cell {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sim.WorldMap.Cells()
}

// Regions returns the current macro state of every region.
func (h *RunHandle) Regions() map[world.RegionID]agents.RegionState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sim.Regions()
}
