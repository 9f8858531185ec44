// Simulation ties together the map, the agents and the order books and runs
// them through a fixed phase order each step.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/abm-fx/internal/agents"
	"github.com/talgya/abm-fx/internal/economy"
	"github.com/talgya/abm-fx/internal/world"
)

// Market is a book plus the static facts agents need about it.
type Market struct {
	ID          economy.MarketID
	BaseRegion  world.RegionID
	QuoteRegion world.RegionID
	SeedPrice   decimal.Decimal
	Tick        decimal.Decimal
	Lot         decimal.Decimal
	Book        *economy.Book
}

// ref is the price agents anchor on: last trade, else mid, else seed.
func (m *Market) ref() decimal.Decimal {
	if last := m.Book.LastPrice(); last.Valid {
		return last.Decimal
	}
	if mid, ok := m.Book.BestQuote().Mid(); ok {
		return mid
	}
	return m.SeedPrice
}

// Simulation holds the complete model state. It is driven by a single
// goroutine; only the plan phases fan out.
type Simulation struct {
	WorldMap *world.Map
	LastStep int

	regions     map[world.RegionID]agents.RegionState
	regionOrder []world.RegionID

	centralBanks []*agents.CentralBank
	corporates   []*agents.Corporate // Ascending id
	banks        []*agents.Bank      // Ascending id
	bankIndex    map[economy.ParticipantID]*agents.Bank

	markets     []*Market // Config order; matched in this order
	marketIndex map[economy.MarketID]*Market

	workers     int
	depthLevels int

	counters   StepCounters
	stepTrades []economy.Trade
}

// NewSimulation wires generated components together. Regions must hold the
// initial macro state of every region in regionOrder.
func NewSimulation(m *world.Map, regions []agents.RegionState, cbs []*agents.CentralBank,
	corps []*agents.Corporate, banks []*agents.Bank, markets []*Market) *Simulation {

	s := &Simulation{
		WorldMap:     m,
		regions:      make(map[world.RegionID]agents.RegionState, len(regions)),
		centralBanks: cbs,
		corporates:   corps,
		banks:        banks,
		bankIndex:    make(map[economy.ParticipantID]*agents.Bank, len(banks)),
		markets:      markets,
		marketIndex:  make(map[economy.MarketID]*Market, len(markets)),
		workers:      runtime.GOMAXPROCS(0),
		depthLevels:  10,
	}
	for _, r := range regions {
		s.regions[r.ID] = r
		s.regionOrder = append(s.regionOrder, r.ID)
	}
	sort.Slice(s.corporates, func(i, j int) bool { return s.corporates[i].ID() < s.corporates[j].ID() })
	sort.Slice(s.banks, func(i, j int) bool { return s.banks[i].ID() < s.banks[j].ID() })
	for _, b := range s.banks {
		s.bankIndex[b.ID().Participant()] = b
	}
	for _, mk := range markets {
		s.marketIndex[mk.ID] = mk
	}
	return s
}

// SetWorkers caps plan-phase parallelism; n <= 0 means GOMAXPROCS.
func (s *Simulation) SetWorkers(n int) {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	s.workers = n
}

// SetDepthLevels sets how many book levels per side snapshots keep.
func (s *Simulation) SetDepthLevels(n int) {
	s.depthLevels = n
}

// Market returns a market by id.
func (s *Simulation) Market(id economy.MarketID) (*Market, bool) {
	m, ok := s.marketIndex[id]
	return m, ok
}

// Markets returns the markets in matching order.
func (s *Simulation) Markets() []*Market {
	return s.markets
}

// Regions returns a copy of the current macro state.
func (s *Simulation) Regions() map[world.RegionID]agents.RegionState {
	out := make(map[world.RegionID]agents.RegionState, len(s.regions))
	for id, r := range s.regions {
		out[id] = r
	}
	return out
}

// RegionOrder returns region ids in configuration order.
func (s *Simulation) RegionOrder() []world.RegionID {
	return s.regionOrder
}

// Corporates returns the corporate agents in id order.
func (s *Simulation) Corporates() []*agents.Corporate {
	return s.corporates
}

// Banks returns the trading agents in id order.
func (s *Simulation) Banks() []*agents.Bank {
	return s.banks
}

// StepTrades returns the trades produced by the last step.
func (s *Simulation) StepTrades() []economy.Trade {
	return s.stepTrades
}

// context builds the read-only view planners share. Exposures are copied so
// later submissions never leak into a plan.
func (s *Simulation) context(step int) *agents.StepContext {
	views := make(map[economy.MarketID]*agents.MarketView, len(s.markets))
	for _, m := range s.markets {
		views[m.ID] = &agents.MarketView{
			ID:          m.ID,
			BaseRegion:  m.BaseRegion,
			QuoteRegion: m.QuoteRegion,
			Ref:         m.ref(),
			Tick:        m.Tick,
			Lot:         m.Lot,
			Exposures:   m.Book.Exposures(),
		}
	}
	return &agents.StepContext{
		Step:    step,
		Map:     s.WorldMap,
		Regions: s.Regions(),
		Markets: views,
	}
}

// Step advances the model by one step:
// central banks, order expiry, corporates, trading agents, submission,
// matching, settlement.
func (s *Simulation) Step(ctx context.Context, step int) error {
	s.counters = StepCounters{}
	s.stepTrades = nil

	// Policy first so every other agent reacts to this step's rates.
	policy := s.context(step)
	for _, cb := range s.centralBanks {
		if plan := cb.Plan(policy); plan.Policy != nil {
			s.regions[cb.Region()] = *plan.Policy
		}
	}

	for _, m := range s.markets {
		s.counters.Purged += len(m.Book.PurgeExpired(step))
	}

	sc := s.context(step)
	plans, err := planAll(ctx, s.workers, sc, s.corporates)
	if err != nil {
		return fmt.Errorf("plan corporates: %w", err)
	}
	var intents []submission
	for i, c := range s.corporates {
		intents = append(intents, s.commitCorporate(sc, c, plans[i])...)
	}
	s.WorldMap.Replenish()

	bankPlans, err := planAll(ctx, s.workers, sc, s.banks)
	if err != nil {
		return fmt.Errorf("plan banks: %w", err)
	}
	for _, p := range bankPlans {
		for _, o := range p.Orders {
			intents = append(intents, submission{agent: p.Agent, intent: o})
		}
	}

	s.submit(step, intents)
	if err := s.match(step); err != nil {
		return err
	}
	s.LastStep = step
	return nil
}

type submission struct {
	agent  agents.AgentID
	intent agents.OrderIntent
}

// planAll runs Plan for every agent on a bounded errgroup. Each goroutine
// writes only its own slot.
func planAll[A agents.Agent](ctx context.Context, workers int, sc *agents.StepContext, list []A) ([]agents.Plan, error) {
	plans := make([]agents.Plan, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, a := range list {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			plans[i] = a.Plan(sc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return plans, nil
}

// commitCorporate resolves a corporate's plan against the live map and
// returns the FX orders it wants after consuming.
func (s *Simulation) commitCorporate(sc *agents.StepContext, c *agents.Corporate, p agents.Plan) []submission {
	target := p.Move
	if !s.WorldMap.Valid(target) || s.WorldMap.RegionOf(target) != c.Region() {
		target = c.Cell()
	}
	consumed := s.WorldMap.ApplyConsumption(target, p.Consume)
	if target != c.Cell() {
		s.WorldMap.Occupy(world.OccupantID(c.ID()), c.Cell(), target)
		s.counters.Moves++
	}
	c.Commit(target, consumed)

	var out []submission
	for _, o := range c.Intents(sc) {
		out = append(out, submission{agent: c.ID(), intent: o})
	}
	return out
}

// submit queues every intent in agent-id order so sequence numbers do not
// depend on scheduling.
func (s *Simulation) submit(step int, intents []submission) {
	sort.SliceStable(intents, func(i, j int) bool { return intents[i].agent < intents[j].agent })
	for _, sub := range intents {
		m, ok := s.marketIndex[sub.intent.Market]
		if !ok {
			s.counters.Rejected++
			continue
		}
		_, err := m.Book.Submit(economy.Order{
			Side:       sub.intent.Side,
			Price:      sub.intent.Price,
			Quantity:   sub.intent.Quantity,
			Agent:      sub.agent.Participant(),
			SubmitStep: step,
		})
		if err != nil {
			slog.Debug("order rejected", "step", step, "agent", sub.agent, "market", sub.intent.Market, "error", err)
			s.counters.Rejected++
			continue
		}
		s.counters.Submitted++
	}
}

// match runs each book's matching pass and settles fills onto bank wallets.
// Corporates carry no wallet; their fills are recorded only.
func (s *Simulation) match(step int) error {
	for _, m := range s.markets {
		trades, err := m.Book.Match(step)
		var crossed *economy.CrossedBookError
		if errors.As(err, &crossed) {
			slog.Error("crossed book after matching", "market", m.ID, "step", step,
				"bid", crossed.Bid.String(), "ask", crossed.Ask.String())
			return fmt.Errorf("match %s: %w", m.ID, err)
		}
		if err != nil {
			return fmt.Errorf("match %s: %w", m.ID, err)
		}
		for _, t := range trades {
			if b, ok := s.bankIndex[t.Buyer]; ok {
				b.Settle(economy.Buy, t.Price, t.Quantity)
			}
			if b, ok := s.bankIndex[t.Seller]; ok {
				b.Settle(economy.Sell, t.Price, t.Quantity)
			}
		}
		s.counters.Trades += len(trades)
		s.stepTrades = append(s.stepTrades, trades...)
	}
	return nil
}

// Snapshot captures the model after the last step.
func (s *Simulation) Snapshot() ModelSnapshot {
	snap := ModelSnapshot{
		Step:          s.LastStep,
		Regions:       s.Regions(),
		Markets:       make(map[economy.MarketID]MarketState, len(s.markets)),
		Population:    make(map[world.RegionID]int, len(s.regionOrder)),
		TotalResource: s.WorldMap.TotalResource(),
		MeanResource:  s.WorldMap.MeanResource(),
		Counters:      s.counters,
	}

	perMarket := make(map[economy.MarketID][]economy.Trade)
	for _, t := range s.stepTrades {
		perMarket[t.Market] = append(perMarket[t.Market], t)
	}
	for _, m := range s.markets {
		q := m.Book.BestQuote()
		bids, asks := m.Book.RestingVolume()
		snap.Markets[m.ID] = MarketState{
			BestBid:   q.Bid,
			BestAsk:   q.Ask,
			LastPrice: m.Book.LastPrice(),
			Volume:    economy.Volume(perMarket[m.ID]),
			Trades:    len(perMarket[m.ID]),
			BidVolume: bids,
			AskVolume: asks,
			Resting:   m.Book.Len(),
			Depth:     m.Book.Depth(s.depthLevels),
		}
	}

	for _, id := range s.regionOrder {
		snap.Population[id] = 0
	}
	snap.Agents = make([]agents.State, 0, len(s.centralBanks)+len(s.corporates)+len(s.banks))
	for _, cb := range s.centralBanks {
		snap.Agents = append(snap.Agents, cb.State())
	}
	for _, c := range s.corporates {
		snap.Population[s.WorldMap.RegionOf(c.Cell())]++
		snap.Agents = append(snap.Agents, c.State())
	}
	for _, b := range s.banks {
		snap.Agents = append(snap.Agents, b.State())
	}
	return snap
}

// LogProgress writes a one-line summary of the last step.
func (s *Simulation) LogProgress(snap ModelSnapshot) {
	attrs := []any{"step", snap.Step, "moves", snap.Counters.Moves, "trades", snap.Counters.Trades,
		"mean_resource", fmt.Sprintf("%.3f", snap.MeanResource)}
	for _, id := range s.regionOrder {
		attrs = append(attrs, string(id)+"_rate", fmt.Sprintf("%.3f", snap.Rate(id)))
	}
	for _, m := range s.markets {
		if last := snap.Markets[m.ID].LastPrice; last.Valid {
			attrs = append(attrs, string(m.ID)+"_last", last.Decimal.StringFixed(2))
		}
	}
	slog.Info("step summary", attrs...)
}
