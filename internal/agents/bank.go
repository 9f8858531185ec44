// Trading agents: interest-rate-parity order flow bounded by inventory.
package agents

import (
	"errors"
	"math"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/talgya/abm-fx/internal/economy"
	"github.com/talgya/abm-fx/internal/world"
)

// BankParams configure a bank or international bank.
type BankParams struct {
	Market     economy.MarketID
	Risk       float64 // Scales conviction into order size
	Spread     float64 // Half-width of the price band around the reference
	Noise      float64 // Std dev of the belief noise added to the rate signal
	Aversion   float64 // Pull back toward a balanced wallet
	OrderScale float64 // Base units per unit of risk-weighted score
}

// Bank trades one market. The kind only distinguishes reporting.
type Bank struct {
	id     AgentID
	kind   Kind
	region world.RegionID
	params BankParams
	wallet Wallet
	rng    *rand.Rand
}

// NewBank creates a trading agent with its own random stream.
func NewBank(id AgentID, kind Kind, region world.RegionID, params BankParams, wallet Wallet, seed int64) *Bank {
	return &Bank{
		id:     id,
		kind:   kind,
		region: region,
		params: params,
		wallet: wallet,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (b *Bank) ID() AgentID            { return b.id }
func (b *Bank) Kind() Kind             { return b.kind }
func (b *Bank) Region() world.RegionID { return b.region }
func (b *Bank) Market() economy.MarketID {
	return b.params.Market
}

// Wallet returns a copy of the balances.
func (b *Bank) Wallet() Wallet { return b.wallet }

// Score is the signal behind the order: the rate differential in favour of
// the base currency, noise, and a pull toward a balanced wallet.
func (b *Bank) Score(ctx *StepContext, mv *MarketView) float64 {
	diff := ctx.Rate(mv.BaseRegion) - ctx.Rate(mv.QuoteRegion)
	share := b.wallet.BaseShare(mv.Ref)
	score := diff - b.params.Aversion*(share-0.5)
	if b.params.Noise > 0 {
		score += b.params.Noise * b.rng.NormFloat64()
	}
	return score
}

// Plan emits at most one order. Positive scores buy base, negative sell.
// Orders the wallet cannot back are scaled down to what is free.
func (b *Bank) Plan(ctx *StepContext) Plan {
	plan := Plan{Agent: b.id, Move: world.NoCell}
	mv, ok := ctx.Markets[b.params.Market]
	if !ok || !mv.Ref.IsPositive() {
		return plan
	}

	score := b.Score(ctx, mv)
	u := b.rng.Float64()
	if score == 0 || math.IsNaN(score) || math.IsInf(score, 0) {
		return plan
	}

	side := economy.Buy
	if score < 0 {
		side = economy.Sell
	}
	offset := float64(side.Sign()) * b.params.Spread * (2*u - 1)
	price := mv.RoundPrice(mv.Ref.Mul(decimal.NewFromFloat(1 + offset)))
	qty := mv.RoundLot(decimal.NewFromFloat(b.params.Risk * math.Abs(score) * b.params.OrderScale))
	if !qty.IsPositive() {
		return plan
	}

	if err := b.wallet.Fund(side, price, qty, mv.Exposure(b.id)); err != nil {
		var short *economy.InsufficientInventoryError
		if !errors.As(err, &short) {
			return plan
		}
		qty = mv.RoundLot(short.Available)
		if !qty.IsPositive() {
			return plan
		}
	}

	plan.Orders = []OrderIntent{{Market: mv.ID, Side: side, Price: price, Quantity: qty}}
	return plan
}

// Settle books a fill against the wallet.
func (b *Bank) Settle(side economy.Side, price, qty decimal.Decimal) {
	b.wallet.Apply(side, price, qty)
}

// State reports the bank's balances.
func (b *Bank) State() State {
	return State{
		ID:     b.id,
		Kind:   b.kind,
		Region: b.region,
		Cell:   world.NoCell,
		Base:   b.wallet.Base,
		Quote:  b.wallet.Quote,
	}
}
