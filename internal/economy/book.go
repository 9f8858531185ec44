// Limit order book: price-time priority matching for one market.
package economy

import (
	"fmt"
	"sort"

	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

// PriceRule decides the execution price of a crossing pair.
type PriceRule uint8

const (
	PriceMaker    PriceRule = iota // Earlier-sequenced order's limit
	PriceMidpoint                  // Mean of both limits, rounded to the tick
)

// ParsePriceRule maps a config string onto a PriceRule. Empty means maker.
func ParsePriceRule(s string) (PriceRule, error) {
	switch s {
	case "", "maker":
		return PriceMaker, nil
	case "midpoint":
		return PriceMidpoint, nil
	default:
		return PriceMaker, fmt.Errorf("unknown price rule %q", s)
	}
}

// BookConfig configures a single market's book.
type BookConfig struct {
	Market    MarketID
	TickSize  decimal.Decimal // Rounding grid for midpoint prices; zero disables rounding
	TTL       int             // Steps an order may rest before it is purged; 0 = never
	PriceRule PriceRule
}

// bookKey orders the index; the arena holds the mutable order.
type bookKey struct {
	price decimal.Decimal
	seq   uint64
}

// Book is a per-market limit order book. It is not safe for concurrent use;
// the engine treats each market's submit/match pass as a critical section.
type Book struct {
	cfg BookConfig

	bids *btree.BTreeG[bookKey] // price desc, seq asc
	asks *btree.BTreeG[bookKey] // price asc, seq asc

	orders   map[uint64]*Order
	exposure map[ParticipantID]*Exposure

	nextSeq uint64
	trades  []Trade
	last    decimal.NullDecimal
}

// NewBook creates an empty book.
func NewBook(cfg BookConfig) *Book {
	return &Book{
		cfg: cfg,
		bids: btree.NewG(32, func(a, b bookKey) bool {
			if c := a.price.Cmp(b.price); c != 0 {
				return c > 0
			}
			return a.seq < b.seq
		}),
		asks: btree.NewG(32, func(a, b bookKey) bool {
			if c := a.price.Cmp(b.price); c != 0 {
				return c < 0
			}
			return a.seq < b.seq
		}),
		orders:   make(map[uint64]*Order),
		exposure: make(map[ParticipantID]*Exposure),
	}
}

// Market returns the market this book serves.
func (b *Book) Market() MarketID {
	return b.cfg.Market
}

// Submit assigns the next sequence number and queues the order. Price and
// quantity must be positive. The accepted order is returned.
func (b *Book) Submit(o Order) (Order, error) {
	if o.Side != Buy && o.Side != Sell {
		return Order{}, fmt.Errorf("%w: side %d", ErrInvalidOrder, o.Side)
	}
	if !o.Price.IsPositive() {
		return Order{}, fmt.Errorf("%w: price %s", ErrInvalidOrder, o.Price.String())
	}
	if !o.Quantity.IsPositive() {
		return Order{}, fmt.Errorf("%w: quantity %s", ErrInvalidOrder, o.Quantity.String())
	}

	b.nextSeq++
	o.Seq = b.nextSeq
	o.Remaining = o.Quantity

	stored := o
	b.orders[o.Seq] = &stored
	b.side(o.Side).ReplaceOrInsert(bookKey{price: o.Price, seq: o.Seq})
	b.addExposure(&stored, o.Remaining)
	return o, nil
}

// Match resolves every crossing pair at the best prices and returns the trades
// produced by this pass, in execution order.
func (b *Book) Match(step int) ([]Trade, error) {
	var out []Trade
	for {
		bk, okBid := b.bids.Min()
		ak, okAsk := b.asks.Min()
		if !okBid || !okAsk || bk.price.LessThan(ak.price) {
			break
		}

		bid := b.orders[bk.seq]
		ask := b.orders[ak.seq]
		qty := decimal.Min(bid.Remaining, ask.Remaining)
		if !qty.IsPositive() {
			return out, fmt.Errorf("market %s: non-positive fill between orders %d and %d", b.cfg.Market, bid.Seq, ask.Seq)
		}

		t := Trade{
			Market:   b.cfg.Market,
			Step:     step,
			Price:    b.tradePrice(bid, ask),
			Quantity: qty,
			Buyer:    bid.Agent,
			Seller:   ask.Agent,
			BuySeq:   bid.Seq,
			SellSeq:  ask.Seq,
		}

		b.fill(bid, qty)
		b.fill(ask, qty)
		b.trades = append(b.trades, t)
		b.last = decimal.NewNullDecimal(t.Price)
		out = append(out, t)
	}

	q := b.BestQuote()
	if q.Bid.Valid && q.Ask.Valid && !q.Bid.Decimal.LessThan(q.Ask.Decimal) {
		return out, &CrossedBookError{Market: b.cfg.Market, Bid: q.Bid.Decimal, Ask: q.Ask.Decimal, Step: step}
	}
	return out, nil
}

func (b *Book) tradePrice(bid, ask *Order) decimal.Decimal {
	if b.cfg.PriceRule == PriceMidpoint {
		mid := bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2))
		if b.cfg.TickSize.IsPositive() {
			mid = mid.Div(b.cfg.TickSize).Round(0).Mul(b.cfg.TickSize)
		}
		// Rounding must never leave the crossing interval.
		if mid.GreaterThan(bid.Price) {
			mid = bid.Price
		}
		if mid.LessThan(ask.Price) {
			mid = ask.Price
		}
		return mid
	}
	if bid.Seq < ask.Seq {
		return bid.Price
	}
	return ask.Price
}

// fill decrements an order and drops it once nothing remains.
func (b *Book) fill(o *Order, qty decimal.Decimal) {
	o.Remaining = o.Remaining.Sub(qty)
	b.addExposure(o, qty.Neg())
	if !o.Remaining.IsPositive() {
		b.remove(o)
	}
}

func (b *Book) remove(o *Order) {
	b.side(o.Side).Delete(bookKey{price: o.Price, seq: o.Seq})
	delete(b.orders, o.Seq)
}

func (b *Book) side(s Side) *btree.BTreeG[bookKey] {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) addExposure(o *Order, qty decimal.Decimal) {
	e, ok := b.exposure[o.Agent]
	if !ok {
		e = &Exposure{}
		b.exposure[o.Agent] = e
	}
	if o.Side == Buy {
		e.BuyNotional = e.BuyNotional.Add(qty.Mul(o.Price))
	} else {
		e.SellQuantity = e.SellQuantity.Add(qty)
	}
	if e.BuyNotional.IsZero() && e.SellQuantity.IsZero() {
		delete(b.exposure, o.Agent)
	}
}

// PurgeExpired removes orders that have rested for at least TTL steps and
// returns them in sequence order.
func (b *Book) PurgeExpired(step int) []Order {
	if b.cfg.TTL <= 0 {
		return nil
	}
	var stale []*Order
	for _, o := range b.orders {
		if step-o.SubmitStep >= b.cfg.TTL {
			stale = append(stale, o)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].Seq < stale[j].Seq })

	out := make([]Order, 0, len(stale))
	for _, o := range stale {
		b.addExposure(o, o.Remaining.Neg())
		b.remove(o)
		out = append(out, *o)
	}
	return out
}

// BestQuote returns the best bid and ask. It does not modify the book.
func (b *Book) BestQuote() Quote {
	var q Quote
	if k, ok := b.bids.Min(); ok {
		q.Bid = decimal.NewNullDecimal(k.price)
	}
	if k, ok := b.asks.Min(); ok {
		q.Ask = decimal.NewNullDecimal(k.price)
	}
	return q
}

// LastPrice returns the most recent trade price, if any.
func (b *Book) LastPrice() decimal.NullDecimal {
	return b.last
}

// Trades returns a copy of the full trade log.
func (b *Book) Trades() []Trade {
	out := make([]Trade, len(b.trades))
	copy(out, b.trades)
	return out
}

// Len returns the number of resting orders.
func (b *Book) Len() int {
	return len(b.orders)
}

// Orders returns copies of the resting orders on one side in priority order.
func (b *Book) Orders(s Side) []Order {
	out := make([]Order, 0, b.side(s).Len())
	b.side(s).Ascend(func(k bookKey) bool {
		out = append(out, *b.orders[k.seq])
		return true
	})
	return out
}

// Depth aggregates up to levels price levels per side (levels <= 0 means all).
func (b *Book) Depth(levels int) Depth {
	return Depth{
		Bids: b.levels(b.bids, levels),
		Asks: b.levels(b.asks, levels),
	}
}

func (b *Book) levels(tree *btree.BTreeG[bookKey], limit int) []Level {
	var out []Level
	tree.Ascend(func(k bookKey) bool {
		o := b.orders[k.seq]
		if n := len(out); n > 0 && out[n-1].Price.Equal(k.price) {
			out[n-1].Quantity = out[n-1].Quantity.Add(o.Remaining)
			out[n-1].Orders++
			return true
		}
		if limit > 0 && len(out) == limit {
			return false
		}
		out = append(out, Level{Price: k.price, Quantity: o.Remaining, Orders: 1})
		return true
	})
	return out
}

// RestingVolume returns the total remaining quantity on each side.
func (b *Book) RestingVolume() (bids, asks decimal.Decimal) {
	bids, asks = decimal.Zero, decimal.Zero
	for _, o := range b.orders {
		if o.Side == Buy {
			bids = bids.Add(o.Remaining)
		} else {
			asks = asks.Add(o.Remaining)
		}
	}
	return bids, asks
}

// Exposure returns what a participant has committed in resting orders.
func (b *Book) Exposure(p ParticipantID) Exposure {
	if e, ok := b.exposure[p]; ok {
		return *e
	}
	return Exposure{BuyNotional: decimal.Zero, SellQuantity: decimal.Zero}
}

// Exposures returns a copy of every participant's open exposure.
func (b *Book) Exposures() map[ParticipantID]Exposure {
	out := make(map[ParticipantID]Exposure, len(b.exposure))
	for p, e := range b.exposure {
		out[p] = *e
	}
	return out
}
