// Package economy provides the interbank FX limit order book and its records.
package economy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MarketID names a market ("banks", "international").
type MarketID string

// ParticipantID identifies whoever submitted an order. The engine maps agent ids onto it.
type ParticipantID uint64

// Side is the direction of an order relative to the base currency.
type Side uint8

const (
	Buy  Side = iota // Buy base, pay quote
	Sell             // Sell base, receive quote
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// Sign returns +1 for Buy and -1 for Sell.
func (s Side) Sign() int {
	if s == Sell {
		return -1
	}
	return 1
}

// MarshalText renders the side as "buy" or "sell".
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses "buy" or "sell".
func (s *Side) UnmarshalText(b []byte) error {
	switch string(b) {
	case "buy":
		*s = Buy
	case "sell":
		*s = Sell
	default:
		return fmt.Errorf("unknown side %q", string(b))
	}
	return nil
}

// Order is a resting or incoming limit order. Everything except Remaining is
// fixed once the book accepts it.
type Order struct {
	Seq        uint64          `json:"seq"`
	Side       Side            `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Remaining  decimal.Decimal `json:"remaining"`
	Agent      ParticipantID   `json:"agent"`
	SubmitStep int             `json:"submit_step"`
}

// Filled returns the quantity matched so far.
func (o Order) Filled() decimal.Decimal {
	return o.Quantity.Sub(o.Remaining)
}

// Quote is the best bid and ask of a book. Either side may be absent.
type Quote struct {
	Bid decimal.NullDecimal `json:"bid"`
	Ask decimal.NullDecimal `json:"ask"`
}

// Mid returns the mid price when both sides exist.
func (q Quote) Mid() (decimal.Decimal, bool) {
	if !q.Bid.Valid || !q.Ask.Valid {
		return decimal.Zero, false
	}
	return q.Bid.Decimal.Add(q.Ask.Decimal).Div(decimal.NewFromInt(2)), true
}

// Level aggregates the resting quantity at one price.
type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Orders   int             `json:"orders"`
}

// Depth is an aggregated view of both sides, best prices first.
type Depth struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

// Exposure is what a participant has committed in resting orders: quote currency
// reserved by bids (remaining * limit) and base currency offered by asks.
type Exposure struct {
	BuyNotional  decimal.Decimal `json:"buy_notional"`
	SellQuantity decimal.Decimal `json:"sell_quantity"`
}
