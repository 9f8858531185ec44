package economy

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidOrder is returned by Submit for orders with a bad side, price or quantity.
var ErrInvalidOrder = errors.New("invalid order")

// InsufficientInventoryError reports an order larger than the funds backing it.
// Agents recover from it by shrinking the order to Available.
type InsufficientInventoryError struct {
	Side      Side
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for %s: requested %s, available %s",
		e.Side, e.Requested.String(), e.Available.String())
}

// CrossedBookError means a matching pass left best bid >= best ask. Matching
// makes this unreachable, so seeing it is a bug in the engine.
type CrossedBookError struct {
	Market MarketID
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	Step   int
}

func (e *CrossedBookError) Error() string {
	return fmt.Sprintf("market %s crossed after matching at step %d: bid %s >= ask %s",
		e.Market, e.Step, e.Bid.String(), e.Ask.String())
}
