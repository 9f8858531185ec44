package agents

import (
	"github.com/shopspring/decimal"

	"github.com/talgya/abm-fx/internal/economy"
)

// Wallet holds a trading agent's balances in the base and quote currency of
// its market.
type Wallet struct {
	Base  decimal.Decimal `json:"base"`
	Quote decimal.Decimal `json:"quote"`
}

// BaseShare is the fraction of the wallet's value held in base currency at
// price. An empty wallet counts as balanced.
func (w Wallet) BaseShare(price decimal.Decimal) float64 {
	baseValue := w.Base.Mul(price)
	total := baseValue.Add(w.Quote)
	if !total.IsPositive() {
		return 0.5
	}
	return baseValue.Div(total).InexactFloat64()
}

// Fund checks that the wallet can back an order of qty at price once the
// agent's resting exposure is set aside. Available in the error is in base
// units for both sides.
func (w Wallet) Fund(side economy.Side, price, qty decimal.Decimal, open economy.Exposure) error {
	switch side {
	case economy.Buy:
		free := w.Quote.Sub(open.BuyNotional)
		if !free.IsPositive() {
			free = decimal.Zero
		}
		if qty.Mul(price).GreaterThan(free) {
			available := decimal.Zero
			if price.IsPositive() {
				available = free.Div(price)
			}
			return &economy.InsufficientInventoryError{Side: side, Requested: qty, Available: available}
		}
	case economy.Sell:
		free := w.Base.Sub(open.SellQuantity)
		if !free.IsPositive() {
			free = decimal.Zero
		}
		if qty.GreaterThan(free) {
			return &economy.InsufficientInventoryError{Side: side, Requested: qty, Available: free}
		}
	}
	return nil
}

// Apply books one fill: a buyer receives base and pays quote, a seller the reverse.
func (w *Wallet) Apply(side economy.Side, price, qty decimal.Decimal) {
	notional := price.Mul(qty)
	if side == economy.Buy {
		w.Base = w.Base.Add(qty)
		w.Quote = w.Quote.Sub(notional)
		return
	}
	w.Base = w.Base.Sub(qty)
	w.Quote = w.Quote.Add(notional)
}
