package economy

import "github.com/shopspring/decimal"

// Trade is one fill between a resting bid and a resting ask.
type Trade struct {
	Market   MarketID        `json:"market"`
	Step     int             `json:"step"`
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Buyer    ParticipantID   `json:"buyer"`
	Seller   ParticipantID   `json:"seller"`
	BuySeq   uint64          `json:"buy_seq"`
	SellSeq  uint64          `json:"sell_seq"`
}

// Notional returns price * quantity in quote currency.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

// SelfTrade reports whether both sides belong to the same participant.
func (t Trade) SelfTrade() bool {
	return t.Buyer == t.Seller
}

// Volume sums the quantity of a batch of trades.
func Volume(trades []Trade) decimal.Decimal {
	total := decimal.Zero
	for _, t := range trades {
		total = total.Add(t.Quantity)
	}
	return total
}
