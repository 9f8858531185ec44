package economy

import (
	"errors"
	"math/rand"
	"testing"
	"testing/quick"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestBook(ttl int) *Book {
	return NewBook(BookConfig{Market: "banks", TickSize: d("0.01"), TTL: ttl})
}

func submit(t *testing.T, b *Book, side Side, price, qty string, agent ParticipantID, step int) Order {
	t.Helper()
	o, err := b.Submit(Order{Side: side, Price: d(price), Quantity: d(qty), Agent: agent, SubmitStep: step})
	require.NoError(t, err)
	return o
}

func TestMatchBidThenCrossingAsk(t *testing.T) {
	b := newTestBook(0)
	bid := submit(t, b, Buy, "100", "5", 1, 1)
	ask := submit(t, b, Sell, "99", "3", 2, 1)
	require.Equal(t, uint64(1), bid.Seq)
	require.Equal(t, uint64(2), ask.Seq)

	trades, err := b.Match(1)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(d("100")), "maker price, got %s", trades[0].Price)
	assert.True(t, trades[0].Quantity.Equal(d("3")))
	assert.Equal(t, ParticipantID(1), trades[0].Buyer)
	assert.Equal(t, ParticipantID(2), trades[0].Seller)

	bids := b.Orders(Buy)
	require.Len(t, bids, 1)
	assert.True(t, bids[0].Remaining.Equal(d("2")))
	assert.Empty(t, b.Orders(Sell))

	q := b.BestQuote()
	assert.True(t, q.Bid.Valid)
	assert.False(t, q.Ask.Valid)
	assert.True(t, b.LastPrice().Valid)
	assert.True(t, b.LastPrice().Decimal.Equal(d("100")))
}

func TestMatchAskMakerPrice(t *testing.T) {
	b := newTestBook(0)
	submit(t, b, Sell, "99", "3", 2, 1)
	submit(t, b, Buy, "100", "5", 1, 1)

	trades, err := b.Match(1)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(d("99")))
}

func TestPriceTimePriority(t *testing.T) {
	b := newTestBook(0)
	first := submit(t, b, Sell, "101", "2", 10, 1)
	second := submit(t, b, Sell, "101", "2", 11, 1)
	submit(t, b, Sell, "100.5", "1", 12, 1)
	submit(t, b, Buy, "101", "4", 20, 1)

	trades, err := b.Match(1)
	require.NoError(t, err)
	require.Len(t, trades, 3)

	// Better price first, then the earlier of the equal-priced asks.
	assert.Equal(t, ParticipantID(12), trades[0].Seller)
	assert.Equal(t, first.Seq, trades[1].SellSeq)
	assert.True(t, trades[1].Quantity.Equal(d("2")))
	assert.Equal(t, second.Seq, trades[2].SellSeq)
	assert.True(t, trades[2].Quantity.Equal(d("1")))

	asks := b.Orders(Sell)
	require.Len(t, asks, 1)
	assert.Equal(t, second.Seq, asks[0].Seq)
	assert.True(t, asks[0].Remaining.Equal(d("1")))
}

func TestBestQuoteIdempotent(t *testing.T) {
	b := newTestBook(0)
	assert.Equal(t, b.BestQuote(), b.BestQuote())
	submit(t, b, Buy, "99", "1", 1, 1)
	submit(t, b, Sell, "101", "1", 2, 1)

	first := b.BestQuote()
	second := b.BestQuote()
	assert.Equal(t, first, second)
	assert.True(t, first.Bid.Decimal.Equal(d("99")))
	assert.True(t, first.Ask.Decimal.Equal(d("101")))

	mid, ok := first.Mid()
	require.True(t, ok)
	assert.True(t, mid.Equal(d("100")))
}

func TestEmptyBookHasNoQuote(t *testing.T) {
	b := newTestBook(0)
	q := b.BestQuote()
	assert.False(t, q.Bid.Valid)
	assert.False(t, q.Ask.Valid)
	_, ok := q.Mid()
	assert.False(t, ok)

	trades, err := b.Match(1)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.False(t, b.LastPrice().Valid)
}

func TestSelfTradeAllowed(t *testing.T) {
	b := newTestBook(0)
	submit(t, b, Buy, "100", "1", 7, 1)
	submit(t, b, Sell, "100", "1", 7, 1)

	trades, err := b.Match(1)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].SelfTrade())
	assert.Equal(t, 0, b.Len())
}

func TestSubmitRejectsInvalid(t *testing.T) {
	b := newTestBook(0)
	cases := []Order{
		{Side: Buy, Price: d("0"), Quantity: d("1")},
		{Side: Buy, Price: d("-1"), Quantity: d("1")},
		{Side: Sell, Price: d("1"), Quantity: d("0")},
		{Side: Side(9), Price: d("1"), Quantity: d("1")},
	}
	for _, o := range cases {
		_, err := b.Submit(o)
		assert.True(t, errors.Is(err, ErrInvalidOrder), "order %+v", o)
	}
	assert.Equal(t, 0, b.Len())
}

func TestPurgeExpired(t *testing.T) {
	b := newTestBook(2)
	old := submit(t, b, Buy, "99", "1", 1, 1)
	submit(t, b, Buy, "98", "1", 2, 2)
	submit(t, b, Sell, "105", "1", 3, 3)

	assert.Empty(t, b.PurgeExpired(2))

	purged := b.PurgeExpired(3)
	require.Len(t, purged, 1)
	assert.Equal(t, old.Seq, purged[0].Seq)
	assert.Equal(t, 2, b.Len())
	assert.True(t, b.Exposure(1).BuyNotional.IsZero())

	purged = b.PurgeExpired(5)
	assert.Len(t, purged, 2)
	assert.Equal(t, 0, b.Len())
}

func TestPurgeDisabledWithoutTTL(t *testing.T) {
	b := newTestBook(0)
	submit(t, b, Buy, "99", "1", 1, 1)
	assert.Nil(t, b.PurgeExpired(1000))
	assert.Equal(t, 1, b.Len())
}

func TestMidpointPriceRule(t *testing.T) {
	b := NewBook(BookConfig{Market: "banks", TickSize: d("0.01"), PriceRule: PriceMidpoint})
	submit(t, b, Buy, "100.01", "1", 1, 1)
	submit(t, b, Sell, "99.98", "1", 2, 1)

	trades, err := b.Match(1)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	// (100.01 + 99.98) / 2 = 99.995, rounded to the tick.
	assert.True(t, trades[0].Price.Equal(d("100")), "got %s", trades[0].Price)
}

func TestParsePriceRule(t *testing.T) {
	r, err := ParsePriceRule("")
	require.NoError(t, err)
	assert.Equal(t, PriceMaker, r)
	r, err = ParsePriceRule("midpoint")
	require.NoError(t, err)
	assert.Equal(t, PriceMidpoint, r)
	_, err = ParsePriceRule("vwap")
	assert.Error(t, err)
}

func TestDepthAggregatesLevels(t *testing.T) {
	b := newTestBook(0)
	submit(t, b, Buy, "99", "1", 1, 1)
	submit(t, b, Buy, "99", "2", 2, 1)
	submit(t, b, Buy, "98", "4", 3, 1)
	submit(t, b, Buy, "97", "1", 4, 1)
	submit(t, b, Sell, "101", "3", 5, 1)

	depth := b.Depth(2)
	require.Len(t, depth.Bids, 2)
	assert.True(t, depth.Bids[0].Price.Equal(d("99")))
	assert.True(t, depth.Bids[0].Quantity.Equal(d("3")))
	assert.Equal(t, 2, depth.Bids[0].Orders)
	assert.True(t, depth.Bids[1].Price.Equal(d("98")))
	require.Len(t, depth.Asks, 1)

	assert.Len(t, b.Depth(0).Bids, 3)

	bids, asks := b.RestingVolume()
	assert.True(t, bids.Equal(d("8")))
	assert.True(t, asks.Equal(d("3")))
}

func TestExposureTracksRemaining(t *testing.T) {
	b := newTestBook(0)
	submit(t, b, Buy, "100", "5", 1, 1)
	submit(t, b, Sell, "101", "2", 1, 1)
	e := b.Exposure(1)
	assert.True(t, e.BuyNotional.Equal(d("500")))
	assert.True(t, e.SellQuantity.Equal(d("2")))

	submit(t, b, Sell, "100", "3", 2, 1)
	_, err := b.Match(1)
	require.NoError(t, err)

	e = b.Exposure(1)
	assert.True(t, e.BuyNotional.Equal(d("200")), "got %s", e.BuyNotional)
	assert.Contains(t, b.Exposures(), ParticipantID(1))
	assert.NotContains(t, b.Exposures(), ParticipantID(2))
}

// Random order flow must never leave the book crossed, never drive a remaining
// quantity negative, and fill exactly the traded quantity on each side.
func TestMatchProperties(t *testing.T) {
	property := func(seed int64) bool {
		rng := rand.New(rand.NewSource(seed))
		b := newTestBook(3)
		submitted := make(map[uint64]decimal.Decimal)

		for step := 1; step <= 20; step++ {
			b.PurgeExpired(step)
			for i := 0; i < 1+rng.Intn(8); i++ {
				side := Buy
				if rng.Intn(2) == 0 {
					side = Sell
				}
				price := decimal.NewFromInt(int64(95 + rng.Intn(11)))
				qty := decimal.NewFromInt(int64(1 + rng.Intn(5)))
				o, err := b.Submit(Order{Side: side, Price: price, Quantity: qty, Agent: ParticipantID(rng.Intn(4)), SubmitStep: step})
				if err != nil {
					return false
				}
				submitted[o.Seq] = qty
			}

			trades, err := b.Match(step)
			if err != nil {
				return false
			}
			q := b.BestQuote()
			if q.Bid.Valid && q.Ask.Valid && !q.Bid.Decimal.LessThan(q.Ask.Decimal) {
				return false
			}

			bought := decimal.Zero
			sold := decimal.Zero
			for _, tr := range trades {
				if !tr.Quantity.IsPositive() {
					return false
				}
				bought = bought.Add(tr.Quantity)
				sold = sold.Add(tr.Quantity)
			}
			if !bought.Equal(Volume(trades)) || !sold.Equal(Volume(trades)) {
				return false
			}
			for _, side := range []Side{Buy, Sell} {
				for _, o := range b.Orders(side) {
					if o.Remaining.IsNegative() || o.Remaining.GreaterThan(submitted[o.Seq]) {
						return false
					}
				}
			}
		}

		// Every fill is accounted for on both sides of the log.
		filled := make(map[uint64]decimal.Decimal)
		for _, tr := range b.Trades() {
			filled[tr.BuySeq] = filled[tr.BuySeq].Add(tr.Quantity)
			filled[tr.SellSeq] = filled[tr.SellSeq].Add(tr.Quantity)
		}
		for seq, f := range filled {
			if f.GreaterThan(submitted[seq]) {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 50}))
}
