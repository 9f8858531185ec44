package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/abm-fx/internal/config"
	"github.com/talgya/abm-fx/internal/engine"
)

func testRun(t *testing.T, steps int) *engine.RunHandle {
	t.Helper()
	cfg := config.Default()
	cfg.Map.Radius = 6
	cfg.Regions[0].AnchorQ = -3
	cfg.Regions[1].AnchorQ = 3
	cfg.LogEvery = 0
	h, err := engine.RunModel(context.Background(), steps, cfg)
	require.NoError(t, err)
	return h
}

func openTemp(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveRunRoundTrip(t *testing.T) {
	h := testRun(t, 10)
	db := openTemp(t)
	require.NoError(t, db.SaveRun(h))

	runs, err := db.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, h.ID(), runs[0].ID)
	assert.Equal(t, 10, runs[0].Steps)
	assert.Equal(t, h.Config().Seed, runs[0].Seed)

	rates, err := db.RegionRates(h.ID(), "US")
	require.NoError(t, err)
	require.Len(t, rates, 10)
	for i, r := range rates {
		snap := h.Snapshots()[i]
		assert.Equal(t, snap.Step, r.Step)
		assert.InDelta(t, snap.Rate("US"), r.Rate, 1e-12)
	}

	for _, market := range h.Markets() {
		trades, err := h.Trades(market)
		require.NoError(t, err)
		n, err := db.TradeCount(h.ID(), string(market))
		require.NoError(t, err)
		assert.Equal(t, len(trades), n, "market %s", market)

		quotes, err := db.MarketQuotes(h.ID(), string(market))
		require.NoError(t, err)
		require.Len(t, quotes, 10)
		last := h.Snapshots()[9].Markets[market]
		assert.Equal(t, last.LastPrice.Valid, quotes[9].LastPrice.Valid)
		if last.LastPrice.Valid {
			assert.True(t, last.LastPrice.Decimal.Equal(quotes[9].LastPrice.Decimal))
		}
	}

	states, err := db.AgentStates(h.ID(), 10)
	require.NoError(t, err)
	assert.Len(t, states, len(h.Snapshots()[9].Agents))

	raw, err := db.RunConfig(h.ID())
	require.NoError(t, err)
	assert.Contains(t, raw, "markets:")
}

func TestSaveRunReplaces(t *testing.T) {
	h := testRun(t, 3)
	db := openTemp(t)
	require.NoError(t, db.SaveRun(h))
	require.NoError(t, h.Run(context.Background(), 2))
	require.NoError(t, db.SaveRun(h))

	runs, err := db.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 5, runs[0].Steps)

	rates, err := db.RegionRates(h.ID(), "JP")
	require.NoError(t, err)
	assert.Len(t, rates, 5)
}

func TestMeta(t *testing.T) {
	db := openTemp(t)
	require.NoError(t, db.SaveMeta("last_run", "a"))
	require.NoError(t, db.SaveMeta("last_run", "b"))
	v, err := db.GetMeta("last_run")
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	_, err = db.GetMeta("missing")
	assert.Error(t, err)
}
