package steplog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/abm-fx/internal/config"
	"github.com/talgya/abm-fx/internal/engine"
)

func TestWriterAsRunSink(t *testing.T) {
	cfg := config.Default()
	cfg.Map.Radius = 6
	cfg.Regions[0].AnchorQ = -3
	cfg.Regions[1].AnchorQ = 3
	cfg.LogEvery = 0

	h, err := engine.NewRun(cfg)
	require.NoError(t, err)

	dir := t.TempDir()
	w, err := Open(dir, h.ID())
	require.NoError(t, err)
	assert.Equal(t, Path(dir, h.ID()), w.Path())
	h.Collector().AddSink(w)

	require.NoError(t, h.Run(context.Background(), 8))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.WriteSnapshot(engine.ModelSnapshot{Step: 9}), ErrClosed)

	got, err := ReadAll(w.Path())
	require.NoError(t, err)
	want := h.Snapshots()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Step, got[i].Step)
		assert.InDelta(t, want[i].Rate("US"), got[i].Rate("US"), 1e-12)
		assert.Equal(t, want[i].Counters, got[i].Counters)
		require.Len(t, got[i].Agents, len(want[i].Agents))
		assert.Equal(t, want[i].Agents[0].Kind, got[i].Agents[0].Kind)
		for id, m := range want[i].Markets {
			assert.Equal(t, m.LastPrice.Valid, got[i].Markets[id].LastPrice.Valid)
			assert.True(t, m.Volume.Equal(got[i].Markets[id].Volume))
		}
	}
}

func TestReadAllMissing(t *testing.T) {
	_, err := ReadAll(Path(t.TempDir(), "nope"))
	assert.Error(t, err)
}
