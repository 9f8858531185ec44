package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/abm-fx/internal/config"
	"github.com/talgya/abm-fx/internal/engine"
)

func captureLogs(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestLogSummary(t *testing.T) {
	cfg := config.Default()
	cfg.Map.Radius = 6
	cfg.Regions[0].AnchorQ = -3
	cfg.Regions[1].AnchorQ = 3
	cfg.LogEvery = 0

	h, err := engine.NewRun(cfg)
	require.NoError(t, err)

	buf := captureLogs(t, slog.LevelInfo)
	require.NoError(t, logSummary(h))
	assert.Empty(t, buf.String(), "nothing to report before the first step")

	require.NoError(t, h.Run(context.Background(), 5))
	require.NoError(t, logSummary(h))
	out := buf.String()
	assert.Equal(t, len(cfg.Markets), strings.Count(out, "market summary"))
	assert.Equal(t, len(cfg.Regions), strings.Count(out, "region summary"))
	assert.Contains(t, out, "market=banks")
}
