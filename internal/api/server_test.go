package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/abm-fx/internal/config"
	"github.com/talgya/abm-fx/internal/engine"
	"github.com/talgya/abm-fx/internal/persistence"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Map.Radius = 6
	cfg.Regions[0].AnchorQ = -3
	cfg.Regions[1].AnchorQ = 3
	cfg.LogEvery = 0

	h, err := engine.RunModel(context.Background(), 10, cfg)
	require.NoError(t, err)

	s := &Server{Run: h}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && into != nil {
		require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp.StatusCode
}

func TestStatus(t *testing.T) {
	s, ts := newTestServer(t)
	var status map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/status", &status))
	assert.Equal(t, s.Run.ID(), status["run"])
	assert.EqualValues(t, 10, status["steps"])
	assert.EqualValues(t, 10, status["step"])
	assert.Contains(t, status, "quotes")
}

func TestSnapshots(t *testing.T) {
	_, ts := newTestServer(t)

	var snaps []engine.ModelSnapshot
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/snapshots?from=3&to=5", &snaps))
	require.Len(t, snaps, 3)
	assert.Equal(t, 3, snaps[0].Step)
	assert.NotEmpty(t, snaps[0].Agents)

	snaps = nil
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/snapshots?agents=0", &snaps))
	require.Len(t, snaps, 10)
	assert.Empty(t, snaps[0].Agents)

	snaps = nil
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/snapshots?from=8&to=2", &snaps))
	assert.Empty(t, snaps)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/v1/snapshots?from=x", nil))
}

func TestTrajectories(t *testing.T) {
	_, ts := newTestServer(t)
	var traj map[string][]engine.TrajectoryPoint
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/trajectories?from=2&to=4", &traj))
	require.NotEmpty(t, traj)
	for _, points := range traj {
		assert.Len(t, points, 3)
	}
}

func TestTradesAndBook(t *testing.T) {
	s, ts := newTestServer(t)

	want, err := s.Run.Trades("banks")
	require.NoError(t, err)
	var trades []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/trades/banks", &trades))
	assert.Len(t, trades, len(want))

	trades = nil
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/trades/banks?since=11", &trades))
	assert.Empty(t, trades)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/v1/trades/otc", nil))

	var book map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/book/banks?levels=2", &book))
	assert.Equal(t, "banks", book["market"])
	if bids, ok := book["bids"].([]any); ok {
		assert.LessOrEqual(t, len(bids), 2)
	}
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/v1/book/banks?levels=0", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/v1/book/otc", nil))
}

func TestMap(t *testing.T) {
	s, ts := newTestServer(t)
	var m struct {
		Radius int              `json:"radius"`
		Cells  []map[string]any `json:"cells"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/map", &m))
	assert.Equal(t, 6, m.Radius)
	assert.Len(t, m.Cells, len(s.Run.Map()))
}

func TestRuns(t *testing.T) {
	s, ts := newTestServer(t)
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, ts.URL+"/api/v1/runs", nil))

	db, err := persistence.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.SaveRun(s.Run))
	s.DB = db

	var runs []persistence.RunRecord
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/runs", &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, s.Run.ID(), runs[0].ID)
}

func TestPostRejected(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/v1/status", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
	assert.Equal(t, 61, rl.RetryAfter("a"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("a"))
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	h := RateLimitMiddleware(rl, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshots", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	rec := httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

type failingWriter struct {
	header http.Header
}

func (f *failingWriter) Header() http.Header {
	if f.header == nil {
		f.header = make(http.Header)
	}
	return f.header
}
func (f *failingWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }
func (f *failingWriter) WriteHeader(int)           {}

func TestWriteJSONLogsFailure(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer slog.SetDefault(prev)

	writeJSON(&failingWriter{}, map[string]int{"steps": 3})
	assert.Contains(t, buf.String(), "response write failed")
	assert.Contains(t, buf.String(), "connection reset")
}
