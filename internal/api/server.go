// Package api provides the read-only HTTP API for observing a run.
// Every handler reads from the run's collector or under the run lock, so it
// is safe to serve while the run is stepping.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/abm-fx/internal/economy"
	"github.com/talgya/abm-fx/internal/engine"
	"github.com/talgya/abm-fx/internal/persistence"
)

// Server serves one run over HTTP.
type Server struct {
	Run  *engine.RunHandle
	DB   *persistence.DB // Optional; enables /api/v1/runs
	Port int

	// Limiter throttles the bulk time-series endpoints. Nil disables it.
	Limiter *RateLimiter
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/snapshots", RateLimitMiddleware(s.Limiter, s.handleSnapshots))
	mux.HandleFunc("GET /api/v1/trajectories", RateLimitMiddleware(s.Limiter, s.handleTrajectories))
	mux.HandleFunc("GET /api/v1/trades/{market}", s.handleTrades)
	mux.HandleFunc("GET /api/v1/book/{market}", s.handleBook)
	mux.HandleFunc("GET /api/v1/map", s.handleMap)
	mux.HandleFunc("GET /api/v1/runs", s.handleRuns)

	return corsMiddleware(mux)
}

// Serve listens on Port until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "run", s.Run.ID())

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("HTTP API stopped")
	return nil
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// CORS_ORIGINS holds a comma-separated list; localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"run":     s.Run.ID(),
		"created": s.Run.Created().Format(time.RFC3339),
		"seed":    s.Run.Config().Seed,
		"steps":   s.Run.Steps(),
		"markets": s.Run.Markets(),
		"regions": s.Run.Regions(),
	}
	if latest, ok := s.Run.Collector().Latest(); ok {
		status["step"] = latest.Step
		status["population"] = latest.Population
		status["counters"] = latest.Counters

		quotes := make(map[economy.MarketID]any, len(latest.Markets))
		for id, m := range latest.Markets {
			quotes[id] = map[string]any{
				"best_bid":   m.BestBid,
				"best_ask":   m.BestAsk,
				"last_price": m.LastPrice,
			}
		}
		status["quotes"] = quotes
	}
	writeJSON(w, status)
}

// stepRange parses from/to, defaulting to the whole recorded run.
func (s *Server) stepRange(r *http.Request) (int, int, error) {
	from, to := 1, s.Run.Steps()
	if latest, ok := s.Run.Collector().Latest(); ok {
		to = latest.Step
	}
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid from %q", v)
		}
		from = n
	}
	if v := q.Get("to"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid to %q", v)
		}
		to = n
	}
	return from, to, nil
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.stepRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	snaps := s.Run.Collector().Range(from, to)
	if r.URL.Query().Get("agents") == "0" {
		for i := range snaps {
			snaps[i].Agents = nil
		}
	}
	if snaps == nil {
		snaps = []engine.ModelSnapshot{}
	}
	writeJSON(w, snaps)
}

func (s *Server) handleTrajectories(w http.ResponseWriter, r *http.Request) {
	from, to, err := s.stepRange(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.Run.Trajectory(from, to))
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	market := economy.MarketID(r.PathValue("market"))
	trades, err := s.Run.Trades(market)
	if errors.Is(err, engine.ErrUnknownMarket) {
		http.Error(w, "market not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if v := r.URL.Query().Get("since"); v != "" {
		since, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		start := len(trades)
		for i, t := range trades {
			if t.Step >= since {
				start = i
				break
			}
		}
		trades = trades[start:]
	}
	if trades == nil {
		trades = []economy.Trade{}
	}
	writeJSON(w, trades)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	levels := s.Run.Config().Collector.DepthLevels
	if v := r.URL.Query().Get("levels"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "levels must be a positive integer", http.StatusBadRequest)
			return
		}
		levels = n
	}

	market := economy.MarketID(r.PathValue("market"))
	depth, err := s.Run.Depth(market, levels)
	if errors.Is(err, engine.ErrUnknownMarket) {
		http.Error(w, "market not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"market": market,
		"step":   s.Run.Steps(),
		"bids":   depth.Bids,
		"asks":   depth.Asks,
	})
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"radius": s.Run.Config().Map.Radius,
		"cells":  s.Run.Map(),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	runs, err := s.DB.Runs()
	if err != nil {
		slog.Error("failed to list runs", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.RunRecord{}
	}
	writeJSON(w, runs)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Debug("response write failed", "error", err)
	}
}
