// Command fxsim runs the two-region FX agent-based simulation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talgya/abm-fx/internal/api"
	"github.com/talgya/abm-fx/internal/config"
	"github.com/talgya/abm-fx/internal/engine"
	"github.com/talgya/abm-fx/internal/logging"
	"github.com/talgya/abm-fx/internal/persistence"
	"github.com/talgya/abm-fx/internal/persistence/steplog"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fxsim failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "YAML configuration file (defaults built in)")
		steps      = flag.Int("steps", -1, "number of steps to run (overrides config)")
		seed       = flag.Int64("seed", 0, "random seed (overrides config when non-zero)")
		workers    = flag.Int("workers", 0, "planning workers (overrides config when positive)")
		dbPath     = flag.String("db", "", "SQLite results database; empty disables saving")
		stepDir    = flag.String("steplog", "", "directory for the compressed per-step log")
		port       = flag.Int("serve", 0, "serve the HTTP API on this port; 0 disables")
		hold       = flag.Bool("hold", false, "keep serving after the run finishes until interrupted")
		logLevel   = flag.String("log-level", "", "log level (overrides config)")
		logFile    = flag.String("log-file", "", "rotated log file (overrides config)")
		dumpConfig = flag.Bool("dump-config", false, "print the effective configuration and exit")
	)
	flag.Parse()

	// ── Configuration ────────────────────────────────────────────────
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *steps >= 0 {
		cfg.Steps = *steps
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFile != "" {
		cfg.Logging.File = *logFile
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if *dumpConfig {
		raw, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(raw)
		return err
	}

	// ── Logging ──────────────────────────────────────────────────────
	closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Run ──────────────────────────────────────────────────────────
	h, err := engine.NewRun(cfg)
	if err != nil {
		return err
	}
	slog.Info("FX simulation", "run", h.ID(), "seed", cfg.Seed, "steps", cfg.Steps,
		"population", cfg.Population(), "workers", cfg.Workers)

	if *stepDir != "" {
		w, err := steplog.Open(*stepDir, h.ID())
		if err != nil {
			return err
		}
		defer func() {
			if err := w.Close(); err != nil {
				slog.Error("failed to close step log", "path", w.Path(), "error", err)
			}
		}()
		h.Collector().AddSink(w)
		slog.Info("step log opened", "path", w.Path())
	}

	// ── Database ─────────────────────────────────────────────────────
	var db *persistence.DB
	if *dbPath != "" {
		db, err = persistence.Open(*dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		slog.Info("database opened", "path", *dbPath)
	}

	// ── HTTP API ─────────────────────────────────────────────────────
	serveErr := make(chan error, 1)
	serveCtx, stopServe := context.WithCancel(ctx)
	defer stopServe()
	if *port > 0 {
		srv := &api.Server{
			Run:     h,
			DB:      db,
			Port:    *port,
			Limiter: api.NewRateLimiter(120, time.Minute),
		}
		go func() { serveErr <- srv.Serve(serveCtx) }()
	} else {
		serveErr <- nil
	}

	started := time.Now()
	runErr := h.Run(ctx, cfg.Steps)
	interrupted := errors.Is(runErr, context.Canceled)
	if runErr != nil && !interrupted {
		slog.Error("run failed", "step", h.Steps(), "error", runErr)
	}
	slog.Info("run finished", "run", h.ID(), "steps", h.Steps(),
		"elapsed", time.Since(started).Round(time.Millisecond).String(), "interrupted", interrupted)

	if err := logSummary(h); err != nil {
		return err
	}

	if db != nil {
		if err := db.SaveRun(h); err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		if err := db.SaveMeta("last_run", h.ID()); err != nil {
			return fmt.Errorf("save meta: %w", err)
		}
	}

	if *port > 0 && *hold && !interrupted {
		slog.Info("run complete, serving until interrupted", "port", *port)
		<-ctx.Done()
	}
	stopServe()
	if err := <-serveErr; err != nil {
		return err
	}

	if runErr != nil && !interrupted {
		return runErr
	}
	return nil
}

// logSummary reports the last step's quotes and rates of every market and region.
func logSummary(h *engine.RunHandle) error {
	latest, ok := h.Collector().Latest()
	if !ok {
		return nil
	}
	for _, id := range h.Markets() {
		m := latest.Markets[id]
		trades, err := h.Trades(id)
		if err != nil {
			return fmt.Errorf("market summary: %w", err)
		}
		slog.Info("market summary", "market", id, "last_price", m.LastPrice.Decimal.String(),
			"has_price", m.LastPrice.Valid, "trades", len(trades))
	}
	for id, r := range latest.Regions {
		slog.Info("region summary", "region", id, "rate", fmt.Sprintf("%.3f", r.Rate),
			"inflation", fmt.Sprintf("%.3f", r.Inflation), "output_gap", fmt.Sprintf("%.3f", r.OutputGap))
	}
	return nil
}
