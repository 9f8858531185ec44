// Package engine provides the step loop, the simulation state and the run
// handle used by callers.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Engine drives the simulation forward one step at a time.
type Engine struct {
	Step     int           // Last completed step (monotonic, never resets)
	Interval time.Duration // Pause between steps; 0 runs flat out

	// OnStep runs every step. An error aborts the run.
	OnStep func(ctx context.Context, step int) error
}

// NewEngine creates an engine with no pacing.
func NewEngine() *Engine {
	return &Engine{}
}

// Run executes steps more steps synchronously. It stops early when the
// context is cancelled or a step fails; completed steps are kept.
func (e *Engine) Run(ctx context.Context, steps int) error {
	if steps <= 0 {
		return nil
	}
	first := e.Step + 1
	last := e.Step + steps
	slog.Info("simulation engine started", "from", first, "to", last)

	var timer *time.Timer
	if e.Interval > 0 {
		timer = time.NewTimer(e.Interval)
		defer timer.Stop()
	}

	for step := first; step <= last; step++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run aborted before step %d: %w", step, err)
		}

		start := time.Now()
		if e.OnStep != nil {
			if err := e.OnStep(ctx, step); err != nil {
				return fmt.Errorf("step %d: %w", step, err)
			}
		}
		e.Step = step

		if timer == nil || step == last {
			continue
		}
		// Sleep for the remainder of the interval.
		wait := e.Interval - time.Since(start)
		if wait <= 0 {
			continue
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return fmt.Errorf("run aborted after step %d: %w", step, ctx.Err())
		case <-timer.C:
		}
	}

	slog.Info("simulation engine stopped", "step", e.Step)
	return nil
}
