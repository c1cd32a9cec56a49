// Package engine provides the tick-based simulation loop and the per-run
// SEIR simulation it drives.
package engine

import (
	"context"
	"log/slog"
)

// DefaultReportEvery is the report interval in ticks.
const DefaultReportEvery = 1000

// ctxCheckEvery bounds how often the context is polled.
const ctxCheckEvery = 256

// Engine drives a run forward a fixed number of ticks.
type Engine struct {
	Tick        int // Last tick processed
	MaxTick     int // Run stops after this tick
	ReportEvery int // Ticks between OnReport calls; 0 disables reports

	// Callbacks, populated during setup.
	OnTick   func(tick int) error // Every tick
	OnReport func(tick int)       // Every ReportEvery ticks
}

// NewEngine creates an engine that runs ticks 1..maxTick.
func NewEngine(maxTick int) *Engine {
	return &Engine{
		MaxTick:     maxTick,
		ReportEvery: DefaultReportEvery,
	}
}

// Run processes ticks until MaxTick, the first OnTick error, or context
// cancellation. A run that stops early returns a non-nil error.
func (e *Engine) Run(ctx context.Context) error {
	slog.Debug("simulation engine started", "tick", e.Tick, "max_tick", e.MaxTick)

	for e.Tick < e.MaxTick {
		if e.Tick%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := e.step(); err != nil {
			return err
		}
	}

	slog.Debug("simulation engine stopped", "tick", e.Tick)
	return nil
}

// step advances the simulation by one tick.
func (e *Engine) step() error {
	e.Tick++

	if e.OnTick != nil {
		if err := e.OnTick(e.Tick); err != nil {
			return err
		}
	}

	if e.ReportEvery > 0 && e.Tick%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(e.Tick)
	}
	return nil
}
