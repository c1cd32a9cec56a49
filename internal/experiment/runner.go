// Package experiment executes a batch of independently seeded runs on a
// bounded worker pool.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/seir-sim/internal/agents"
	"github.com/talgya/seir-sim/internal/config"
	"github.com/talgya/seir-sim/internal/engine"
	"github.com/talgya/seir-sim/internal/world"
)

// Outcome is the result of one run: either a complete Result or Err.
type Outcome struct {
	Run     int
	Seed    int64
	Result  *engine.RunResult
	Err     error
	Elapsed time.Duration
}

// OK reports whether the run completed.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Result != nil
}

// Runner executes the runs of an Experiment. Grid and Nav are shared
// read-only by all runs.
type Runner struct {
	Experiment *config.Experiment
	Grid       *world.Grid
	Nav        agents.Navigator
	Targets    []world.Target
	Workers    int // 0 uses Experiment.Workers, then GOMAXPROCS
	Logger     *slog.Logger

	// prepare, when set, runs on each simulation before its first tick.
	prepare func(sim *engine.Simulation)
}

func (r *Runner) workers() int {
	n := r.Workers
	if n <= 0 {
		n = r.Experiment.Workers
	}
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if n > r.Experiment.NRuns {
		n = r.Experiment.NRuns
	}
	return n
}

// Run executes n_runs runs, run i seeded with start_seed+i, and returns
// their outcomes ordered by run index. A failed run is recorded in its
// Outcome and does not stop the others. The error is non-nil only when the
// experiment is invalid or ctx is cancelled.
func (r *Runner) Run(ctx context.Context) ([]Outcome, error) {
	if r.Experiment == nil {
		return nil, fmt.Errorf("runner: no experiment")
	}
	if err := r.Experiment.Validate(); err != nil {
		return nil, err
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	outcomes := make([]Outcome, r.Experiment.NRuns)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())

	for i := range outcomes {
		cfg := r.Experiment.Run(i)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = Outcome{Run: i, Seed: cfg.Seed, Err: err}
				return nil
			}
			logger.Info("run started", "run", i, "seed", cfg.Seed)
			start := time.Now()
			res, err := r.runOne(gctx, cfg, logger)
			outcomes[i] = Outcome{Run: i, Seed: cfg.Seed, Result: res, Err: err, Elapsed: time.Since(start)}
			if err != nil {
				var ce *agents.ConsistencyError
				if errors.As(err, &ce) {
					logger.Error("run aborted", "run", i, "seed", cfg.Seed, "error", err)
				} else {
					logger.Warn("run failed", "run", i, "seed", cfg.Seed, "error", err)
				}
				return nil
			}
			s := res.Summary()
			logger.Info("run finished", "run", i, "seed", cfg.Seed,
				"peak_infectious", s.PeakInfectious, "peak_tick", s.PeakTick,
				"attack_rate", fmt.Sprintf("%.3f", s.AttackRate),
				"elapsed", time.Since(start).Round(time.Millisecond))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return outcomes, fmt.Errorf("experiment cancelled: %w", err)
	}
	return outcomes, nil
}

func (r *Runner) runOne(ctx context.Context, cfg config.RunConfig, logger *slog.Logger) (*engine.RunResult, error) {
	sim, err := engine.NewSimulation(cfg, r.Grid, r.Nav, r.Targets)
	if err != nil {
		return nil, err
	}
	if r.prepare != nil {
		r.prepare(sim)
	}
	return sim.Run(ctx, logger)
}

// Results returns the completed results, in run order.
func Results(outcomes []Outcome) []*engine.RunResult {
	out := make([]*engine.RunResult, 0, len(outcomes))
	for _, o := range outcomes {
		if o.OK() {
			out = append(out, o.Result)
		}
	}
	return out
}

// Failed returns the number of runs without a result.
func Failed(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.OK() {
			n++
		}
	}
	return n
}

// MeanCurve averages the per-tick counts of completed runs. All results
// must have the same length.
func MeanCurve(results []*engine.RunResult) ([][4]float64, error) {
	if len(results) == 0 {
		return nil, nil
	}
	n := len(results[0].Counts)
	mean := make([][4]float64, n)
	for _, r := range results {
		if len(r.Counts) != n {
			return nil, fmt.Errorf("mean curve: run %d has %d ticks, run %d has %d", r.Run, len(r.Counts), results[0].Run, n)
		}
		for t, c := range r.Counts {
			mean[t][0] += float64(c.S)
			mean[t][1] += float64(c.E)
			mean[t][2] += float64(c.I)
			mean[t][3] += float64(c.R)
		}
	}
	k := float64(len(results))
	for t := range mean {
		for j := range mean[t] {
			mean[t][j] /= k
		}
	}
	return mean, nil
}
