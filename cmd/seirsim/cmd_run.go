package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/seir-sim/internal/config"
	"github.com/talgya/seir-sim/internal/entropy"
	"github.com/talgya/seir-sim/internal/experiment"
	"github.com/talgya/seir-sim/internal/persistence"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an experiment",
		Long: `Runs n_runs seeded trials of the configured experiment on a worker
pool, prints a per-run summary and stores the S/E/I/R curves in the result
database. Run i uses seed start_seed+i.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperiment(cmd)
		},
	}
	cmd.Flags().Int("runs", 0, "Number of runs (overrides n_runs)")
	cmd.Flags().Int64("seed", 0, "Seed of the first run (overrides start_seed)")
	cmd.Flags().Bool("random-seed", false, "Draw start_seed from the OS entropy source")
	cmd.Flags().Int("workers", 0, "Concurrent runs (0 = GOMAXPROCS)")
	cmd.Flags().String("heatmap-mode", "", "Heatmap mode: compute, load or auto")
	cmd.Flags().Bool("no-store", false, "Do not write results to the database")
	return cmd
}

// applyRunFlags copies explicitly set flags onto cfg.
func applyRunFlags(cmd *cobra.Command, cfg *config.Experiment) {
	flags := cmd.Flags()
	if flags.Changed("runs") {
		cfg.NRuns, _ = flags.GetInt("runs")
	}
	if flags.Changed("seed") {
		cfg.StartSeed, _ = flags.GetInt64("seed")
	}
	if random, _ := flags.GetBool("random-seed"); random {
		cfg.StartSeed = entropy.RandomSeed()
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("heatmap-mode") {
		cfg.Heatmap.Mode, _ = flags.GetString("heatmap-mode")
	}
}

func runExperiment(cmd *cobra.Command) error {
	ctx := cmd.Context()

	// ── Configuration ─────────────────────────────────────────────────
	cfg, logger, err := loadConfig(cmd, func(cfg *config.Experiment) { applyRunFlags(cmd, cfg) })
	if err != nil {
		return err
	}
	logger.Info("experiment configured",
		"run_name", cfg.RunName,
		"n_people", cfg.NPeople,
		"n_runs", cfg.NRuns,
		"start_seed", cfg.StartSeed,
		"max_timestep", cfg.MaxTimestep,
		"infection_prob", cfg.InfectionProb,
	)

	// ── Layout ────────────────────────────────────────────────────────
	layout, err := cfg.BuildLayout()
	if err != nil {
		return err
	}
	grid := layout.Rasterize()
	logger.Info("layout ready", "layout", layout.Name, "grid", grid.String(), "targets", len(layout.Targets))

	// ── Heatmap ───────────────────────────────────────────────────────
	provider, err := cfg.Provider(logger)
	if err != nil {
		return err
	}
	start := time.Now()
	hm, err := provider.Heatmap(layout)
	if err != nil {
		return fmt.Errorf("heatmap: %w", err)
	}
	logger.Info("heatmap ready", "key", shortKey(hm.Key), "elapsed", time.Since(start).Round(time.Millisecond))

	// ── Runs ──────────────────────────────────────────────────────────
	runner := &experiment.Runner{
		Experiment: cfg,
		Grid:       grid,
		Nav:        hm,
		Targets:    layout.Targets,
		Logger:     logger,
	}
	start = time.Now()
	outcomes, runErr := runner.Run(ctx)
	if outcomes == nil {
		return runErr
	}
	elapsed := time.Since(start)

	// ── Storage ───────────────────────────────────────────────────────
	var expID string
	if noStore, _ := cmd.Flags().GetBool("no-store"); !noStore {
		expID, err = storeOutcomes(cmd, cfg, layout.Name, hm.Key, outcomes, logger)
		if err != nil {
			return err
		}
	}

	// ── Summary ───────────────────────────────────────────────────────
	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut {
		if err := printSummaryJSON(cmd.OutOrStdout(), expID, outcomes, elapsed); err != nil {
			return err
		}
	} else {
		printSummary(cmd.OutOrStdout(), cfg, expID, outcomes, elapsed)
	}

	if runErr != nil {
		return runErr
	}
	if failed := experiment.Failed(outcomes); failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(outcomes))
	}
	return nil
}

func storeOutcomes(cmd *cobra.Command, cfg *config.Experiment, layoutName, heatmapKey string, outcomes []experiment.Outcome, logger *slog.Logger) (string, error) {
	db, err := persistence.Open(cfg.Storage.DBPath)
	if err != nil {
		return "", err
	}
	defer db.Close()

	rec, err := persistence.NewRecord(cfg, layoutName, heatmapKey)
	if err != nil {
		return "", err
	}
	// Results are kept even when the run itself was interrupted.
	if err := db.SaveExperiment(context.WithoutCancel(cmd.Context()), rec, outcomes); err != nil {
		return "", fmt.Errorf("saving experiment: %w", err)
	}
	if err := db.SaveMeta("last_heatmap_key", heatmapKey); err != nil {
		logger.Warn("failed to record heatmap key", "error", err)
	}
	return rec.ID, nil
}

func printSummary(w io.Writer, cfg *config.Experiment, expID string, outcomes []experiment.Outcome, elapsed time.Duration) {
	fmt.Fprintf(w, "%s: %s people, %s ticks, %d runs in %s\n",
		cfg.RunName, humanize.Comma(int64(cfg.NPeople)), humanize.Comma(int64(cfg.MaxTimestep)),
		len(outcomes), elapsed.Round(time.Millisecond))
	if expID != "" {
		fmt.Fprintf(w, "experiment %s\n", expID)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-5s %-20s %-8s %10s %10s %8s  %s\n", "RUN", "SEED", "STATUS", "PEAK I", "PEAK TICK", "ATTACK", "FINAL")
	for _, o := range outcomes {
		if !o.OK() {
			fmt.Fprintf(w, "%-5d %-20d %-8s %v\n", o.Run, o.Seed, persistence.StatusFailed, o.Err)
			continue
		}
		s := o.Result.Summary()
		fmt.Fprintf(w, "%-5d %-20d %-8s %10s %10s %7.1f%%  %s\n",
			o.Run, o.Seed, persistence.StatusOK,
			humanize.Comma(int64(s.PeakInfectious)), humanize.Comma(int64(s.PeakTick)),
			s.AttackRate*100, s.Final)
	}

	results := experiment.Results(outcomes)
	if len(results) > 1 {
		var attack float64
		for _, r := range results {
			attack += r.AttackRate()
		}
		fmt.Fprintf(w, "\nmean attack rate %.1f%% over %d runs\n", attack/float64(len(results))*100, len(results))
	}
}

type runSummaryJSON struct {
	Run            int     `json:"run"`
	Seed           int64   `json:"seed"`
	Status         string  `json:"status"`
	Error          string  `json:"error,omitempty"`
	PeakInfectious int     `json:"peak_infectious,omitempty"`
	PeakTick       int     `json:"peak_tick,omitempty"`
	AttackRate     float64 `json:"attack_rate,omitempty"`
	Final          []int   `json:"final,omitempty"`
	ElapsedMS      int64   `json:"elapsed_ms"`
}

func printSummaryJSON(w io.Writer, expID string, outcomes []experiment.Outcome, elapsed time.Duration) error {
	runs := make([]runSummaryJSON, 0, len(outcomes))
	for _, o := range outcomes {
		r := runSummaryJSON{Run: o.Run, Seed: o.Seed, ElapsedMS: o.Elapsed.Milliseconds()}
		if !o.OK() {
			r.Status = persistence.StatusFailed
			if o.Err != nil {
				r.Error = o.Err.Error()
			}
		} else {
			s := o.Result.Summary()
			r.Status = persistence.StatusOK
			r.PeakInfectious = s.PeakInfectious
			r.PeakTick = s.PeakTick
			r.AttackRate = s.AttackRate
			r.Final = []int{s.Final.S, s.Final.E, s.Final.I, s.Final.R}
		}
		runs = append(runs, r)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"experiment_id": expID,
		"elapsed_ms":    elapsed.Milliseconds(),
		"runs":          runs,
	})
}

func shortKey(k string) string {
	if len(k) > 12 {
		return k[:12]
	}
	return k
}
