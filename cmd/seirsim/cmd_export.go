package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/talgya/seir-sim/internal/engine"
	"github.com/talgya/seir-sim/internal/persistence"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export the S/E/I/R curves of a stored experiment as CSV",
		Long: `Writes one CSV row per run and tick with the S, E, I and R counts.
Tick 0 is the population right after seeding. With --exposures the exposure
events are written instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			rec, err := db.GetExperiment(ctx, args[0])
			if err != nil {
				return err
			}
			runs, err := db.ListRuns(ctx, rec.ID)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("run") {
				idx, _ := cmd.Flags().GetInt("run")
				runs, err = selectRun(runs, idx)
				if err != nil {
					return err
				}
			}

			var w io.WriteCloser = nopCloser{cmd.OutOrStdout()}
			if out, _ := cmd.Flags().GetString("out"); out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				w = f
			}

			exposures, _ := cmd.Flags().GetBool("exposures")
			return writeCSV(w, func(cw *csv.Writer) error {
				header := []string{"run", "seed", "tick", "susceptible", "exposed", "infectious", "removed"}
				if exposures {
					header = []string{"run", "seed", "tick", "agent", "source", "x", "y"}
				}
				if err := cw.Write(header); err != nil {
					return err
				}
				for _, r := range runs {
					if r.Status != persistence.StatusOK {
						continue
					}
					if err := exportRun(ctx, db, cw, r, exposures); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().Int("run", 0, "Export only this run index")
	cmd.Flags().StringP("out", "o", "", "Output file (default stdout)")
	cmd.Flags().Bool("exposures", false, "Export exposure events instead of counts")
	return cmd
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// writeCSV runs fill against a CSV writer on w, then flushes and closes w.
// It returns the first error of the three steps.
func writeCSV(w io.WriteCloser, fill func(cw *csv.Writer) error) (err error) {
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()
	cw := csv.NewWriter(w)
	if err := fill(cw); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func exportRun(ctx context.Context, db *persistence.DB, cw *csv.Writer, r persistence.RunRecord, exposures bool) error {
	if exposures {
		events, err := db.LoadExposures(ctx, r.ID)
		if err != nil {
			return err
		}
		return writeExposureRows(cw, r, events)
	}
	counts, err := db.LoadRunCounts(ctx, r.ID)
	if err != nil {
		return err
	}
	return writeCountRows(cw, r, counts)
}

func selectRun(runs []persistence.RunRecord, idx int) ([]persistence.RunRecord, error) {
	for _, r := range runs {
		if r.RunIndex == idx {
			if r.Status != persistence.StatusOK {
				return nil, fmt.Errorf("run %d failed: %s", idx, r.Error)
			}
			return []persistence.RunRecord{r}, nil
		}
	}
	return nil, fmt.Errorf("run %d: %w", idx, persistence.ErrNotFound)
}

func writeCountRows(cw *csv.Writer, r persistence.RunRecord, counts []engine.Counts) error {
	run, seed := strconv.Itoa(r.RunIndex), strconv.FormatInt(r.Seed, 10)
	for tick, c := range counts {
		row := []string{run, seed, strconv.Itoa(tick),
			strconv.Itoa(c.S), strconv.Itoa(c.E), strconv.Itoa(c.I), strconv.Itoa(c.R)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func writeExposureRows(cw *csv.Writer, r persistence.RunRecord, events []engine.Exposure) error {
	run, seed := strconv.Itoa(r.RunIndex), strconv.FormatInt(r.Seed, 10)
	for _, e := range events {
		row := []string{run, seed, strconv.Itoa(e.Tick),
			strconv.FormatUint(uint64(e.Agent), 10), strconv.FormatUint(uint64(e.Source), 10),
			strconv.FormatFloat(e.X, 'f', 2, 64), strconv.FormatFloat(e.Y, 'f', 2, 64)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}
