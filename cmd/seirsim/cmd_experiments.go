package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/seir-sim/internal/persistence"
)

func newExperimentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "experiments",
		Aliases: []string{"exp"},
		Short:   "Inspect stored experiments",
	}
	cmd.AddCommand(newExperimentsListCmd(), newExperimentsShowCmd(), newExperimentsDeleteCmd())
	return cmd
}

func newExperimentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored experiments, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			recs, err := db.ListExperiments(cmd.Context())
			if err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"experiments": recs,
					"count":       len(recs),
				})
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No experiments stored.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tLAYOUT\tRUNS\tFAILED\tCREATED")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					r.ID[:8], r.Name, r.Layout, r.NRuns, r.Failed, humanize.Time(r.Created()))
			}
			return tw.Flush()
		},
	}
}

func newExperimentsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show the configuration and run summaries of an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			rec, err := db.GetExperiment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			runs, err := db.ListRuns(cmd.Context(), rec.ID)
			if err != nil {
				return err
			}
			cfg, err := rec.Config()
			if err != nil {
				return err
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"experiment": rec,
					"config":     cfg,
					"runs":       runs,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Experiment %s (%s)\n", rec.ID, rec.Name)
			fmt.Fprintf(out, "  created   %s (%s)\n", rec.Created().Format("2006-01-02 15:04:05"), humanize.Time(rec.Created()))
			fmt.Fprintf(out, "  layout    %s, heatmap %s\n", rec.Layout, shortKey(rec.HeatmapKey))
			fmt.Fprintf(out, "  people    %s, p=%.3f, incubation %.0f, infectious %.0f, %s ticks\n",
				humanize.Comma(int64(cfg.NPeople)), cfg.InfectionProb, cfg.AvgIncubationTime,
				cfg.AvgInfectiousTime, humanize.Comma(int64(cfg.MaxTimestep)))
			fmt.Fprintf(out, "  runs      %d (%d failed)\n\n", rec.NRuns, rec.Failed)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tSEED\tSTATUS\tPEAK I\tPEAK TICK\tATTACK\tFINAL S/E/I/R\tELAPSED")
			for _, r := range runs {
				if r.Status != persistence.StatusOK {
					fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", r.RunIndex, r.Seed, r.Status, r.Error)
					continue
				}
				fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%d\t%.1f%%\t%d/%d/%d/%d\t%dms\n",
					r.RunIndex, r.Seed, r.Status, r.PeakInfectious, r.PeakTick, r.AttackRate*100,
					r.FinalS, r.FinalE, r.FinalI, r.FinalR, r.ElapsedMS)
			}
			return tw.Flush()
		},
	}
}

func newExperimentsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an experiment and its stored runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			rec, err := db.GetExperiment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := db.DeleteExperiment(cmd.Context(), rec.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted experiment %s (%s)\n", rec.ID, rec.Name)
			return nil
		},
	}
}
