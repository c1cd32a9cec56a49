package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/seir-sim/internal/config"
	"github.com/talgya/seir-sim/internal/pathfind"
)

func newHeatmapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heatmap",
		Short: "Manage precomputed navigation heatmaps",
	}
	cmd.AddCommand(newHeatmapComputeCmd(), newHeatmapVerifyCmd())
	return cmd
}

func newHeatmapComputeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compute",
		Short: "Compute the heatmap of the configured layout and write the artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd, func(cfg *config.Experiment) {
				cfg.Heatmap.Mode = string(pathfind.ModeCompute)
			})
			if err != nil {
				return err
			}
			layout, err := cfg.BuildLayout()
			if err != nil {
				return err
			}
			provider, err := cfg.Provider(logger)
			if err != nil {
				return err
			}

			start := time.Now()
			hm, err := provider.Heatmap(layout)
			if err != nil {
				return err
			}
			path := pathfind.ArtifactPath(cfg.Heatmap.Dir, layout.Name)
			var size uint64
			if info, err := os.Stat(path); err == nil {
				size = uint64(info.Size())
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"path":    path,
					"key":     hm.Key,
					"targets": hm.Targets(),
					"bytes":   size,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d targets on %dx%d, %s, key %s (%s)\n",
				path, hm.Targets(), hm.Width, hm.Height, humanize.Bytes(size), shortKey(hm.Key),
				time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func newHeatmapVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the stored artifact is readable and matches the configured layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			layout, err := cfg.BuildLayout()
			if err != nil {
				return err
			}
			path := pathfind.ArtifactPath(cfg.Heatmap.Dir, layout.Name)
			want := pathfind.Key(&layout, pathfind.Params{WallAvoidance: cfg.Heatmap.WallAvoidance})

			hdr, err := pathfind.ReadHeader(path)
			if err != nil {
				return err
			}
			if _, err := pathfind.Load(path); err != nil {
				return err
			}
			if hdr.Key != want {
				return &pathfind.StaleArtifactError{Path: path, Want: want, Got: hdr.Key}
			}

			var size uint64
			if info, err := os.Stat(path); err == nil {
				size = uint64(info.Size())
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"path":   path,
					"header": hdr,
					"bytes":  size,
					"fresh":  true,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, layout %s, %d targets on %dx%d, %s, format v%d\n",
				path, hdr.Layout, hdr.Targets, hdr.Width, hdr.Height, humanize.Bytes(size), hdr.Version)
			return nil
		},
	}
}
