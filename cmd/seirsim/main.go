// Command seirsim runs SEIR epidemic experiments on a campus of walking
// agents and manages the heatmap cache and stored results.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talgya/seir-sim/internal/config"
	"github.com/talgya/seir-sim/internal/logging"
	"github.com/talgya/seir-sim/internal/persistence"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "seirsim",
		Short: "Agent-based SEIR simulator on a walled campus",
		Long: `seirsim moves particle agents between target buildings along
precomputed navigation heatmaps and spreads an infection through
proximity contacts. Each experiment runs n_runs seeded trials in parallel
and stores the per-tick S/E/I/R counts.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Experiment config file (YAML)")
	rootCmd.PersistentFlags().String("db", "", "Result database path (overrides storage.db_path)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newHeatmapCmd(),
		newExperimentsCmd(),
		newExportCmd(),
		newServeCmd(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "seirsim version %s\n", version)
			}
		},
	}
}

// loadConfig reads the experiment config named by --config, applies
// environment overrides, the --db flag and any command overrides, then
// validates it and installs the configured logger as the slog default.
func loadConfig(cmd *cobra.Command, overrides ...func(*config.Experiment)) (*config.Experiment, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Storage.DBPath = db
	}
	for _, apply := range overrides {
		apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger := logging.NewLogger(cfg.LogLevel(), os.Stderr)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// openStore opens the result database named by --db or the config.
func openStore(cmd *cobra.Command) (*persistence.DB, error) {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		cfgPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		path = cfg.Storage.DBPath
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no result database at %s (run an experiment first): %w", path, err)
	}
	return persistence.Open(path)
}
