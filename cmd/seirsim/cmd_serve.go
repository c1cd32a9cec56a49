package main

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/talgya/seir-sim/internal/api"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored results as a read-only JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			addr, _ := cmd.Flags().GetString("addr")
			rate, _ := cmd.Flags().GetInt("curve-rate")
			srv := &api.Server{DB: db, Addr: addr, Version: version, Logger: logger, CurveRate: rate}
			logger.Info("serving results", "db", cfg.Storage.DBPath, "addr", addr)
			if err := srv.ListenAndServe(cmd.Context()); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", ":8080", "Listen address")
	cmd.Flags().Int("curve-rate", 120, "Per-IP requests per minute on curve endpoints")
	return cmd
}
