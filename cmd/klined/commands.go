package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"kline-service/config"
	"kline-service/internal/logger"
	"kline-service/internal/model"
	sqlitestore "kline-service/internal/store/sqlite"

	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [resolution]",
	Short: "Run one ingest cycle and exit",
	Long:  "Fetch every configured resolution (or only the given one), upsert, sweep retention and exit.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 0 {
			return a.ingestor.RunCycle(ctx)
		}
		res, err := model.ParseResolution(args[0])
		if err != nil {
			return err
		}
		n, err := a.ingestor.FetchAndStore(ctx, res)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stored %d %s candles\n", n, res)
		return nil
	},
}

var retainCmd = &cobra.Command{
	Use:   "retain",
	Short: "Run one retention sweep and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		deleted, err := a.ingestor.Retain(cmd.Context())
		for _, res := range model.AllResolutions {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: deleted %d\n", res, deleted[res])
		}
		return err
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply SQLite schema migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger.Init("klined", logger.ParseLevel(cfg.LogLevel))
		s, err := sqlitestore.Open(cmd.Context(), sqlitestore.Config{DBPath: cfg.SQLitePath})
		if err != nil {
			return err
		}
		defer s.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "schema up to date: %s\n", cfg.SQLitePath)
		return nil
	},
}
