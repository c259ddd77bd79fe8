package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Hidayat0507/tradebot/internal/app"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			logger.Info("tradebot starting",
				slog.String("config", cfgFile),
				slog.String("execution", cfg.Execution.Mode),
			)

			ctx, stop := signalContext()
			defer stop()

			application := app.New(cfg, logger)
			defer application.Close()

			if err := application.Run(ctx); err != nil && !isShutdown(err) {
				return err
			}
			logger.Info("tradebot stopped")
			return nil
		},
	}
}

func archiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Move trades older than s3.retention_days to the archive bucket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()

			application := app.New(cfg, logger)
			defer application.Close()

			n, err := application.Archive(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archived %d trades\n", n)
			return nil
		},
	}
}
