// Command tradebot runs the signal executor: it receives strategy alerts
// over a webhook and places the resulting orders on the bot's exchange.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/Hidayat0507/tradebot/internal/config"
)

var cfgFile string

func main() {
	// Wipe sealed key material on SIGINT/SIGTERM before exit.
	memguard.CatchInterrupt()
	defer memguard.Purge()

	rootCmd := &cobra.Command{
		Use:           "tradebot",
		Short:         "Webhook-driven crypto order executor",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.toml", "path to configuration file")

	rootCmd.AddCommand(serveCmd(), archiveCmd(), archivesCmd(), encryptSecretCmd(), genKeyCmd(), rotateSecretCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		memguard.SafeExit(1)
	}
}

// loadConfig loads and validates the configuration and installs a JSON
// logger at the configured level.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", cfgFile, err)
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled)
}
