// Package app wires the signal executor together: stores, optional Redis,
// exchange venues, the signal pipeline, the archive and the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Hidayat0507/tradebot/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

func (a *App) wire(ctx context.Context) (*Dependencies, error) {
	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	return deps, nil
}

// Run wires all dependencies and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("execution", a.cfg.Execution.Mode),
		slog.String("database", a.cfg.Database.Driver),
		slog.Bool("redis", a.cfg.Redis.Enabled),
	)
	a.logger.DebugContext(ctx, "effective configuration", slog.Any("config", config.RedactedConfig(a.cfg)))

	deps, err := a.wire(ctx)
	if err != nil {
		return err
	}
	return a.ServeMode(ctx, deps)
}

// Archive moves trades older than the configured retention to the archive
// bucket, repeating until nothing is left before the cutoff.
func (a *App) Archive(ctx context.Context) (int64, error) {
	deps, err := a.wire(ctx)
	if err != nil {
		return 0, err
	}
	return a.ArchiveMode(ctx, deps)
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
