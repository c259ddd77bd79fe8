package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Hidayat0507/tradebot/internal/archive"
	"github.com/Hidayat0507/tradebot/internal/config"
	"github.com/Hidayat0507/tradebot/internal/credentials"
	"github.com/Hidayat0507/tradebot/internal/exchange"
	"github.com/Hidayat0507/tradebot/internal/exchange/binance"
	"github.com/Hidayat0507/tradebot/internal/exchange/hyperliquid"
	"github.com/Hidayat0507/tradebot/internal/exchange/okx"
	"github.com/Hidayat0507/tradebot/internal/exchange/paper"
	"github.com/Hidayat0507/tradebot/internal/executor"
	"github.com/Hidayat0507/tradebot/internal/server"
	"github.com/Hidayat0507/tradebot/internal/server/handler"
	"github.com/Hidayat0507/tradebot/internal/server/middleware"
	"github.com/Hidayat0507/tradebot/internal/server/ws"
	"github.com/Hidayat0507/tradebot/internal/service"
	"github.com/Hidayat0507/tradebot/internal/signal"
	"github.com/Hidayat0507/tradebot/internal/sizing"
)

const (
	limiterSweepEvery = 5 * time.Minute
	shutdownTimeout   = 10 * time.Second
)

// NewRegistry registers every enabled venue from cfg.
func NewRegistry(cfg *config.Config, logger *slog.Logger) *exchange.Registry {
	constructors := map[string]func(exchange.VenueConfig, *slog.Logger) exchange.Venue{
		binance.ID:     func(c exchange.VenueConfig, l *slog.Logger) exchange.Venue { return binance.New(c, l) },
		okx.ID:         func(c exchange.VenueConfig, l *slog.Logger) exchange.Venue { return okx.New(c, l) },
		hyperliquid.ID: func(c exchange.VenueConfig, l *slog.Logger) exchange.Venue { return hyperliquid.New(c, l) },
	}

	reg := exchange.NewRegistry()
	for id, build := range constructors {
		ex, ok := cfg.Exchanges[id]
		if !ok || !ex.Enabled {
			continue
		}
		reg.Register(build(exchange.VenueConfig{
			BaseURL:           ex.BaseURL,
			Testnet:           ex.Testnet,
			Timeout:           ex.Timeout.Duration,
			RequestsPerSecond: ex.RequestsPerSecond,
			MinOrderUSD:       ex.MinOrderUSD,
		}, logger))
		logger.Info("venue registered", slog.String("exchange", id), slog.Bool("testnet", ex.Testnet))
	}
	return reg
}

// NewSignalService assembles the pipeline. The returned executor must be
// run for its dedup cleanup.
func NewSignalService(cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*service.SignalService, *executor.Executor) {
	reg := NewRegistry(cfg, logger)

	var opts []exchange.FactoryOption
	if cfg.Execution.Mode == "paper" {
		sim := paper.New(cfg.Execution.PaperBalances, logger)
		opts = append(opts, exchange.WithSimulator(sim.Wrap))
	}
	exec := executor.NewExecutor(cfg.Execution.DedupWindow.Duration, logger)

	svc := service.NewSignalService(service.Deps{
		Bots:          deps.Bots,
		Authenticator: signal.NewAuthenticator(cfg.Webhook.HashKey),
		Validator:     signal.NewValidator(cfg.Webhook.TokenField),
		Resolver:      credentials.NewResolver(deps.Bots, reg, deps.Keys, logger),
		Factory:       exchange.NewFactory(reg, opts...),
		Sizer:         sizing.NewEngine(cfg.Sizing.CurrencyAliases, logger),
		Executor:      exec,
		Recorder:      service.NewTradeRecorder(deps.Trades, logger),
		MarketData:    deps.MarketData,
		Bus:           deps.SignalBus,
		Audit:         deps.Audit,
		Notifier:      deps.Notifier,
		Metrics:       deps.Metrics,
	}, logger)
	return svc, exec
}

// ServeMode runs the HTTP server, the WebSocket hub and the background
// housekeeping until ctx is cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	svc, exec := NewSignalService(a.cfg, deps, a.logger)

	var sched *archive.Scheduler
	if a.cfg.S3.Schedule != "" {
		archiver, err := WireArchiver(ctx, a.cfg, deps, a.logger)
		if err != nil {
			return err
		}
		sched = archive.NewScheduler(archiver, a.cfg.S3.RetentionDays, a.logger)
	}

	g, ctx := errgroup.WithContext(ctx)
	if sched != nil {
		g.Go(func() error {
			return sched.RunCron(ctx, a.cfg.S3.Schedule)
		})
	}

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:           a.cfg.Execution.Mode,
		Replay:         a.cfg.Server.WSReplay,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
		StartedAt:      time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		return exec.Run(ctx)
	})

	if deps.localLimiter != nil {
		g.Go(func() error {
			ticker := time.NewTicker(limiterSweepEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					deps.localLimiter.Sweep(2 * a.cfg.Server.RateWindow.Duration)
				}
			}
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit: middleware.RateLimitConfig{
			Limit:      a.cfg.Server.RateLimit,
			Window:     a.cfg.Server.RateWindow.Duration,
			Prefix:     "ratelimit:webhook:",
			TrustProxy: a.cfg.Server.TrustProxy,
		},
	}, server.Handlers{
		Health:  handler.NewHealthHandler(deps.Pingers, a.cfg.Execution.Mode, a.logger),
		Webhook: handler.NewWebhookHandler(svc, a.logger),
		Trades:  handler.NewTradeHandler(svc, a.logger),
		Audit:   handler.NewAuditHandler(deps.Audit, a.logger),
		Metrics: deps.Metrics.Handler(),
	}, deps.RateLimiter, hub, a.logger)

	if a.cfg.Server.APIKey == "" {
		a.logger.WarnContext(ctx, "server.api_key is empty; operator endpoints are unauthenticated")
	}

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// ArchiveMode archives trades older than s3.retention_days.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) (int64, error) {
	archiver, err := WireArchiver(ctx, a.cfg, deps, a.logger)
	if err != nil {
		return 0, err
	}
	return archive.NewScheduler(archiver, a.cfg.S3.RetentionDays, a.logger).Run(ctx)
}
