package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/Hidayat0507/tradebot/internal/blob/s3"
	"github.com/Hidayat0507/tradebot/internal/cache/memory"
	"github.com/Hidayat0507/tradebot/internal/cache/redis"
	"github.com/Hidayat0507/tradebot/internal/config"
	"github.com/Hidayat0507/tradebot/internal/crypto"
	"github.com/Hidayat0507/tradebot/internal/domain"
	"github.com/Hidayat0507/tradebot/internal/marketdata"
	"github.com/Hidayat0507/tradebot/internal/metrics"
	"github.com/Hidayat0507/tradebot/internal/notify"
	"github.com/Hidayat0507/tradebot/internal/server/handler"
	"github.com/Hidayat0507/tradebot/internal/store/postgres"
	"github.com/Hidayat0507/tradebot/internal/store/sqlite"
)

// Dependencies bundles the infrastructure the modes run on. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Bots   domain.BotStore
	Trades domain.TradeStore
	Audit  domain.AuditStore

	// Shared state. Redis-backed when enabled, process-local otherwise.
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus
	MarketData  marketdata.Store
	// localLimiter is set when the limiter is in-process and needs sweeping.
	localLimiter *memory.RateLimiter

	Keys     *crypto.KeyManager
	Notifier *notify.Notifier
	Metrics  *metrics.Metrics

	// Health probes by dependency name.
	Pingers map[string]handler.Pinger
}

// Wire constructs the concrete dependencies from cfg and returns them with a
// cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Pingers: map[string]handler.Pinger{}}

	// --- Database ---
	switch cfg.Database.Driver {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)
		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		pool := pgClient.Pool()
		deps.Bots = postgres.NewBotStore(pool)
		deps.Trades = postgres.NewTradeStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Pingers["database"] = pgClient

	case "sqlite":
		db, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			return fail(fmt.Errorf("wire: sqlite: %w", err))
		}
		closers = append(closers, func() { _ = db.Close() })
		if cfg.Database.RunMigrations {
			if err := db.Migrate(ctx); err != nil {
				return fail(fmt.Errorf("wire: sqlite migrations: %w", err))
			}
		}
		deps.Bots = sqlite.NewBotStore(db)
		deps.Trades = sqlite.NewTradeStore(db)
		deps.Audit = sqlite.NewAuditStore(db)
		deps.Pingers["database"] = db

	default:
		return fail(fmt.Errorf("wire: unknown database driver %q", cfg.Database.Driver))
	}

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		if cfg.MarketData.Backend == "redis" {
			deps.MarketData = redis.NewMarketDataStore(redisClient)
		}
		deps.Pingers["redis"] = redisClient
	} else {
		deps.localLimiter = memory.NewRateLimiter()
		deps.RateLimiter = deps.localLimiter
		deps.SignalBus = memory.NewSignalBus()
	}
	if deps.MarketData == nil {
		deps.MarketData = marketdata.NewMemoryStore(marketdata.NewCache())
	}

	// --- Credential keys ---
	km, err := crypto.NewKeyManagerFromConfig(cfg.Crypto.Keys, cfg.Crypto.CurrentVersion, cfg.Crypto.Passphrase, cfg.Crypto.Salt)
	if err != nil {
		return fail(fmt.Errorf("wire: key manager: %w", err))
	}
	deps.Keys = km

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	if !deps.Notifier.Enabled() {
		logger.WarnContext(ctx, "no notification channel configured; unrecorded trades will only be logged")
	}

	deps.Metrics = metrics.New()

	return deps, cleanup, nil
}

// WireArchiver connects to the archive bucket and builds a trade archiver
// over deps' stores.
func WireArchiver(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*s3blob.Archiver, error) {
	bucket, err := dialS3(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s3blob.NewArchiver(bucket, bucket, deps.Trades, deps.Audit, logger), nil
}

// NewArchiveReader connects to the archive bucket for read-only access. It
// needs no database.
func NewArchiveReader(ctx context.Context, cfg *config.Config) (domain.BlobReader, error) {
	bucket, err := dialS3(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return bucket, nil
}

func dialS3(ctx context.Context, cfg *config.Config) (*s3blob.Bucket, error) {
	bucket, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.S3.Endpoint,
		Region:         cfg.S3.Region,
		Bucket:         cfg.S3.Bucket,
		AccessKey:      cfg.S3.AccessKey,
		SecretKey:      cfg.S3.SecretKey,
		UseSSL:         cfg.S3.UseSSL,
		ForcePathStyle: cfg.S3.ForcePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("wire: s3: %w", err)
	}
	if err := bucket.Ping(ctx); err != nil {
		return nil, fmt.Errorf("wire: s3: %w", err)
	}
	return bucket, nil
}
