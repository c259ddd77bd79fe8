// Package config defines the top-level configuration for the tradebot
// signal executor and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADEBOT_* environment variables.
type Config struct {
	Server     ServerConfig              `toml:"server"`
	Webhook    WebhookConfig             `toml:"webhook"`
	Database   DatabaseConfig            `toml:"database"`
	Redis      RedisConfig               `toml:"redis"`
	S3         S3Config                  `toml:"s3"`
	Crypto     CryptoConfig              `toml:"crypto"`
	Exchanges  map[string]ExchangeConfig `toml:"exchanges"`
	MarketData MarketDataConfig          `toml:"market_data"`
	Sizing     SizingConfig              `toml:"sizing"`
	Execution  ExecutionConfig           `toml:"execution"`
	Notify     NotifyConfig              `toml:"notify"`
	Mode       string                    `toml:"mode"`
	LogLevel   string                    `toml:"log_level"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit is the number of webhook requests accepted per client IP
	// within RateWindow. Zero disables ingress limiting.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
	// TrustProxy keys the limiter on X-Forwarded-For. Enable only behind a
	// reverse proxy that sets it.
	TrustProxy bool `toml:"trust_proxy"`
	// WSReplay is how many recent trades a new WebSocket client receives.
	WSReplay int `toml:"ws_replay"`
}

// WebhookConfig controls how inbound alerts are authenticated.
type WebhookConfig struct {
	// TokenField is the payload field carrying the per-bot webhook secret.
	TokenField string `toml:"token_field"`
	// HashKey, when set, switches secret comparison to keyed HMAC-SHA256.
	HashKey string `toml:"hash_key"`
}

// DatabaseConfig selects and configures the trade/bot store.
type DatabaseConfig struct {
	Driver        string `toml:"driver"` // "postgres" or "sqlite"
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	SQLitePath    string `toml:"sqlite_path"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; when
// disabled the market data cache, ingress limiter and trade event bus fall
// back to process-local implementations.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the trade archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
	// Schedule is a 5-field UTC cron expression for archiving inside
	// `serve`. Empty leaves archiving to the `archive` command.
	Schedule string `toml:"schedule"`
}

// CryptoConfig holds the master key material used to decrypt stored
// exchange credentials. Keys maps a version number ("1", "2", ...) to a
// base64-encoded 32-byte key. When Passphrase is set instead, version 1 is
// derived from it with PBKDF2 using Salt.
type CryptoConfig struct {
	Keys           map[string]string `toml:"keys"`
	CurrentVersion int               `toml:"current_version"`
	Passphrase     string            `toml:"passphrase"`
	Salt           string            `toml:"salt"`
}

// ExchangeConfig holds per-venue connection settings.
type ExchangeConfig struct {
	Enabled           bool     `toml:"enabled"`
	Testnet           bool     `toml:"testnet"`
	BaseURL           string   `toml:"base_url"`
	Timeout           duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	// MinOrderUSD overrides the venue's built-in minimum order value.
	MinOrderUSD float64 `toml:"min_order_usd"`
}

// MarketDataConfig selects the market data cache backend.
type MarketDataConfig struct {
	Backend string `toml:"backend"` // "memory" or "redis"
}

// SizingConfig holds order sizing parameters.
type SizingConfig struct {
	// CurrencyAliases lists, per primary currency code, the alternative codes
	// a venue may report the same asset under. Order matters.
	CurrencyAliases map[string][]string `toml:"currency_aliases"`
}

// ExecutionConfig controls order submission.
type ExecutionConfig struct {
	Mode string `toml:"mode"` // "live" or "paper"
	// PaperBalances seeds the simulated account in paper mode.
	PaperBalances map[string]float64 `toml:"paper_balances"`
	// DedupWindow rejects an identical alert for the same bot inside the
	// window. Zero disables the guard.
	DedupWindow duration `toml:"dedup_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// Duration wraps d for use in literal configs (tests, defaults).
func Duration(d time.Duration) duration { return duration{d} }

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   60,
			RateWindow:  duration{time.Minute},
			WSReplay:    20,
		},
		Webhook: WebhookConfig{
			TokenField: "secret",
		},
		Database: DatabaseConfig{
			Driver:        "postgres",
			Host:          "localhost",
			Port:          5432,
			Database:      "tradebot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			SQLitePath:    "tradebot.db",
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradebot-archive",
			ForcePathStyle: true,
			RetentionDays:  180,
		},
		Crypto: CryptoConfig{
			Keys:           map[string]string{},
			CurrentVersion: 1,
		},
		Exchanges: map[string]ExchangeConfig{
			"binance": {
				Enabled:           true,
				Timeout:           duration{10 * time.Second},
				RequestsPerSecond: 10,
			},
			"okx": {
				Enabled:           true,
				BaseURL:           "https://www.okx.com",
				Timeout:           duration{10 * time.Second},
				RequestsPerSecond: 10,
			},
			"hyperliquid": {
				Enabled:           true,
				BaseURL:           "https://api.hyperliquid.xyz",
				Timeout:           duration{10 * time.Second},
				RequestsPerSecond: 5,
			},
		},
		MarketData: MarketDataConfig{
			Backend: "memory",
		},
		Sizing: SizingConfig{
			CurrencyAliases: DefaultCurrencyAliases(),
		},
		Execution: ExecutionConfig{
			Mode: "live",
			PaperBalances: map[string]float64{
				"USDT": 10_000,
				"USDC": 10_000,
			},
			DedupWindow: duration{5 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"trade_unrecorded", "execution_failed"},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// DefaultCurrencyAliases returns the built-in alias table. Hyperliquid spot
// lists wrapped assets with a "U" prefix and USDT under "USDT0".
func DefaultCurrencyAliases() map[string][]string {
	return map[string][]string{
		"BTC":  {"UBTC"},
		"ETH":  {"UETH"},
		"SOL":  {"USOL"},
		"USDT": {"USDT0"},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}
	if c.Server.WSReplay < 0 {
		errs = append(errs, "server: ws_replay must be >= 0")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be positive when rate_limit is set")
	}

	// Webhook
	if strings.TrimSpace(c.Webhook.TokenField) == "" {
		errs = append(errs, "webhook: token_field must not be empty")
	}

	// Database
	switch c.Database.Driver {
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			if c.Database.Host == "" {
				errs = append(errs, "database: host must not be empty (or set database.dsn)")
			}
			if c.Database.Port <= 0 || c.Database.Port > 65535 {
				errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
			}
			if c.Database.Database == "" {
				errs = append(errs, "database: database must not be empty")
			}
		}
		if c.Database.PoolMaxConns < 1 {
			errs = append(errs, "database: pool_max_conns must be >= 1")
		}
		if c.Database.PoolMinConns < 0 || c.Database.PoolMinConns > c.Database.PoolMaxConns {
			errs = append(errs, "database: pool_min_conns must be between 0 and pool_max_conns")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			errs = append(errs, "database: sqlite_path must not be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("database: unknown driver %q (valid: postgres, sqlite)", c.Database.Driver))
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Crypto
	if len(c.Crypto.Keys) == 0 && c.Crypto.Passphrase == "" {
		errs = append(errs, "crypto: either keys or passphrase must be set")
	}
	if c.Crypto.Passphrase != "" && c.Crypto.Salt == "" {
		errs = append(errs, "crypto: salt is required when passphrase is set")
	}
	if c.Crypto.CurrentVersion < 1 {
		errs = append(errs, "crypto: current_version must be >= 1")
	}

	// Exchanges
	enabled := 0
	for id, ex := range c.Exchanges {
		if !ex.Enabled {
			continue
		}
		enabled++
		if ex.Timeout.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("exchanges.%s: timeout must be positive", id))
		}
		if ex.RequestsPerSecond < 0 {
			errs = append(errs, fmt.Sprintf("exchanges.%s: requests_per_second must be >= 0", id))
		}
		if ex.MinOrderUSD < 0 {
			errs = append(errs, fmt.Sprintf("exchanges.%s: min_order_usd must be >= 0", id))
		}
	}
	if enabled == 0 {
		errs = append(errs, "exchanges: at least one exchange must be enabled")
	}

	// Market data
	switch c.MarketData.Backend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, "market_data: backend \"redis\" requires redis.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("market_data: unknown backend %q (valid: memory, redis)", c.MarketData.Backend))
	}

	// S3
	if c.S3.Schedule != "" {
		if c.S3.RetentionDays <= 0 {
			errs = append(errs, "s3: retention_days must be positive when schedule is set")
		}
		if len(strings.Fields(c.S3.Schedule)) != 5 {
			errs = append(errs, fmt.Sprintf("s3: schedule %q must have 5 cron fields", c.S3.Schedule))
		}
	}

	// Execution
	switch c.Execution.Mode {
	case "live", "paper":
	default:
		errs = append(errs, fmt.Sprintf("execution: unknown mode %q (valid: live, paper)", c.Execution.Mode))
	}
	if c.Execution.DedupWindow.Duration < 0 {
		errs = append(errs, "execution: dedup_window must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
