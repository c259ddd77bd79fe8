package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies TRADEBOT_* environment variable overrides, and
// returns the final Config. A missing file is not an error so that
// container deployments can be configured from the environment alone. The
// returned Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known TRADEBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Server ──
	setInt(&cfg.Server.Port, "TRADEBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "TRADEBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADEBOT_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "TRADEBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "TRADEBOT_SERVER_RATE_WINDOW")
	setBool(&cfg.Server.TrustProxy, "TRADEBOT_SERVER_TRUST_PROXY")
	setInt(&cfg.Server.WSReplay, "TRADEBOT_SERVER_WS_REPLAY")

	// ── Webhook ──
	setStr(&cfg.Webhook.TokenField, "TRADEBOT_WEBHOOK_TOKEN_FIELD")
	setStr(&cfg.Webhook.HashKey, "TRADEBOT_WEBHOOK_HASH_KEY")

	// ── Database ──
	setStr(&cfg.Database.Driver, "TRADEBOT_DATABASE_DRIVER")
	setStr(&cfg.Database.DSN, "TRADEBOT_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "TRADEBOT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "TRADEBOT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "TRADEBOT_DATABASE_NAME")
	setStr(&cfg.Database.User, "TRADEBOT_DATABASE_USER")
	setStr(&cfg.Database.Password, "TRADEBOT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "TRADEBOT_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "TRADEBOT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "TRADEBOT_DATABASE_POOL_MIN_CONNS")
	setStr(&cfg.Database.SQLitePath, "TRADEBOT_DATABASE_SQLITE_PATH")
	setBool(&cfg.Database.RunMigrations, "TRADEBOT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "TRADEBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "TRADEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADEBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADEBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADEBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADEBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "TRADEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "TRADEBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADEBOT_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "TRADEBOT_S3_RETENTION_DAYS")
	setStr(&cfg.S3.Schedule, "TRADEBOT_S3_SCHEDULE")

	// ── Crypto ──
	// MASTER_ENCRYPTION_KEY is version 1, MASTER_ENCRYPTION_KEY_V2 version 2, ...
	setMapEntry(cfg.Crypto.Keys, "1", "MASTER_ENCRYPTION_KEY")
	for v := 2; v <= 9; v++ {
		setMapEntry(cfg.Crypto.Keys, strconv.Itoa(v), "MASTER_ENCRYPTION_KEY_V"+strconv.Itoa(v))
	}
	setInt(&cfg.Crypto.CurrentVersion, "TRADEBOT_CRYPTO_CURRENT_VERSION")
	setStr(&cfg.Crypto.Passphrase, "TRADEBOT_CRYPTO_PASSPHRASE")
	setStr(&cfg.Crypto.Salt, "TRADEBOT_CRYPTO_SALT")

	// ── Exchanges ──
	for id, ex := range cfg.Exchanges {
		prefix := "TRADEBOT_EXCHANGE_" + strings.ToUpper(id) + "_"
		setBool(&ex.Enabled, prefix+"ENABLED")
		setBool(&ex.Testnet, prefix+"TESTNET")
		setStr(&ex.BaseURL, prefix+"BASE_URL")
		setDuration(&ex.Timeout, prefix+"TIMEOUT")
		setFloat64(&ex.RequestsPerSecond, prefix+"REQUESTS_PER_SECOND")
		setFloat64(&ex.MinOrderUSD, prefix+"MIN_ORDER_USD")
		cfg.Exchanges[id] = ex
	}

	// ── Market data / execution ──
	setStr(&cfg.MarketData.Backend, "TRADEBOT_MARKET_DATA_BACKEND")
	setStr(&cfg.Execution.Mode, "TRADEBOT_EXECUTION_MODE")
	setDuration(&cfg.Execution.DedupWindow, "TRADEBOT_EXECUTION_DEDUP_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADEBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADEBOT_MODE")
	setStr(&cfg.LogLevel, "TRADEBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setMapEntry(dst map[string]string, mapKey, key string) {
	if v := os.Getenv(key); v != "" && dst != nil {
		dst[mapKey] = v
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
