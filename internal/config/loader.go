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

// Load decodes the TOML file at path over Defaults, loads .env if present,
// and applies HEDGEBOT_* environment overrides. A missing file is allowed so
// the bot can be configured from the environment alone. The result is not
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "HEDGEBOT_MODE")

	// ── Log ──
	setStr(&cfg.Log.Level, "HEDGEBOT_LOG_LEVEL")
	setStr(&cfg.Log.Format, "HEDGEBOT_LOG_FORMAT")
	setStr(&cfg.Log.File, "HEDGEBOT_LOG_FILE")

	// ── Trading ──
	setStr(&cfg.Trading.Strategy, "HEDGEBOT_TRADING_STRATEGY")
	setStr(&cfg.Trading.FixedDirection, "HEDGEBOT_TRADING_FIXED_DIRECTION")
	setStr(&cfg.Trading.SymbolA, "HEDGEBOT_TRADING_SYMBOL_A")
	setStr(&cfg.Trading.SymbolB, "HEDGEBOT_TRADING_SYMBOL_B")
	setStr(&cfg.Trading.Amount, "HEDGEBOT_TRADING_AMOUNT")
	setFloat64(&cfg.Trading.OpenThresholdPct, "HEDGEBOT_TRADING_OPEN_THRESHOLD_PCT")
	setFloat64(&cfg.Trading.CloseThresholdPct, "HEDGEBOT_TRADING_CLOSE_THRESHOLD_PCT")
	setDuration(&cfg.Trading.MaxHold, "HEDGEBOT_TRADING_MAX_HOLD")
	setBool(&cfg.Trading.DryRun, "HEDGEBOT_TRADING_DRY_RUN")
	setDuration(&cfg.Trading.Interval, "HEDGEBOT_TRADING_INTERVAL")
	setDuration(&cfg.Trading.LegTimeout, "HEDGEBOT_TRADING_LEG_TIMEOUT")
	setDuration(&cfg.Trading.RollbackTimeout, "HEDGEBOT_TRADING_ROLLBACK_TIMEOUT")
	setBool(&cfg.Trading.Reconcile, "HEDGEBOT_TRADING_RECONCILE")
	setDuration(&cfg.Trading.LockTTL, "HEDGEBOT_TRADING_LOCK_TTL")
	setDuration(&cfg.Trading.SnapshotTimeout, "HEDGEBOT_TRADING_SNAPSHOT_TIMEOUT")
	setDuration(&cfg.Trading.PersistTimeout, "HEDGEBOT_TRADING_PERSIST_TIMEOUT")

	// ── Venues ──
	setStr(&cfg.Venues.Backpack.BaseURL, "HEDGEBOT_BACKPACK_BASE_URL")
	setStr(&cfg.Venues.Backpack.APIKey, "HEDGEBOT_BACKPACK_API_KEY")
	setStr(&cfg.Venues.Backpack.APISecret, "HEDGEBOT_BACKPACK_API_SECRET")
	setStr(&cfg.Venues.Hyperliquid.BaseURL, "HEDGEBOT_HYPERLIQUID_BASE_URL")
	setStr(&cfg.Venues.Hyperliquid.PrivateKey, "HEDGEBOT_HYPERLIQUID_PRIVATE_KEY")
	setStr(&cfg.Venues.Hyperliquid.EncryptedKeyPath, "HEDGEBOT_HYPERLIQUID_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Venues.Hyperliquid.KeyPassword, "HEDGEBOT_HYPERLIQUID_KEY_PASSWORD")
	setStr(&cfg.Venues.Hyperliquid.AccountAddress, "HEDGEBOT_HYPERLIQUID_ACCOUNT_ADDRESS")
	setBool(&cfg.Venues.Hyperliquid.Testnet, "HEDGEBOT_HYPERLIQUID_TESTNET")

	// ── Store ──
	setStr(&cfg.Store.Backend, "HEDGEBOT_STORE_BACKEND")
	setStr(&cfg.Store.SQLitePath, "HEDGEBOT_STORE_SQLITE_PATH")
	setBool(&cfg.Store.RunMigrations, "HEDGEBOT_STORE_RUN_MIGRATIONS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "HEDGEBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "HEDGEBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HEDGEBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HEDGEBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HEDGEBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HEDGEBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HEDGEBOT_POSTGRES_SSL_MODE")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "HEDGEBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "HEDGEBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HEDGEBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HEDGEBOT_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "HEDGEBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "HEDGEBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "HEDGEBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HEDGEBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "HEDGEBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HEDGEBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HEDGEBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "HEDGEBOT_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "HEDGEBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "HEDGEBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "HEDGEBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "HEDGEBOT_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HEDGEBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HEDGEBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "HEDGEBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "HEDGEBOT_NOTIFY_EVENTS")
}

// Each helper only writes when the variable is set and parses.

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

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
