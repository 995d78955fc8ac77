// Package config defines the hedgebot configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration. Fields are populated from a TOML file
// and then overridden by HEDGEBOT_* environment variables.
type Config struct {
	Mode     string         `toml:"mode"`
	Log      LogConfig      `toml:"log"`
	Trading  TradingConfig  `toml:"trading"`
	Venues   VenuesConfig   `toml:"venues"`
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Feed     FeedConfig     `toml:"feed"`
}

// LogConfig controls the slog handler and optional file rotation.
type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// TradingConfig holds the pair, the trigger and the execution timeouts.
type TradingConfig struct {
	Strategy          string   `toml:"strategy"`
	FixedDirection    string   `toml:"fixed_direction"`
	SymbolA           string   `toml:"symbol_a"`
	SymbolB           string   `toml:"symbol_b"`
	Amount            string   `toml:"amount"`
	OpenThresholdPct  float64  `toml:"open_threshold_pct"`
	CloseThresholdPct float64  `toml:"close_threshold_pct"`
	MaxHold           duration `toml:"max_hold"`
	DryRun            bool     `toml:"dry_run"`
	Interval          duration `toml:"interval"`
	LegTimeout        duration `toml:"leg_timeout"`
	RollbackTimeout   duration `toml:"rollback_timeout"`
	MaxQuoteAge       duration `toml:"max_quote_age"`
	Reconcile         bool     `toml:"reconcile"`
	LockTTL           duration `toml:"lock_ttl"`
	// SnapshotTimeout bounds the price read, feed retries included.
	SnapshotTimeout duration `toml:"snapshot_timeout"`
	// PersistTimeout bounds each store call made while the lock is held.
	PersistTimeout duration `toml:"persist_timeout"`
}

// CycleBudget is the longest a trade cycle can hold the cycle lock. Legs
// run concurrently and count once; reconciliation may look up both legs in
// turn after them.
func (t TradingConfig) CycleBudget() time.Duration {
	budget := t.SnapshotTimeout.Duration + t.LegTimeout.Duration + t.RollbackTimeout.Duration
	if t.Reconcile {
		budget += 2 * t.LegTimeout.Duration
	}
	// One load before the trade and one save after it.
	return budget + 2*t.PersistTimeout.Duration
}

// VenuesConfig holds one section per venue. Backpack is venue A and
// Hyperliquid is venue B.
type VenuesConfig struct {
	Backpack    BackpackConfig    `toml:"backpack"`
	Hyperliquid HyperliquidConfig `toml:"hyperliquid"`
}

// BackpackConfig holds Backpack Exchange API credentials.
type BackpackConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	APISecret string `toml:"api_secret"`
	WindowMs  int    `toml:"window_ms"`
}

// HyperliquidConfig holds the Hyperliquid signing key and account.
type HyperliquidConfig struct {
	BaseURL          string  `toml:"base_url"`
	PrivateKey       string  `toml:"private_key"`
	EncryptedKeyPath string  `toml:"encrypted_key_path"`
	KeyPassword      string  `toml:"key_password"`
	AccountAddress   string  `toml:"account_address"`
	Testnet          bool    `toml:"testnet"`
	SlippagePct      float64 `toml:"slippage_pct"`
}

// StoreConfig selects the durable state backend.
type StoreConfig struct {
	Backend       string `toml:"backend"`
	SQLitePath    string `toml:"sqlite_path"`
	RunMigrations bool   `toml:"run_migrations"`
	AttemptLimit  int    `toml:"attempt_limit"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds object storage parameters for the attempt archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
	// ExportCron schedules the daily JSONL export of the previous day.
	ExportCron string `toml:"export_cron"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled      bool     `toml:"enabled"`
	Port         int      `toml:"port"`
	APIKey       string   `toml:"api_key"`
	CORSOrigins  []string `toml:"cors_origins"`
	ReadTimeout  duration `toml:"read_timeout"`
	WriteTimeout duration `toml:"write_timeout"`
	RateLimit    int      `toml:"rate_limit_per_min"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Critical          []string `toml:"critical"`
}

// FeedConfig tunes price polling.
type FeedConfig struct {
	MaxRetries      int      `toml:"max_retries"`
	InitialBackoff  duration `toml:"initial_backoff"`
	MaxBackoff      duration `toml:"max_backoff"`
	RateLimitPerSec int      `toml:"rate_limit_per_sec"`
}

// duration decodes TOML strings such as "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the configuration used when a key is absent.
func Defaults() Config {
	return Config{
		Mode: "trade",
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Trading: TradingConfig{
			Strategy:          "spread",
			FixedDirection:    "short_a_long_b",
			SymbolA:           "BTC_USDC",
			SymbolB:           "BTC",
			Amount:            "0.001",
			OpenThresholdPct:  0.05,
			CloseThresholdPct: 0.01,
			MaxHold:           duration{10 * time.Minute},
			DryRun:            true,
			Interval:          duration{5 * time.Second},
			LegTimeout:        duration{10 * time.Second},
			RollbackTimeout:   duration{15 * time.Second},
			MaxQuoteAge:       duration{30 * time.Second},
			Reconcile:         true,
			LockTTL:           duration{3 * time.Minute},
			SnapshotTimeout:   duration{90 * time.Second},
			PersistTimeout:    duration{10 * time.Second},
		},
		Venues: VenuesConfig{
			Backpack:    BackpackConfig{BaseURL: "https://api.backpack.exchange", WindowMs: 5000},
			Hyperliquid: HyperliquidConfig{BaseURL: "https://api.hyperliquid.xyz", SlippagePct: 5},
		},
		Store: StoreConfig{
			Backend:       "sqlite",
			SQLitePath:    "bot_state.db",
			RunMigrations: true,
			AttemptLimit:  500,
		},
		Postgres: PostgresConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "hedgebot",
			User:         "hedgebot",
			SSLMode:      "disable",
			PoolMaxConns: 5,
			PoolMinConns: 1,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "hedgebot",
		},
		S3: S3Config{
			Region:     "us-east-1",
			UseSSL:     true,
			Prefix:     "hedgebot",
			ExportCron: "10 0 * * *",
		},
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  duration{10 * time.Second},
			WriteTimeout: duration{10 * time.Second},
			RateLimit:    120,
		},
		Notify: NotifyConfig{
			Critical: []string{"stuck", "ambiguous_leg", "partial_fill"},
		},
		Feed: FeedConfig{
			MaxRetries:      2,
			InitialBackoff:  duration{20 * time.Second},
			MaxBackoff:      duration{60 * time.Second},
			RateLimitPerSec: 5,
		},
	}
}

var validModes = map[string]bool{
	"trade":     true,
	"monitor":   true,
	"preflight": true,
	"balance":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{
	"postgres": true,
	"sqlite":   true,
	"memory":   true,
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor, preflight, balance)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("unknown log.level %q (valid: debug, info, warn, error)", c.Log.Level))
	}
	if f := strings.ToLower(c.Log.Format); f != "json" && f != "text" {
		errs = append(errs, fmt.Sprintf("log.format must be json or text, got %q", c.Log.Format))
	}

	t := c.Trading
	switch t.Strategy {
	case "spread":
		if t.OpenThresholdPct <= 0 {
			errs = append(errs, "trading: open_threshold_pct must be positive")
		}
		if t.CloseThresholdPct >= t.OpenThresholdPct {
			errs = append(errs, "trading: close_threshold_pct must be below open_threshold_pct")
		}
	case "timebox":
		if t.FixedDirection != "long_a_short_b" && t.FixedDirection != "short_a_long_b" {
			errs = append(errs, fmt.Sprintf("trading: fixed_direction %q is not a direction", t.FixedDirection))
		}
	default:
		errs = append(errs, fmt.Sprintf("trading: unknown strategy %q (valid: spread, timebox)", t.Strategy))
	}
	if t.SymbolA == "" || t.SymbolB == "" {
		errs = append(errs, "trading: symbol_a and symbol_b must be set")
	}
	if _, err := c.Amount(); err != nil {
		errs = append(errs, err.Error())
	}
	if t.MaxHold.Duration <= 0 {
		errs = append(errs, "trading: max_hold must be positive")
	}
	if t.Interval.Duration <= 0 {
		errs = append(errs, "trading: interval must be positive")
	}
	if t.LegTimeout.Duration <= 0 || t.RollbackTimeout.Duration <= 0 {
		errs = append(errs, "trading: leg_timeout and rollback_timeout must be positive")
	}
	if t.SnapshotTimeout.Duration <= 0 || t.PersistTimeout.Duration <= 0 {
		errs = append(errs, "trading: snapshot_timeout and persist_timeout must be positive")
	}
	if budget := t.CycleBudget(); t.LockTTL.Duration <= budget {
		errs = append(errs, fmt.Sprintf("trading: lock_ttl %s must exceed the cycle budget %s "+
			"(snapshot_timeout + leg_timeout + rollback_timeout + 2*persist_timeout, plus 2*leg_timeout with reconcile)",
			t.LockTTL.Duration, budget))
	}

	// Live trading and probing need credentials for both venues.
	live := (c.Mode == "trade" && !t.DryRun) || c.Mode == "preflight" || c.Mode == "balance"
	if live {
		if c.Venues.Backpack.APIKey == "" || c.Venues.Backpack.APISecret == "" {
			errs = append(errs, "venues.backpack: api_key and api_secret are required for mode "+c.Mode)
		}
		hl := c.Venues.Hyperliquid
		if hl.PrivateKey == "" && hl.EncryptedKeyPath == "" {
			errs = append(errs, "venues.hyperliquid: private_key or encrypted_key_path is required for mode "+c.Mode)
		}
		if hl.EncryptedKeyPath != "" && hl.KeyPassword == "" {
			errs = append(errs, "venues.hyperliquid: key_password is required when encrypted_key_path is set")
		}
	}

	if !validBackends[c.Store.Backend] {
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: postgres, sqlite, memory)", c.Store.Backend))
	}
	if c.Store.Backend == "sqlite" && c.Store.SQLitePath == "" {
		errs = append(errs, "store: sqlite_path must be set for the sqlite backend")
	}
	if c.Store.Backend == "memory" && c.Mode == "trade" && !t.DryRun {
		errs = append(errs, "store: the memory backend loses the position on restart and is only allowed with dry_run")
	}
	if c.Store.Backend == "postgres" {
		p := c.Postgres
		if strings.TrimSpace(p.DSN) == "" {
			if p.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if p.Port <= 0 || p.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", p.Port))
			}
			if p.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if p.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if p.PoolMinConns > p.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Amount parses trading.amount. It must be positive.
func (c *Config) Amount() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(c.Trading.Amount))
	if err != nil {
		return decimal.Zero, fmt.Errorf("trading: amount %q: %w", c.Trading.Amount, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("trading: amount must be positive, got %s", d)
	}
	return d, nil
}
