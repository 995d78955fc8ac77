package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/hedgebot/internal/blob/s3"
	"github.com/alanyoungcy/hedgebot/internal/cache/redis"
	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/crypto"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/notify"
	"github.com/alanyoungcy/hedgebot/internal/platform/backpack"
	"github.com/alanyoungcy/hedgebot/internal/platform/hyperliquid"
	"github.com/alanyoungcy/hedgebot/internal/store/memory"
	"github.com/alanyoungcy/hedgebot/internal/store/postgres"
	"github.com/alanyoungcy/hedgebot/internal/store/sqlite"
)

// Dependencies bundles everything the modes need. It is built by Wire and
// torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	State    domain.StateStore
	Attempts domain.AttemptStore
	Audit    domain.AuditStore
	Lock     domain.LockManager

	// Optional Redis-backed services. PriceCache and RateLimiter are nil
	// without Redis; Bus falls back to an in-process bus.
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	Bus         domain.SignalBus

	// Archiver is nil unless S3 is enabled.
	Archiver *s3blob.Archiver

	Notifier *notify.Notifier

	VenueA *backpack.Client
	VenueB *hyperliquid.Client
}

// trailArchiver returns the archiver as an interface, nil when S3 is off.
func (d *Dependencies) trailArchiver() domain.TrailArchiver {
	if d.Archiver == nil {
		return nil
	}
	return d.Archiver
}

// needsStore reports whether mode reads or writes the position.
func needsStore(mode string) bool {
	switch mode {
	case "trade", "monitor":
		return true
	default:
		return false
	}
}

// Wire constructs the concrete dependencies for cfg and returns them with a
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

	deps := &Dependencies{}

	// --- State store ---
	if needsStore(cfg.Mode) {
		closeStore, err := wireStore(ctx, cfg, deps, logger)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, closeStore)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient, 10*cfg.Trading.Interval.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, max(cfg.Feed.RateLimitPerSec, 1), time.Second)
		deps.Bus = redis.NewSignalBus(redisClient, 10000)
		// The advisory lock already lives next to postgres state.
		if deps.Lock == nil {
			deps.Lock = redis.NewLockManager(redisClient)
		}
		logger.Info("redis connected", slog.String("addr", cfg.Redis.Addr))
	}
	if deps.Bus == nil {
		deps.Bus = memory.NewSignalBus(1000)
	}
	if deps.Lock == nil {
		deps.Lock = memory.NewLockManager()
	}

	// --- S3 attempt archive ---
	if cfg.S3.Enabled && needsStore(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.Warn("s3 bucket not reachable, archiving will retry per attempt", slog.String("error", err.Error()))
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Audit)
	}

	// --- Venues ---
	a, b, err := wireVenues(cfg)
	if err != nil {
		return fail(err)
	}
	deps.VenueA, deps.VenueB = a, b

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		tg, err := notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			return fail(fmt.Errorf("wire: telegram: %w", err))
		}
		senders = append(senders, tg)
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.Critical, logger)

	return deps, cleanup, nil
}

// wireStore opens the configured backend and fills the store fields.
func wireStore(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("wire: postgres: %w", err)
		}
		if cfg.Store.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				pgClient.Close()
				return nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		pool := pgClient.Pool()
		deps.State = postgres.NewStateStore(pool)
		deps.Attempts = postgres.NewAttemptStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Lock = postgres.NewAdvisoryLock(pool)
		logger.Info("state store: postgres")
		return pgClient.Close, nil

	case "sqlite":
		st, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("wire: sqlite: %w", err)
		}
		deps.State, deps.Attempts, deps.Audit = st, st, st
		logger.Info("state store: sqlite", slog.String("path", cfg.Store.SQLitePath))
		return func() { _ = st.Close() }, nil

	case "memory":
		deps.State = memory.NewStateStore()
		deps.Attempts = memory.NewAttemptStore(cfg.Store.AttemptLimit)
		deps.Audit = memory.NewAuditStore()
		logger.Warn("state store: memory, the position is lost on restart")
		return func() {}, nil

	default:
		return nil, fmt.Errorf("wire: unknown store backend %q", cfg.Store.Backend)
	}
}

// wireVenues builds Backpack as venue A and Hyperliquid as venue B. Missing
// credentials leave a client that can only read prices.
func wireVenues(cfg *config.Config) (*backpack.Client, *hyperliquid.Client, error) {
	bp := cfg.Venues.Backpack
	var secret string
	if src := (crypto.KeySource{Raw: bp.APISecret}); src.Configured() {
		s, err := crypto.LoadSecret(src)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: backpack secret: %w", err)
		}
		secret = s
	}
	a, err := backpack.NewClient(backpack.Config{
		BaseURL:   bp.BaseURL,
		APIKey:    bp.APIKey,
		APISecret: secret,
		Window:    time.Duration(bp.WindowMs) * time.Millisecond,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}

	hl := cfg.Venues.Hyperliquid
	if hl.Testnet && hl.BaseURL == config.Defaults().Venues.Hyperliquid.BaseURL {
		hl.BaseURL = ""
	}
	var key string
	src := crypto.KeySource{Raw: hl.PrivateKey, SealedPath: hl.EncryptedKeyPath, Password: hl.KeyPassword}
	if src.Configured() {
		key, err = crypto.LoadPrivateKey(src)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: hyperliquid key: %w", err)
		}
	}
	b, err := hyperliquid.NewClient(hyperliquid.Config{
		BaseURL:        hl.BaseURL,
		PrivateKey:     key,
		AccountAddress: hl.AccountAddress,
		Testnet:        hl.Testnet,
		SlippagePct:    hl.SlippagePct,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	return a, b, nil
}
