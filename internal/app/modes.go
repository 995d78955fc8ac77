package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/executor"
	"github.com/alanyoungcy/hedgebot/internal/feed"
	"github.com/alanyoungcy/hedgebot/internal/pkg/retry"
	"github.com/alanyoungcy/hedgebot/internal/server"
	"github.com/alanyoungcy/hedgebot/internal/server/handler"
	"github.com/alanyoungcy/hedgebot/internal/server/ws"
	"github.com/alanyoungcy/hedgebot/internal/strategy"
)

// TradeMode runs a decision cycle every trading.interval until ctx is
// cancelled. Cycles never overlap.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	trigger, err := a.buildTrigger()
	if err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}
	amount, err := a.cfg.Amount()
	if err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}
	t := a.cfg.Trading

	coord := executor.NewCoordinator(deps.VenueA, deps.VenueB, executor.Config{
		LegTimeout:      t.LegTimeout.Duration,
		RollbackTimeout: t.RollbackTimeout.Duration,
		Reconcile:       t.Reconcile,
	}, a.logger)
	poller := a.buildPoller(deps)

	engine := strategy.NewEngine(trigger, coord, poller, deps.State, deps.Lock, strategy.EngineConfig{
		SymbolA:         t.SymbolA,
		SymbolB:         t.SymbolB,
		Amount:          amount,
		DryRun:          t.DryRun,
		LockTTL:         t.LockTTL.Duration,
		SnapshotTimeout: t.SnapshotTimeout.Duration,
		PersistTimeout:  t.PersistTimeout.Duration,
	}, a.logger)
	engine.SetRecorders(deps.Attempts, deps.trailArchiver(), deps.Audit)
	engine.SetBus(deps.Bus)
	if deps.Notifier.Enabled() {
		engine.SetAlerter(deps.Notifier)
	}

	if !t.DryRun {
		a.logger.WarnContext(ctx, "LIVE TRADING: real orders will be placed",
			slog.String("amount", amount.String()),
			slog.String("symbol_a", t.SymbolA),
			slog.String("symbol_b", t.SymbolB),
		)
	}
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.String("trigger", trigger.Name()),
		slog.Bool("dry_run", t.DryRun),
		slog.Duration("interval", t.Interval.Duration),
	)

	g, ctx := errgroup.WithContext(ctx)

	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("trade mode: scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(t.Interval.Duration),
		gocron.NewTask(func() { a.runCycle(ctx, engine) }),
		gocron.WithName("decision_cycle"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("trade mode: schedule cycle: %w", err)
	}
	if err := a.scheduleExport(ctx, s, deps); err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}

	s.Start()
	g.Go(func() error {
		<-ctx.Done()
		// Shutdown waits for a running cycle to finish.
		if err := s.Shutdown(); err != nil {
			a.logger.Error("scheduler shutdown", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, engine, poller, trigger.Name())
	}
	return g.Wait()
}

func (a *App) runCycle(ctx context.Context, engine *strategy.Engine) {
	if ctx.Err() != nil {
		return
	}
	report, err := engine.RunCycle(ctx)
	if err != nil {
		a.logger.Error("cycle failed", slog.String("error", err.Error()))
		return
	}
	if report.Attempt != nil {
		a.logger.Info("cycle traded",
			slog.String("action", string(report.Decision.Action)),
			slog.String("outcome", string(report.Attempt.Outcome.Kind)),
			slog.String("position", string(report.Position.Status)),
			slog.Bool("saved", report.Saved),
		)
	}
}

// scheduleExport adds the daily JSONL export of the previous UTC day when
// S3 is wired.
func (a *App) scheduleExport(ctx context.Context, s gocron.Scheduler, deps *Dependencies) error {
	if deps.Archiver == nil || a.cfg.S3.ExportCron == "" {
		return nil
	}
	_, err := s.NewJob(
		gocron.CronJob(a.cfg.S3.ExportCron, false),
		gocron.NewTask(func() { a.exportYesterday(ctx, deps) }),
		gocron.WithName("attempt_export"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule export %q: %w", a.cfg.S3.ExportCron, err)
	}
	return nil
}

func (a *App) exportYesterday(ctx context.Context, deps *Dependencies) {
	if _, err := a.exportDay(ctx, deps, time.Now().UTC().AddDate(0, 0, -1)); err != nil {
		a.logger.Error("export failed", slog.String("error", err.Error()))
	}
}

// exportDay uploads every attempt started on the UTC day, however many
// attempts have been recorded since.
func (a *App) exportDay(ctx context.Context, deps *Dependencies, day time.Time) (int, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	attempts, err := deps.Attempts.ListBetween(ctx, start, start.AddDate(0, 0, 1))
	if err != nil {
		return 0, fmt.Errorf("export %s: list attempts: %w", start.Format(time.DateOnly), err)
	}
	n, err := deps.Archiver.ExportDay(ctx, start, attempts)
	if err != nil {
		return 0, fmt.Errorf("export %s: %w", start.Format(time.DateOnly), err)
	}
	a.logger.Info("attempts exported", slog.String("day", start.Format(time.DateOnly)), slog.Int("count", n))
	return n, nil
}

// MonitorMode polls both venues each interval and logs the spread and the
// decision a trade cycle would take. It never trades and never saves.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	trigger, err := a.buildTrigger()
	if err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}
	poller := a.buildPoller(deps)
	interval := a.cfg.Trading.Interval.Duration

	a.logger.InfoContext(ctx, "starting monitor mode",
		slog.String("trigger", trigger.Name()),
		slog.Duration("interval", interval),
	)

	g, ctx := errgroup.WithContext(ctx)
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("monitor mode: scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { a.observe(ctx, trigger, poller, deps.State) }),
		gocron.WithName("monitor"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("monitor mode: schedule: %w", err)
	}
	s.Start()
	g.Go(func() error {
		<-ctx.Done()
		_ = s.Shutdown()
		return ctx.Err()
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, nil, poller, trigger.Name())
	}
	return g.Wait()
}

func (a *App) observe(ctx context.Context, trigger strategy.Trigger, prices *feed.Poller, state domain.StateStore) {
	snap, err := prices.Snapshot(ctx)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Warn("monitor: snapshot failed", slog.String("error", err.Error()))
		}
		return
	}
	pos, err := state.Load(ctx)
	if err != nil {
		a.logger.Warn("monitor: load position failed", slog.String("error", err.Error()))
		pos = domain.FlatPosition()
	}
	d := strategy.Evaluate(trigger, pos, snap, time.Now())
	a.logger.Info("spread",
		slog.Float64("price_a", snap.A.Price),
		slog.Float64("price_b", snap.B.Price),
		slog.Float64("spread_pct", d.SpreadPct),
		slog.String("position", string(pos.Status)),
		slog.String("would_do", string(d.Action)),
		slog.String("direction", string(d.Direction)),
		slog.String("reason", d.Reason),
	)
}

// PreflightMode verifies trading permissions on both venues with a limit order
// far below market that is cancelled right away.
func (a *App) PreflightMode(ctx context.Context, deps *Dependencies) error {
	amount, err := a.cfg.Amount()
	if err != nil {
		return fmt.Errorf("preflight mode: %w", err)
	}
	targets := []preflightTarget{
		{symbol: a.cfg.Trading.SymbolA, venue: deps.VenueA, prices: deps.VenueA},
		{symbol: a.cfg.Trading.SymbolB, venue: deps.VenueB, prices: deps.VenueB},
	}
	var errs []error
	for _, t := range targets {
		res := preflightVenue(ctx, t, amount, preflightHold)
		attrs := []any{
			slog.String("venue", res.Venue),
			slog.String("status", string(res.Status)),
			slog.String("detail", res.Detail),
		}
		switch res.Status {
		case preflightVerified, preflightFundsOnly:
			a.logger.InfoContext(ctx, "preflight", attrs...)
		default:
			a.logger.ErrorContext(ctx, "preflight", attrs...)
			errs = append(errs, fmt.Errorf("preflight %s: %s: %s", res.Venue, res.Status, res.Detail))
		}
	}
	return errors.Join(errs...)
}

// BalanceMode logs the USDC balance of each venue.
func (a *App) BalanceMode(ctx context.Context, deps *Dependencies) error {
	var errs []error
	for _, v := range []domain.VenueAdapter{deps.VenueA, deps.VenueB} {
		reader, ok := v.(domain.BalanceReader)
		if !ok {
			a.logger.WarnContext(ctx, "venue does not report balances", slog.String("venue", v.Name()))
			continue
		}
		balances, err := reader.Balances(ctx)
		if err != nil {
			a.logger.ErrorContext(ctx, "balance query failed",
				slog.String("venue", v.Name()),
				slog.String("kind", string(domain.KindOf(err))),
				slog.String("error", err.Error()),
			)
			errs = append(errs, err)
			continue
		}
		usdc, found := findAsset(balances, "USDC")
		a.logger.InfoContext(ctx, "balance",
			slog.String("venue", v.Name()),
			slog.Bool("usdc_found", found),
			slog.String("usdc_total", usdc.Total.String()),
			slog.String("usdc_free", usdc.Free.String()),
			slog.Int("assets", len(balances)),
		)
	}
	return errors.Join(errs...)
}

func (a *App) buildTrigger() (strategy.Trigger, error) {
	t := a.cfg.Trading
	params := strategy.Params{
		OpenThresholdPct:  t.OpenThresholdPct,
		CloseThresholdPct: t.CloseThresholdPct,
		MaxHold:           t.MaxHold.Duration,
	}
	if t.Strategy == "timebox" {
		dir, err := domain.ParseDirection(t.FixedDirection)
		if err != nil {
			return nil, err
		}
		params.FixedDirection = dir
	}
	return strategy.NewRegistry(params).Get(t.Strategy)
}

func (a *App) buildPoller(deps *Dependencies) *feed.Poller {
	f := a.cfg.Feed
	p := feed.NewPoller(
		feed.Venue{Name: deps.VenueA.Name(), Symbol: a.cfg.Trading.SymbolA, Source: deps.VenueA},
		feed.Venue{Name: deps.VenueB.Name(), Symbol: a.cfg.Trading.SymbolB, Source: deps.VenueB},
		feed.Config{
			MaxQuoteAge: a.cfg.Trading.MaxQuoteAge.Duration,
			Retry: retry.Config{
				MaxRetries:     f.MaxRetries,
				InitialBackoff: f.InitialBackoff.Duration,
				MaxBackoff:     f.MaxBackoff.Duration,
				Jitter:         true,
			},
			RequestsPerSecond: f.RateLimitPerSec,
		},
		a.logger,
	)
	if deps.PriceCache != nil {
		p.SetCache(deps.PriceCache)
	}
	if deps.RateLimiter != nil {
		p.SetRateLimiter(deps.RateLimiter)
	}
	p.SetBus(deps.Bus)
	return p
}

// startHTTPServer adds the API server and the WebSocket hub to g. engine is
// nil outside trade mode, which disables the reset endpoint.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	engine *strategy.Engine,
	prices *feed.Poller,
	triggerName string,
) {
	var (
		cycles   handler.CycleReporter
		resetter handler.Resetter
	)
	if engine != nil {
		cycles, resetter = engine, engine
	}

	hub := ws.NewHub(deps.Bus, deps.State, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		Trigger:   triggerName,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error { return hub.Run(ctx) })

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.cfg.Mode, triggerName, a.cfg.Trading.DryRun, cycles),
		Position: handler.NewPositionHandler(deps.State, resetter, a.logger),
		Attempts: handler.NewAttemptHandler(deps.Attempts, a.logger),
		Prices: handler.NewPriceHandler(deps.PriceCache,
			handler.QuoteKey{Venue: deps.VenueA.Name(), Symbol: a.cfg.Trading.SymbolA},
			handler.QuoteKey{Venue: deps.VenueB.Name(), Symbol: a.cfg.Trading.SymbolB},
			prices, a.logger),
	}
	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		ReadTimeout:  a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration,
		RateLimit:    a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
