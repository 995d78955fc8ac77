package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/executor"
)

// TradeExecutor submits a hedged trade. Implemented by *executor.Coordinator.
type TradeExecutor interface {
	AttemptDualTrade(ctx context.Context, req executor.DualTradeRequest) (domain.TradeOutcome, error)
}

// SnapshotSource returns fresh quotes for both venues. Implemented by
// *feed.Poller.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}

// Alerter delivers operator notifications. Implemented by *notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Notification event names.
const (
	EventOpened     = "position_opened"
	EventClosed     = "position_closed"
	EventRolledBack = "rolled_back"
	EventStuck      = "stuck"
	EventAmbiguous  = "ambiguous_leg"
	EventPartial    = "partial_fill"
	EventReset      = "operator_reset"
)

// EngineConfig holds the trade parameters of a cycle.
type EngineConfig struct {
	SymbolA string
	SymbolB string
	Amount  decimal.Decimal
	DryRun  bool
	LockKey string
	LockTTL time.Duration
	// SnapshotTimeout bounds the price read, retries included.
	SnapshotTimeout time.Duration
	// PersistTimeout bounds each store call. Writes after a trade run on a
	// context detached from shutdown so a placed trade is always committed.
	PersistTimeout time.Duration
}

// CycleReport summarises one decision cycle.
type CycleReport struct {
	StartedAt time.Time            `json:"started_at"`
	Position  domain.Position      `json:"position"`
	Snapshot  *domain.Snapshot     `json:"snapshot,omitempty"`
	Decision  Decision             `json:"decision"`
	Attempt   *domain.TradeAttempt `json:"attempt,omitempty"`
	Skipped   string               `json:"skipped,omitempty"`
	Saved     bool                 `json:"saved"`
}

// Engine runs decision cycles: load the position, read prices, evaluate,
// trade, and commit. Cycles must not overlap; the lock enforces this across
// processes sharing a store.
type Engine struct {
	trigger Trigger
	exec    TradeExecutor
	prices  SnapshotSource
	store   domain.StateStore
	lock    domain.LockManager
	cfg     EngineConfig
	now     func() time.Time
	logger  *slog.Logger

	attempts domain.AttemptStore
	archiver domain.TrailArchiver
	audit    domain.AuditStore
	bus      domain.SignalBus
	alerter  Alerter

	mu   sync.Mutex
	last CycleReport
}

// NewEngine creates an Engine.
func NewEngine(
	trigger Trigger,
	exec TradeExecutor,
	prices SnapshotSource,
	store domain.StateStore,
	lock domain.LockManager,
	cfg EngineConfig,
	logger *slog.Logger,
) *Engine {
	if cfg.LockKey == "" {
		cfg.LockKey = "hedgebot:cycle"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 3 * time.Minute
	}
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = 90 * time.Second
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	return &Engine{
		trigger: trigger,
		exec:    exec,
		prices:  prices,
		store:   store,
		lock:    lock,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "engine"), slog.String("trigger", trigger.Name())),
	}
}

// SetRecorders enables attempt persistence and trail archiving. Either may be nil.
func (e *Engine) SetRecorders(attempts domain.AttemptStore, archiver domain.TrailArchiver, audit domain.AuditStore) {
	e.attempts = attempts
	e.archiver = archiver
	e.audit = audit
}

// SetBus enables publishing of attempts and position changes.
func (e *Engine) SetBus(bus domain.SignalBus) { e.bus = bus }

// SetAlerter enables operator notifications.
func (e *Engine) SetAlerter(a Alerter) { e.alerter = a }

// LastReport returns the report of the most recent cycle.
func (e *Engine) LastReport() CycleReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// RunCycle executes one decision cycle. Stale prices, a held lock and
// rejected trades are not errors; the cycle simply ends without a commit.
func (e *Engine) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{StartedAt: e.now()}
	defer func() {
		e.mu.Lock()
		e.last = report
		e.mu.Unlock()
	}()

	unlock, err := e.lock.Acquire(ctx, e.cfg.LockKey, e.cfg.LockTTL)
	if errors.Is(err, domain.ErrLockHeld) {
		report.Skipped = "cycle lock held by another writer"
		e.logger.Warn("cycle skipped", slog.String("reason", report.Skipped))
		return report, nil
	}
	if err != nil {
		return report, fmt.Errorf("engine: acquire lock: %w", err)
	}
	defer unlock()

	loadCtx, cancelLoad := context.WithTimeout(ctx, e.cfg.PersistTimeout)
	pos, err := e.store.Load(loadCtx)
	cancelLoad()
	if err != nil {
		return report, fmt.Errorf("engine: load position: %w", err)
	}
	report.Position = pos

	if pos.IsStuck() {
		report.Skipped = "position requires manual intervention"
		e.logger.Error("automation halted: position stuck",
			slog.String("note", pos.Note),
			slog.String("direction", string(pos.Direction)),
			slog.String("amount", pos.Amount.String()),
		)
		return report, nil
	}

	snapCtx, cancelSnap := context.WithTimeout(ctx, e.cfg.SnapshotTimeout)
	snap, err := e.prices.Snapshot(snapCtx)
	cancelSnap()
	if err != nil {
		report.Skipped = "prices unavailable"
		e.logger.Warn("cycle skipped", slog.String("reason", report.Skipped), slog.String("error", err.Error()))
		return report, nil
	}
	report.Snapshot = &snap

	now := e.now()
	d := Evaluate(e.trigger, pos, snap, now)
	report.Decision = d
	if d.Action == ActionNone {
		e.logger.Debug("no action",
			slog.String("status", string(pos.Status)),
			slog.Float64("spread_pct", d.SpreadPct),
			slog.String("reason", d.Reason),
		)
		return report, nil
	}

	amount := e.cfg.Amount
	purpose := domain.PurposeOpen
	if d.Action == ActionClose {
		amount = pos.Amount
		purpose = domain.PurposeClose
	}

	e.logger.Info("trigger fired",
		slog.String("action", string(d.Action)),
		slog.String("direction", string(d.Direction)),
		slog.Float64("spread_pct", d.SpreadPct),
		slog.String("reason", d.Reason),
	)

	attempt := domain.TradeAttempt{
		ID:        uuid.New().String(),
		Purpose:   purpose,
		Direction: d.Direction,
		Amount:    amount,
		SymbolA:   e.cfg.SymbolA,
		SymbolB:   e.cfg.SymbolB,
		SpreadPct: d.SpreadPct,
		DryRun:    e.cfg.DryRun,
		StartedAt: now,
	}
	out, err := e.exec.AttemptDualTrade(ctx, executor.DualTradeRequest{
		Direction: d.Direction,
		Amount:    amount,
		SymbolA:   e.cfg.SymbolA,
		SymbolB:   e.cfg.SymbolB,
		DryRun:    e.cfg.DryRun,
	})
	if err != nil {
		return report, fmt.Errorf("engine: %s: %w", purpose, err)
	}
	attempt.Outcome = out
	attempt.CompletedAt = e.now()
	report.Attempt = &attempt

	// Orders have been placed: a shutdown from here on must not lose the
	// commit or the trail.
	detached := context.WithoutCancel(ctx)

	next, changed := Transition(pos, d, out, amount, attempt.CompletedAt)
	if changed {
		attempt.Outcome.Events.Add(attempt.CompletedAt, domain.EventTransition, "", "%s -> %s", pos.Status, next.Status)
		saveCtx, cancelSave := context.WithTimeout(detached, e.cfg.PersistTimeout)
		err := e.store.Save(saveCtx, next)
		cancelSave()
		if err != nil {
			e.logger.Error("failed to persist transition",
				slog.String("from", string(pos.Status)),
				slog.String("to", string(next.Status)),
				slog.String("error", err.Error()),
			)
			failCtx, cancelFail := context.WithTimeout(detached, e.cfg.PersistTimeout)
			e.record(failCtx, attempt)
			e.alert(failCtx, EventStuck, "STUCK: position not persisted",
				fmt.Sprintf("attempt %s moved %s -> %s but the save failed: %v\n%s", attempt.ID, pos.Status, next.Status, err, out.Events))
			cancelFail()
			return report, fmt.Errorf("engine: save position: %w", err)
		}
		report.Position = next
		report.Saved = true
	}

	e.finish(detached, attempt, pos, next, changed)
	return report, nil
}

// finish records and announces an attempt within the persist timeout.
func (e *Engine) finish(ctx context.Context, a domain.TradeAttempt, prev, next domain.Position, changed bool) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.PersistTimeout)
	defer cancel()
	e.record(ctx, a)
	e.announce(ctx, a, prev, next, changed)
}

// Reset clears a stuck position after the operator has flattened the
// exposure by hand.
func (e *Engine) Reset(ctx context.Context, operator string) (domain.Position, error) {
	unlock, err := e.lock.Acquire(ctx, e.cfg.LockKey, e.cfg.LockTTL)
	if err != nil {
		return domain.Position{}, fmt.Errorf("engine: acquire lock: %w", err)
	}
	defer unlock()

	pos, err := e.store.Load(ctx)
	if err != nil {
		return domain.Position{}, fmt.Errorf("engine: load position: %w", err)
	}
	if !pos.IsStuck() {
		return pos, domain.ErrNotStuck
	}

	flat := domain.FlatPosition()
	flat.UpdatedAt = e.now()
	if err := e.store.Save(ctx, flat); err != nil {
		return pos, fmt.Errorf("engine: save position: %w", err)
	}

	e.logger.Warn("stuck position reset by operator",
		slog.String("operator", operator),
		slog.String("previous_note", pos.Note),
	)
	if e.audit != nil {
		if err := e.audit.Log(ctx, EventReset, map[string]any{
			"operator":  operator,
			"direction": string(pos.Direction),
			"amount":    pos.Amount.String(),
			"note":      pos.Note,
		}); err != nil {
			e.logger.Warn("audit log failed", slog.String("error", err.Error()))
		}
	}
	e.publish(ctx, domain.ChannelPosition, flat)
	e.alert(ctx, EventReset, "Position reset", fmt.Sprintf("operator %s cleared the stuck position", operator))
	return flat, nil
}

// record persists the attempt everywhere it is configured to go. Failures
// are logged; the trail is also in the structured log.
func (e *Engine) record(ctx context.Context, a domain.TradeAttempt) {
	e.logger.Info("trade attempt",
		slog.String("attempt_id", a.ID),
		slog.String("purpose", string(a.Purpose)),
		slog.String("outcome", a.Outcome.String()),
		slog.String("trail", a.Outcome.Events.String()),
	)
	if e.attempts != nil {
		if err := e.attempts.Create(ctx, a); err != nil {
			e.logger.Warn("attempt record failed", slog.String("attempt_id", a.ID), slog.String("error", err.Error()))
		}
	}
	if e.archiver != nil {
		if err := e.archiver.Archive(ctx, a); err != nil {
			e.logger.Warn("trail archive failed", slog.String("attempt_id", a.ID), slog.String("error", err.Error()))
		}
	}
	if e.audit != nil {
		if err := e.audit.Log(ctx, "trade_attempt", map[string]any{
			"attempt_id": a.ID,
			"purpose":    string(a.Purpose),
			"direction":  string(a.Direction),
			"amount":     a.Amount.String(),
			"outcome":    a.Outcome.String(),
			"dry_run":    a.DryRun,
		}); err != nil {
			e.logger.Warn("audit log failed", slog.String("error", err.Error()))
		}
		for _, r := range a.Outcome.PartialFills() {
			if err := e.audit.Log(ctx, EventPartial, map[string]any{
				"attempt_id": a.ID,
				"leg":        string(r.Leg),
				"venue":      r.Venue,
				"symbol":     r.Symbol,
				"side":       string(r.Side),
				"requested":  r.Amount.String(),
				"filled":     r.PartialFill.String(),
			}); err != nil {
				e.logger.Warn("audit log failed", slog.String("error", err.Error()))
			}
		}
	}
	if e.bus != nil {
		payload, err := json.Marshal(a)
		if err == nil {
			if err := e.bus.StreamAppend(ctx, domain.StreamAttempts, payload); err != nil {
				e.logger.Warn("stream append failed", slog.String("error", err.Error()))
			}
		}
	}
	e.publish(ctx, domain.ChannelAttempts, a)
}

func (e *Engine) announce(ctx context.Context, a domain.TradeAttempt, prev, next domain.Position, changed bool) {
	out := a.Outcome
	if changed {
		e.publish(ctx, domain.ChannelPosition, next)
	}
	if partial := out.PartialFills(); len(partial) > 0 {
		e.alert(ctx, EventPartial, "Partial fill left open",
			fmt.Sprintf("attempt %s: %d order(s) filled only in part; flatten the remainder by hand\n%s", a.ID, len(partial), out.Events))
	}
	if out.Ambiguous() {
		e.alert(ctx, EventAmbiguous, "Ambiguous leg",
			fmt.Sprintf("attempt %s: a leg failed with a network error and may still fill\n%s", a.ID, out.Events))
	}
	switch {
	case next.IsStuck() && !prev.IsStuck():
		e.alert(ctx, EventStuck, "STUCK: manual intervention required",
			fmt.Sprintf("%s\n%s", next.Note, out.Events))
	case out.Kind == domain.OutcomeOneSidedFill:
		e.alert(ctx, EventRolledBack, "One-sided fill rolled back",
			fmt.Sprintf("attempt %s (%s)\n%s", a.ID, a.Purpose, out.Events))
	case changed && next.IsOpen():
		e.alert(ctx, EventOpened, "Position opened",
			fmt.Sprintf("%s %s at spread %.4f%%", next.Direction, next.Amount, next.EntrySpreadPct))
	case changed && next.IsFlat():
		e.alert(ctx, EventClosed, "Position closed",
			fmt.Sprintf("%s %s held %s", prev.Direction, prev.Amount, a.CompletedAt.Sub(prev.OpenedAt).Round(time.Second)))
	}
}

func (e *Engine) publish(ctx context.Context, channel string, v any) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		e.logger.Warn("marshal bus payload", slog.String("error", err.Error()))
		return
	}
	if err := e.bus.Publish(ctx, channel, payload); err != nil {
		e.logger.Warn("publish failed", slog.String("channel", channel), slog.String("error", err.Error()))
	}
}

func (e *Engine) alert(ctx context.Context, event, title, message string) {
	if e.alerter == nil {
		return
	}
	if err := e.alerter.Notify(ctx, event, title, message); err != nil {
		e.logger.Warn("notification failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}
