// Package executor submits the two legs of a hedged trade and flattens
// one-sided fills.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Config holds the coordinator timeouts.
type Config struct {
	LegTimeout      time.Duration
	RollbackTimeout time.Duration
	// Reconcile enables a fill lookup on legs that failed with a network error.
	Reconcile bool
}

// DefaultConfig returns the timeouts used when none are configured.
func DefaultConfig() Config {
	return Config{
		LegTimeout:      10 * time.Second,
		RollbackTimeout: 15 * time.Second,
		Reconcile:       true,
	}
}

// DualTradeRequest describes one hedged trade.
type DualTradeRequest struct {
	Direction domain.Direction
	Amount    decimal.Decimal
	SymbolA   string
	SymbolB   string
	DryRun    bool
}

func (r DualTradeRequest) validate() error {
	if !r.Direction.Valid() {
		return fmt.Errorf("executor: invalid direction %q: %w", r.Direction, domain.ErrInvalidOrder)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("executor: %w", domain.ErrInvalidAmount)
	}
	if r.SymbolA == "" || r.SymbolB == "" {
		return fmt.Errorf("executor: missing symbol: %w", domain.ErrInvalidOrder)
	}
	return nil
}

// Coordinator places both legs of a trade concurrently, classifies the
// joint result and issues a single rollback order on a one-sided fill.
// It never touches the stored position.
type Coordinator struct {
	venues [2]domain.VenueAdapter
	sims   [2]domain.VenueAdapter
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

// NewCoordinator creates a Coordinator for venue A and venue B.
func NewCoordinator(venueA, venueB domain.VenueAdapter, cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.LegTimeout <= 0 {
		cfg.LegTimeout = DefaultConfig().LegTimeout
	}
	if cfg.RollbackTimeout <= 0 {
		cfg.RollbackTimeout = DefaultConfig().RollbackTimeout
	}
	ids := &simIDs{}
	return &Coordinator{
		venues: [2]domain.VenueAdapter{venueA, venueB},
		sims: [2]domain.VenueAdapter{
			&simVenue{name: venueA.Name(), ids: ids},
			&simVenue{name: venueB.Name(), ids: ids},
		},
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With(slog.String("component", "coordinator")),
	}
}

var legs = [2]domain.Leg{domain.LegA, domain.LegB}

// AttemptDualTrade submits both legs and returns the classified outcome with
// its event trail. The error is non-nil only for an invalid request, in
// which case no order was placed.
func (c *Coordinator) AttemptDualTrade(ctx context.Context, req DualTradeRequest) (domain.TradeOutcome, error) {
	if err := req.validate(); err != nil {
		return domain.TradeOutcome{}, err
	}

	venues := c.venues
	if req.DryRun {
		venues = c.sims
	}
	sideA, sideB := req.Direction.Sides()
	orders := [2]domain.OrderRequest{
		{Symbol: req.SymbolA, Side: sideA, Amount: req.Amount},
		{Symbol: req.SymbolB, Side: sideB, Amount: req.Amount},
	}

	// Legs only honour their own timeout. Cancelling one leg mid-flight
	// because the process is stopping would create the exposure we guard.
	ctx = context.WithoutCancel(ctx)

	var out domain.TradeOutcome
	started := c.now()
	for i, o := range orders {
		out.Events.Add(c.now(), domain.EventLegSubmitted, legs[i], "%s %s %s on %s (dry_run=%t)",
			o.Side, o.Amount, o.Symbol, venues[i].Name(), req.DryRun)
	}

	var g errgroup.Group
	g.SetLimit(2)
	for i := range orders {
		g.Go(func() error {
			out.Legs[i] = c.submitLeg(ctx, legs[i], venues[i], orders[i])
			return nil
		})
	}
	_ = g.Wait()

	if !req.DryRun {
		for i := range out.Legs {
			c.reconcileLeg(ctx, &out.Legs[i], c.venues[i], orders[i], started)
		}
	}

	for _, r := range out.Legs {
		switch {
		case r.Success() && r.Recovered:
			out.Events.Add(c.now(), domain.EventLegRecovered, r.Leg, "order %s on %s found by reconciliation after %v", r.OrderID, r.Venue, r.ErrKind)
		case r.Success():
			out.Events.Add(c.now(), domain.EventLegFilled, r.Leg, "order %s on %s in %s", r.OrderID, r.Venue, r.Latency.Round(time.Millisecond))
		default:
			out.Events.Add(c.now(), domain.EventLegFailed, r.Leg, "%s on %s: %s", r.ErrKind, r.Venue, r.ErrString())
			if r.Ambiguous {
				out.Events.Add(c.now(), domain.EventLegAmbiguous, r.Leg, "network failure on %s could not be reconciled; the order may still fill", r.Venue)
			}
			if r.PartialFill != nil {
				out.Events.Add(c.now(), domain.EventLegPartial, r.Leg, "%s %s of %s %s left open on %s", r.Side, r.PartialFill, r.Amount, r.Symbol, r.Venue)
			}
		}
	}

	okA, okB := out.Legs[0].Success(), out.Legs[1].Success()
	switch {
	case okA && okB:
		out.Kind = domain.OutcomeBothFilled
	case !okA && !okB:
		out.Kind = domain.OutcomeBothRejected
	default:
		out.Kind = domain.OutcomeOneSidedFill
		filled := 0
		if okB {
			filled = 1
		}
		out.FilledLeg = legs[filled]
	}
	out.Events.Add(c.now(), domain.EventClassified, "", "%s", out.Kind)

	if out.Kind == domain.OutcomeOneSidedFill {
		c.rollback(ctx, &out, venues, orders)
	}

	log := c.logger.With(
		slog.String("direction", string(req.Direction)),
		slog.String("amount", req.Amount.String()),
		slog.Bool("dry_run", req.DryRun),
		slog.String("outcome", out.String()),
	)
	switch {
	case out.RollbackFailed():
		log.Error("rollback failed, exposure left open", slog.String("trail", out.Events.String()))
	case out.Kind == domain.OutcomeOneSidedFill:
		log.Warn("one-sided fill rolled back")
	case out.Kind == domain.OutcomeBothRejected:
		log.Warn("both legs rejected")
	default:
		log.Info("both legs filled")
	}
	return out, nil
}

type submitResult struct {
	id  string
	err error
}

// submitLeg places one order. The call is abandoned when the leg timeout
// expires even if the adapter ignores its context.
func (c *Coordinator) submitLeg(ctx context.Context, leg domain.Leg, venue domain.VenueAdapter, o domain.OrderRequest) domain.OrderResult {
	res := domain.OrderResult{
		Leg:    leg,
		Venue:  venue.Name(),
		Symbol: o.Symbol,
		Side:   o.Side,
		Amount: o.Amount,
	}
	res.OrderID, res.Latency, res.Err = c.call(ctx, c.cfg.LegTimeout, func(ctx context.Context) (string, error) {
		return venue.SubmitMarketOrder(ctx, o)
	})
	if res.Err != nil {
		res.OrderID = ""
		res.Err = fmt.Errorf("%s: submit: %w", venue.Name(), res.Err)
	}
	res.ErrKind = domain.KindOf(res.Err)
	if filled, ok := domain.PartialFillOf(res.Err); ok {
		res.PartialFill = &filled
	}
	return res
}

func (c *Coordinator) call(ctx context.Context, timeout time.Duration, fn func(context.Context) (string, error)) (string, time.Duration, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	ch := make(chan submitResult, 1)
	go func() {
		id, err := fn(callCtx)
		ch <- submitResult{id: id, err: err}
	}()

	select {
	case r := <-ch:
		if r.err == nil && r.id == "" {
			r.err = errors.New("venue returned an empty order id")
		}
		return r.id, time.Since(start), r.err
	case <-callCtx.Done():
		return "", time.Since(start), callCtx.Err()
	}
}

// reconcileLeg looks up a fill for a leg that failed with a network error,
// which includes timeouts. The venue may have accepted the order even though
// the response was lost.
func (c *Coordinator) reconcileLeg(ctx context.Context, r *domain.OrderResult, venue domain.VenueAdapter, o domain.OrderRequest, since time.Time) {
	if r.Success() || r.ErrKind != domain.ErrorKindNetwork {
		return
	}
	rec, ok := venue.(domain.FillReconciler)
	if !ok || !c.cfg.Reconcile {
		r.Ambiguous = true
		return
	}
	recCtx, cancel := context.WithTimeout(ctx, c.cfg.LegTimeout)
	defer cancel()
	id, found, err := rec.FindFill(recCtx, o, since)
	filled, partial := domain.PartialFillOf(err)
	switch {
	case partial:
		r.PartialFill = &filled
	case err != nil:
		c.logger.Warn("fill reconciliation failed",
			slog.String("venue", venue.Name()),
			slog.String("error", err.Error()),
		)
		r.Ambiguous = true
	case found && id != "":
		r.OrderID = id
		r.Err = nil
		r.Recovered = true
	}
}

// rollback submits exactly one opposing order on the filled venue. It is
// never retried: a lost confirmation followed by a retry could double the
// exposure.
func (c *Coordinator) rollback(ctx context.Context, out *domain.TradeOutcome, venues [2]domain.VenueAdapter, orders [2]domain.OrderRequest) {
	i := 0
	if out.FilledLeg == domain.LegB {
		i = 1
	}
	o := orders[i]
	o.Side = o.Side.Inverse()
	venue := venues[i]

	out.Events.Add(c.now(), domain.EventRollbackSubmitted, legs[i], "%s %s %s on %s to flatten order %s",
		o.Side, o.Amount, o.Symbol, venue.Name(), out.Legs[i].OrderID)

	res := domain.OrderResult{
		Leg:    legs[i],
		Venue:  venue.Name(),
		Symbol: o.Symbol,
		Side:   o.Side,
		Amount: o.Amount,
	}
	res.OrderID, res.Latency, res.Err = c.call(ctx, c.cfg.RollbackTimeout, func(ctx context.Context) (string, error) {
		return venue.SubmitMarketOrder(ctx, o)
	})
	if res.Err != nil {
		res.OrderID = ""
		res.Err = fmt.Errorf("%s: rollback: %w", venue.Name(), res.Err)
	}
	res.ErrKind = domain.KindOf(res.Err)
	if filled, ok := domain.PartialFillOf(res.Err); ok {
		res.PartialFill = &filled
	}
	out.RollbackResult = &res

	if res.Success() {
		out.Rollback = domain.RollbackRolledBack
		out.Events.Add(c.now(), domain.EventRollbackSucceeded, legs[i], "order %s on %s", res.OrderID, venue.Name())
		return
	}
	out.Rollback = domain.RollbackFailed
	out.Events.Add(c.now(), domain.EventRollbackFailed, legs[i], "%s on %s: %s", res.ErrKind, venue.Name(), res.ErrString())
}
