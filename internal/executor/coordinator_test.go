package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

type submitFunc func(ctx context.Context, call int, req domain.OrderRequest) (string, error)

type fakeVenue struct {
	name   string
	submit submitFunc

	mu    sync.Mutex
	calls []domain.OrderRequest
}

func (f *fakeVenue) Name() string { return f.name }

func (f *fakeVenue) SubmitMarketOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()
	return f.submit(ctx, n, req)
}

func (f *fakeVenue) CancelOrder(context.Context, string, string) error { return nil }

func (f *fakeVenue) Calls() []domain.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OrderRequest(nil), f.calls...)
}

type reconcilingVenue struct {
	*fakeVenue
	fillID string
	err    error
}

func (r *reconcilingVenue) FindFill(context.Context, domain.OrderRequest, time.Time) (string, bool, error) {
	if r.err != nil {
		return "", false, r.err
	}
	return r.fillID, r.fillID != "", nil
}

func ok(id string) submitFunc {
	return func(context.Context, int, domain.OrderRequest) (string, error) { return id, nil }
}

func fail(kind domain.ErrorKind) submitFunc {
	return func(context.Context, int, domain.OrderRequest) (string, error) {
		return "", domain.NewVenueError(kind, "fake", "order", errors.New("rejected"))
	}
}

func hang(ctx context.Context, _ int, _ domain.OrderRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// okThenFail fills the first call and fails every later one.
func okThenFail(id string) submitFunc {
	return func(_ context.Context, call int, _ domain.OrderRequest) (string, error) {
		if call == 1 {
			return id, nil
		}
		return "", domain.NewVenueError(domain.ErrorKindNetwork, "fake", "order", errors.New("connection reset"))
	}
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestCoordinator(a, b domain.VenueAdapter, cfg Config) *Coordinator {
	if cfg.LegTimeout == 0 {
		cfg.LegTimeout = time.Second
	}
	if cfg.RollbackTimeout == 0 {
		cfg.RollbackTimeout = time.Second
	}
	return NewCoordinator(a, b, cfg, testLogger())
}

func request(dir domain.Direction) DualTradeRequest {
	return DualTradeRequest{
		Direction: dir,
		Amount:    decimal.RequireFromString("0.001"),
		SymbolA:   "BTC_USDC",
		SymbolB:   "BTC",
	}
}

func TestAttemptDualTrade_BothFilled(t *testing.T) {
	for _, dir := range []domain.Direction{domain.DirectionShortALongB, domain.DirectionLongAShortB} {
		t.Run(string(dir), func(t *testing.T) {
			a := &fakeVenue{name: "backpack", submit: ok("a-1")}
			b := &fakeVenue{name: "hyperliquid", submit: ok("b-1")}
			c := newTestCoordinator(a, b, Config{})

			out, err := c.AttemptDualTrade(context.Background(), request(dir))
			require.NoError(t, err)

			assert.Equal(t, domain.OutcomeBothFilled, out.Kind)
			assert.Nil(t, out.RollbackResult)
			require.Len(t, a.Calls(), 1)
			require.Len(t, b.Calls(), 1)

			legA, legB := a.Calls()[0], b.Calls()[0]
			assert.True(t, legA.Amount.Equal(legB.Amount))
			assert.Equal(t, legA.Side.Inverse(), legB.Side)
			wantA, wantB := dir.Sides()
			assert.Equal(t, wantA, legA.Side)
			assert.Equal(t, wantB, legB.Side)
			assert.Equal(t, "BTC_USDC", legA.Symbol)
			assert.Equal(t, "BTC", legB.Symbol)
			assert.Equal(t, "a-1", out.Legs[0].OrderID)
			assert.Equal(t, "b-1", out.Legs[1].OrderID)
		})
	}
}

func TestAttemptDualTrade_BothRejected(t *testing.T) {
	a := &fakeVenue{name: "backpack", submit: fail(domain.ErrorKindInsufficientFunds)}
	b := &fakeVenue{name: "hyperliquid", submit: fail(domain.ErrorKindAuth)}
	c := newTestCoordinator(a, b, Config{})

	out, err := c.AttemptDualTrade(context.Background(), request(domain.DirectionShortALongB))
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeBothRejected, out.Kind)
	assert.Nil(t, out.RollbackResult)
	assert.Len(t, a.Calls(), 1)
	assert.Len(t, b.Calls(), 1)
	assert.Equal(t, domain.ErrorKindInsufficientFunds, out.Legs[0].ErrKind)
	assert.Equal(t, domain.ErrorKindAuth, out.Legs[1].ErrKind)
	assert.False(t, out.Events.Has(domain.EventRollbackSubmitted))
}

func TestAttemptDualTrade_LegAFilledLegBFailedRollsBackOnA(t *testing.T) {
	kinds := []domain.ErrorKind{
		domain.ErrorKindAuth,
		domain.ErrorKindPermission,
		domain.ErrorKindInsufficientFunds,
		domain.ErrorKindRateLimited,
		domain.ErrorKindNetwork,
		domain.ErrorKindUnknown,
	}
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			a := &fakeVenue{name: "backpack", submit: ok("a-1")}
			b := &fakeVenue{name: "hyperliquid", submit: fail(kind)}
			c := newTestCoordinator(a, b, Config{})

			req := request(domain.DirectionShortALongB)
			out, err := c.AttemptDualTrade(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, domain.OutcomeOneSidedFill, out.Kind)
			assert.Equal(t, domain.LegA, out.FilledLeg)
			assert.Equal(t, domain.RollbackRolledBack, out.Rollback)

			calls := a.Calls()
			require.Len(t, calls, 2, "exactly one rollback order on venue A")
			assert.Len(t, b.Calls(), 1)
			assert.Equal(t, calls[0].Side.Inverse(), calls[1].Side)
			assert.True(t, calls[1].Amount.Equal(req.Amount))
			assert.Equal(t, calls[0].Symbol, calls[1].Symbol)

			require.NotNil(t, out.RollbackResult)
			assert.Equal(t, domain.LegA, out.RollbackResult.Leg)
			assert.True(t, out.Events.Has(domain.EventRollbackSucceeded))
		})
	}
}

func TestAttemptDualTrade_RollbackFailureIsNotRetried(t *testing.T) {
	a := &fakeVenue{name: "backpack", submit: fail(domain.ErrorKindUnknown)}
	b := &fakeVenue{name: "hyperliquid", submit: okThenFail("b-1")}
	c := newTestCoordinator(a, b, Config{})

	out, err := c.AttemptDualTrade(context.Background(), request(domain.DirectionLongAShortB))
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeOneSidedFill, out.Kind)
	assert.Equal(t, domain.LegB, out.FilledLeg)
	assert.Equal(t, domain.RollbackFailed, out.Rollback)
	assert.True(t, out.RollbackFailed())
	assert.Len(t, b.Calls(), 2)
	assert.Len(t, a.Calls(), 1)
	assert.Equal(t, domain.OrderSideBuy, b.Calls()[1].Side)
	assert.True(t, out.Events.Has(domain.EventRollbackFailed))
}

func TestAttemptDualTrade_LegTimeoutRollsBack(t *testing.T) {
	a := &fakeVenue{name: "backpack", submit: ok("sim_1")}
	b := &fakeVenue{name: "hyperliquid", submit: hang}
	c := newTestCoordinator(a, b, Config{LegTimeout: 50 * time.Millisecond})

	out, err := c.AttemptDualTrade(context.Background(), request(domain.DirectionShortALongB))
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeOneSidedFill, out.Kind)
	assert.Equal(t, domain.LegA, out.FilledLeg)
	assert.Equal(t, domain.RollbackRolledBack, out.Rollback)
	assert.Equal(t, "sim_1", out.Legs[0].OrderID)
	assert.Equal(t, domain.ErrorKindNetwork, out.Legs[1].ErrKind)
	assert.ErrorIs(t, out.Legs[1].Err, context.DeadlineExceeded)
	assert.True(t, out.Legs[1].Ambiguous)
	assert.True(t, out.Events.Has(domain.EventLegAmbiguous))
}

func TestAttemptDualTrade_AdapterIgnoringContextStillTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	a := &fakeVenue{name: "backpack", submit: ok("a-1")}
	b := &fakeVenue{name: "hyperliquid", submit: func(context.Context, int, domain.OrderRequest) (string, error) {
		<-release
		return "late", nil
	}}
	c := newTestCoordinator(a, b, Config{LegTimeout: 30 * time.Millisecond, Reconcile: false})

	done := make(chan domain.TradeOutcome, 1)
	go func() {
		out, _ := c.AttemptDualTrade(context.Background(), request(domain.DirectionShortALongB))
		done <- out
	}()

	select {
	case out := <-done:
		assert.Equal(t, domain.OutcomeOneSidedFill, out.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator blocked on an adapter that ignores its context")
	}
}

func TestAttemptDualTrade_ReconciliationRecoversTimedOutLeg(t *testing.T) {
	a := &fakeVenue{name: "backpack", submit: ok("a-1")}
	b := &reconcilingVenue{fakeVenue: &fakeVenue{name: "hyperliquid", submit: hang}, fillID: "b-late"}
	c := newTestCoordinator(a, b, Config{LegTimeout: 30 * time.Millisecond, Reconcile: true})

	out, err := c.AttemptDualTrade(context.Background(), request(domain.DirectionShortALongB))
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeBothFilled, out.Kind)
	assert.True(t, out.Legs[1].Recovered)
	assert.Equal(t, "b-late", out.Legs[1].OrderID)
	assert.Len(t, a.Calls(), 1, "no rollback when the timed-out leg actually filled")
	assert.True(t, out.Events.Has(domain.EventLegRecovered))
}

func TestAttemptDualTrade_ReconciliationWithoutFillIsNotAmbiguous(t *testing.T) {
	a := &fakeVenue{name: "backpack", submit: fail(domain.ErrorKindNetwork)}
	b := &reconcilingVenue{fakeVenue: &fakeVenue{name: "hyperliquid", submit: fail(domain.ErrorKindNetwork)}}
	c := newTestCoordinator(a, b, Config{Reconcile: true})

	out, err := c.AttemptDualTrade(context.Background(), request(domain.DirectionShortALongB))
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeBothRejected, out.Kind)
	assert.True(t, out.Legs[0].Ambiguous, "venue A cannot reconcile")
	assert.False(t, out.Legs[1].Ambiguous)
}

func TestAttemptDualTrade_LegsRunConcurrently(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(2)
	bothIn := make(chan struct{})
	go func() {
		arrived.Wait()
		close(bothIn)
	}()

	barrier := func(id string) submitFunc {
		return func(ctx context.Context, _ int, _ domain.OrderRequest) (string, error) {
			arrived.Done()
			select {
			case <-bothIn:
				return id, nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	a := &fakeVenue{name: "backpack", submit: barrier("a-1")}
	b := &fakeVenue{name: "hyperliquid", submit: barrier("b-1")}
	c := newTestCoordinator(a, b, Config{LegTimeout: time.Second})

	out, err := c.AttemptDualTrade(context.Background(), request(domain.DirectionShortALongB))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeBothFilled, out.Kind, "legs must be in flight at the same time")
}

func TestAttemptDualTrade_CancelledParentDoesNotAbortLegs(t *testing.T) {
	a := &fakeVenue{name: "backpack", submit: ok("a-1")}
	b := &fakeVenue{name: "hyperliquid", submit: func(ctx context.Context, _ int, _ domain.OrderRequest) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "b-1", nil
	}}
	c := newTestCoordinator(a, b, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := c.AttemptDualTrade(ctx, request(domain.DirectionShortALongB))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeBothFilled, out.Kind)
}

func TestAttemptDualTrade_DryRunTouchesNoVenue(t *testing.T) {
	a := &fakeVenue{name: "backpack", submit: fail(domain.ErrorKindAuth)}
	b := &fakeVenue{name: "hyperliquid", submit: fail(domain.ErrorKindAuth)}
	c := newTestCoordinator(a, b, Config{})

	req := request(domain.DirectionShortALongB)
	req.DryRun = true
	out, err := c.AttemptDualTrade(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeBothFilled, out.Kind)
	assert.Empty(t, a.Calls())
	assert.Empty(t, b.Calls())
	ids := []string{out.Legs[0].OrderID, out.Legs[1].OrderID}
	assert.ElementsMatch(t, []string{"sim_1", "sim_2"}, ids)
	assert.Equal(t, "backpack", out.Legs[0].Venue)
}

func TestAttemptDualTrade_InvalidRequestPlacesNothing(t *testing.T) {
	a := &fakeVenue{name: "backpack", submit: ok("a-1")}
	b := &fakeVenue{name: "hyperliquid", submit: ok("b-1")}
	c := newTestCoordinator(a, b, Config{})

	req := request(domain.DirectionShortALongB)
	req.Amount = decimal.Zero
	_, err := c.AttemptDualTrade(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	req = request("sideways")
	_, err = c.AttemptDualTrade(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)

	assert.Empty(t, a.Calls())
	assert.Empty(t, b.Calls())
}

func TestAttemptDualTrade_EmptyOrderIDIsAFailure(t *testing.T) {
	a := &fakeVenue{name: "backpack", submit: ok("")}
	b := &fakeVenue{name: "hyperliquid", submit: ok("b-1")}
	c := newTestCoordinator(a, b, Config{})

	out, err := c.AttemptDualTrade(context.Background(), request(domain.DirectionShortALongB))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeOneSidedFill, out.Kind)
	assert.Equal(t, domain.LegB, out.FilledLeg)
	assert.Equal(t, domain.ErrorKindUnknown, out.Legs[0].ErrKind)
}

func TestAttemptDualTrade_PartialFillIsFailedLegWithExposure(t *testing.T) {
	a := &fakeVenue{name: "backpack", submit: ok("a-1")}
	b := &fakeVenue{name: "hyperliquid", submit: func(context.Context, int, domain.OrderRequest) (string, error) {
		return "", &domain.PartialFillError{
			Venue:     "hyperliquid",
			OrderID:   "77",
			Requested: decimal.RequireFromString("0.001"),
			Filled:    decimal.RequireFromString("0.0004"),
		}
	}}
	c := newTestCoordinator(a, b, Config{})

	out, err := c.AttemptDualTrade(context.Background(), request(domain.DirectionShortALongB))
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeOneSidedFill, out.Kind)
	assert.Equal(t, domain.LegA, out.FilledLeg)
	assert.Equal(t, domain.RollbackRolledBack, out.Rollback)

	legB := out.Legs[1]
	assert.False(t, legB.Success())
	require.NotNil(t, legB.PartialFill)
	assert.Equal(t, "0.0004", legB.PartialFill.String())
	assert.True(t, out.Events.Has(domain.EventLegPartial))
	require.Len(t, out.PartialFills(), 1)
	assert.Equal(t, domain.LegB, out.PartialFills()[0].Leg)
}

func TestAttemptDualTrade_ReconciliationFindsPartialFill(t *testing.T) {
	a := &fakeVenue{name: "backpack", submit: ok("a-1")}
	b := &reconcilingVenue{
		fakeVenue: &fakeVenue{name: "hyperliquid", submit: hang},
		err: &domain.PartialFillError{
			Venue:     "hyperliquid",
			OrderID:   "5",
			Requested: decimal.RequireFromString("0.001"),
			Filled:    decimal.RequireFromString("0.0002"),
		},
	}
	c := newTestCoordinator(a, b, Config{LegTimeout: 30 * time.Millisecond, Reconcile: true})

	out, err := c.AttemptDualTrade(context.Background(), request(domain.DirectionShortALongB))
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeOneSidedFill, out.Kind)
	assert.False(t, out.Legs[1].Ambiguous)
	require.NotNil(t, out.Legs[1].PartialFill)
	assert.Equal(t, "0.0002", out.Legs[1].PartialFill.String())
	assert.True(t, out.Events.Has(domain.EventLegPartial))
}
