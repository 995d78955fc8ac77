package app

import (
	"context"
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3blob "github.com/alanyoungcy/hedgebot/internal/blob/s3"
	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/store/memory"
)

type preflightVenueFake struct {
	price     float64
	submitErr error
	cancelErr error
	placed    []domain.LimitOrderRequest
	cancelled []string
}

func (f *preflightVenueFake) Name() string { return "fake" }

func (f *preflightVenueFake) SubmitMarketOrder(context.Context, domain.OrderRequest) (string, error) {
	return "", errors.New("not used")
}

func (f *preflightVenueFake) CancelOrder(_ context.Context, id, _ string) error {
	f.cancelled = append(f.cancelled, id)
	return f.cancelErr
}

func (f *preflightVenueFake) SubmitLimitOrder(_ context.Context, req domain.LimitOrderRequest) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.placed = append(f.placed, req)
	return "ord-1", nil
}

func (f *preflightVenueFake) LastPrice(_ context.Context, symbol string) (domain.Quote, error) {
	return domain.Quote{Venue: "fake", Symbol: symbol, Price: f.price, ObservedAt: time.Now()}, nil
}

type marketOnlyVenue struct{}

func (marketOnlyVenue) Name() string { return "market_only" }
func (marketOnlyVenue) SubmitMarketOrder(context.Context, domain.OrderRequest) (string, error) {
	return "", nil
}
func (marketOnlyVenue) CancelOrder(context.Context, string, string) error { return nil }

func target(v *preflightVenueFake) preflightTarget {
	return preflightTarget{symbol: "BTC", venue: v, prices: v}
}

func TestPreflightPlacesAndCancels(t *testing.T) {
	v := &preflightVenueFake{price: 60000}
	res := preflightVenue(context.Background(), target(v), decimal.RequireFromString("0.001"), time.Millisecond)

	assert.Equal(t, preflightVerified, res.Status)
	require.Len(t, v.placed, 1)
	assert.Equal(t, domain.OrderSideBuy, v.placed[0].Side)
	assert.Equal(t, "12000", v.placed[0].Price.String())
	assert.Equal(t, []string{"ord-1"}, v.cancelled)
}

func TestPreflightInsufficientFundsVerifiesConnectivity(t *testing.T) {
	v := &preflightVenueFake{
		price:     60000,
		submitErr: domain.NewVenueError(domain.ErrorKindInsufficientFunds, "fake", "limit_order", errors.New("margin")),
	}
	res := preflightVenue(context.Background(), target(v), decimal.RequireFromString("0.001"), time.Millisecond)
	assert.Equal(t, preflightFundsOnly, res.Status)
	assert.Empty(t, v.cancelled)
}

func TestPreflightPermissionIsActionable(t *testing.T) {
	v := &preflightVenueFake{
		price:     60000,
		submitErr: domain.NewVenueError(domain.ErrorKindPermission, "fake", "limit_order", errors.New("trading disabled")),
	}
	res := preflightVenue(context.Background(), target(v), decimal.RequireFromString("0.001"), time.Millisecond)
	assert.Equal(t, preflightDenied, res.Status)
	assert.Contains(t, res.Detail, "trading permission")
}

func TestPreflightReportsFailedCancel(t *testing.T) {
	v := &preflightVenueFake{price: 60000, cancelErr: errors.New("boom")}
	res := preflightVenue(context.Background(), target(v), decimal.RequireFromString("0.001"), time.Millisecond)
	assert.Equal(t, preflightFailed, res.Status)
	assert.Contains(t, res.Detail, "ord-1")
}

func TestPreflightUnsupportedVenue(t *testing.T) {
	res := preflightVenue(context.Background(), preflightTarget{symbol: "BTC", venue: marketOnlyVenue{}, prices: &preflightVenueFake{price: 1}},
		decimal.RequireFromString("1"), time.Millisecond)
	assert.Equal(t, preflightUnsupported, res.Status)
}

func TestPreflightPrice(t *testing.T) {
	assert.Equal(t, "12000", preflightPrice(60000).String())
	assert.Equal(t, "0.1", preflightPrice(0.5).String())
	assert.Equal(t, "24.691", preflightPrice(123.456).String())
	assert.True(t, preflightPrice(0).IsZero())
}

func TestFindAsset(t *testing.T) {
	list := []domain.Balance{
		{Asset: "SOL", Total: decimal.NewFromInt(2), Free: decimal.NewFromInt(2)},
		{Asset: "usdc", Total: decimal.NewFromInt(100), Free: decimal.NewFromInt(40)},
	}
	b, ok := findAsset(list, "USDC")
	require.True(t, ok)
	assert.Equal(t, "40", b.Free.String())

	_, ok = findAsset(list, "ETH")
	assert.False(t, ok)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Store.Backend = "memory"
	cfg.Trading.DryRun = true
	return &cfg
}

func TestWireMemoryBackend(t *testing.T) {
	cfg := testConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps, cleanup, err := Wire(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &memory.StateStore{}, deps.State)
	assert.IsType(t, &memory.LockManager{}, deps.Lock)
	assert.IsType(t, &memory.SignalBus{}, deps.Bus)
	assert.Nil(t, deps.PriceCache)
	assert.Nil(t, deps.Archiver)
	assert.Nil(t, deps.trailArchiver())
	assert.False(t, deps.Notifier.Enabled())
	assert.Equal(t, "backpack", deps.VenueA.Name())
	assert.Equal(t, "hyperliquid", deps.VenueB.Name())
}

func TestWireSQLiteBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "sqlite"
	cfg.Store.SQLitePath = t.TempDir() + "/state.db"

	deps, cleanup, err := Wire(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer cleanup()

	pos, err := deps.State.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, pos.IsFlat())
}

func TestWireRejectsBadBackpackSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Venues.Backpack.APISecret = "not-base64!"
	_, _, err := Wire(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestBuildTrigger(t *testing.T) {
	cfg := testConfig(t)
	a := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	tr, err := a.buildTrigger()
	require.NoError(t, err)
	assert.Equal(t, "spread", tr.Name())

	cfg.Trading.Strategy = "timebox"
	cfg.Trading.FixedDirection = "sideways"
	_, err = a.buildTrigger()
	assert.Error(t, err)
}

type blobSink struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *blobSink) Put(_ context.Context, path string, data io.Reader, _ string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = raw
	return nil
}

func (b *blobSink) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return b.Put(ctx, path, data, "")
}

func TestExportDayIncludesAttemptsBeyondRecentWindow(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	attempts := memory.NewAttemptStore(5000)
	for i := 0; i < 3; i++ {
		require.NoError(t, attempts.Create(ctx, domain.TradeAttempt{ID: "old", StartedAt: day.Add(time.Duration(i) * time.Hour)}))
	}
	// Enough later rejections to push the day out of any recent listing.
	for i := 0; i < 600; i++ {
		require.NoError(t, attempts.Create(ctx, domain.TradeAttempt{ID: "new", StartedAt: day.AddDate(0, 0, 1).Add(time.Duration(i) * time.Second)}))
	}

	sink := &blobSink{objects: map[string][]byte{}}
	deps := &Dependencies{Attempts: attempts, Archiver: s3blob.NewArchiver(sink, nil)}
	a := New(testConfig(t), slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := a.exportDay(ctx, deps, day.Add(13*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	raw := sink.objects["exports/attempts/2026-03-01.jsonl"]
	assert.Equal(t, 3, bytes.Count(raw, []byte("\n")))
}
