package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test")
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestLockIsExclusiveUntilReleased(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "cycle", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:cycle"))

	_, err = lm.Acquire(ctx, "cycle", time.Minute)
	assert.True(t, errors.Is(err, domain.ErrLockHeld))

	unlock()
	unlock()
	assert.False(t, mr.Exists("test:lock:cycle"))

	unlock2, err := lm.Acquire(ctx, "cycle", time.Minute)
	require.NoError(t, err)
	unlock2()
}

func TestLockExpiresWithTTL(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	_, err := lm.Acquire(ctx, "cycle", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	unlock, err := lm.Acquire(ctx, "cycle", time.Second)
	require.NoError(t, err)
	unlock()
}

func TestStaleUnlockDoesNotReleaseNewHolder(t *testing.T) {
	c, mr := newTestClient(t)
	lm := NewLockManager(c)
	ctx := context.Background()

	stale, err := lm.Acquire(ctx, "cycle", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)
	_, err = lm.Acquire(ctx, "cycle", time.Minute)
	require.NoError(t, err)

	stale()
	assert.True(t, mr.Exists("test:lock:cycle"))
}

func TestPriceCacheRoundTrip(t *testing.T) {
	c, mr := newTestClient(t)
	pc := NewPriceCache(c, time.Minute)
	ctx := context.Background()

	_, err := pc.GetQuote(ctx, "backpack", "ETH_USDC")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	at := time.Unix(1_700_000_000, 123)
	require.NoError(t, pc.SetQuote(ctx, domain.Quote{Venue: "backpack", Symbol: "ETH_USDC", Price: 3001.25, ObservedAt: at}))

	q, err := pc.GetQuote(ctx, "backpack", "ETH_USDC")
	require.NoError(t, err)
	assert.Equal(t, 3001.25, q.Price)
	assert.True(t, q.ObservedAt.Equal(at))
	assert.Equal(t, time.Minute, mr.TTL("test:quote:backpack:ETH_USDC"))
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c, 2, time.Second)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "hyperliquid", 2, time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
		now = now.Add(time.Millisecond)
	}
	ok, err := rl.Allow(ctx, "hyperliquid", 2, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(1100 * time.Millisecond)
	ok, err = rl.Allow(ctx, "hyperliquid", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	c, _ := newTestClient(t)
	rl := NewRateLimiter(c, 1, time.Hour)
	require.NoError(t, rl.Wait(context.Background(), "api"))

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	err := rl.Wait(ctx, "api")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSignalBusStream(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c, 100)
	ctx := context.Background()

	msgs, err := bus.StreamRead(ctx, domain.StreamAttempts, "0", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, bus.StreamAppend(ctx, domain.StreamAttempts, []byte(`{"id":"1"}`)))
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamAttempts, []byte(`{"id":"2"}`)))

	msgs, err = bus.StreamRead(ctx, domain.StreamAttempts, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, `{"id":"1"}`, string(msgs[0].Payload))

	rest, err := bus.StreamRead(ctx, domain.StreamAttempts, msgs[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, `{"id":"2"}`, string(rest[0].Payload))
}

func TestSignalBusPubSub(t *testing.T) {
	c, _ := newTestClient(t)
	bus := NewSignalBus(c, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, domain.ChannelPosition)
	require.NoError(t, err)
	require.NoError(t, bus.Publish(ctx, domain.ChannelPosition, []byte("open")))

	select {
	case got := <-ch:
		assert.Equal(t, "open", string(got))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	cancel()
	for range ch {
	}
}
