package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func TestStateStoreStartsFlat(t *testing.T) {
	s := NewStateStore()
	pos, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, pos.IsFlat())
	assert.Equal(t, 0, s.Saves())
}

func TestStateStoreRejectsInvalidPosition(t *testing.T) {
	s := NewStateStore()
	err := s.Save(context.Background(), domain.Position{Status: domain.PositionOpen})
	assert.Error(t, err)
	assert.Equal(t, 0, s.Saves())
}

func TestStateStoreRoundTrip(t *testing.T) {
	s := NewStateStore()
	open := domain.Position{
		Status:    domain.PositionOpen,
		Direction: domain.DirectionShortALongB,
		Amount:    decimal.RequireFromString("0.001"),
		OpenedAt:  time.Now(),
	}
	require.NoError(t, s.Save(context.Background(), open))
	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, open, got)
}

func TestLockManagerSingleWriter(t *testing.T) {
	m := NewLockManager()
	ctx := context.Background()

	unlock, err := m.Acquire(ctx, "cycle", time.Minute)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "cycle", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock2, err := m.Acquire(ctx, "cycle", time.Minute)
	require.NoError(t, err)

	// A stale unlock must not release the new holder.
	unlock()
	_, err = m.Acquire(ctx, "cycle", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	unlock2()
}

func TestLockManagerExpires(t *testing.T) {
	m := NewLockManager()
	now := time.Now()
	m.clock = func() time.Time { return now }

	_, err := m.Acquire(context.Background(), "cycle", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = m.Acquire(context.Background(), "cycle", time.Second)
	assert.NoError(t, err)
}

func TestAttemptStoreNewestFirst(t *testing.T) {
	s := NewAttemptStore(2)
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, s.Create(ctx, domain.TradeAttempt{ID: id}))
	}
	got, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[0].ID)
	assert.Equal(t, "2", got[1].ID)
}

func TestAttemptStoreBetween(t *testing.T) {
	s := NewAttemptStore(10)
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{day.Add(-time.Minute), day, day.Add(time.Hour), day.AddDate(0, 0, 1)} {
		require.NoError(t, s.Create(ctx, domain.TradeAttempt{ID: string(rune('a' + i)), StartedAt: at}))
	}
	got, err := s.ListBetween(ctx, day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func TestAuditStoreList(t *testing.T) {
	s := NewAuditStore()
	ctx := context.Background()
	require.NoError(t, s.Log(ctx, "a", nil))
	require.NoError(t, s.Log(ctx, "b", map[string]any{"k": "v"}))

	got, err := s.List(ctx, domain.ListOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].Event)
}
