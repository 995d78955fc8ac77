package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

func fast() Config {
	return Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func isTransient(err error) bool { return errors.Is(err, errTransient) }

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	retries := 0
	v, err := Do(context.Background(), fast(), isTransient, func(int, error, time.Duration) { retries++ }, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errTransient
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad key")
	calls := 0
	_, err := Do(context.Background(), fast(), isTransient, nil, func() (int, error) {
		calls++
		return 0, permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoGivesUp(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fast(), isTransient, nil, func() (int, error) {
		calls++
		return 0, errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 4, calls)
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := Config{MaxRetries: 5, InitialBackoff: time.Hour, MaxBackoff: time.Hour}
	_, err := Do(ctx, cfg, isTransient, nil, func() (int, error) { return 0, errTransient })
	assert.ErrorIs(t, err, context.Canceled)
}
