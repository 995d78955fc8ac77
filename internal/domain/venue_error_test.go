package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ErrorKindNone},
		{"venue error", NewVenueError(ErrorKindInsufficientFunds, "backpack", "order", errors.New("no funds")), ErrorKindInsufficientFunds},
		{"wrapped venue error", fmt.Errorf("leg a: %w", NewVenueError(ErrorKindAuth, "backpack", "order", errors.New("bad key"))), ErrorKindAuth},
		{"deadline", context.DeadlineExceeded, ErrorKindNetwork},
		{"wrapped deadline", fmt.Errorf("submit: %w", context.DeadlineExceeded), ErrorKindNetwork},
		{"other", errors.New("boom"), ErrorKindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestKindFromStatus(t *testing.T) {
	assert.Equal(t, ErrorKindAuth, KindFromStatus(401))
	assert.Equal(t, ErrorKindPermission, KindFromStatus(403))
	assert.Equal(t, ErrorKindRateLimited, KindFromStatus(429))
	assert.Equal(t, ErrorKindNetwork, KindFromStatus(502))
	assert.Equal(t, ErrorKindUnknown, KindFromStatus(400))
}

func TestPartialFillOf(t *testing.T) {
	err := fmt.Errorf("leg b: %w", &PartialFillError{
		Venue:     "hyperliquid",
		OrderID:   "9",
		Requested: decimal.RequireFromString("0.5"),
		Filled:    decimal.RequireFromString("0.1"),
	})
	filled, ok := PartialFillOf(err)
	assert.True(t, ok)
	assert.Equal(t, "0.1", filled.String())
	assert.Contains(t, err.Error(), "filled 0.1 of 0.5")
	assert.Equal(t, ErrorKindUnknown, KindOf(err))

	_, ok = PartialFillOf(errors.New("rejected"))
	assert.False(t, ok)
}
