package domain

import (
	"context"
	"time"
)

// VenueAdapter submits orders to one venue. Implementations return
// *VenueError for every failure.
type VenueAdapter interface {
	Name() string
	SubmitMarketOrder(ctx context.Context, req OrderRequest) (orderID string, err error)
	CancelOrder(ctx context.Context, orderID, symbol string) error
}

// PriceSource supplies the last traded price for a symbol.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (Quote, error)
}

// FillReconciler is implemented by venues that can look up whether an
// order matching req filled after since.
type FillReconciler interface {
	FindFill(ctx context.Context, req OrderRequest, since time.Time) (orderID string, found bool, err error)
}

// LimitOrderPlacer is implemented by venues that support resting limit orders.
type LimitOrderPlacer interface {
	SubmitLimitOrder(ctx context.Context, req LimitOrderRequest) (orderID string, err error)
}

// BalanceReader is implemented by venues that expose account balances.
type BalanceReader interface {
	Balances(ctx context.Context) ([]Balance, error)
}
