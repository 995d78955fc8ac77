package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Inverse returns the opposing side.
func (s OrderSide) Inverse() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// Leg identifies one of the two venues of a hedged trade.
type Leg string

const (
	LegA Leg = "a"
	LegB Leg = "b"
)

// OrderRequest is a market order submitted to a single venue.
type OrderRequest struct {
	Symbol string
	Side   OrderSide
	Amount decimal.Decimal
}

// LimitOrderRequest is a resting limit order, used by the preflight tooling only.
type LimitOrderRequest struct {
	Symbol string
	Side   OrderSide
	Amount decimal.Decimal
	Price  decimal.Decimal
}

// OrderResult is the outcome of one leg submission.
type OrderResult struct {
	Leg       Leg             `json:"leg"`
	Venue     string          `json:"venue"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	Amount    decimal.Decimal `json:"amount"`
	OrderID   string          `json:"order_id,omitempty"`
	Err       error           `json:"-"`
	ErrKind   ErrorKind       `json:"error_kind,omitempty"`
	Recovered bool            `json:"recovered,omitempty"` // fill found by reconciliation after a network failure
	Ambiguous bool            `json:"ambiguous,omitempty"` // network failure that could not be reconciled
	// PartialFill is the executed size of an order that filled only in part.
	PartialFill *decimal.Decimal `json:"partial_fill,omitempty"`
	Latency     time.Duration    `json:"latency_ns"`
}

// MarshalJSON renders Err as its message.
func (r OrderResult) MarshalJSON() ([]byte, error) {
	type alias OrderResult
	return json.Marshal(struct {
		alias
		Error string `json:"error,omitempty"`
	}{alias: alias(r), Error: r.ErrString()})
}

// UnmarshalJSON restores Err from its message.
func (r *OrderResult) UnmarshalJSON(data []byte) error {
	type alias OrderResult
	var v struct {
		alias
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = OrderResult(v.alias)
	if v.Error != "" {
		r.Err = errors.New(v.Error)
	}
	return nil
}

// Success reports whether the venue accepted the order.
func (r OrderResult) Success() bool {
	return r.Err == nil && r.OrderID != ""
}

// ErrString returns the error message or an empty string.
func (r OrderResult) ErrString() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Quote is a last-trade price observed at a venue.
type Quote struct {
	Venue      string    `json:"venue"`
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	ObservedAt time.Time `json:"observed_at"`
}

// Balance is an asset balance reported by a venue.
type Balance struct {
	Asset string
	Total decimal.Decimal
	Free  decimal.Decimal
}
