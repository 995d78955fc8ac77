package domain

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/shopspring/decimal"
)

// ErrorKind classifies a failed venue call.
type ErrorKind string

const (
	ErrorKindNone              ErrorKind = ""
	ErrorKindAuth              ErrorKind = "auth"
	ErrorKindPermission        ErrorKind = "permission"
	ErrorKindInsufficientFunds ErrorKind = "insufficient_funds"
	ErrorKindRateLimited       ErrorKind = "rate_limited"
	ErrorKindNetwork           ErrorKind = "network"
	ErrorKindUnknown           ErrorKind = "unknown"
)

// VenueError is returned by venue adapters for any failed call.
type VenueError struct {
	Kind   ErrorKind
	Venue  string
	Op     string
	Status int
	Err    error
}

func (e *VenueError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s: %s (status %d): %v", e.Venue, e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s: %v", e.Venue, e.Op, e.Kind, e.Err)
}

func (e *VenueError) Unwrap() error { return e.Err }

// NewVenueError builds a VenueError of the given kind.
func NewVenueError(kind ErrorKind, venue, op string, err error) *VenueError {
	return &VenueError{Kind: kind, Venue: venue, Op: op, Err: err}
}

// KindOf classifies err. Timeouts and transport failures are network-class.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var ve *VenueError
	if errors.As(err, &ve) && ve.Kind != ErrorKindNone {
		return ve.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorKindNetwork
	}
	return ErrorKindUnknown
}

// KindFromStatus maps an HTTP status code to an ErrorKind.
func KindFromStatus(status int) ErrorKind {
	switch {
	case status == 401:
		return ErrorKindAuth
	case status == 403:
		return ErrorKindPermission
	case status == 429:
		return ErrorKindRateLimited
	case status >= 500:
		return ErrorKindNetwork
	default:
		return ErrorKindUnknown
	}
}

// PartialFillError reports an order that executed less than the requested
// size. The executed part is live exposure on the venue.
type PartialFillError struct {
	Venue     string
	OrderID   string
	Requested decimal.Decimal
	Filled    decimal.Decimal
}

func (e *PartialFillError) Error() string {
	return fmt.Sprintf("%s: order %s filled %s of %s", e.Venue, e.OrderID, e.Filled, e.Requested)
}

// PartialFillOf returns the executed size when err is a partial fill.
func PartialFillOf(err error) (decimal.Decimal, bool) {
	var pf *PartialFillError
	if errors.As(err, &pf) {
		return pf.Filled, true
	}
	return decimal.Zero, false
}
