package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrLockHeld       = errors.New("lock already held")
	ErrStalePrice     = errors.New("stale price")
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrInvalidOrder   = errors.New("invalid order parameters")
	ErrPositionStuck  = errors.New("position requires manual intervention")
	ErrNotStuck       = errors.New("position is not stuck")
	ErrSigningFailed  = errors.New("signing failed")
	ErrNotImplemented = errors.New("not implemented by venue")
)
