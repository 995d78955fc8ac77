package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of the hedged position.
type PositionStatus string

const (
	PositionFlat  PositionStatus = "flat"
	PositionOpen  PositionStatus = "open"
	PositionStuck PositionStatus = "stuck_manual_intervention"
)

// Direction is which venue is sold and which is bought.
type Direction string

const (
	DirectionLongAShortB Direction = "long_a_short_b"
	DirectionShortALongB Direction = "short_a_long_b"
)

// ParseDirection validates a direction string.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionLongAShortB, DirectionShortALongB:
		return Direction(s), nil
	}
	return "", fmt.Errorf("domain: unknown direction %q", s)
}

// Valid reports whether d is one of the two known directions.
func (d Direction) Valid() bool {
	return d == DirectionLongAShortB || d == DirectionShortALongB
}

// Sides returns the order side for venue A and venue B.
func (d Direction) Sides() (sideA, sideB OrderSide) {
	if d == DirectionShortALongB {
		return OrderSideSell, OrderSideBuy
	}
	return OrderSideBuy, OrderSideSell
}

// SideFor returns the order side for the given leg.
func (d Direction) SideFor(leg Leg) OrderSide {
	a, b := d.Sides()
	if leg == LegA {
		return a
	}
	return b
}

// Inverse returns the direction that unwinds d.
func (d Direction) Inverse() Direction {
	if d == DirectionShortALongB {
		return DirectionLongAShortB
	}
	return DirectionShortALongB
}

// Position is the single persisted record driving the bot.
type Position struct {
	Status         PositionStatus  `json:"status"`
	Direction      Direction       `json:"direction,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	OpenedAt       time.Time       `json:"opened_at"`
	EntrySpreadPct float64         `json:"entry_spread_pct"`
	Note           string          `json:"note,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// FlatPosition returns the initial record.
func FlatPosition() Position {
	return Position{Status: PositionFlat, Amount: decimal.Zero}
}

func (p Position) IsFlat() bool  { return p.Status == PositionFlat }
func (p Position) IsOpen() bool  { return p.Status == PositionOpen }
func (p Position) IsStuck() bool { return p.Status == PositionStuck }

// HeldFor returns how long an open position has been held.
func (p Position) HeldFor(now time.Time) time.Duration {
	if p.OpenedAt.IsZero() {
		return 0
	}
	return now.Sub(p.OpenedAt)
}

// Validate checks the record invariants.
func (p Position) Validate() error {
	switch p.Status {
	case PositionFlat:
		return nil
	case PositionOpen:
		if !p.Direction.Valid() {
			return fmt.Errorf("domain: open position has invalid direction %q", p.Direction)
		}
		if !p.Amount.IsPositive() {
			return fmt.Errorf("domain: open position: %w", ErrInvalidAmount)
		}
		if p.OpenedAt.IsZero() {
			return fmt.Errorf("domain: open position has no opened_at")
		}
		return nil
	case PositionStuck:
		return nil
	default:
		return fmt.Errorf("domain: unknown position status %q", p.Status)
	}
}
