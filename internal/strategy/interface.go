// Package strategy holds the position state machine: pure entry/exit
// evaluation, commit rules, and the cycle engine that wires them to the
// coordinator and the state store.
package strategy

import (
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Trigger decides when a flat position should open and when an open one
// should close. Implementations are pure.
type Trigger interface {
	Name() string
	// Entry reports whether to open and in which direction.
	Entry(snap domain.Snapshot, now time.Time) (domain.Direction, bool)
	// Exit reports whether to close pos and why.
	Exit(pos domain.Position, snap domain.Snapshot, now time.Time) (reason string, ok bool)
}

// Params holds trigger thresholds.
type Params struct {
	OpenThresholdPct  float64
	CloseThresholdPct float64
	// MaxHold closes a position held this long. Zero disables it.
	MaxHold        time.Duration
	FixedDirection domain.Direction
}
