package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// SpreadTrigger opens when the venue spread exceeds the open threshold and
// closes when it reverts below the close threshold or the hold limit passes.
type SpreadTrigger struct {
	p Params
}

// NewSpreadTrigger creates a SpreadTrigger.
func NewSpreadTrigger(p Params) *SpreadTrigger {
	return &SpreadTrigger{p: p}
}

func (t *SpreadTrigger) Name() string { return "spread" }

// Entry sells the expensive venue and buys the cheap one. A positive spread
// means venue A is expensive.
func (t *SpreadTrigger) Entry(snap domain.Snapshot, _ time.Time) (domain.Direction, bool) {
	s := snap.SpreadPct()
	if math.Abs(s) <= t.p.OpenThresholdPct {
		return "", false
	}
	if s > 0 {
		return domain.DirectionShortALongB, true
	}
	return domain.DirectionLongAShortB, true
}

// Exit is direction-aware: the spread is oriented so that the side that was
// expensive at entry reads positive, and the position closes once that
// oriented spread drops below the close threshold.
func (t *SpreadTrigger) Exit(pos domain.Position, snap domain.Snapshot, now time.Time) (string, bool) {
	if reason, ok := holdExpired(pos, now, t.p.MaxHold); ok {
		return reason, true
	}
	oriented := orientedSpread(pos.Direction, snap.SpreadPct())
	if oriented < t.p.CloseThresholdPct {
		return fmt.Sprintf("spread reverted to %.4f%% (entry %.4f%%, close below %.4f%%)",
			oriented, math.Abs(pos.EntrySpreadPct), t.p.CloseThresholdPct), true
	}
	return "", false
}

func orientedSpread(d domain.Direction, spreadPct float64) float64 {
	if d == domain.DirectionLongAShortB {
		return -spreadPct
	}
	return spreadPct
}

func holdExpired(pos domain.Position, now time.Time, maxHold time.Duration) (string, bool) {
	if maxHold <= 0 {
		return "", false
	}
	held := pos.HeldFor(now)
	if held >= maxHold {
		return fmt.Sprintf("held %s, max hold %s", held.Round(time.Second), maxHold), true
	}
	return "", false
}
