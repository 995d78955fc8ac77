package strategy

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Action is what a cycle should do.
type Action string

const (
	ActionNone  Action = "none"
	ActionOpen  Action = "open"
	ActionClose Action = "close"
)

// Decision is the result of evaluating one snapshot.
type Decision struct {
	Action Action
	// Direction is the direction of the trade to submit. For a close it is
	// the inverse of the held direction.
	Direction domain.Direction
	SpreadPct float64
	Reason    string
}

// Evaluate decides what to do with pos given a fresh snapshot. It has no
// side effects.
func Evaluate(t Trigger, pos domain.Position, snap domain.Snapshot, now time.Time) Decision {
	spread := snap.SpreadPct()
	d := Decision{Action: ActionNone, SpreadPct: spread}

	switch pos.Status {
	case domain.PositionFlat:
		dir, ok := t.Entry(snap, now)
		if !ok {
			d.Reason = "no entry signal"
			return d
		}
		d.Action = ActionOpen
		d.Direction = dir
		d.Reason = fmt.Sprintf("%s entry at spread %.4f%%", t.Name(), spread)
	case domain.PositionOpen:
		reason, ok := t.Exit(pos, snap, now)
		if !ok {
			d.Reason = "holding"
			return d
		}
		d.Action = ActionClose
		d.Direction = pos.Direction.Inverse()
		d.Reason = reason
	default:
		d.Reason = "position requires manual intervention"
	}
	return d
}

// Transition applies the commit rules to the outcome of the trade for d.
// It returns the new position and whether it must be saved.
//
// A failed rollback moves to stuck from any state. Only both legs filling
// commits the open or close. Everything else leaves pos untouched.
func Transition(pos domain.Position, d Decision, out domain.TradeOutcome, amount decimal.Decimal, now time.Time) (domain.Position, bool) {
	if out.RollbackFailed() {
		stuck := pos
		stuck.Status = domain.PositionStuck
		stuck.UpdatedAt = now
		stuck.Note = stuckNote(d, out, amount)
		return stuck, true
	}
	if !out.BothFilled() {
		return pos, false
	}

	switch d.Action {
	case ActionOpen:
		return domain.Position{
			Status:         domain.PositionOpen,
			Direction:      d.Direction,
			Amount:         amount,
			OpenedAt:       now,
			EntrySpreadPct: d.SpreadPct,
			UpdatedAt:      now,
		}, true
	case ActionClose:
		flat := domain.FlatPosition()
		flat.UpdatedAt = now
		return flat, true
	}
	return pos, false
}

func stuckNote(d Decision, out domain.TradeOutcome, amount decimal.Decimal) string {
	venue := ""
	if out.RollbackResult != nil {
		venue = out.RollbackResult.Venue
	}
	return fmt.Sprintf("rollback failed on leg %s (%s) during %s %s %s; unhedged exposure must be flattened manually",
		out.FilledLeg, venue, d.Action, d.Direction, amount)
}
