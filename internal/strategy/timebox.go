package strategy

import (
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// TimeboxTrigger opens in a fixed direction whenever the position is flat
// and closes after the configured hold.
type TimeboxTrigger struct {
	p Params
}

// NewTimeboxTrigger creates a TimeboxTrigger.
func NewTimeboxTrigger(p Params) *TimeboxTrigger {
	return &TimeboxTrigger{p: p}
}

func (t *TimeboxTrigger) Name() string { return "timebox" }

func (t *TimeboxTrigger) Entry(domain.Snapshot, time.Time) (domain.Direction, bool) {
	return t.p.FixedDirection, t.p.FixedDirection.Valid()
}

func (t *TimeboxTrigger) Exit(pos domain.Position, _ domain.Snapshot, now time.Time) (string, bool) {
	return holdExpired(pos, now, t.p.MaxHold)
}
