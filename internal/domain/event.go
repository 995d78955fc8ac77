package domain

import (
	"fmt"
	"strings"
	"time"
)

// EventKind tags a trail entry.
type EventKind string

const (
	EventLegSubmitted      EventKind = "leg_submitted"
	EventLegFilled         EventKind = "leg_filled"
	EventLegFailed         EventKind = "leg_failed"
	EventLegRecovered      EventKind = "leg_recovered"
	EventLegAmbiguous      EventKind = "leg_ambiguous"
	EventLegPartial        EventKind = "leg_partial"
	EventClassified        EventKind = "classified"
	EventRollbackSubmitted EventKind = "rollback_submitted"
	EventRollbackSucceeded EventKind = "rollback_succeeded"
	EventRollbackFailed    EventKind = "rollback_failed"
	EventTransition        EventKind = "transition"
)

// Event is one human-readable audit entry.
type Event struct {
	At      time.Time `json:"at"`
	Kind    EventKind `json:"kind"`
	Leg     Leg       `json:"leg,omitempty"`
	Message string    `json:"message"`
}

func (e Event) String() string {
	if e.Leg != "" {
		return fmt.Sprintf("%s [%s] leg=%s %s", e.At.Format(time.RFC3339Nano), e.Kind, e.Leg, e.Message)
	}
	return fmt.Sprintf("%s [%s] %s", e.At.Format(time.RFC3339Nano), e.Kind, e.Message)
}

// Trail is an ordered event log for a single trade attempt.
type Trail []Event

// Add appends an event.
func (t *Trail) Add(at time.Time, kind EventKind, leg Leg, format string, args ...any) {
	*t = append(*t, Event{At: at, Kind: kind, Leg: leg, Message: fmt.Sprintf(format, args...)})
}

// Has reports whether any event of kind exists.
func (t Trail) Has(kind EventKind) bool {
	for _, e := range t {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

func (t Trail) String() string {
	lines := make([]string, len(t))
	for i, e := range t {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}
