package domain

import "time"

// Snapshot is a pair of quotes read in the same cycle.
type Snapshot struct {
	A Quote `json:"a"`
	B Quote `json:"b"`
}

// SpreadPct returns (A-B)/A*100. Venue A is the denominator for both entry
// and exit so the captured spread keeps one basis over a position's life.
func (s Snapshot) SpreadPct() float64 {
	if s.A.Price == 0 {
		return 0
	}
	return (s.A.Price - s.B.Price) / s.A.Price * 100
}

// Valid reports whether both prices are usable.
func (s Snapshot) Valid() bool {
	return s.A.Price > 0 && s.B.Price > 0
}

// Oldest returns the observation time of the older quote.
func (s Snapshot) Oldest() time.Time {
	if s.A.ObservedAt.Before(s.B.ObservedAt) {
		return s.A.ObservedAt
	}
	return s.B.ObservedAt
}
