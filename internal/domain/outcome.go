package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OutcomeKind classifies the joint result of both legs.
type OutcomeKind string

const (
	OutcomeBothFilled   OutcomeKind = "both_filled"
	OutcomeBothRejected OutcomeKind = "both_rejected"
	OutcomeOneSidedFill OutcomeKind = "one_sided_fill"
)

// RollbackStatus is the result of flattening a one-sided fill.
type RollbackStatus string

const (
	RollbackNone       RollbackStatus = ""
	RollbackRolledBack RollbackStatus = "rolled_back"
	RollbackFailed     RollbackStatus = "rollback_failed"
)

// TradeOutcome is the result of one coordinator invocation.
type TradeOutcome struct {
	Kind      OutcomeKind    `json:"kind"`
	FilledLeg Leg            `json:"filled_leg,omitempty"`
	Rollback  RollbackStatus `json:"rollback,omitempty"`
	Legs      [2]OrderResult `json:"legs"`
	// RollbackResult is set only when a rollback order was submitted.
	RollbackResult *OrderResult `json:"rollback_result,omitempty"`
	Events         Trail        `json:"events"`
}

func (o TradeOutcome) BothFilled() bool { return o.Kind == OutcomeBothFilled }

// RollbackFailed reports the single condition that halts automation.
func (o TradeOutcome) RollbackFailed() bool {
	return o.Kind == OutcomeOneSidedFill && o.Rollback == RollbackFailed
}

// Ambiguous reports whether any leg failed in a way that may still fill.
func (o TradeOutcome) Ambiguous() bool {
	return o.Legs[0].Ambiguous || o.Legs[1].Ambiguous
}

// PartialFills returns the legs that executed only part of their size.
func (o TradeOutcome) PartialFills() []OrderResult {
	var out []OrderResult
	for _, r := range o.Legs {
		if r.PartialFill != nil {
			out = append(out, r)
		}
	}
	return out
}

func (o TradeOutcome) String() string {
	if o.Kind == OutcomeOneSidedFill {
		return fmt.Sprintf("%s{%s, %s}", o.Kind, o.FilledLeg, o.Rollback)
	}
	return string(o.Kind)
}

// TradePurpose is why the trade was attempted.
type TradePurpose string

const (
	PurposeOpen  TradePurpose = "open"
	PurposeClose TradePurpose = "close"
)

// TradeAttempt is the persisted record of one coordinator invocation.
type TradeAttempt struct {
	ID          string          `json:"id"`
	Purpose     TradePurpose    `json:"purpose"`
	Direction   Direction       `json:"direction"`
	Amount      decimal.Decimal `json:"amount"`
	SymbolA     string          `json:"symbol_a"`
	SymbolB     string          `json:"symbol_b"`
	SpreadPct   float64         `json:"spread_pct"`
	DryRun      bool            `json:"dry_run"`
	Outcome     TradeOutcome    `json:"outcome"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
}
