package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// StateStore persists the single Position record.
type StateStore interface {
	// Load returns the current position, creating a flat record on first use.
	Load(ctx context.Context) (Position, error)
	Save(ctx context.Context, pos Position) error
}

// AttemptStore persists every coordinator invocation.
type AttemptStore interface {
	Create(ctx context.Context, attempt TradeAttempt) error
	ListRecent(ctx context.Context, limit int) ([]TradeAttempt, error)
	// ListBetween returns every attempt started in [from, to), oldest first.
	ListBetween(ctx context.Context, from, to time.Time) ([]TradeAttempt, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
