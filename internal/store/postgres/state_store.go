package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

var _ domain.StateStore = (*StateStore)(nil)

// StateStore persists the position in the single-row bot_state table.
type StateStore struct {
	pool *pgxpool.Pool
}

func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

// Load returns the position, inserting a flat row on first use.
func (s *StateStore) Load(ctx context.Context) (domain.Position, error) {
	if _, err := s.pool.Exec(ctx, `INSERT INTO bot_state (id) VALUES (1) ON CONFLICT (id) DO NOTHING`); err != nil {
		return domain.Position{}, fmt.Errorf("postgres: init bot_state: %w", err)
	}

	var (
		pos               domain.Position
		status, direction string
		openedAt          *time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT status, direction, amount, opened_at, entry_spread_pct, note, updated_at
		FROM bot_state WHERE id = 1`,
	).Scan(&status, &direction, &pos.Amount, &openedAt, &pos.EntrySpreadPct, &pos.Note, &pos.UpdatedAt)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: load bot_state: %w", err)
	}
	pos.Status = domain.PositionStatus(status)
	pos.Direction = domain.Direction(direction)
	if openedAt != nil {
		pos.OpenedAt = *openedAt
	}
	return pos, nil
}

// Save replaces the row in one statement.
func (s *StateStore) Save(ctx context.Context, pos domain.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	var openedAt *time.Time
	if !pos.OpenedAt.IsZero() {
		openedAt = &pos.OpenedAt
	}
	updatedAt := pos.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bot_state (id, status, direction, amount, opened_at, entry_spread_pct, note, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			direction = EXCLUDED.direction,
			amount = EXCLUDED.amount,
			opened_at = EXCLUDED.opened_at,
			entry_spread_pct = EXCLUDED.entry_spread_pct,
			note = EXCLUDED.note,
			updated_at = EXCLUDED.updated_at`,
		string(pos.Status), string(pos.Direction), pos.Amount, openedAt,
		pos.EntrySpreadPct, pos.Note, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save bot_state: %w", err)
	}
	return nil
}
