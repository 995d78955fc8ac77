package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

var _ domain.AttemptStore = (*AttemptStore)(nil)

// AttemptStore keeps one row per coordinator invocation. The legs, the
// rollback order and the event trail live in the detail column.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

// Create inserts an attempt. Re-inserting the same id is a no-op.
func (s *AttemptStore) Create(ctx context.Context, a domain.TradeAttempt) error {
	detail, err := json.Marshal(a.Outcome)
	if err != nil {
		return fmt.Errorf("postgres: marshal attempt outcome: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO trade_attempts (id, purpose, direction, amount, symbol_a, symbol_b, spread_pct, dry_run, outcome, filled_leg, rollback, detail, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`,
		a.ID, string(a.Purpose), string(a.Direction), a.Amount, a.SymbolA, a.SymbolB,
		a.SpreadPct, a.DryRun, string(a.Outcome.Kind), string(a.Outcome.FilledLeg),
		string(a.Outcome.Rollback), detail, a.StartedAt, a.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade_attempt %s: %w", a.ID, err)
	}
	return nil
}

// ListRecent returns the most recent attempts, newest first.
func (s *AttemptStore) ListRecent(ctx context.Context, limit int) ([]domain.TradeAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+attemptColumns+`
		FROM trade_attempts ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade_attempts: %w", err)
	}
	return scanAttempts(rows)
}

// ListBetween returns the attempts started in [from, to), oldest first.
func (s *AttemptStore) ListBetween(ctx context.Context, from, to time.Time) ([]domain.TradeAttempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+attemptColumns+`
		FROM trade_attempts WHERE started_at >= $1 AND started_at < $2 ORDER BY started_at`, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade_attempts between: %w", err)
	}
	return scanAttempts(rows)
}

const attemptColumns = `id, purpose, direction, amount, symbol_a, symbol_b, spread_pct, dry_run, detail, started_at, completed_at`

func scanAttempts(rows pgx.Rows) ([]domain.TradeAttempt, error) {
	defer rows.Close()

	var list []domain.TradeAttempt
	for rows.Next() {
		var (
			a                  domain.TradeAttempt
			purpose, direction string
			detail             []byte
		)
		if err := rows.Scan(&a.ID, &purpose, &direction, &a.Amount, &a.SymbolA, &a.SymbolB,
			&a.SpreadPct, &a.DryRun, &detail, &a.StartedAt, &a.CompletedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan trade_attempt: %w", err)
		}
		a.Purpose = domain.TradePurpose(purpose)
		a.Direction = domain.Direction(direction)
		if err := json.Unmarshal(detail, &a.Outcome); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal outcome of %s: %w", a.ID, err)
		}
		list = append(list, a)
	}
	return list, rows.Err()
}
