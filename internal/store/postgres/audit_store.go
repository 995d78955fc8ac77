package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

var _ domain.AuditStore = (*AuditStore)(nil)

// AuditStore records operator actions and position transitions in
// audit_log.
type AuditStore struct {
	pool *pgxpool.Pool
}

func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log appends an entry. detail is stored as JSONB.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `INSERT INTO audit_log (event, detail) VALUES ($1, $2)`, event, raw); err != nil {
		return fmt.Errorf("postgres: log audit event %s: %w", event, err)
	}
	return nil
}

type auditRow struct {
	ID        int64     `db:"id"`
	Event     string    `db:"event"`
	Detail    []byte    `db:"detail"`
	CreatedAt time.Time `db:"created_at"`
}

// List returns entries newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query, args := listQuery(`SELECT id, event, detail, created_at FROM audit_log`, "created_at", opts)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	recs, err := pgx.CollectRows(rows, pgx.RowToStructByName[auditRow])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan audit entries: %w", err)
	}

	out := make([]domain.AuditEntry, 0, len(recs))
	for _, r := range recs {
		e := domain.AuditEntry{ID: r.ID, Event: r.Event, CreatedAt: r.CreatedAt}
		if len(r.Detail) > 0 {
			if err := json.Unmarshal(r.Detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal audit detail %d: %w", r.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// listQuery appends time bounds, newest-first ordering and paging to base.
func listQuery(base, tsCol string, opts domain.ListOpts) (string, []any) {
	var (
		b     strings.Builder
		args  []any
		where []string
	)
	b.WriteString(base)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.Since != nil {
		where = append(where, tsCol+" >= "+arg(*opts.Since))
	}
	if opts.Until != nil {
		where = append(where, tsCol+" <= "+arg(*opts.Until))
	}
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY " + tsCol + " DESC")
	if opts.Limit > 0 {
		b.WriteString(" LIMIT " + arg(opts.Limit))
	}
	if opts.Offset > 0 {
		b.WriteString(" OFFSET " + arg(opts.Offset))
	}
	return b.String(), args
}
