package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

var _ domain.LockManager = (*AdvisoryLock)(nil)

// AdvisoryLock is a LockManager on session-level advisory locks. The lock
// lives as long as the pooled connection that took it, so the ttl is
// only used to bound the release call.
type AdvisoryLock struct {
	pool *pgxpool.Pool
}

func NewAdvisoryLock(pool *pgxpool.Pool) *AdvisoryLock {
	return &AdvisoryLock{pool: pool}
}

func (l *AdvisoryLock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: acquire conn for lock %s: %w", key, err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("postgres: try advisory lock %s: %w", key, err)
	}
	if !ok {
		conn.Release()
		return nil, domain.ErrLockHeld
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ttl)
		defer cancel()
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, key); err != nil {
			// Dropping the connection releases the lock server-side.
			_ = conn.Conn().Close(ctx)
		}
		conn.Release()
	}, nil
}
