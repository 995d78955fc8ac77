package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

var _ domain.LockManager = (*LockManager)(nil)

// LockManager is a process-local LockManager. Locks expire after their TTL.
type LockManager struct {
	mu    sync.Mutex
	held  map[string]lease
	seq   uint64
	clock func() time.Time
}

type lease struct {
	token   uint64
	expires time.Time
}

func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]lease), clock: time.Now}
}

func (m *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	if l, ok := m.held[key]; ok && now.Before(l.expires) {
		return nil, domain.ErrLockHeld
	}
	m.seq++
	token := m.seq
	m.held[key] = lease{token: token, expires: now.Add(ttl)}

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if l, ok := m.held[key]; ok && l.token == token {
			delete(m.held, key)
		}
	}, nil
}
