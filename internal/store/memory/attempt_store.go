package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

var _ domain.AttemptStore = (*AttemptStore)(nil)

// AttemptStore keeps the most recent attempts in a bounded slice.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts []domain.TradeAttempt
	max      int
}

// NewAttemptStore creates a store retaining at most max attempts.
func NewAttemptStore(limit int) *AttemptStore {
	if limit <= 0 {
		limit = 500
	}
	return &AttemptStore{max: limit}
}

func (s *AttemptStore) Create(_ context.Context, a domain.TradeAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, a)
	if len(s.attempts) > s.max {
		s.attempts = s.attempts[len(s.attempts)-s.max:]
	}
	return nil
}

// ListRecent returns up to limit attempts, newest first.
func (s *AttemptStore) ListRecent(_ context.Context, limit int) ([]domain.TradeAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.attempts) {
		limit = len(s.attempts)
	}
	out := make([]domain.TradeAttempt, 0, limit)
	for i := len(s.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.attempts[i])
	}
	return out, nil
}

// ListBetween returns the retained attempts started in [from, to), oldest first.
func (s *AttemptStore) ListBetween(_ context.Context, from, to time.Time) ([]domain.TradeAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.TradeAttempt
	for _, a := range s.attempts {
		if !a.StartedAt.Before(from) && a.StartedAt.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}
