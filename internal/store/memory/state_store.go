// Package memory provides in-process implementations of the store ports for
// dry runs and tests. Data is lost on process restart.
package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

var _ domain.StateStore = (*StateStore)(nil)

// StateStore keeps the position record in memory.
type StateStore struct {
	mu    sync.Mutex
	pos   domain.Position
	init  bool
	saves int
}

// NewStateStore creates an empty store. The first Load returns a flat position.
func NewStateStore() *StateStore {
	return &StateStore{}
}

// NewStateStoreWith creates a store seeded with pos.
func NewStateStoreWith(pos domain.Position) *StateStore {
	return &StateStore{pos: pos, init: true}
}

func (s *StateStore) Load(_ context.Context) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.init {
		s.pos = domain.FlatPosition()
		s.init = true
	}
	return s.pos, nil
}

func (s *StateStore) Save(_ context.Context, pos domain.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = pos
	s.init = true
	s.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (s *StateStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
