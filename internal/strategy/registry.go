package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages the named triggers that can be selected by configuration.
// It is safe for concurrent use.
type Registry struct {
	triggers map[string]Trigger
	mu       sync.RWMutex
}

// NewRegistry returns a Registry holding the built-in triggers configured
// with p.
func NewRegistry(p Params) *Registry {
	r := &Registry{triggers: make(map[string]Trigger)}
	r.Register(NewSpreadTrigger(p))
	r.Register(NewTimeboxTrigger(p))
	return r
}

// Register adds a trigger under its own name, replacing any existing one.
func (r *Registry) Register(t Trigger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers[t.Name()] = t
}

// Get retrieves a trigger by name.
func (r *Registry) Get(name string) (Trigger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.triggers[name]
	if !ok {
		return nil, fmt.Errorf("trigger %q: not registered", name)
	}
	return t, nil
}

// List returns the names of all registered triggers in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.triggers))
	for n := range r.triggers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
