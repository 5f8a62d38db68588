package strategy

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

// Registry holds the strategies available to computer-controlled seats.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// NewDefaultRegistry registers a threshold policy for every built-in
// profile. Each policy gets its own random source seeded from rng.
func NewDefaultRegistry(rng *rand.Rand) *Registry {
	r := NewRegistry()
	for _, p := range Profiles() {
		r.Register(p.Name, NewThreshold(p, rand.New(rand.NewSource(rng.Int63()))))
	}
	return r
}

// Register adds a strategy. Panics on duplicate names.
func (r *Registry) Register(name string, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[name]; exists {
		panic(fmt.Sprintf("strategy %q already registered", name))
	}
	r.strategies[name] = s
}

// Get returns a strategy by name.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// List returns the registered names in order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
