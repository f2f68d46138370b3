package detector

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a compiled-in detector from the rule that references it.
// The rule carries the code, title and file filters the detector reports with.
type Factory func(rule Rule) (Detector, error)

// Registry maps builtin names to compiled-in detector factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory. Names are unique.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("builtin detector needs a name and a factory")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("builtin detector %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Build materializes the builtin a rule refers to.
func (r *Registry) Build(rule Rule) (Detector, error) {
	r.mu.RLock()
	factory, ok := r.factories[rule.Builtin]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown builtin detector %q", rule.Builtin)
	}
	det, err := factory(rule)
	if err != nil {
		return nil, fmt.Errorf("builtin %s: %w", rule.Builtin, err)
	}
	if det == nil {
		return nil, fmt.Errorf("builtin %s returned no detector", rule.Builtin)
	}
	return det, nil
}

// Names returns the registered builtin names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
