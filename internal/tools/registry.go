package tools

import (
	"fmt"
	"sort"
	"sync"

	"automaton/internal/logging"
)

// Registry holds the static set of callable tools. It is NOT extensible
// at runtime from untrusted input: Register is only ever called during
// process startup, from trusted code.
type Registry struct {
	mu         sync.RWMutex
	tools      map[string]*Tool
	byCategory map[Category][]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:      make(map[string]*Tool),
		byCategory: make(map[Category][]*Tool),
	}
}

// Register adds a tool, failing if its name is already taken.
func (r *Registry) Register(t *Tool) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, t.Name)
	}
	r.tools[t.Name] = t
	r.byCategory[t.Category] = append(r.byCategory[t.Category], t)

	logging.Get(logging.CategoryTools).Sugar().Debugw("registered tool", "name", t.Name, "category", t.Category, "risk", t.RiskLevel)
	return nil
}

// MustRegister registers a tool and panics on error — used for static
// tool registration at process init.
func (r *Registry) MustRegister(t *Tool) {
	if err := r.Register(t); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", t.Name, err))
	}
}

// Get returns a tool by name, or nil if unregistered.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// All returns every registered tool, sorted by name for deterministic
// prompt construction.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ByCategory returns the tools in a category.
func (r *Registry) ByCategory(cat Category) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]*Tool(nil), r.byCategory[cat]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
