package migration

import (
	"fmt"
	"sort"

	"github.com/mesh-intelligence/blockshift/pkg/types"
)

// Registry holds migrations by name. Iteration follows name order, which is
// the order migrations are applied in.
type Registry struct {
	byName map[string]Migration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Migration)}
}

// Register validates and adds migrations.
func (r *Registry) Register(ms ...Migration) error {
	for _, m := range ms {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("migration %q: %w", m.Name, err)
		}
		if _, ok := r.byName[m.Name]; ok {
			return fmt.Errorf("%w: %s", types.ErrDuplicateName, m.Name)
		}
		if _, err := m.Transformer(); err != nil {
			return fmt.Errorf("migration %q: %w", m.Name, err)
		}
		r.byName[m.Name] = m
	}
	return nil
}

// Get returns the named migration.
func (r *Registry) Get(name string) (Migration, error) {
	m, ok := r.byName[name]
	if !ok {
		return Migration{}, fmt.Errorf("%w: %s", types.ErrUnknownMigration, name)
	}
	return m, nil
}

// All returns every migration in application order.
func (r *Registry) All() []Migration {
	out := make([]Migration, 0, len(r.byName))
	for _, m := range r.byName {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered migrations.
func (r *Registry) Len() int {
	return len(r.byName)
}
