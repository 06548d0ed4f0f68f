package runtime

import (
	"sync"

	"github.com/aretw0/callflow/pkg/domain"
)

// Variables is a session's variable table. Only declared names are exposed
// through Snapshot, but any name may be set.
type Variables struct {
	mu       sync.RWMutex
	values   map[string]string
	declared []string
}

// NewVariables creates an empty table exposing the given names.
func NewVariables(declared []string) *Variables {
	return &Variables{
		values:   make(map[string]string),
		declared: append([]string(nil), declared...),
	}
}

// Set stores a value.
func (v *Variables) Set(name, value string) {
	v.mu.Lock()
	v.values[name] = value
	v.mu.Unlock()
}

// Unset removes a value.
func (v *Variables) Unset(name string) {
	v.mu.Lock()
	delete(v.values, name)
	v.mu.Unlock()
}

// Get returns a value and whether it is set. It satisfies domain.Lookup.
func (v *Variables) Get(name string) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.values[name]
	return val, ok
}

// Declared returns the exposed names in declaration order.
func (v *Variables) Declared() []string {
	return append([]string(nil), v.declared...)
}

// Snapshot copies the declared variables in declaration order.
func (v *Variables) Snapshot() []domain.Binding {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]domain.Binding, len(v.declared))
	for i, name := range v.declared {
		val, ok := v.values[name]
		out[i] = domain.Binding{Name: name, Value: val, Set: ok}
	}
	return out
}
