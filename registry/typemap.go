package registry

import (
	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
)

// TypeMap maps native type identities to descriptors of type V.
type TypeMap[V any] struct {
	entries map[string]V
}

// NewTypeMap creates an empty type map.
func NewTypeMap[V any]() *TypeMap[V] {
	return &TypeMap[V]{entries: make(map[string]V)}
}

// Insert records v for the identity t. An identity can be registered once.
func (m *TypeMap[V]) Insert(t *nb.TypeInfo, v V) error {
	key := t.Key()
	if _, ok := m.entries[key]; ok {
		return errors.New(errors.PhaseRegister, errors.KindDuplicate).
			TypeName(key).
			Detail("type was already registered").
			Build()
	}
	m.entries[key] = v
	return nil
}

// Lookup returns the descriptor registered for t.
func (m *TypeMap[V]) Lookup(t *nb.TypeInfo) (V, bool) {
	v, ok := m.entries[t.Key()]
	return v, ok
}

// Remove drops the entry for t and reports whether it existed.
func (m *TypeMap[V]) Remove(t *nb.TypeInfo) bool {
	key := t.Key()
	if _, ok := m.entries[key]; !ok {
		return false
	}
	delete(m.entries, key)
	return true
}

// Each calls fn for every entry until fn returns false.
func (m *TypeMap[V]) Each(fn func(key string, v V) bool) {
	for k, v := range m.entries {
		if !fn(k, v) {
			return
		}
	}
}

// Len returns the number of registered types.
func (m *TypeMap[V]) Len() int {
	return len(m.entries)
}
