package core

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the entity kinds rows can be imported into.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]EntityKind
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]EntityKind)}
}

// DefaultRegistry is populated by the kinds package at init time.
var DefaultRegistry = NewRegistry()

// Register adds an entity kind to the default registry.
func Register(kind EntityKind) {
	DefaultRegistry.Register(kind)
}

// Register adds an entity kind.
// Panics if a kind with the same key is already registered or the
// definition references fields it does not declare.
func (r *Registry) Register(kind EntityKind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.kinds[kind.Key]; exists {
		panic(fmt.Sprintf("entity kind already registered: %s", kind.Key))
	}
	if kind.Scope == "" {
		kind.Scope = ScopeShared
	}
	for _, group := range [][]string{kind.IdentityFields, kind.DescriptiveFields, kind.AssetFields} {
		for _, name := range group {
			if _, ok := kind.Field(name); !ok {
				panic(fmt.Sprintf("entity kind %s: unknown field %q", kind.Key, name))
			}
		}
	}
	if len(kind.IdentityFields) == 0 {
		panic(fmt.Sprintf("entity kind %s: no identity fields", kind.Key))
	}

	r.kinds[kind.Key] = kind
}

// Get returns an entity kind by key.
func (r *Registry) Get(key string) (EntityKind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kind, ok := r.kinds[key]
	return kind, ok
}

// All returns every registered kind sorted by key.
func (r *Registry) All() []EntityKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]EntityKind, 0, len(r.kinds))
	for _, k := range r.kinds {
		result = append(result, k)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})
	return result
}

// Count returns the number of registered kinds.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kinds)
}
