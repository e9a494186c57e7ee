// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package extractor

import "sync"

// Registry is an ordered collection of extractors. Match walks extractors in
// registration order, so specific extractors must be registered before
// catch-alls. Names are unique: the first registration of a name wins and
// later ones are dropped.
type Registry struct {
	mu    sync.RWMutex
	order []Extractor
	names map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]int)}
}

// DefaultRegistry returns a registry seeded with the built-in extractors.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Generic{})
	return r
}

// Register adds e unless its name is already taken. It reports whether the
// extractor was added.
func (r *Registry) Register(e Extractor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.names[e.Name()]; dup {
		return false
	}
	r.names[e.Name()] = len(r.order)
	r.order = append(r.order, e)
	return true
}

// Lookup returns the extractor registered under name.
func (r *Registry) Lookup(name string) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.names[name]
	if !ok {
		return nil, false
	}
	return r.order[i], true
}

// Has reports whether name is already registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names[name]
	return ok
}

// Match returns the first registered extractor whose Suitable accepts url.
func (r *Registry) Match(url string) (Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.order {
		if e.Suitable(url) {
			return e, true
		}
	}
	return nil, false
}

// List returns the extractors in registration order.
func (r *Registry) List() []Extractor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Extractor, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered extractors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
