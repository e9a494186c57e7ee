// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

// Package postproc runs postprocessors over extracted media information.
package postproc

import (
	"context"
	"sync"

	"github.com/samber/oops"

	"github.com/sluice-dl/sluice/pkg/extractor"
)

// Postprocessor transforms extracted information after an extractor produced
// it.
type Postprocessor interface {
	// Name returns the chain key, unique across the process.
	Name() string
	// Process inspects or mutates info in place.
	Process(ctx context.Context, info *extractor.Info) error
}

// Chain is an ordered, name-unique collection of postprocessors.
// Registration is first-wins. Safe for concurrent use.
type Chain struct {
	mu    sync.RWMutex
	order []Postprocessor
	names map[string]int
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{names: make(map[string]int)}
}

// DefaultChain returns a chain seeded with the built-in postprocessors.
func DefaultChain() *Chain {
	c := NewChain()
	c.Register(SortFormats{})
	return c
}

// Register appends p unless its name is already taken. Reports whether it
// was added.
func (c *Chain) Register(p Postprocessor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, taken := c.names[p.Name()]; taken {
		return false
	}
	c.names[p.Name()] = len(c.order)
	c.order = append(c.order, p)
	return true
}

// Has reports whether name is registered.
func (c *Chain) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.names[name]
	return ok
}

// Lookup returns the postprocessor registered under name.
func (c *Chain) Lookup(name string) (Postprocessor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.names[name]
	if !ok {
		return nil, false
	}
	return c.order[i], true
}

// List returns the postprocessors in registration order.
func (c *Chain) List() []Postprocessor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Postprocessor, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of registered postprocessors.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Run applies every postprocessor in registration order, stopping at the
// first failure.
func (c *Chain) Run(ctx context.Context, info *extractor.Info) error {
	for _, p := range c.List() {
		if err := p.Process(ctx, info); err != nil {
			return oops.In("postproc").
				With("postprocessor", p.Name()).
				With("media_id", info.ID).
				Wrapf(err, "postprocessor failed")
		}
	}
	return nil
}
