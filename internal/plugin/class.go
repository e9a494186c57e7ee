// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package plugin

import (
	lua "github.com/yuin/gopher-lua"
)

// Class is one harvested plugin class. The table is owned by the Runtime's
// Lua state and must only be called through the Runtime.
type Class struct {
	// Name is the top-level symbol the class was exported under.
	Name string
	// Module is the qualified name of the module that defined the class.
	Module string
	// Source describes where the defining module was loaded from.
	Source string
	// Table is the class table built by the class() constructor.
	Table *lua.LTable
}

// Lookup answers name-collision queries against a pre-existing namespace,
// such as a registry of built-in extractors.
type Lookup interface {
	Has(name string) bool
}

// Classes is an insertion-ordered name to class collection. The first
// registration of a name wins; later ones are dropped.
type Classes struct {
	order []*Class
	index map[string]int
}

// NewClasses returns an empty collection.
func NewClasses() *Classes {
	return &Classes{index: make(map[string]int)}
}

// Add inserts cl unless its name is already present. It reports whether the
// class was added.
func (c *Classes) Add(cl *Class) bool {
	if _, dup := c.index[cl.Name]; dup {
		return false
	}
	c.index[cl.Name] = len(c.order)
	c.order = append(c.order, cl)
	return true
}

// Get returns the class registered under name.
func (c *Classes) Get(name string) (*Class, bool) {
	i, ok := c.index[name]
	if !ok {
		return nil, false
	}
	return c.order[i], true
}

// Has reports whether name is present. Classes therefore satisfies Lookup.
func (c *Classes) Has(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Merge adds every class from other that does not collide with an existing
// entry. Existing entries always win.
func (c *Classes) Merge(other *Classes) {
	if other == nil {
		return
	}
	for _, cl := range other.order {
		c.Add(cl)
	}
}

// All returns the classes in insertion order.
func (c *Classes) All() []*Class {
	out := make([]*Class, len(c.order))
	copy(out, c.order)
	return out
}

// Names returns the class names in insertion order.
func (c *Classes) Names() []string {
	out := make([]string, len(c.order))
	for i, cl := range c.order {
		out[i] = cl.Name
	}
	return out
}

// Len returns the number of classes.
func (c *Classes) Len() int {
	return len(c.order)
}
