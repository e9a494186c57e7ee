// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package plugin

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// moduleSpec describes how to materialize one module before execution.
type moduleSpec struct {
	name string
	// namespace marks a virtual package: no code of its own, only the
	// resolved locations its submodules are found under.
	namespace bool
	// locations backs namespace packages and, for directory packages, holds
	// the package's own directory.
	locations []Location
	// source is the chunk to execute for regular modules.
	source Location
	// pkg marks a directory package (init.lua).
	pkg bool
}

// finder locates module specs. Finders are consulted in chain order; the
// first one with an opinion wins.
type finder interface {
	find(rt *Runtime, fullname string) (*moduleSpec, bool)
}

// namespaceFinder provides the watched virtual namespace packages. It
// declines names outside its watch set, and watched names that currently
// resolve to no physical location.
type namespaceFinder struct {
	watched map[string]struct{}
	res     *resolver
}

func newNamespaceFinder(res *resolver, packages ...string) *namespaceFinder {
	w := make(map[string]struct{})
	for _, p := range packages {
		for _, prefix := range partition(p) {
			w[prefix] = struct{}{}
		}
	}
	return &namespaceFinder{watched: w, res: res}
}

func (f *namespaceFinder) find(_ *Runtime, fullname string) (*moduleSpec, bool) {
	if _, ok := f.watched[fullname]; !ok {
		return nil, false
	}
	locs := f.res.locations(fullname)
	if len(locs) == 0 {
		return nil, false
	}
	return &moduleSpec{name: fullname, namespace: true, locations: locs}, true
}

// submoduleFinder locates a dotted module inside its parent package's
// locations, walking them in resolution order; the first location containing
// the module wins. The parent must already be imported.
type submoduleFinder struct{}

func (submoduleFinder) find(rt *Runtime, fullname string) (*moduleSpec, bool) {
	dot := strings.LastIndex(fullname, ".")
	if dot < 0 {
		return nil, false
	}
	parent, leaf := fullname[:dot], fullname[dot+1:]
	mod, ok := rt.modules[parent]
	if !ok {
		return nil, false
	}
	for _, loc := range mod.Locations {
		if spec, ok := findInLocation(rt, loc, fullname, leaf); ok {
			return spec, true
		}
	}
	return nil, false
}

func findInLocation(rt *Runtime, loc Location, fullname, leaf string) (*moduleSpec, bool) {
	if loc.IsArchive() {
		file := path.Join(loc.Sub, leaf+".lua")
		if rt.index.HasEntry(loc.Archive, file) {
			return &moduleSpec{
				name: fullname,
				source: Location{
					Path:    filepath.Join(loc.Archive, filepath.FromSlash(file)),
					Archive: loc.Archive,
					Sub:     file,
				},
			}, true
		}
		init := path.Join(loc.Sub, leaf, "init.lua")
		if rt.index.HasEntry(loc.Archive, init) {
			return &moduleSpec{
				name: fullname,
				source: Location{
					Path:    filepath.Join(loc.Archive, filepath.FromSlash(init)),
					Archive: loc.Archive,
					Sub:     init,
				},
				pkg:       true,
				locations: []Location{loc.child(leaf)},
			}, true
		}
		return nil, false
	}

	file := filepath.Join(loc.Path, leaf+".lua")
	if st, err := os.Stat(file); err == nil && st.Mode().IsRegular() {
		return &moduleSpec{name: fullname, source: Location{Path: file}}, true
	}
	init := filepath.Join(loc.Path, leaf, "init.lua")
	if st, err := os.Stat(init); err == nil && st.Mode().IsRegular() {
		return &moduleSpec{
			name:      fullname,
			source:    Location{Path: init},
			pkg:       true,
			locations: []Location{loc.child(leaf)},
		}, true
	}
	return nil, false
}
