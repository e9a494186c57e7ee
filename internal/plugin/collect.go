// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package plugin

import (
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// collectClasses harvests the qualifying classes out of an executed module.
//
// A binding qualifies when its value was built by class(), the binding name
// carries the category suffix and no leading underscore, the class was
// defined in a module under pkg, and the module's exports list (when
// present) names it. Classes register under the binding name, so a re-export
// under a second qualifying alias yields one entry per name. Bindings are
// scanned in sorted name order so repeated loads yield the same sequence.
func collectClasses(mod *Module, pkg, suffix string) []*Class {
	if mod.Env == nil {
		return nil
	}
	exports := exportAllowlist(mod.Env)

	type binding struct {
		key string
		tbl *lua.LTable
	}
	var bindings []binding
	mod.Env.ForEach(func(k, v lua.LValue) {
		key, ok := k.(lua.LString)
		if !ok {
			return
		}
		tbl, ok := v.(*lua.LTable)
		if !ok {
			return
		}
		bindings = append(bindings, binding{string(key), tbl})
	})
	sort.Slice(bindings, func(i, j int) bool { return bindings[i].key < bindings[j].key })

	var classes []*Class
	for _, b := range bindings {
		if _, ok := b.tbl.RawGetString(classNameField).(lua.LString); !ok {
			continue
		}
		src, ok := b.tbl.RawGetString(classModuleField).(lua.LString)
		if !ok {
			continue
		}
		if !strings.HasSuffix(b.key, suffix) {
			continue
		}
		if strings.HasPrefix(b.key, "_") {
			continue
		}
		if !underPackage(string(src), pkg) {
			continue
		}
		if exports != nil {
			if _, listed := exports[b.key]; !listed {
				continue
			}
		}
		classes = append(classes, &Class{
			Name:   b.key,
			Module: string(src),
			Source: mod.Name,
			Table:  b.tbl,
		})
	}
	return classes
}

// underPackage reports whether module sits at or below pkg in dotted-name
// terms.
func underPackage(module, pkg string) bool {
	return module == pkg || strings.HasPrefix(module, pkg+".")
}

// exportAllowlist reads the module's exports array. nil means everything is
// exported.
func exportAllowlist(env *lua.LTable) map[string]struct{} {
	tbl, ok := env.RawGetString(exportsField).(*lua.LTable)
	if !ok {
		return nil
	}
	set := make(map[string]struct{})
	tbl.ForEach(func(_, item lua.LValue) {
		if s, ok := item.(lua.LString); ok {
			set[string(s)] = struct{}{}
		}
	})
	return set
}
