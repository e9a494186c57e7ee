// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package plugin

import (
	"context"
	"errors"
	"strings"

	"github.com/Masterminds/semver/v3"
	lua "github.com/yuin/gopher-lua"

	"github.com/sluice-dl/sluice/internal/logging"
)

// LoadPlugins imports every module in the category's namespace, executes
// each in isolation, and returns the qualifying classes in registration
// order. A module that fails to import or execute is logged and skipped
// without disturbing the others. existing suppresses classes whose names are
// already taken; it may be nil. The caller decides what to do with the
// returned collection.
func (rt *Runtime) LoadPlugins(ctx context.Context, cat Category, existing Lookup) (*Classes, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if err := rt.initLocked(ctx); err != nil {
		return nil, err
	}

	ctx = logging.WithSession(ctx, newSessionID())
	classes := NewClasses()

	pkgName := cat.Package()
	pkg, err := rt.importModule(pkgName)
	if err != nil {
		if !errors.Is(err, errModuleNotFound) {
			return nil, err
		}
		rt.logger.DebugContext(ctx, "plugin namespace not present", "package", pkgName)
	}

	if pkg != nil {
		for _, name := range rt.submodules(pkg) {
			if privateModule(name) {
				continue
			}
			mod, err := rt.importModule(name)
			if err != nil {
				rt.logger.ErrorContext(ctx, "error while importing plugin module",
					"module", name, "cause", rootLine(err))
				continue
			}
			if ok, want := rt.satisfiesHost(ctx, mod); !ok {
				rt.logger.WarnContext(ctx, "plugin module requires a different host version",
					"module", name, "requires", want)
				continue
			}
			for _, c := range collectClasses(mod, pkgName, cat.Suffix) {
				rt.adopt(ctx, classes, existing, c)
			}
		}
	}

	compat, err := rt.loadCompat(cat)
	switch {
	case err != nil:
		rt.logger.ErrorContext(ctx, "error while importing legacy plugin package",
			"package", CompatPackageName, "category", cat.Name, "cause", rootLine(err))
	case compat != nil:
		if ok, want := rt.satisfiesHost(ctx, compat); ok {
			for _, c := range collectClasses(compat, cat.Name, cat.Suffix) {
				rt.adopt(ctx, classes, existing, c)
			}
		} else {
			rt.logger.WarnContext(ctx, "legacy plugin package requires a different host version",
				"module", compat.Name, "requires", want)
		}
	}

	rt.logger.InfoContext(ctx, "plugins loaded",
		"category", cat.Name, "classes", classes.Len())
	return classes, nil
}

// privateModule reports whether the leaf name starts with an underscore.
// Private modules never load directly but stay reachable through require().
func privateModule(name string) bool {
	leaf := name
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		leaf = name[dot+1:]
	}
	return strings.HasPrefix(leaf, "_")
}

// adopt applies the name filters and the collision policy before admitting a
// class. Names already taken, either in the target namespace or by an
// earlier class, are dropped silently.
func (rt *Runtime) adopt(ctx context.Context, classes *Classes, existing Lookup, c *Class) {
	if !rt.nameAllowed(c.Name) {
		rt.logger.DebugContext(ctx, "plugin class filtered out",
			"class", c.Name, "module", c.Module)
		return
	}
	if existing != nil && existing.Has(c.Name) {
		return
	}
	classes.Add(c)
}

func (rt *Runtime) nameAllowed(name string) bool {
	for _, g := range rt.exclude {
		if g.Match(name) {
			return false
		}
	}
	if len(rt.only) == 0 {
		return true
	}
	for _, g := range rt.only {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// satisfiesHost checks the module's __requires__ constraint against the host
// version. Modules without the field pass, as does a runtime with no version
// configured. A malformed constraint is reported and waved through.
func (rt *Runtime) satisfiesHost(ctx context.Context, mod *Module) (bool, string) {
	if mod.Env == nil || rt.hostVersion == nil {
		return true, ""
	}
	req, ok := mod.Env.RawGetString(requiresField).(lua.LString)
	if !ok {
		return true, ""
	}
	constraint, err := semver.NewConstraint(string(req))
	if err != nil {
		rt.logger.WarnContext(ctx, "plugin module carries a malformed version constraint",
			"module", mod.Name, "constraint", string(req))
		return true, ""
	}
	return constraint.Check(rt.hostVersion), string(req)
}

// rootLine condenses an error for diagnostics. Lua errors shrink to their
// message plus the innermost stack frame; everything else prints as-is.
func rootLine(err error) string {
	var apiErr *lua.ApiError
	if !errors.As(err, &apiErr) {
		return err.Error()
	}
	msg := strings.TrimSpace(apiErr.Object.String())
	for _, line := range strings.Split(apiErr.StackTrace, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "stack traceback") {
			continue
		}
		return msg + " (" + line + ")"
	}
	return msg
}
