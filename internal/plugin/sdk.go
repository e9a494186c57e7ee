// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package plugin

import (
	"log/slog"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Well-known fields in plugin module environments and class tables.
const (
	classNameField   = "__name"
	classModuleField = "__module"
	requiresField    = "__requires__"
	exportsField     = "exports"
)

// installSDK wires the host surface into the sandboxed state: the class()
// builder, the namespace-scoped require(), and the sluice host table.
// Callers hold rt.mu.
func (rt *Runtime) installSDK() {
	ls := rt.ls
	ls.SetGlobal("class", ls.NewFunction(rt.luaClass))
	ls.SetGlobal("require", ls.NewFunction(rt.luaRequire))

	host := ls.NewTable()
	host.RawSetString("log", ls.NewFunction(rt.luaLog))
	host.RawSetString("version", ls.NewFunction(rt.luaVersion))
	ls.SetGlobal("sluice", host)
}

// luaClass implements class(name[, body]). It stamps the class name and the
// defining module onto the body table; collection treats the stamps as the
// class marker and reads the module for provenance.
func (rt *Runtime) luaClass(ls *lua.LState) int {
	name := ls.CheckString(1)
	body := ls.OptTable(2, ls.NewTable())
	body.RawSetString(classNameField, lua.LString(name))
	body.RawSetString(classModuleField, lua.LString(rt.current()))
	ls.Push(body)
	return 1
}

// luaRequire implements require(name) for plugin modules. Only names under
// the plugin namespace resolve; everything else is outside the sandbox.
func (rt *Runtime) luaRequire(ls *lua.LState) int {
	name := ls.CheckString(1)
	if name != PackageName && !strings.HasPrefix(name, PackageName+".") {
		ls.RaiseError("module %q is outside the plugin namespace", name)
		return 0
	}
	m, err := rt.importModule(name)
	if err != nil {
		ls.RaiseError("require %q: %s", name, err.Error())
		return 0
	}
	ls.Push(m.Env)
	return 1
}

// luaLog implements sluice.log(level, msg[, fields]).
func (rt *Runtime) luaLog(ls *lua.LState) int {
	level := ls.CheckString(1)
	msg := ls.CheckString(2)
	fields := ls.OptTable(3, nil)

	attrs := []any{slog.String("plugin_module", rt.current())}
	if fields != nil {
		fields.ForEach(func(k, v lua.LValue) {
			attrs = append(attrs, slog.String(lua.LVAsString(k), lua.LVAsString(v)))
		})
	}
	switch strings.ToLower(level) {
	case "debug":
		rt.logger.Debug(msg, attrs...)
	case "warn", "warning":
		rt.logger.Warn(msg, attrs...)
	case "error":
		rt.logger.Error(msg, attrs...)
	default:
		rt.logger.Info(msg, attrs...)
	}
	return 0
}

// luaVersion implements sluice.version(), returning the host version string
// or "" when the runtime has none configured.
func (rt *Runtime) luaVersion(ls *lua.LState) int {
	if rt.hostVersion == nil {
		ls.Push(lua.LString(""))
		return 1
	}
	ls.Push(lua.LString(rt.hostVersion.String()))
	return 1
}
