// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

// Package plugin discovers, loads, and registers sluice's Lua plugins.
//
// Plugin modules live under the virtual namespace package sluice_plugins,
// merged from every configured plugin root (plain directories or zip-format
// archives). Loading a category imports each module through the runtime's
// finder chain, executes it in the embedded Lua sandbox, and harvests its
// qualifying classes into an ordered, first-registration-wins collection.
package plugin

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/gobwas/glob"
	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
)

// Module is one import record, the runtime's module-cache entry.
type Module struct {
	Name string
	// Namespace marks a virtual package with no code of its own.
	Namespace bool
	// Package marks a directory package executed from init.lua.
	Package bool
	// Source is where the module's chunk was read from; zero for namespaces.
	Source Location
	// Locations are the child search locations of namespace and directory
	// packages.
	Locations []Location
	// Env is the environment table the module executed in; nil for
	// namespaces.
	Env *lua.LTable
}

// Options configure a Runtime.
type Options struct {
	// Env supplies the process facts root enumeration reads. Use OSEnviron
	// for the host environment.
	Env Environ
	// HostVersion gates modules that declare __requires__. Empty disables
	// the gate.
	HostVersion string
	// Only restricts collection to class names matching at least one glob
	// pattern, when non-empty.
	Only []string
	// Exclude drops class names matching any glob pattern.
	Exclude []string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Runtime owns the embedded Lua state, the module cache, and the finder
// chain that merges plugin roots into the virtual namespace. Methods are
// safe for concurrent use; all work is serialized by one mutex because the
// Lua state is single-threaded.
type Runtime struct {
	mu          sync.Mutex
	opts        Options
	logger      *slog.Logger
	hostVersion *semver.Version
	only        []glob.Glob
	exclude     []glob.Glob
	index       *ArchiveIndex
	ls          *lua.LState
	chain       []finder
	nsFinder    *namespaceFinder
	modules     map[string]*Module
	execStack   []string
	installed   bool
	closed      bool
}

// NewRuntime builds a runtime. Glob patterns and the host version are
// validated here; the Lua state is created on Initialize.
func NewRuntime(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{
		opts:    opts,
		logger:  logger,
		index:   newArchiveIndex(zipEntries, logger),
		modules: make(map[string]*Module),
	}
	if opts.HostVersion != "" {
		v, err := semver.NewVersion(opts.HostVersion)
		if err != nil {
			return nil, oops.In("plugins").With("version", opts.HostVersion).Wrapf(err, "parse host version")
		}
		rt.hostVersion = v
	}
	var err error
	if rt.only, err = compileGlobs(opts.Only); err != nil {
		return nil, err
	}
	if rt.exclude, err = compileGlobs(opts.Exclude); err != nil {
		return nil, err
	}
	return rt, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, oops.In("plugins").With("pattern", p).Wrapf(err, "compile glob pattern")
		}
		globs = append(globs, g)
	}
	return globs, nil
}

var (
	defaultRuntime     *Runtime
	defaultRuntimeOnce sync.Once
)

// Default returns the process-wide runtime, created on first use with the
// host environment and default options.
func Default() *Runtime {
	defaultRuntimeOnce.Do(func() {
		rt, err := NewRuntime(Options{Env: OSEnviron()})
		if err != nil {
			// Unreachable: default options carry no patterns or version.
			panic(err)
		}
		defaultRuntime = rt
	})
	return defaultRuntime
}

// safeLibrary is a Lua stdlib module safe to open in the sandbox.
type safeLibrary struct {
	name string
	fn   lua.LGFunction
}

// Safe: base, table, string, math. Blocked: os, io, debug, package.
func safeLibraries() []safeLibrary {
	return []safeLibrary{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
}

// unsafeBaseFunctions are base-library functions that reach the filesystem
// or bypass the module chain; they are removed after opening base.
var unsafeBaseFunctions = []string{"dofile", "loadfile", "loadstring", "load"}

func newSandboxedState() (*lua.LState, error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true, // Don't load any libraries by default
	})
	for _, lib := range safeLibraries() {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, oops.In("plugins").With("library", lib.name).Wrapf(err, "open lua library")
		}
	}
	for _, fn := range unsafeBaseFunctions {
		L.SetGlobal(fn, lua.LNil)
	}
	return L, nil
}

// Initialize creates the sandboxed Lua state and installs the namespace
// finder ahead of the default submodule finder. Idempotent: calling it again
// after success is a no-op.
func (rt *Runtime) Initialize(ctx context.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.initLocked(ctx)
}

func (rt *Runtime) initLocked(ctx context.Context) error {
	if rt.closed {
		return oops.In("plugins").Code("runtime_closed").Errorf("runtime is closed")
	}
	if rt.installed {
		return nil
	}
	ls, err := newSandboxedState()
	if err != nil {
		return err
	}
	rt.ls = ls
	rt.installSDK()
	res := &resolver{env: rt.opts.Env, index: rt.index}
	rt.nsFinder = newNamespaceFinder(res, CategoryExtractor.Package(), CategoryPostprocessor.Package())
	rt.chain = []finder{rt.nsFinder, submoduleFinder{}}
	rt.installed = true
	rt.logger.DebugContext(ctx, "plugin runtime initialized",
		"roots", len(CandidateRoots(rt.opts.Env)))
	return nil
}

// Installed reports whether the finder chain is in place.
func (rt *Runtime) Installed() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.installed
}

// Close releases the Lua state. The runtime cannot be reused afterwards.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return nil
	}
	rt.closed = true
	if rt.ls != nil {
		rt.ls.Close()
		rt.ls = nil
	}
	rt.modules = make(map[string]*Module)
	return nil
}

// Directories returns the physical locations currently backing the root
// plugin namespace, in resolution order. Empty when no root provides it.
func (rt *Runtime) Directories(ctx context.Context) ([]Location, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if err := rt.initLocked(ctx); err != nil {
		return nil, err
	}
	spec, ok := rt.nsFinder.find(rt, PackageName)
	if !ok {
		return nil, nil
	}
	return spec.locations, nil
}

// InvalidateCaches clears the archive index and evicts the watched namespace
// packages from the module cache, forcing the next load to re-resolve from
// disk. Previously executed plugin modules stay cached; only namespace
// resolution is refreshed.
func (rt *Runtime) InvalidateCaches() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.index.Invalidate()
	if rt.nsFinder == nil {
		return
	}
	for name := range rt.nsFinder.watched {
		delete(rt.modules, name)
	}
}

// errModuleNotFound reports that no finder could provide a module.
var errModuleNotFound = errors.New("module not found")

// importModule returns the cached module or materializes it through the
// finder chain. Parents are imported before their children. Callers hold
// rt.mu.
func (rt *Runtime) importModule(fullname string) (*Module, error) {
	if m, ok := rt.modules[fullname]; ok {
		return m, nil
	}
	if dot := strings.LastIndex(fullname, "."); dot > 0 {
		if _, err := rt.importModule(fullname[:dot]); err != nil {
			return nil, err
		}
	}
	var spec *moduleSpec
	for _, f := range rt.chain {
		if s, ok := f.find(rt, fullname); ok {
			spec = s
			break
		}
	}
	if spec == nil {
		return nil, oops.In("plugins").With("module", fullname).Wrapf(errModuleNotFound, "no location provides %q", fullname)
	}
	return rt.executeSpec(spec)
}

// executeSpec materializes a spec: namespace packages get a code-free cache
// entry, regular modules execute their chunk in a fresh environment table
// whose reads fall through to the globals.
func (rt *Runtime) executeSpec(spec *moduleSpec) (*Module, error) {
	m := &Module{
		Name:      spec.name,
		Namespace: spec.namespace,
		Package:   spec.pkg,
		Source:    spec.source,
		Locations: spec.locations,
	}
	if spec.namespace {
		m.Env = rt.ls.NewTable()
		rt.modules[spec.name] = m
		return m, nil
	}

	for _, active := range rt.execStack {
		if active == spec.name {
			return nil, oops.In("plugins").With("module", spec.name).Errorf("circular import of %q", spec.name)
		}
	}

	src, err := rt.readSource(spec.source)
	if err != nil {
		return nil, err
	}
	fn, err := rt.ls.Load(bytes.NewReader(src), spec.name)
	if err != nil {
		return nil, oops.In("plugins").With("module", spec.name).With("source", spec.source.String()).Wrapf(err, "compile module")
	}
	env := rt.ls.NewTable()
	meta := rt.ls.NewTable()
	meta.RawSetString("__index", rt.ls.Get(lua.GlobalsIndex))
	rt.ls.SetMetatable(env, meta)
	rt.ls.SetFEnv(fn, env)

	rt.execStack = append(rt.execStack, spec.name)
	rt.ls.Push(fn)
	err = rt.ls.PCall(0, 0, nil)
	rt.execStack = rt.execStack[:len(rt.execStack)-1]
	if err != nil {
		return nil, oops.In("plugins").With("module", spec.name).With("source", spec.source.String()).Wrapf(err, "execute module")
	}

	m.Env = env
	rt.modules[spec.name] = m
	return m, nil
}

func (rt *Runtime) readSource(loc Location) ([]byte, error) {
	if loc.IsArchive() {
		return readArchiveMember(loc.Archive, loc.Sub)
	}
	data, err := os.ReadFile(loc.Path)
	if err != nil {
		return nil, oops.In("plugins").With("path", loc.Path).Wrapf(err, "read module source")
	}
	return data, nil
}

// current returns the module currently executing, for provenance stamping.
func (rt *Runtime) current() string {
	if len(rt.execStack) == 0 {
		return ""
	}
	return rt.execStack[len(rt.execStack)-1]
}

// submodules enumerates the importable children of a package, one level
// deep: <name>.lua files and directories holding init.lua. Each child
// appears once, provided by its first location; within one location children
// are in lexicographic order.
func (rt *Runtime) submodules(pkg *Module) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, loc := range pkg.Locations {
		for _, leaf := range rt.childrenOf(loc) {
			if _, dup := seen[leaf]; dup {
				continue
			}
			seen[leaf] = struct{}{}
			names = append(names, pkg.Name+"."+leaf)
		}
	}
	return names
}

// childrenOf lists the module leaf names one location provides, sorted.
func (rt *Runtime) childrenOf(loc Location) []string {
	set := make(map[string]struct{})
	if loc.IsArchive() {
		prefix := loc.Sub + "/"
		for _, e := range rt.index.Entries(loc.Archive) {
			if !strings.HasPrefix(e, prefix) {
				continue
			}
			rest := strings.TrimPrefix(e, prefix)
			if i := strings.IndexByte(rest, '/'); i >= 0 {
				dir := rest[:i]
				if dir != "" && rt.index.HasEntry(loc.Archive, prefix+dir+"/init.lua") {
					set[dir] = struct{}{}
				}
				continue
			}
			if rest != "init.lua" && strings.HasSuffix(rest, ".lua") {
				set[strings.TrimSuffix(rest, ".lua")] = struct{}{}
			}
		}
	} else {
		entries, err := os.ReadDir(loc.Path)
		if err != nil {
			return nil
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				init := filepath.Join(loc.Path, name, "init.lua")
				if st, err := os.Stat(init); err == nil && st.Mode().IsRegular() {
					set[name] = struct{}{}
				}
				continue
			}
			if name != "init.lua" && strings.HasSuffix(name, ".lua") {
				set[strings.TrimSuffix(name, ".lua")] = struct{}{}
			}
		}
	}
	names := make([]string, 0, len(set))
	for n := range set {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
