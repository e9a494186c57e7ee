// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package plugin

import (
	"context"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/sluice-dl/sluice/internal/postproc"
	"github.com/sluice-dl/sluice/pkg/extractor"
)

// RegisterExtractors wraps each loaded class in a Lua-backed Extractor and
// merges it into the registry. Names already present keep their first
// registration. Returns the names actually added.
func (rt *Runtime) RegisterExtractors(classes *Classes, reg *extractor.Registry) []string {
	var added []string
	for _, c := range classes.All() {
		if reg.Register(&luaExtractor{rt: rt, cls: c}) {
			added = append(added, c.Name)
		}
	}
	return added
}

// RegisterPostprocessors merges loaded classes into the chain the same way.
func (rt *Runtime) RegisterPostprocessors(classes *Classes, chain *postproc.Chain) []string {
	var added []string
	for _, c := range classes.All() {
		if chain.Register(&luaPostprocessor{rt: rt, cls: c}) {
			added = append(added, c.Name)
		}
	}
	return added
}

// luaExtractor adapts a plugin class table to extractor.Extractor. Calls
// serialize on the runtime mutex since the interpreter is single-threaded.
type luaExtractor struct {
	rt  *Runtime
	cls *Class

	globOnce sync.Once
	urlGlob  glob.Glob
}

func (e *luaExtractor) Name() string { return e.cls.Name }

// Suitable consults the class's suitable(self, url) function when it has
// one, otherwise glob-matches the class's urls pattern.
func (e *luaExtractor) Suitable(url string) bool {
	e.rt.mu.Lock()
	defer e.rt.mu.Unlock()
	if e.rt.closed {
		return false
	}
	fn, ok := e.cls.Table.RawGetString("suitable").(*lua.LFunction)
	if !ok {
		g := e.pattern()
		return g != nil && g.Match(url)
	}
	ls := e.rt.ls
	err := ls.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, e.cls.Table, lua.LString(url))
	if err != nil {
		e.rt.logger.Warn("plugin suitable check failed",
			"class", e.cls.Name, "cause", rootLine(err))
		return false
	}
	ret := ls.Get(-1)
	ls.Pop(1)
	return lua.LVAsBool(ret)
}

func (e *luaExtractor) pattern() glob.Glob {
	e.globOnce.Do(func() {
		pattern, ok := e.cls.Table.RawGetString("urls").(lua.LString)
		if !ok {
			return
		}
		g, err := glob.Compile(string(pattern))
		if err != nil {
			e.rt.logger.Warn("plugin urls pattern does not compile",
				"class", e.cls.Name, "pattern", string(pattern))
			return
		}
		e.urlGlob = g
	})
	return e.urlGlob
}

// Extract calls the class's extract(self, url) function and converts the
// returned table into an Info.
func (e *luaExtractor) Extract(ctx context.Context, url string) (*extractor.Info, error) {
	e.rt.mu.Lock()
	defer e.rt.mu.Unlock()
	if e.rt.closed {
		return nil, oops.In("plugins").Code("runtime_closed").Errorf("runtime is closed")
	}
	fn, ok := e.cls.Table.RawGetString("extract").(*lua.LFunction)
	if !ok {
		return nil, oops.In("plugins").With("class", e.cls.Name).Errorf("class has no extract function")
	}
	ls := e.rt.ls
	ls.SetContext(ctx)
	defer ls.RemoveContext()
	err := ls.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, e.cls.Table, lua.LString(url))
	if err != nil {
		return nil, oops.In("plugins").
			With("class", e.cls.Name).
			With("url", url).
			Wrapf(err, "extract failed")
	}
	ret := ls.Get(-1)
	ls.Pop(1)
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, oops.In("plugins").
			With("class", e.cls.Name).
			Errorf("extract returned %s, want table", ret.Type())
	}
	return infoFromTable(tbl), nil
}

// luaPostprocessor adapts a plugin class table to postproc.Postprocessor.
type luaPostprocessor struct {
	rt  *Runtime
	cls *Class
}

func (p *luaPostprocessor) Name() string { return p.cls.Name }

// Process calls the class's process(self, info) function. A returned table
// replaces the info contents; returning nothing keeps it unchanged.
func (p *luaPostprocessor) Process(ctx context.Context, info *extractor.Info) error {
	p.rt.mu.Lock()
	defer p.rt.mu.Unlock()
	if p.rt.closed {
		return oops.In("plugins").Code("runtime_closed").Errorf("runtime is closed")
	}
	fn, ok := p.cls.Table.RawGetString("process").(*lua.LFunction)
	if !ok {
		return oops.In("plugins").With("class", p.cls.Name).Errorf("class has no process function")
	}
	ls := p.rt.ls
	ls.SetContext(ctx)
	defer ls.RemoveContext()
	err := ls.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, p.cls.Table, infoToTable(ls, info))
	if err != nil {
		return oops.In("plugins").
			With("class", p.cls.Name).
			With("media_id", info.ID).
			Wrapf(err, "process failed")
	}
	ret := ls.Get(-1)
	ls.Pop(1)
	if tbl, ok := ret.(*lua.LTable); ok {
		*info = *infoFromTable(tbl)
	}
	return nil
}

// infoFromTable converts the table shape plugins produce into an Info.
func infoFromTable(t *lua.LTable) *extractor.Info {
	info := &extractor.Info{
		ID:          tableString(t, "id"),
		Title:       tableString(t, "title"),
		WebpageURL:  tableString(t, "webpage_url"),
		Description: tableString(t, "description"),
		Uploader:    tableString(t, "uploader"),
		Duration:    tableNumber(t, "duration"),
		Thumbnail:   tableString(t, "thumbnail"),
	}
	formats, ok := t.RawGetString("formats").(*lua.LTable)
	if !ok {
		return info
	}
	formats.ForEach(func(_, v lua.LValue) {
		ft, ok := v.(*lua.LTable)
		if !ok {
			return
		}
		info.Formats = append(info.Formats, formatFromTable(ft))
	})
	return info
}

func formatFromTable(t *lua.LTable) extractor.Format {
	return extractor.Format{
		ID:       tableString(t, "format_id"),
		URL:      tableString(t, "url"),
		Ext:      tableString(t, "ext"),
		Protocol: tableString(t, "protocol"),
		Width:    int(tableNumber(t, "width")),
		Height:   int(tableNumber(t, "height")),
		FPS:      tableNumber(t, "fps"),
		TBR:      tableNumber(t, "tbr"),
		ABR:      tableNumber(t, "abr"),
		VBR:      tableNumber(t, "vbr"),
		Filesize: int64(tableNumber(t, "filesize")),
		VCodec:   tableString(t, "vcodec"),
		ACodec:   tableString(t, "acodec"),
		Note:     tableString(t, "format_note"),
	}
}

// infoToTable converts an Info into the table shape plugins consume.
func infoToTable(ls *lua.LState, info *extractor.Info) *lua.LTable {
	t := ls.NewTable()
	setTableString(t, "id", info.ID)
	setTableString(t, "title", info.Title)
	setTableString(t, "webpage_url", info.WebpageURL)
	setTableString(t, "description", info.Description)
	setTableString(t, "uploader", info.Uploader)
	setTableNumber(t, "duration", info.Duration)
	setTableString(t, "thumbnail", info.Thumbnail)
	formats := ls.NewTable()
	for _, f := range info.Formats {
		formats.Append(formatToTable(ls, f))
	}
	t.RawSetString("formats", formats)
	return t
}

func formatToTable(ls *lua.LState, f extractor.Format) *lua.LTable {
	t := ls.NewTable()
	setTableString(t, "format_id", f.ID)
	setTableString(t, "url", f.URL)
	setTableString(t, "ext", f.Ext)
	setTableString(t, "protocol", f.Protocol)
	setTableNumber(t, "width", float64(f.Width))
	setTableNumber(t, "height", float64(f.Height))
	setTableNumber(t, "fps", f.FPS)
	setTableNumber(t, "tbr", f.TBR)
	setTableNumber(t, "abr", f.ABR)
	setTableNumber(t, "vbr", f.VBR)
	setTableNumber(t, "filesize", float64(f.Filesize))
	setTableString(t, "vcodec", f.VCodec)
	setTableString(t, "acodec", f.ACodec)
	setTableString(t, "format_note", f.Note)
	return t
}

func tableString(t *lua.LTable, key string) string {
	if s, ok := t.RawGetString(key).(lua.LString); ok {
		return string(s)
	}
	return ""
}

func tableNumber(t *lua.LTable, key string) float64 {
	if n, ok := t.RawGetString(key).(lua.LNumber); ok {
		return float64(n)
	}
	return 0
}

func setTableString(t *lua.LTable, key, val string) {
	if val != "" {
		t.RawSetString(key, lua.LString(val))
	}
}

func setTableNumber(t *lua.LTable, key string, val float64) {
	if val != 0 {
		t.RawSetString(key, lua.LNumber(val))
	}
}
