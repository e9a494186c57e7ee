// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package plugin

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

// loadCompat imports the legacy single-file package for a category when the
// executable's directory carries one under sluiceplugins/<category>/init.lua.
// The module caches under the bare category name and never joins the plugin
// namespace. A missing file means no legacy plugins; any other failure
// surfaces to the caller.
func (rt *Runtime) loadCompat(cat Category) (*Module, error) {
	if rt.opts.Env.Exe == "" {
		return nil, nil
	}
	if m, ok := rt.modules[cat.Name]; ok {
		return m, nil
	}
	init := filepath.Join(filepath.Dir(rt.opts.Env.Exe), CompatPackageName, cat.Name, "init.lua")
	st, err := os.Stat(init)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, oops.In("plugins").With("path", init).Wrapf(err, "stat legacy plugin package")
	}
	if !st.Mode().IsRegular() {
		return nil, nil
	}
	spec := &moduleSpec{
		name:      cat.Name,
		pkg:       true,
		source:    Location{Path: init},
		locations: []Location{{Path: filepath.Dir(init)}},
	}
	return rt.executeSpec(spec)
}
