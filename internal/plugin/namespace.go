// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package plugin

import "strings"

const (
	// PackageName is the root of the virtual plugin namespace. Plugin
	// modules live at <root>/sluice_plugins/<category>/<module>.lua under
	// every enumerated plugin root.
	PackageName = "sluice_plugins"

	// CompatPackageName is the legacy single-directory plugin package,
	// loaded from <exedir>/sluiceplugins/<category>/init.lua.
	CompatPackageName = "sluiceplugins"

	// PathEnvVar extends the plugin search path, list-separated.
	PathEnvVar = "SLUICE_PLUGIN_PATH"

	// legacyDirName is the folder probed next to the executable, the home
	// directory, /etc, and the XDG config base.
	legacyDirName = "sluice-plugins"
)

// Category is one logical plugin group, searched under its own namespace
// package and collected by its own class-name suffix.
type Category struct {
	Name   string
	Suffix string
}

// The fixed plugin categories watched by the namespace finder.
var (
	CategoryExtractor     = Category{Name: "extractor", Suffix: "IE"}
	CategoryPostprocessor = Category{Name: "postprocessor", Suffix: "PP"}
)

// Package returns the category's namespace package name.
func (c Category) Package() string {
	return PackageName + "." + c.Name
}

// partition yields the accumulated dotted prefixes of name:
// "a.b.c" -> ["a", "a.b", "a.b.c"].
func partition(name string) []string {
	if name == "" {
		return nil
	}
	parts := strings.Split(name, ".")
	out := make([]string, 0, len(parts))
	for i := range parts {
		out = append(out, strings.Join(parts[:i+1], "."))
	}
	return out
}
