// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package plugin

import (
	"os"
	"path/filepath"

	"github.com/sluice-dl/sluice/internal/xdg"
)

// Environ captures the process facts root enumeration reads, so tests can
// substitute their own.
type Environ struct {
	// UserConfigDirs are the per-user config directories, most specific first.
	UserConfigDirs []string
	// SystemConfigDirs are the system-wide config directories.
	SystemConfigDirs []string
	// Home is the user's home directory, "" if unknown.
	Home string
	// Exe is the path of the running executable, "" if unknown.
	Exe string
	// XDGConfigBase is $XDG_CONFIG_HOME or its ~/.config fallback.
	XDGConfigBase string
	// SearchPath holds the generic module search path entries: config
	// plugin_dirs followed by $SLUICE_PLUGIN_PATH, in order.
	SearchPath []string
}

// OSEnviron captures the host environment.
func OSEnviron() Environ {
	home := os.Getenv("HOME")
	exe, err := os.Executable()
	if err != nil {
		exe = ""
	}
	xdgBase := os.Getenv("XDG_CONFIG_HOME")
	if xdgBase == "" && home != "" {
		xdgBase = filepath.Join(home, ".config")
	}
	var search []string
	for _, d := range filepath.SplitList(os.Getenv(PathEnvVar)) {
		if d != "" {
			search = append(search, d)
		}
	}
	return Environ{
		UserConfigDirs:   xdg.ConfigDirs(),
		SystemConfigDirs: xdg.SystemConfigDirs(),
		Home:             home,
		Exe:              exe,
		XDGConfigBase:    xdgBase,
		SearchPath:       search,
	}
}

// CandidateRoots returns every plugin root the resolver should consult, in
// priority order: user then system config dirs joined with "plugins", the
// executable dir, home, /etc and the XDG config base joined with
// "sluice-plugins", and finally the search path entries verbatim. Paths are
// not checked for existence. Duplicates keep their first occurrence.
func CandidateRoots(env Environ) []string {
	var roots []string
	for _, d := range env.UserConfigDirs {
		roots = append(roots, filepath.Join(d, "plugins"))
	}
	for _, d := range env.SystemConfigDirs {
		roots = append(roots, filepath.Join(d, "plugins"))
	}
	if env.Exe != "" {
		roots = append(roots, filepath.Join(filepath.Dir(env.Exe), legacyDirName))
	}
	if env.Home != "" {
		roots = append(roots, filepath.Join(env.Home, legacyDirName))
	}
	roots = append(roots, filepath.Join("/etc", legacyDirName))
	if env.XDGConfigBase != "" {
		roots = append(roots, filepath.Join(env.XDGConfigBase, legacyDirName))
	}
	for _, d := range env.SearchPath {
		if d != "" {
			roots = append(roots, d)
		}
	}
	return dedupPaths(roots)
}

// dedupPaths removes duplicates after cleaning, preserving first-occurrence
// order. The cleaned form is returned.
func dedupPaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		c := filepath.Clean(p)
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
