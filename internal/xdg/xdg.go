// Package xdg provides XDG Base Directory paths for sluice.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "sluice"

// ConfigDir returns the XDG config directory for sluice.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// ConfigDirs returns every per-user config directory, most specific first:
// the XDG config directory followed by the legacy dotfolder ~/.sluice.
func ConfigDirs() []string {
	return []string{
		ConfigDir(),
		filepath.Join(os.Getenv("HOME"), "."+appName),
	}
}

// SystemConfigDirs returns the system-wide config directories: /etc/sluice
// followed by each entry of XDG_CONFIG_DIRS (default /etc/xdg) joined with
// the app name.
func SystemConfigDirs() []string {
	dirs := []string{filepath.Join("/etc", appName)}
	base := os.Getenv("XDG_CONFIG_DIRS")
	if base == "" {
		base = "/etc/xdg"
	}
	for _, d := range filepath.SplitList(base) {
		if d == "" {
			continue
		}
		dirs = append(dirs, filepath.Join(d, appName))
	}
	return dirs
}
