// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package plugin

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Location is one physical home of a namespace package: a directory on disk,
// or a directory inside a zip-format archive. Archive locations are
// synthetic; Path names them but is not independently openable.
type Location struct {
	// Path is the location as a filesystem-style path. For archive
	// locations it is the archive path joined with Sub.
	Path string
	// Archive is the archive file path, "" for plain directories.
	Archive string
	// Sub is the slash-separated path inside the archive.
	Sub string
}

// IsArchive reports whether the location lives inside an archive.
func (l Location) IsArchive() bool {
	return l.Archive != ""
}

func (l Location) String() string {
	return l.Path
}

// child returns the location of a direct child of l.
func (l Location) child(name string) Location {
	if l.IsArchive() {
		return Location{
			Path:    filepath.Join(l.Archive, filepath.FromSlash(path.Join(l.Sub, name))),
			Archive: l.Archive,
			Sub:     path.Join(l.Sub, name),
		}
	}
	return Location{Path: filepath.Join(l.Path, name)}
}

// resolver computes the physical locations backing a dotted namespace name.
type resolver struct {
	env   Environ
	index *ArchiveIndex
}

// locations resolves fullname against every candidate root, in root order.
// A root contributes a location if root/<segments> is a directory, or if the
// root is an archive whose contents include <segments> as a directory. An
// empty result means the namespace does not exist anywhere.
func (r *resolver) locations(fullname string) []Location {
	parts := strings.Split(fullname, ".")
	rel := filepath.Join(parts...)
	sub := path.Join(parts...)

	var locs []Location
	for _, root := range CandidateRoots(r.env) {
		candidate := filepath.Join(root, rel)
		if st, err := os.Stat(candidate); err == nil && st.IsDir() {
			locs = append(locs, Location{Path: candidate})
			continue
		}
		if !archiveCandidate(root) {
			continue
		}
		if r.index.HasDir(root, sub) {
			locs = append(locs, Location{Path: candidate, Archive: root, Sub: sub})
		}
	}
	return locs
}

// archiveCandidate reports whether root may name an archive: its stem plus
// one of the archive suffixes must exist as a regular file. The archive that
// is then read is root itself, so a root that does not carry the suffix
// resolves absent even when a suffixed sibling exists.
func archiveCandidate(root string) bool {
	stem := strings.TrimSuffix(root, filepath.Ext(root))
	for _, suffix := range archiveSuffixes {
		if st, err := os.Stat(stem + suffix); err == nil && st.Mode().IsRegular() {
			return true
		}
	}
	return false
}
