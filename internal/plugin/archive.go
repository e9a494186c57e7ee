// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package plugin

import (
	"archive/zip"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/samber/oops"
)

// archiveSuffixes is the fixed set of file suffixes treated as plugin
// archives. Every suffix denotes a zip-format container.
var archiveSuffixes = []string{".zip", ".pak", ".bundle"}

func hasArchiveSuffix(p string) bool {
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// listFunc returns the internal entry paths of an archive.
type listFunc func(path string) ([]string, error)

// zipEntries lists a zip-format archive.
func zipEntries(path string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, oops.In("plugins").With("archive", path).Wrapf(err, "open archive")
	}
	defer r.Close()
	entries := make([]string, 0, len(r.File))
	for _, f := range r.File {
		entries = append(entries, f.Name)
	}
	return entries, nil
}

// archiveListing is one cached archive read.
type archiveListing struct {
	entries []string
	files   map[string]struct{}
	dirs    map[string]struct{}
}

// ArchiveIndex caches archive content listings so directory-containment
// checks do not re-read the archive. Listings are read once per archive path
// and reused until Invalidate; they are never refreshed when the file
// changes on disk. A missing archive is treated as containing nothing, an
// unreadable one likewise after a warning; neither failure is cached, so a
// later appearance of the file is picked up.
type ArchiveIndex struct {
	mu     sync.Mutex
	cache  map[string]*archiveListing
	list   listFunc
	logger *slog.Logger
}

// NewArchiveIndex returns an index backed by zip listings.
func NewArchiveIndex() *ArchiveIndex {
	return newArchiveIndex(zipEntries, nil)
}

func newArchiveIndex(list listFunc, logger *slog.Logger) *ArchiveIndex {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveIndex{
		cache:  make(map[string]*archiveListing),
		list:   list,
		logger: logger,
	}
}

// HasDir reports whether the archive contains dir (slash-separated, relative
// to the archive root) as an ancestor directory of some entry.
func (ix *ArchiveIndex) HasDir(archive, dir string) bool {
	l := ix.listing(archive)
	if l == nil {
		return false
	}
	_, ok := l.dirs[dir]
	return ok
}

// HasEntry reports whether the archive contains exactly the named entry.
func (ix *ArchiveIndex) HasEntry(archive, entry string) bool {
	l := ix.listing(archive)
	if l == nil {
		return false
	}
	_, ok := l.files[entry]
	return ok
}

// Entries returns the archive's internal entry paths in stored order, or nil
// if the archive is missing or unreadable.
func (ix *ArchiveIndex) Entries(archive string) []string {
	l := ix.listing(archive)
	if l == nil {
		return nil
	}
	return l.entries
}

// Invalidate clears the entire cache unconditionally.
func (ix *ArchiveIndex) Invalidate() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.cache = make(map[string]*archiveListing)
}

func (ix *ArchiveIndex) listing(archive string) *archiveListing {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if l, ok := ix.cache[archive]; ok {
		return l
	}
	entries, err := ix.list(archive)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			ix.logger.Warn("could not read plugin archive", "archive", archive, "error", err)
		}
		return nil
	}
	l := &archiveListing{
		entries: entries,
		files:   make(map[string]struct{}),
		dirs:    make(map[string]struct{}),
	}
	for _, e := range entries {
		if !strings.HasSuffix(e, "/") {
			l.files[e] = struct{}{}
		}
		for d := path.Dir(strings.TrimSuffix(e, "/")); d != "." && d != "/"; d = path.Dir(d) {
			l.dirs[d] = struct{}{}
		}
	}
	ix.cache[archive] = l
	return l
}

// readArchiveMember returns the contents of one member of a zip-format
// archive, identified by its slash-separated internal path.
func readArchiveMember(archive, member string) ([]byte, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return nil, oops.In("plugins").With("archive", archive).Wrapf(err, "open archive")
	}
	defer r.Close()
	for _, f := range r.File {
		if f.Name != member {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, oops.In("plugins").With("archive", archive).With("member", member).Wrapf(err, "open member")
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, oops.In("plugins").With("archive", archive).With("member", member).Wrapf(err, "read member")
		}
		return data, nil
	}
	return nil, oops.In("plugins").With("archive", archive).With("member", member).Errorf("member not found")
}
