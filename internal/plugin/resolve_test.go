// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package plugin

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(roots ...string) *resolver {
	return &resolver{env: searchEnv(roots...), index: NewArchiveIndex()}
}

func TestLocationsDirectoryRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sluice_plugins", "extractor"), 0o750))
	r := newTestResolver(root)

	locs := r.locations("sluice_plugins.extractor")

	require.Len(t, locs, 1)
	assert.Equal(t, filepath.Join(root, "sluice_plugins", "extractor"), locs[0].Path)
	assert.False(t, locs[0].IsArchive())
}

func TestLocationsArchiveRoot(t *testing.T) {
	dir := t.TempDir()
	pack := filepath.Join(dir, "pack.zip")
	makeArchive(t, pack, map[string]string{
		"sluice_plugins/extractor/bar.lua": "-- bar",
	})
	r := newTestResolver(pack)

	locs := r.locations("sluice_plugins.extractor")

	require.Len(t, locs, 1)
	assert.Equal(t, Location{
		Path:    filepath.Join(pack, "sluice_plugins", "extractor"),
		Archive: pack,
		Sub:     "sluice_plugins/extractor",
	}, locs[0])
	assert.True(t, locs[0].IsArchive())
}

func TestLocationsArchiveWithoutRequestedDir(t *testing.T) {
	dir := t.TempDir()
	pack := filepath.Join(dir, "pack.zip")
	makeArchive(t, pack, map[string]string{
		"sluice_plugins/extractor/bar.lua": "-- bar",
	})
	r := newTestResolver(pack)

	assert.Empty(t, r.locations("sluice_plugins.postprocessor"))
}

// A root without the archive suffix passes the stem gate when a suffixed
// sibling exists, but the archive read targets the root itself, which is
// absent, so the root contributes nothing.
func TestLocationsSuffixlessRootBesideArchive(t *testing.T) {
	dir := t.TempDir()
	makeArchive(t, filepath.Join(dir, "plugs.zip"), map[string]string{
		"sluice_plugins/extractor/bar.lua": "-- bar",
	})
	r := newTestResolver(filepath.Join(dir, "plugs"))

	assert.Empty(t, r.locations("sluice_plugins.extractor"))
}

func TestLocationsMergesRootsInOrder(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(first, "sluice_plugins"), 0o750))
	dir := t.TempDir()
	pack := filepath.Join(dir, "pack.zip")
	makeArchive(t, pack, map[string]string{"sluice_plugins/a.lua": ""})
	require.NoError(t, os.MkdirAll(filepath.Join(second, "sluice_plugins"), 0o750))
	r := newTestResolver(first, pack, second)

	locs := r.locations("sluice_plugins")

	require.Len(t, locs, 3)
	assert.Equal(t, filepath.Join(first, "sluice_plugins"), locs[0].Path)
	assert.Equal(t, pack, locs[1].Archive)
	assert.Equal(t, filepath.Join(second, "sluice_plugins"), locs[2].Path)
}

func TestLocationChild(t *testing.T) {
	dir := Location{Path: "/roots/sluice_plugins"}
	assert.Equal(t, Location{Path: filepath.Join("/roots/sluice_plugins", "extractor")}, dir.child("extractor"))

	arch := Location{
		Path:    filepath.Join("/x/pack.zip", "sluice_plugins"),
		Archive: "/x/pack.zip",
		Sub:     "sluice_plugins",
	}
	got := arch.child("extractor")
	assert.Equal(t, "/x/pack.zip", got.Archive)
	assert.Equal(t, "sluice_plugins/extractor", got.Sub)
	assert.Equal(t, filepath.Join("/x/pack.zip", "sluice_plugins", "extractor"), got.Path)
}

func TestArchiveCandidateGate(t *testing.T) {
	dir := t.TempDir()
	makeArchive(t, filepath.Join(dir, "pack.pak"), map[string]string{"a.lua": ""})

	assert.True(t, archiveCandidate(filepath.Join(dir, "pack.pak")))
	// Stem matching ignores which suffix the root itself carries.
	assert.True(t, archiveCandidate(filepath.Join(dir, "pack.zip")))
	assert.True(t, archiveCandidate(filepath.Join(dir, "pack")))
	assert.False(t, archiveCandidate(filepath.Join(dir, "other.zip")))
}
