// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package plugin

import (
	"archive/zip"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeLua writes a plugin source file under dir, creating parents.
func writeLua(t *testing.T, dir, rel, src string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

// makeArchive writes a zip archive at path with the given member contents.
// Keys use slash-separated paths; a value-less directory entry can be forced
// with a trailing slash and empty content.
func makeArchive(t *testing.T, path string, members map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

// capture is a slog.Handler that records every message it sees.
type capture struct {
	mu      sync.Mutex
	records []capturedRecord
}

type capturedRecord struct {
	level slog.Level
	msg   string
	attrs map[string]string
}

func (c *capture) Enabled(context.Context, slog.Level) bool { return true }

func (c *capture) Handle(_ context.Context, r slog.Record) error {
	rec := capturedRecord{level: r.Level, msg: r.Message, attrs: map[string]string{}}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[a.Key] = a.Value.String()
		return true
	})
	c.mu.Lock()
	c.records = append(c.records, rec)
	c.mu.Unlock()
	return nil
}

func (c *capture) WithAttrs([]slog.Attr) slog.Handler { return c }
func (c *capture) WithGroup(string) slog.Handler      { return c }

// count returns how many records carry msg.
func (c *capture) count(msg string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.records {
		if r.msg == msg {
			n++
		}
	}
	return n
}

// find returns the first record carrying msg.
func (c *capture) find(msg string) (capturedRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if r.msg == msg {
			return r, true
		}
	}
	return capturedRecord{}, false
}

// newTestRuntime builds an initialized runtime over env with a capturing
// logger, closed automatically at test end.
func newTestRuntime(t *testing.T, env Environ, mutate ...func(*Options)) (*Runtime, *capture) {
	t.Helper()
	logs := &capture{}
	opts := Options{Env: env, Logger: slog.New(logs)}
	for _, m := range mutate {
		m(&opts)
	}
	rt, err := NewRuntime(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	require.NoError(t, rt.Initialize(context.Background()))
	return rt, logs
}

// searchEnv is the simplest environment: roots come only from the search
// path, in the order given.
func searchEnv(roots ...string) Environ {
	return Environ{SearchPath: roots}
}
