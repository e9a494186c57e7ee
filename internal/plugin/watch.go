// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sluice Contributors

package plugin

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/oops"
)

// watchDebounce coalesces editor write bursts into one invalidation.
const watchDebounce = 500 * time.Millisecond

// Watcher invalidates the runtime's caches when plugin roots change on disk,
// so the next load picks up added, removed, or replaced modules.
type Watcher struct {
	rt       *Runtime
	fsw      *fsnotify.Watcher
	debounce time.Duration
	onReload func()
	logger   *slog.Logger
}

// Watch builds a watcher over every plugin root that exists right now, plus
// root parents so newly created roots and archives are seen. onReload runs
// after each invalidation; it may be nil.
func (rt *Runtime) Watch(onReload func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, oops.In("plugins").Wrapf(err, "create filesystem watcher")
	}
	w := &Watcher{
		rt:       rt,
		fsw:      fsw,
		debounce: watchDebounce,
		onReload: onReload,
		logger:   rt.logger,
	}
	watched := 0
	for _, dir := range w.watchTargets() {
		if err := fsw.Add(dir); err != nil {
			w.logger.Warn("could not watch plugin path", "path", dir, "cause", err.Error())
			continue
		}
		watched++
	}
	w.logger.Debug("plugin watcher started", "paths", watched)
	return w, nil
}

// watchTargets lists the directories worth watching: every existing
// candidate root, its namespace and category subdirectories, and the parent
// directory of each root.
func (w *Watcher) watchTargets() []string {
	var targets []string
	for _, root := range CandidateRoots(w.rt.opts.Env) {
		if parent := filepath.Dir(root); dirExists(parent) {
			targets = append(targets, parent)
		}
		if !dirExists(root) {
			continue
		}
		targets = append(targets, root)
		ns := filepath.Join(root, PackageName)
		if !dirExists(ns) {
			continue
		}
		targets = append(targets, ns)
		for _, cat := range []Category{CategoryExtractor, CategoryPostprocessor} {
			if dir := filepath.Join(ns, cat.Name); dirExists(dir) {
				targets = append(targets, dir)
			}
		}
	}
	return dedupPaths(targets)
}

func dirExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}

// Run blocks until ctx is cancelled, coalescing filesystem events into
// debounced cache invalidations.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		w.rt.InvalidateCaches()
		w.logger.Info("plugin caches invalidated after filesystem change")
		if w.onReload != nil {
			w.onReload()
		}
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("close filesystem watcher", "cause", err.Error())
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return oops.In("plugins").Errorf("watcher event channel closed")
			}
			if !relevantEvent(evt) {
				continue
			}
			if evt.Has(fsnotify.Create) {
				w.maybeAdd(evt.Name)
			}
			mu.Lock()
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return oops.In("plugins").Errorf("watcher error channel closed")
			}
			w.logger.Warn("filesystem watcher error", "cause", err.Error())
		}
	}
}

// relevantEvent filters events down to plugin material: Lua sources,
// archives, and directories. Removals and renames always count since the
// path is gone by the time we look.
func relevantEvent(evt fsnotify.Event) bool {
	if strings.HasSuffix(evt.Name, ".lua") || hasArchiveSuffix(evt.Name) {
		return true
	}
	if evt.Has(fsnotify.Remove) || evt.Has(fsnotify.Rename) {
		return true
	}
	return dirExists(evt.Name)
}

// maybeAdd extends the watch to directories created after startup.
func (w *Watcher) maybeAdd(path string) {
	if !dirExists(path) {
		return
	}
	if err := w.fsw.Add(path); err != nil {
		w.logger.Warn("could not watch new plugin directory", "path", path, "cause", err.Error())
	}
}
