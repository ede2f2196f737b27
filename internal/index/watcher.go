package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kukula/lattice/internal/checksum"
	"github.com/kukula/lattice/internal/engine"
	"github.com/kukula/lattice/internal/storage"
)

const (
	// settleDelay coalesces the burst of writes an editor makes when saving
	// a model into one revalidation.
	settleDelay = 100 * time.Millisecond
	// reconcileDelay debounces the full sync that follows renames and new
	// directories.
	reconcileDelay = 200 * time.Millisecond
)

type watcher struct {
	fw     *fsnotify.Watcher
	db     ModelIndex
	store  storage.Provider
	eng    *engine.Engine
	root   string
	logger *slog.Logger
	cb     EventCallback

	dirty     map[string]struct{}
	settle    *time.Timer
	reconcile *time.Timer
}

// Watch revalidates model files under root as they change until ctx is
// cancelled. cb, if non-nil, is called after each index mutation.
//
// Directories created at runtime are watched as they appear. A rename
// drops the old path and schedules a full Sync, which picks up the new
// path and anything else that moved.
func Watch(ctx context.Context, db ModelIndex, store storage.Provider, eng *engine.Engine, root string, logger *slog.Logger, cb EventCallback) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := watchTree(fw, root); err != nil {
		return err
	}

	w := &watcher{
		fw: fw, db: db, store: store, eng: eng, root: root, logger: logger, cb: cb,
		dirty:     make(map[string]struct{}),
		settle:    stoppedTimer(),
		reconcile: stoppedTimer(),
	}
	defer w.settle.Stop()
	defer w.reconcile.Stop()

	logger.Info("watcher: started", slog.String("root", root))
	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil
		case <-w.settle.C:
			w.flush()
		case <-w.reconcile.C:
			if err := Sync(db, store, eng, logger, cb); err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

func stoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

func (w *watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) && w.addDir(ev.Name) {
		return
	}
	if !storage.IsModelPath(ev.Name) {
		return
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.dirty[rel] = struct{}{}
		w.settle.Reset(settleDelay)
	case ev.Has(fsnotify.Remove):
		delete(w.dirty, rel)
		w.drop(rel)
	case ev.Has(fsnotify.Rename):
		// Only the old path is reported; the new one shows up as a Create
		// when it stays inside a watched directory.
		delete(w.dirty, rel)
		w.drop(rel)
		w.reconcile.Reset(reconcileDelay)
	}
}

// addDir watches a newly created directory. It reports whether path was a
// directory.
func (w *watcher) addDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	if strings.HasPrefix(filepath.Base(path), ".") {
		return true
	}
	if err := watchTree(w.fw, path); err != nil {
		w.logger.Warn("watcher: add dir failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	// Files may have landed before the watch was added.
	w.reconcile.Reset(reconcileDelay)
	return true
}

// flush revalidates every path written since the last flush, in path order.
func (w *watcher) flush() {
	paths := make([]string, 0, len(w.dirty))
	for p := range w.dirty {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	clear(w.dirty)

	for _, rel := range paths {
		data, err := w.store.Read(rel)
		if err != nil {
			w.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", err.Error()))
			continue
		}
		if cs, _ := w.db.GetChecksum(rel); cs != "" && cs == checksum.Sum(data) {
			continue
		}
		rec, _, err := IndexFile(w.db, w.eng, rel, data)
		if err != nil {
			w.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", err.Error()))
			continue
		}
		w.logger.Debug("watcher: validated", slog.String("path", rel), slog.Bool("valid", rec.Run.Valid))
		notify(w.cb, rec)
	}
}

func (w *watcher) drop(rel string) {
	if err := w.db.Delete(rel); err != nil {
		w.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	w.logger.Debug("watcher: deleted", slog.String("path", rel))
	if w.cb != nil {
		w.cb(EventDeleted, rel, nil)
	}
}

// watchTree adds root and its non-hidden subdirectories to fw.
func watchTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}
