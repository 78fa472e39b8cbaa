package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/folio/internal/storage"
)

// Index change kinds reported to an EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// EventCallback is called after a watcher-driven index change.
type EventCallback func(kind string, slug string)

// Watch starts an fsnotify watcher on the canonical record root and keeps
// the index in step with it until ctx is cancelled. It calls cb (if
// non-nil) after each index mutation.
//
// New record directories are added to the watch list as they appear.
// Rename events trigger a debounced reconciliation pass.
func Watch(ctx context.Context, db RecordIndex, src RecordSource, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	refresh := func(slug string) {
		kind, err := Refresh(ctx, db, src, slug)
		if err != nil {
			logger.Warn("watcher: refresh failed", slog.String("slug", slug), slog.String("error", err.Error()))
			return
		}
		if kind == "" {
			return
		}
		logger.Debug("watcher: indexed", slog.String("slug", slug), slog.String("op", kind))
		if cb != nil {
			cb(kind, slug)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if err := syncAll(ctx, db, src, logger, cb); err != nil {
				logger.Warn("reconcile: sync failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
				}
			}

			slug, ok := slugFromPath(root, ev.Name)
			if !ok {
				continue
			}
			refresh(slug)
			if ev.Op&fsnotify.Rename != 0 {
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// slugFromPath maps a changed path below root to the slug it belongs to.
// It recognizes legacy "<slug>.json" files, files inside an organized
// "<slug>/" directory and the directory itself. The root index file and
// temp files are ignored.
func slugFromPath(root, abs string) (string, bool) {
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	parts := strings.Split(rel, "/")
	if storage.IsTemp(parts[len(parts)-1]) {
		return "", false
	}

	var slug string
	switch len(parts) {
	case 1:
		name := parts[0]
		if name == storage.IndexFile {
			return "", false
		}
		slug = strings.TrimSuffix(name, ".json")
	case 2:
		if parts[1] != storage.RecordFile && parts[1] != storage.MetadataFile {
			return "", false
		}
		slug = parts[0]
	default:
		return "", false
	}
	if !storage.ValidSlug(slug) {
		return "", false
	}
	return slug, true
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
