package index

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/zettelkasten/internal/storage"
)

// EventCallback is called after a watcher-driven catalog change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, id string)

// reconcileDelay debounces the full pass scheduled after renames.
const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the record directory and processes
// changes until ctx is cancelled. Only record files are considered; dot-files
// such as lock files, temp files and auxiliary units are ignored.
//
// A change that leaves the record identical to its catalog row is dropped, so
// writes the process already reported itself do not call cb a second time.
// Rename events trigger a debounced reconciliation pass over the whole store.
func Watch(ctx context.Context, db Catalog, store storage.Store, root string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
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
			if err := syncWith(ctx, db, store, logger, cb); err != nil {
				logger.Warn("reconcile: failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			id, isRecord := storage.IDFromPath(filepath.Base(ev.Name))
			if !isRecord {
				continue
			}
			if ev.Op&fsnotify.Rename != 0 {
				scheduleReconcile()
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			kind, err := Refresh(ctx, db, store, id)
			if err != nil {
				// Usually a half-written file; the next Write event retries.
				logger.Warn("watcher: refresh failed", slog.String("id", id), slog.String("error", err.Error()))
				continue
			}
			if kind == "" {
				continue
			}
			logger.Debug("watcher: indexed", slog.String("id", id), slog.String("op", kind))
			if cb != nil {
				cb(kind, id)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
