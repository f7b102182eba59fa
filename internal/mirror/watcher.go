package mirror

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/dirstore/internal/apperr"
	"github.com/starford/dirstore/internal/namespace"
)

// ReconcileDelay debounces the full Sync pass that follows renames.
const ReconcileDelay = 200 * time.Millisecond

// EventCallback is called after a watcher-driven namespace change.
// kind is one of "uploaded", "removed", "reconciled".
type EventCallback func(kind string, key string)

// Watch starts an fsnotify watcher on root and mirrors file changes into
// the namespace below target until ctx is cancelled. It calls cb (if
// non-nil) after each successful namespace mutation.
//
// New directories created at runtime are added to the watch list and
// uploaded. Rename events trigger a debounced Sync pass that removes stale
// keys whose files no longer exist on disk.
func Watch(ctx context.Context, ns *namespace.Namespace, root, target string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("mirror: watching", slog.String("root", root), slog.String("target", target))

	notify := func(kind, key string) {
		if cb != nil {
			cb(kind, key)
		}
	}

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(ReconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(ReconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("mirror: stopped")
			return nil

		case <-reconcileCh:
			rep, err := Sync(ctx, ns, root, target, logger)
			if err != nil {
				logger.Warn("mirror: reconcile failed", slog.String("error", err.Error()))
				continue
			}
			if rep.Uploaded+rep.Removed > 0 {
				notify("reconciled", target)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			absPath := ev.Name
			if skipName(filepath.Base(absPath)) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("mirror: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					uploadNewDir(ctx, ns, root, target, absPath, logger, notify)
					continue
				}
			}

			key, keyErr := keyFor(root, target, absPath, false)
			if keyErr != nil {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				if _, upErr := ns.UploadFile(ctx, absPath, key, true); upErr != nil {
					logger.Warn("mirror: upload failed", slog.String("path", key), slog.String("error", upErr.Error()))
					continue
				}
				logger.Debug("mirror: uploaded", slog.String("path", key))
				notify("uploaded", key)

			case ev.Op&fsnotify.Remove != 0:
				// A removed directory shows up under its file-form key;
				// the reconcile pass sorts it out.
				if rmErr := ns.Remove(ctx, key); rmErr != nil {
					if !errors.Is(rmErr, apperr.ErrNoFile) {
						logger.Warn("mirror: remove failed", slog.String("path", key), slog.String("error", rmErr.Error()))
					}
					scheduleReconcile()
					continue
				}
				logger.Debug("mirror: removed", slog.String("path", key))
				notify("removed", key)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the old path only. The new path
				// arrives as a separate Create when it stays in a watched
				// dir. Drop the old key now and reconcile shortly after.
				if rmErr := ns.Remove(ctx, key); rmErr == nil {
					logger.Debug("mirror: rename old removed", slog.String("path", key))
					notify("removed", key)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("mirror: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// uploadNewDir uploads a directory created at runtime with everything
// already inside it.
func uploadNewDir(ctx context.Context, ns *namespace.Namespace, root, target, dirPath string, logger *slog.Logger, notify func(kind, key string)) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || skipName(d.Name()) {
			return nil
		}
		key, keyErr := keyFor(root, target, path, d.IsDir())
		if keyErr != nil {
			return nil
		}
		if d.IsDir() {
			if mkErr := ns.MakeDirs(ctx, key); mkErr != nil {
				logger.Warn("mirror: mkdir failed", slog.String("path", key), slog.String("error", mkErr.Error()))
			}
			return nil
		}
		if _, upErr := ns.UploadFile(ctx, path, key, true); upErr == nil {
			logger.Debug("mirror: uploaded from new dir", slog.String("path", key))
			notify("uploaded", key)
		}
		return nil
	})
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
