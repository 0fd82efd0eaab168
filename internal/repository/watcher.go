package repository

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/halvard/munin/internal/checksum"
	"github.com/halvard/munin/internal/models"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, uid string)

// Watch starts an fsnotify watcher on the notes root and keeps the index in
// step with out-of-band edits until ctx is cancelled. It calls cb (if
// non-nil) after each successful index mutation.
//
// New directories created at runtime are added to the watch list. Rename
// events fire on the old path only, so they delete immediately and schedule
// a short reconciliation pass to pick up the new path.
func Watch(ctx context.Context, repo *Hybrid, notesRoot string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, notesRoot); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", notesRoot))

	// reconcileTimer debounces rename reconciliation.
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

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			res, syncErr := repo.SyncIndex()
			if syncErr != nil {
				logger.Warn("watcher: reconcile failed", slog.Any("error", syncErr))
				continue
			}
			logger.Debug("watcher: reconciled",
				slog.Int("added", res.Added),
				slog.Int("updated", res.Updated),
				slog.Int("removed", res.Removed))

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.Any("error", addErr))
					}
					// Files already inside the new directory surface
					// through the reconciliation pass.
					scheduleReconcile()
					continue
				}
			}

			// Our own atomic saves write through temp files; only note
			// files matter from here on.
			if !strings.HasSuffix(absPath, ".md") {
				continue
			}

			rel, relErr := filepath.Rel(notesRoot, absPath)
			if relErr != nil {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				kind := "updated"
				if ev.Op&fsnotify.Create != 0 {
					kind = "created"
				}
				uid, idxErr := reindexFile(repo, rel, logger)
				if idxErr != nil || uid == "" {
					continue
				}
				logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
				if cb != nil {
					cb(kind, uid)
				}

			case ev.Op&fsnotify.Remove != 0:
				uid, delErr := repo.idx.DeleteByPath(rel)
				if delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("path", rel), slog.Any("error", delErr))
					continue
				}
				if uid == "" {
					continue
				}
				logger.Debug("watcher: deleted", slog.String("path", rel))
				if cb != nil {
					cb("deleted", uid)
				}

			case ev.Op&fsnotify.Rename != 0:
				uid, delErr := repo.idx.DeleteByPath(rel)
				if delErr != nil {
					logger.Warn("watcher: rename delete failed", slog.String("path", rel), slog.Any("error", delErr))
				} else if uid != "" {
					logger.Debug("watcher: rename old deleted", slog.String("path", rel))
					if cb != nil {
						cb("deleted", uid)
					}
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.Any("error", watchErr))
		}
	}
}

// reindexFile loads, parses, and indexes one changed file, returning the
// note's uid, or "" when the content was already current.
func reindexFile(repo *Hybrid, rel string, logger *slog.Logger) (string, error) {
	data, err := repo.store.Load(rel)
	if err != nil {
		logger.Warn("watcher: read failed", slog.String("path", rel), slog.Any("error", err))
		return "", err
	}
	n, err := models.Parse(string(data))
	if err != nil {
		logger.Warn("watcher: unparsable file", slog.String("path", rel), slog.Any("error", err))
		return "", err
	}

	hash := checksum.Sum(data)
	stale, err := repo.idx.NeedsUpdate(n.Meta.UID, hash)
	if err != nil {
		logger.Warn("watcher: hash check failed", slog.String("path", rel), slog.Any("error", err))
		return "", err
	}
	if !stale {
		return "", nil
	}
	if err := repo.indexNote(n, rel, hash); err != nil {
		logger.Warn("watcher: index failed", slog.String("path", rel), slog.Any("error", err))
		return "", err
	}
	return n.Meta.UID, nil
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
