package repository_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/halvard/munin/internal/models"
	"github.com/halvard/munin/internal/repository"
	"github.com/halvard/munin/internal/testutil"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func writeNote(t *testing.T, dir, name, body string) *models.Note {
	t.Helper()
	n := models.New()
	n.UpdateContent(body)
	if err := os.WriteFile(filepath.Join(dir, name), []byte(n.Serialize()), 0o644); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	repo, dir := testutil.TestRepo(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go repository.Watch(ctx, repo, dir, testutil.Logger(), func(kind, uid string) {
		mu.Lock()
		events = append(events, kind+":"+uid)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	n := writeNote(t, dir, "new.md", "# New")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, ok := repo.GetPath(n.Meta.UID)
		return ok
	}, "new file not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:"+n.Meta.UID {
				return true
			}
		}
		return false
	}, "expected created callback for new note")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	repo, dir := testutil.TestRepo(t)

	n := writeNote(t, dir, "del.md", "# Delete Me")
	if _, err := repo.SyncIndex(); err != nil {
		t.Fatal(err)
	}
	if _, ok := repo.GetPath(n.Meta.UID); !ok {
		t.Fatal("precondition: file should be indexed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go repository.Watch(ctx, repo, dir, testutil.Logger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(dir, "del.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, ok := repo.GetPath(n.Meta.UID)
		return !ok
	}, "deleted file still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	repo, dir := testutil.TestRepo(t)

	n := writeNote(t, dir, "old.md", "# Rename")
	if _, err := repo.SyncIndex(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go repository.Watch(ctx, repo, dir, testutil.Logger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(dir, "old.md"), filepath.Join(dir, "renamed.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		path, ok := repo.GetPath(n.Meta.UID)
		return ok && path == "renamed.md"
	}, "rename reconciliation failed: note should be reindexed under the new path")
}
