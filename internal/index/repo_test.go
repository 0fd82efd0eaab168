package index_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/halvard/munin/internal/index"
	"github.com/halvard/munin/internal/testutil"
)

func at(day int) time.Time {
	return time.Date(2025, 3, day, 10, 0, 0, 0, time.UTC)
}

func note(uid, title, content string, day int) index.IndexedNote {
	return index.IndexedNote{
		UID:         uid,
		Title:       title,
		Content:     content,
		FilePath:    title + ".md",
		ContentHash: "hash-" + uid,
		CreatedAt:   at(day),
		UpdatedAt:   at(day),
	}
}

func TestUpsert_InsertAndUpdate(t *testing.T) {
	db := testutil.TestDB(t)

	n := note("u1", "First", "body", 1)
	if err := db.Upsert(n, "preview text", []string{"go"}); err != nil {
		t.Fatal(err)
	}

	item, err := db.GetListItem("u1")
	if err != nil {
		t.Fatal(err)
	}
	if item == nil || item.Title != "First" || item.Path != "First.md" {
		t.Fatalf("item = %+v", item)
	}

	n.Title = "Renamed"
	n.FilePath = "Renamed.md"
	n.UpdatedAt = at(2)
	if err := db.Upsert(n, "preview text", nil); err != nil {
		t.Fatal(err)
	}

	item, err = db.GetListItem("u1")
	if err != nil {
		t.Fatal(err)
	}
	if item.Title != "Renamed" {
		t.Errorf("title = %q, want Renamed", item.Title)
	}
	if count, _ := db.Count(); count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestFindByTitle_CaseInsensitive(t *testing.T) {
	db := testutil.TestDB(t)
	if err := db.Upsert(note("u1", "Weekly Standup", "", 1), "", nil); err != nil {
		t.Fatal(err)
	}

	for _, q := range []string{"Weekly Standup", "weekly standup", "WEEKLY STANDUP"} {
		uid, err := db.FindByTitle(q)
		if err != nil {
			t.Fatal(err)
		}
		if uid != "u1" {
			t.Errorf("FindByTitle(%q) = %q, want u1", q, uid)
		}
	}

	uid, err := db.FindByTitle("missing")
	if err != nil {
		t.Fatal(err)
	}
	if uid != "" {
		t.Errorf("expected empty uid, got %q", uid)
	}
}

func TestUpsert_RetitleReleasesOldTitle(t *testing.T) {
	db := testutil.TestDB(t)
	n := note("u1", "Old Title", "", 1)
	if err := db.Upsert(n, "", nil); err != nil {
		t.Fatal(err)
	}

	n.Title = "New Title"
	if err := db.Upsert(n, "", nil); err != nil {
		t.Fatal(err)
	}

	if uid, _ := db.FindByTitle("Old Title"); uid != "" {
		t.Errorf("stale title still resolves to %q", uid)
	}
	if uid, _ := db.FindByTitle("New Title"); uid != "u1" {
		t.Errorf("new title resolves to %q, want u1", uid)
	}
}

func TestUpsert_TitleCollisionLastWriteWins(t *testing.T) {
	db := testutil.TestDB(t)
	if err := db.Upsert(note("u1", "Shared", "", 1), "", nil); err != nil {
		t.Fatal(err)
	}
	if err := db.Upsert(note("u2", "Shared", "", 2), "", nil); err != nil {
		t.Fatal(err)
	}
	if uid, _ := db.FindByTitle("Shared"); uid != "u2" {
		t.Errorf("collision resolved to %q, want u2", uid)
	}
}

func TestBacklinks(t *testing.T) {
	db := testutil.TestDB(t)

	if err := db.Upsert(note("target", "Target Note", "no links", 1), "", nil); err != nil {
		t.Fatal(err)
	}
	if err := db.Upsert(note("a", "Source A", "see [[Target Note]] twice [[target note]]", 2), "", nil); err != nil {
		t.Fatal(err)
	}
	if err := db.Upsert(note("b", "Source B", "also [[Target Note|alias]]", 3), "", nil); err != nil {
		t.Fatal(err)
	}
	// Self links do not count.
	if err := db.Upsert(note("target", "Target Note", "me [[Target Note]]", 1), "", nil); err != nil {
		t.Fatal(err)
	}

	links, err := db.Backlinks("target")
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 2 {
		t.Fatalf("links = %+v, want 2 distinct sources", links)
	}
	if links[0].SourceUID != "a" || links[1].SourceUID != "b" {
		t.Errorf("links = %+v", links)
	}
}

func TestBacklinks_DropOnSourceUpdate(t *testing.T) {
	db := testutil.TestDB(t)
	if err := db.Upsert(note("target", "Target", "", 1), "", nil); err != nil {
		t.Fatal(err)
	}
	if err := db.Upsert(note("src", "Source", "[[Target]]", 2), "", nil); err != nil {
		t.Fatal(err)
	}
	if err := db.Upsert(note("src", "Source", "link removed", 2), "", nil); err != nil {
		t.Fatal(err)
	}
	links, err := db.Backlinks("target")
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 0 {
		t.Errorf("links = %+v, want none", links)
	}
}

func TestDelete_RemovesEverything(t *testing.T) {
	db := testutil.TestDB(t)
	if err := db.Upsert(note("u1", "Doomed", "[[Elsewhere]]", 1), "p", []string{"t"}); err != nil {
		t.Fatal(err)
	}
	if err := db.Delete("u1"); err != nil {
		t.Fatal(err)
	}

	if item, _ := db.GetListItem("u1"); item != nil {
		t.Errorf("list item survives: %+v", item)
	}
	if uid, _ := db.FindByTitle("Doomed"); uid != "" {
		t.Errorf("title survives: %q", uid)
	}
	if count, _ := db.Count(); count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestList_PaginationAndOrder(t *testing.T) {
	db := testutil.TestDB(t)
	for i, uid := range []string{"u1", "u2", "u3"} {
		if err := db.Upsert(note(uid, "Note "+uid, "", i+1), "", nil); err != nil {
			t.Fatal(err)
		}
	}

	items, total, err := db.List(0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(items) != 2 || items[0].UID != "u3" || items[1].UID != "u2" {
		t.Errorf("page = %+v", items)
	}

	items, _, err = db.List(2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].UID != "u1" {
		t.Errorf("last page = %+v", items)
	}
}

func TestListGallery_TagFilterAndSort(t *testing.T) {
	db := testutil.TestDB(t)

	early := note("u1", "Early", "", 1)
	early.UpdatedAt = at(9)
	if err := db.Upsert(early, "first preview", []string{"Work"}); err != nil {
		t.Fatal(err)
	}
	late := note("u2", "Late", "", 5)
	if err := db.Upsert(late, "second preview", []string{"home"}); err != nil {
		t.Fatal(err)
	}

	items, err := db.ListGallery(true, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].UID != "u2" {
		t.Errorf("created-sorted gallery = %+v", items)
	}

	items, err = db.ListGallery(false, "")
	if err != nil {
		t.Fatal(err)
	}
	if items[0].UID != "u1" {
		t.Errorf("updated-sorted gallery = %+v", items)
	}

	items, err = db.ListGallery(false, "work")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].UID != "u1" {
		t.Errorf("tag-filtered gallery = %+v", items)
	}
	if items[0].Preview != "first preview" {
		t.Errorf("preview = %q", items[0].Preview)
	}
}

func TestNeedsUpdate(t *testing.T) {
	db := testutil.TestDB(t)
	if stale, err := db.NeedsUpdate("ghost", "h"); err != nil || !stale {
		t.Errorf("unindexed uid: stale=%v err=%v, want true", stale, err)
	}
	if err := db.Upsert(note("u1", "N", "", 1), "", nil); err != nil {
		t.Fatal(err)
	}
	if stale, _ := db.NeedsUpdate("u1", "hash-u1"); stale {
		t.Error("same hash reported stale")
	}
	if stale, _ := db.NeedsUpdate("u1", "other"); !stale {
		t.Error("different hash reported fresh")
	}
}

func TestRemoveOrphans(t *testing.T) {
	db := testutil.TestDB(t)
	if err := db.Upsert(note("keep", "Keep", "", 1), "", nil); err != nil {
		t.Fatal(err)
	}
	if err := db.Upsert(note("gone", "Gone", "", 2), "", nil); err != nil {
		t.Fatal(err)
	}

	removed, err := db.RemoveOrphans(func(path string) bool {
		return path == "Keep.md"
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 || removed[0] != "gone" {
		t.Errorf("removed = %v", removed)
	}
	if count, _ := db.Count(); count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestNeedsRebuild(t *testing.T) {
	db := testutil.TestDB(t)
	if rebuild, err := db.NeedsRebuild(); err != nil || !rebuild {
		t.Errorf("empty index: rebuild=%v err=%v, want true", rebuild, err)
	}
	if err := db.Upsert(note("u1", "N", "", 1), "", nil); err != nil {
		t.Fatal(err)
	}
	if rebuild, _ := db.NeedsRebuild(); rebuild {
		t.Error("populated index wants rebuild")
	}
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "munin.db")

	db, err := index.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Upsert(note("u1", "Survivor", "", 1), "", nil); err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	db, err = index.Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()
	if count, _ := db.Count(); count != 1 {
		t.Errorf("count after reopen = %d, want 1", count)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("db file missing: %v", err)
	}
}

func TestSearchFTS(t *testing.T) {
	db := testutil.TestDB(t)
	if err := db.Upsert(note("u1", "Gardening", "notes about tomato plants", 1), "", nil); err != nil {
		t.Fatal(err)
	}
	if err := db.Upsert(note("u2", "Cooking", "tomato soup recipe", 2), "", nil); err != nil {
		t.Fatal(err)
	}

	results, err := db.SearchFTS("tomato", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %+v, want 2", results)
	}
}

func TestDeleteByPath(t *testing.T) {
	db := testutil.TestDB(t)
	if err := db.Upsert(note("u1", "ByPath", "", 1), "", nil); err != nil {
		t.Fatal(err)
	}

	uid, err := db.DeleteByPath("ByPath.md")
	if err != nil {
		t.Fatal(err)
	}
	if uid != "u1" {
		t.Errorf("uid = %q, want u1", uid)
	}

	uid, err = db.DeleteByPath("nothing.md")
	if err != nil {
		t.Fatal(err)
	}
	if uid != "" {
		t.Errorf("uid = %q, want empty", uid)
	}
}
