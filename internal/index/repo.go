package index

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/halvard/munin/internal/models"
	"github.com/halvard/munin/internal/parser"
)

// IndexedNote carries everything the index stores about one note.
type IndexedNote struct {
	UID         string
	Title       string
	Content     string // full body, fed to the full-text projection only
	FilePath    string
	ContentHash string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Backlink is one distinct source note linking to a target.
type Backlink struct {
	SourceUID   string
	SourceTitle string
}

func formatTime(t time.Time) string {
	return t.UTC().Format(models.TimeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(models.TimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Upsert writes one note into every index structure in a single transaction:
// the metadata row, the full-text projection, the note's outgoing backlink
// edges, and the title lookup. Partial index state is never visible.
func (db *DB) Upsert(n IndexedNote, preview string, tags []string) error {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("index: marshal tags: %w", err)
	}
	if tags == nil {
		tagsJSON = []byte("[]")
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin upsert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO notes (uid, title, file_path, content_hash, created_at, updated_at, indexed_at, preview, tags_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			title = excluded.title,
			file_path = excluded.file_path,
			content_hash = excluded.content_hash,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			indexed_at = excluded.indexed_at,
			preview = excluded.preview,
			tags_json = excluded.tags_json`,
		n.UID, n.Title, n.FilePath, n.ContentHash,
		formatTime(n.CreatedAt), formatTime(n.UpdatedAt), formatTime(time.Now()),
		preview, string(tagsJSON),
	)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	if err := ftsUpsert(tx, n.UID, n.Title, n.Content); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM backlinks WHERE source_uid = ?`, n.UID); err != nil {
		return fmt.Errorf("index: clear backlinks: %w", err)
	}
	for _, link := range parser.ExtractWikiLinks(n.Content) {
		_, err := tx.Exec(
			`INSERT INTO backlinks (source_uid, target_title, position) VALUES (?, ?, ?)`,
			n.UID, strings.ToLower(link.Title), link.Position,
		)
		if err != nil {
			return fmt.Errorf("index: insert backlink: %w", err)
		}
	}

	// Clear any stale title mapping before claiming the new one; a retitled
	// note must release its old entry. Collisions are last-write-wins.
	if _, err := tx.Exec(`DELETE FROM title_index WHERE uid = ?`, n.UID); err != nil {
		return fmt.Errorf("index: clear title: %w", err)
	}
	if n.Title != "" {
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO title_index (title_normalized, uid) VALUES (?, ?)`,
			strings.ToLower(n.Title), n.UID,
		)
		if err != nil {
			return fmt.Errorf("index: upsert title: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit upsert: %w", err)
	}
	return nil
}

// Delete removes every trace of a note from the index.
func (db *DB) Delete(uid string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM title_index WHERE uid = ?`, uid); err != nil {
		return fmt.Errorf("index: delete title: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM backlinks WHERE source_uid = ?`, uid); err != nil {
		return fmt.Errorf("index: delete backlinks: %w", err)
	}
	if err := ftsDelete(tx, uid); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM notes WHERE uid = ?`, uid); err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit delete: %w", err)
	}
	return nil
}

// DeleteByPath removes the note indexed under the given file path, returning
// its uid, or "" when nothing was indexed there.
func (db *DB) DeleteByPath(path string) (string, error) {
	uid, err := db.GetUIDByPath(path)
	if err != nil {
		return "", err
	}
	if uid == "" {
		return "", nil
	}
	return uid, db.Delete(uid)
}

// FindByTitle resolves a title (case-insensitive) to a uid, or "".
func (db *DB) FindByTitle(title string) (string, error) {
	var uid string
	err := db.conn.QueryRow(
		`SELECT uid FROM title_index WHERE title_normalized = ?`,
		strings.ToLower(title),
	).Scan(&uid)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: find by title: %w", err)
	}
	return uid, nil
}

// GetPath returns the stored file path for a uid, or "" when unknown.
func (db *DB) GetPath(uid string) (string, error) {
	var path string
	err := db.conn.QueryRow(`SELECT file_path FROM notes WHERE uid = ?`, uid).Scan(&path)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get path: %w", err)
	}
	return path, nil
}

// GetUIDByPath returns the uid indexed under a file path, or "".
func (db *DB) GetUIDByPath(path string) (string, error) {
	var uid string
	err := db.conn.QueryRow(`SELECT uid FROM notes WHERE file_path = ?`, path).Scan(&uid)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get uid by path: %w", err)
	}
	return uid, nil
}

// GetListItem returns the listing projection for one uid, or nil when absent.
func (db *DB) GetListItem(uid string) (*models.ListItem, error) {
	var (
		item    models.ListItem
		updated string
	)
	err := db.conn.QueryRow(
		`SELECT uid, title, file_path, updated_at FROM notes WHERE uid = ?`, uid,
	).Scan(&item.UID, &item.Title, &item.Path, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get list item: %w", err)
	}
	item.UpdatedAt = parseTime(updated)
	return &item, nil
}

// List returns one page of notes ordered by most recently updated, plus the
// total count. A non-positive limit means no limit.
func (db *DB) List(offset, limit int) ([]models.ListItem, int, error) {
	var total int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM notes`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count notes: %w", err)
	}

	if limit <= 0 {
		limit = -1 // SQLite: negative LIMIT disables it
	}
	rows, err := db.conn.Query(
		`SELECT uid, title, file_path, updated_at FROM notes
		 ORDER BY updated_at DESC, uid DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list notes: %w", err)
	}
	defer rows.Close()

	var items []models.ListItem
	for rows.Next() {
		var (
			item    models.ListItem
			updated string
		)
		if err := rows.Scan(&item.UID, &item.Title, &item.Path, &updated); err != nil {
			return nil, 0, fmt.Errorf("index: scan note: %w", err)
		}
		item.UpdatedAt = parseTime(updated)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("index: list notes: %w", err)
	}
	return items, total, nil
}

// ListAll returns every note ordered by most recently updated.
func (db *DB) ListAll() ([]models.ListItem, error) {
	items, _, err := db.List(0, -1)
	return items, err
}

// ListGallery returns the denormalized gallery projection, optionally sorted
// by creation time and filtered to a tag. The tag filter matches
// case-insensitively against the stored tag list.
func (db *DB) ListGallery(sortByCreated bool, tagFilter string) ([]models.GalleryItem, error) {
	order := "updated_at DESC, uid DESC"
	if sortByCreated {
		order = "created_at DESC, uid DESC"
	}
	rows, err := db.conn.Query(
		`SELECT uid, title, preview, tags_json, created_at, updated_at FROM notes ORDER BY ` + order,
	)
	if err != nil {
		return nil, fmt.Errorf("index: list gallery: %w", err)
	}
	defer rows.Close()

	filter := strings.ToLower(strings.TrimSpace(tagFilter))
	var items []models.GalleryItem
	for rows.Next() {
		var (
			item     models.GalleryItem
			tagsJSON string
			created  string
			updated  string
		)
		if err := rows.Scan(&item.UID, &item.Title, &item.Preview, &tagsJSON, &created, &updated); err != nil {
			return nil, fmt.Errorf("index: scan gallery item: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &item.Tags); err != nil {
			item.Tags = nil
		}
		if item.Tags == nil {
			item.Tags = []string{}
		}
		if filter != "" && !hasTag(item.Tags, filter) {
			continue
		}
		item.CreatedAt = parseTime(created)
		item.UpdatedAt = parseTime(updated)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: list gallery: %w", err)
	}
	return items, nil
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if strings.ToLower(t) == want {
			return true
		}
	}
	return false
}

// NeedsUpdate reports whether the stored hash for a uid differs from hash.
// An unindexed uid always needs an update.
func (db *DB) NeedsUpdate(uid, hash string) (bool, error) {
	var stored string
	err := db.conn.QueryRow(`SELECT content_hash FROM notes WHERE uid = ?`, uid).Scan(&stored)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("index: check hash: %w", err)
	}
	return stored != hash, nil
}

// RemoveOrphans deletes index entries whose files no longer exist, as judged
// by the exists callback, returning the removed uids.
func (db *DB) RemoveOrphans(exists func(path string) bool) ([]string, error) {
	rows, err := db.conn.Query(`SELECT uid, file_path FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: scan for orphans: %w", err)
	}

	var orphans []string
	for rows.Next() {
		var uid, path string
		if err := rows.Scan(&uid, &path); err != nil {
			rows.Close()
			return nil, fmt.Errorf("index: scan orphan row: %w", err)
		}
		if !exists(filepath.FromSlash(path)) {
			orphans = append(orphans, uid)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("index: scan for orphans: %w", err)
	}
	rows.Close()

	for _, uid := range orphans {
		if err := db.Delete(uid); err != nil {
			return nil, err
		}
	}
	return orphans, nil
}

// NeedsRebuild reports whether the index is empty and should be rebuilt from
// the note files.
func (db *DB) NeedsRebuild() (bool, error) {
	count, err := db.Count()
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// Count returns the number of indexed notes.
func (db *DB) Count() (int, error) {
	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM notes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return count, nil
}

// Backlinks returns the distinct notes whose bodies link to the given note's
// title, ordered by source uid. A note without a title has no backlinks.
func (db *DB) Backlinks(uid string) ([]Backlink, error) {
	var title string
	err := db.conn.QueryRow(`SELECT title FROM notes WHERE uid = ?`, uid).Scan(&title)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: backlink title: %w", err)
	}
	if title == "" {
		return nil, nil
	}

	rows, err := db.conn.Query(
		`SELECT DISTINCT b.source_uid, n.title
		 FROM backlinks b
		 JOIN notes n ON n.uid = b.source_uid
		 WHERE b.target_title = ? AND b.source_uid != ?
		 ORDER BY b.source_uid`,
		strings.ToLower(title), uid,
	)
	if err != nil {
		return nil, fmt.Errorf("index: query backlinks: %w", err)
	}
	defer rows.Close()

	var links []Backlink
	for rows.Next() {
		var bl Backlink
		if err := rows.Scan(&bl.SourceUID, &bl.SourceTitle); err != nil {
			return nil, fmt.Errorf("index: scan backlink: %w", err)
		}
		links = append(links, bl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: query backlinks: %w", err)
	}
	return links, nil
}
