package repository

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/halvard/munin/internal/apperr"
	"github.com/halvard/munin/internal/checksum"
	"github.com/halvard/munin/internal/index"
	"github.com/halvard/munin/internal/models"
	"github.com/halvard/munin/internal/parser"
	"github.com/halvard/munin/internal/storage"
)

// Hybrid persists notes to the file store and mirrors them into the index.
// Writes go file-first so the source of truth is never behind the cache;
// deletes go index-first so a stale index entry never outlives its file.
type Hybrid struct {
	idx    index.NoteIndex
	store  storage.Provider
	logger *slog.Logger
}

// NewHybrid creates a repository over the given index and file store.
func NewHybrid(idx index.NoteIndex, store storage.Provider, logger *slog.Logger) *Hybrid {
	return &Hybrid{idx: idx, store: store, logger: logger}
}

var _ NoteRepository = (*Hybrid)(nil)

// Save writes the note file atomically, then updates every index structure.
// A new note gets a file name derived from its heading; an existing note
// keeps the path it was first saved under.
func (r *Hybrid) Save(n *models.Note) (string, error) {
	path, err := r.idx.GetPath(n.Meta.UID)
	if err != nil {
		return "", apperr.Storage("resolve path", err)
	}
	if path == "" {
		files, err := r.store.ListFiles("", "md")
		if err != nil {
			return "", apperr.Storage("list files", err)
		}
		taken := make(map[string]struct{}, len(files))
		for _, f := range files {
			taken[filepath.Base(f)] = struct{}{}
		}
		path = filenameFor(n.Heading(), n.Meta.UID, taken)
	}

	content := []byte(n.Serialize())
	if err := r.store.SaveAtomic(path, content); err != nil {
		return "", apperr.Storage("save note", err)
	}

	// The file is durable at this point; a failed index write still fails
	// the save. The next sync re-indexes the file.
	if err := r.indexNote(n, path, checksum.Sum(content)); err != nil {
		return "", apperr.Storage("index note", err)
	}
	return path, nil
}

func (r *Hybrid) indexNote(n *models.Note, path, hash string) error {
	return r.idx.Upsert(index.IndexedNote{
		UID:         n.Meta.UID,
		Title:       n.DisplayTitle(),
		Content:     n.Body,
		FilePath:    path,
		ContentHash: hash,
		CreatedAt:   n.Meta.CreatedAt,
		UpdatedAt:   n.Meta.UpdatedAt,
	}, parser.GeneratePreview(n.Body, parser.PreviewLength), n.AllTags())
}

// Load reads and parses the note file for a uid.
func (r *Hybrid) Load(uid string) (*models.Note, error) {
	path, err := r.idx.GetPath(uid)
	if err != nil {
		return nil, apperr.Storage("resolve path", err)
	}
	if path == "" {
		return nil, apperr.NotFound(uid)
	}

	data, err := r.store.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.NotFound(uid)
		}
		return nil, apperr.Storage("load note", err)
	}

	n, err := models.Parse(string(data))
	if err != nil {
		return nil, apperr.Parse(path, err)
	}
	return n, nil
}

// Delete removes a note from the index first, then from the file store.
func (r *Hybrid) Delete(uid string) error {
	path, err := r.idx.GetPath(uid)
	if err != nil {
		return apperr.Storage("resolve path", err)
	}
	if path == "" {
		return apperr.NotFound(uid)
	}
	if err := r.idx.Delete(uid); err != nil {
		return apperr.Storage("deindex note", err)
	}
	if err := r.store.Delete(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return apperr.Storage("delete note", err)
	}
	return nil
}

// ListAll returns every indexed note, most recently updated first.
func (r *Hybrid) ListAll() ([]models.ListItem, error) {
	items, err := r.idx.ListAll()
	if err != nil {
		return nil, apperr.Storage("list notes", err)
	}
	return items, nil
}

// ListPaginated returns one page of notes plus the total count.
func (r *Hybrid) ListPaginated(offset, limit int) ([]models.ListItem, int, error) {
	items, total, err := r.idx.List(offset, limit)
	if err != nil {
		return nil, 0, apperr.Storage("list notes", err)
	}
	return items, total, nil
}

// ListGallery returns the denormalized gallery projection.
func (r *Hybrid) ListGallery(sortByCreated bool, tagFilter string) ([]models.GalleryItem, error) {
	items, err := r.idx.ListGallery(sortByCreated, tagFilter)
	if err != nil {
		return nil, apperr.Storage("list gallery", err)
	}
	return items, nil
}

// SearchText runs a full-text query against the index. Ranking quality
// depends on the build: fts5 when available, LIKE otherwise.
func (r *Hybrid) SearchText(query string, limit int) ([]index.FTSResult, error) {
	results, err := r.idx.SearchFTS(query, limit)
	if err != nil {
		return nil, apperr.Storage("search index", err)
	}
	return results, nil
}

// FindByTitle resolves a title to its note, or (nil, nil) when no note
// carries that title.
func (r *Hybrid) FindByTitle(title string) (*models.Note, error) {
	uid, err := r.idx.FindByTitle(title)
	if err != nil {
		return nil, apperr.Storage("find by title", err)
	}
	if uid == "" {
		return nil, nil
	}
	return r.Load(uid)
}

// GetPath returns the indexed file path for a uid.
func (r *Hybrid) GetPath(uid string) (string, bool) {
	path, err := r.idx.GetPath(uid)
	if err != nil || path == "" {
		return "", false
	}
	return path, true
}

// SyncResult summarizes one reconciliation pass.
type SyncResult struct {
	Added   int
	Updated int
	Removed int
}

// SyncIndex reconciles the index against the note files: new files are
// indexed, changed files reindexed, and entries for missing files dropped.
// Unparsable files are skipped with a warning rather than aborting the pass.
func (r *Hybrid) SyncIndex() (SyncResult, error) {
	var res SyncResult

	files, err := r.store.ListFiles("", "md")
	if err != nil {
		return res, apperr.Storage("list files", err)
	}

	for _, path := range files {
		data, err := r.store.Load(path)
		if err != nil {
			r.logger.Warn("sync: unreadable file", slog.String("path", path), slog.Any("error", err))
			continue
		}
		n, err := models.Parse(string(data))
		if err != nil {
			r.logger.Warn("sync: unparsable file", slog.String("path", path), slog.Any("error", err))
			continue
		}

		hash := checksum.Sum(data)
		stale, err := r.idx.NeedsUpdate(n.Meta.UID, hash)
		if err != nil {
			return res, apperr.Storage("check hash", err)
		}
		if !stale {
			continue
		}

		known, err := r.idx.GetPath(n.Meta.UID)
		if err != nil {
			return res, apperr.Storage("resolve path", err)
		}
		if err := r.indexNote(n, path, hash); err != nil {
			return res, apperr.Storage("index note", err)
		}
		if known == "" {
			res.Added++
		} else {
			res.Updated++
		}
	}

	orphans, err := r.idx.RemoveOrphans(r.store.Exists)
	if err != nil {
		return res, apperr.Storage("remove orphans", err)
	}
	res.Removed = len(orphans)

	return res, nil
}

// Initialize rebuilds the index from the note files when it is empty. An
// already-populated index is left as is; callers wanting reconciliation run
// SyncIndex explicitly.
func (r *Hybrid) Initialize() error {
	rebuild, err := r.idx.NeedsRebuild()
	if err != nil {
		return apperr.Storage("check rebuild", err)
	}
	if !rebuild {
		return nil
	}

	start := time.Now()
	res, err := r.SyncIndex()
	if err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	r.logger.Info("index rebuilt",
		slog.Int("added", res.Added),
		slog.Int("removed", res.Removed),
		slog.Duration("took", time.Since(start)))
	return nil
}
