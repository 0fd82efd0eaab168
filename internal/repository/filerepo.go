package repository

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/halvard/munin/internal/apperr"
	"github.com/halvard/munin/internal/models"
	"github.com/halvard/munin/internal/parser"
	"github.com/halvard/munin/internal/storage"
)

// FileRepo is a repository backed by note files alone, with in-memory
// caches instead of a database. It serves deployments that want zero
// moving parts beyond the files, at the cost of scan-on-start.
type FileRepo struct {
	store  storage.Provider
	logger *slog.Logger

	mu    sync.RWMutex
	paths map[string]string // uid -> relative path
	list  []models.ListItem

	// dirty marks the list cache stale; the next read rescans.
	dirty atomic.Bool
}

// NewFileRepo creates a file-only repository. Caches fill lazily on first use.
func NewFileRepo(store storage.Provider, logger *slog.Logger) *FileRepo {
	r := &FileRepo{
		store:  store,
		logger: logger,
		paths:  make(map[string]string),
	}
	r.dirty.Store(true)
	return r
}

var _ NoteRepository = (*FileRepo)(nil)

// Save writes the note file and updates the caches in place.
func (r *FileRepo) Save(n *models.Note) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	path, known := r.paths[n.Meta.UID]
	if !known {
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

	if err := r.store.SaveAtomic(path, []byte(n.Serialize())); err != nil {
		return "", apperr.Storage("save note", err)
	}

	r.paths[n.Meta.UID] = path
	r.updateListLocked(models.ListItem{
		UID:       n.Meta.UID,
		Title:     n.DisplayTitle(),
		Path:      path,
		UpdatedAt: n.Meta.UpdatedAt,
	})
	return path, nil
}

// updateListLocked replaces or inserts one list entry and restores the
// most-recently-updated ordering. Caller holds mu.
func (r *FileRepo) updateListLocked(item models.ListItem) {
	replaced := false
	for i := range r.list {
		if r.list[i].UID == item.UID {
			r.list[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		r.list = append(r.list, item)
	}
	sort.SliceStable(r.list, func(i, j int) bool {
		return r.list[i].UpdatedAt.After(r.list[j].UpdatedAt)
	})
}

// Load reads and parses the note for a uid, backfilling the path cache with
// a full scan when the uid is not yet known.
func (r *FileRepo) Load(uid string) (*models.Note, error) {
	r.mu.RLock()
	path, known := r.paths[uid]
	r.mu.RUnlock()

	if !known {
		if err := r.RebuildCache(); err != nil {
			return nil, err
		}
		r.mu.RLock()
		path, known = r.paths[uid]
		r.mu.RUnlock()
		if !known {
			return nil, apperr.NotFound(uid)
		}
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

// Delete removes the note file and drops it from the caches.
func (r *FileRepo) Delete(uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	path, known := r.paths[uid]
	if !known {
		return apperr.NotFound(uid)
	}
	if err := r.store.Delete(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperr.Storage("delete note", err)
	}
	delete(r.paths, uid)
	for i := range r.list {
		if r.list[i].UID == uid {
			r.list = append(r.list[:i], r.list[i+1:]...)
			break
		}
	}
	return nil
}

// ListAll returns every note, most recently updated first, rescanning the
// files when the cache is stale.
func (r *FileRepo) ListAll() ([]models.ListItem, error) {
	if r.dirty.Load() {
		if err := r.RebuildCache(); err != nil {
			return nil, err
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ListItem, len(r.list))
	copy(out, r.list)
	return out, nil
}

// ListGallery builds the gallery projection by parsing every note file.
func (r *FileRepo) ListGallery(sortByCreated bool, tagFilter string) ([]models.GalleryItem, error) {
	items, err := r.ListAll()
	if err != nil {
		return nil, err
	}

	var out []models.GalleryItem
	for _, item := range items {
		n, err := r.Load(item.UID)
		if err != nil {
			r.logger.Warn("gallery: skipping note", slog.String("uid", item.UID), slog.Any("error", err))
			continue
		}
		tags := n.AllTags()
		if tagFilter != "" && !hasTagFold(tags, tagFilter) {
			continue
		}
		out = append(out, models.GalleryItem{
			UID:       n.Meta.UID,
			Title:     n.DisplayTitle(),
			Preview:   parser.GeneratePreview(n.Body, parser.PreviewLength),
			Tags:      tags,
			CreatedAt: n.Meta.CreatedAt,
			UpdatedAt: n.Meta.UpdatedAt,
		})
	}
	if sortByCreated {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	return out, nil
}

// GetPath returns the cached file path for a uid.
func (r *FileRepo) GetPath(uid string) (string, bool) {
	r.mu.RLock()
	path, known := r.paths[uid]
	r.mu.RUnlock()
	if known {
		return path, true
	}
	if err := r.RebuildCache(); err != nil {
		return "", false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	path, known = r.paths[uid]
	return path, known
}

// RebuildCache rescans every note file and rebuilds both caches. Unparsable
// files are skipped with a warning.
func (r *FileRepo) RebuildCache() error {
	files, err := r.store.ListFiles("", "md")
	if err != nil {
		return apperr.Storage("list files", err)
	}

	paths := make(map[string]string, len(files))
	list := make([]models.ListItem, 0, len(files))
	for _, path := range files {
		data, err := r.store.Load(path)
		if err != nil {
			r.logger.Warn("scan: unreadable file", slog.String("path", path), slog.Any("error", err))
			continue
		}
		n, err := models.Parse(string(data))
		if err != nil {
			r.logger.Warn("scan: unparsable file", slog.String("path", path), slog.Any("error", err))
			continue
		}
		paths[n.Meta.UID] = path
		list = append(list, models.ListItem{
			UID:       n.Meta.UID,
			Title:     n.DisplayTitle(),
			Path:      path,
			UpdatedAt: n.Meta.UpdatedAt,
		})
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})

	r.mu.Lock()
	r.paths = paths
	r.list = list
	r.mu.Unlock()
	r.dirty.Store(false)
	return nil
}

func hasTagFold(tags []string, want string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}
