package index

import "github.com/halvard/munin/internal/models"

// FTSResult is one hit from the full-text projection.
type FTSResult struct {
	UID     string `json:"uid"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// NoteIndex is the index surface the repository and handlers depend on.
type NoteIndex interface {
	Upsert(n IndexedNote, preview string, tags []string) error
	Delete(uid string) error
	DeleteByPath(path string) (string, error)
	FindByTitle(title string) (string, error)
	GetPath(uid string) (string, error)
	GetUIDByPath(path string) (string, error)
	GetListItem(uid string) (*models.ListItem, error)
	List(offset, limit int) ([]models.ListItem, int, error)
	ListAll() ([]models.ListItem, error)
	ListGallery(sortByCreated bool, tagFilter string) ([]models.GalleryItem, error)
	NeedsUpdate(uid, hash string) (bool, error)
	RemoveOrphans(exists func(path string) bool) ([]string, error)
	NeedsRebuild() (bool, error)
	Count() (int, error)
	Backlinks(uid string) ([]Backlink, error)
	SearchFTS(query string, limit int) ([]FTSResult, error)
	Close() error
}

var _ NoteIndex = (*DB)(nil)
