// Package repository coordinates the two stores: note files as the source of
// truth and the SQLite index as a rebuildable cache over them.
package repository

import "github.com/halvard/munin/internal/models"

// NoteRepository is the persistence surface for notes. Save returns the
// root-relative file path the note landed in.
type NoteRepository interface {
	Save(n *models.Note) (string, error)
	Load(uid string) (*models.Note, error)
	Delete(uid string) error
	ListAll() ([]models.ListItem, error)
	ListGallery(sortByCreated bool, tagFilter string) ([]models.GalleryItem, error)
	GetPath(uid string) (string, bool)
}
