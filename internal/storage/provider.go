// Package storage is the authoritative note-file persistence layer.
package storage

// Provider is the interface for note file operations. All paths are relative
// to the store root. The store is the source of truth: every index built on
// top of it is a rebuildable cache.
type Provider interface {
	// SaveAtomic writes content so a partially written file is never
	// visible; parent directories are created as needed.
	SaveAtomic(path string, content []byte) error
	// Load returns the raw bytes of the file at path. A missing file is a
	// NotFound condition (os.ErrNotExist surfaces through the chain).
	Load(path string) ([]byte, error)
	// Delete removes the file at path; missing files surface an error.
	Delete(path string) error
	// Exists reports whether path currently resolves to a file.
	Exists(path string) bool
	// ListFiles returns every file under dir (relative to the root,
	// "" for the whole store) with the given extension. A missing
	// directory is legitimately empty, not an error.
	ListFiles(dir, ext string) ([]string, error)
}
