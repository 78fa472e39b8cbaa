// Package storage persists records as JSON files under one or more roots
// and keeps the consolidated index.json current.
package storage

import (
	"io/fs"

	"github.com/starford/folio/internal/models"
)

// Provider is the file-system abstraction a storage target is built on.
// All paths are relative to the provider root.
type Provider interface {
	// Root returns the absolute root directory.
	Root() string
	// List returns every .json file under dir.
	List(dir string) ([]models.FileInfo, error)
	// ReadDir returns the direct entries of dir.
	ReadDir(dir string) ([]fs.DirEntry, error)
	// Exists reports whether path exists.
	Exists(path string) bool
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// RemoveAll removes path and everything below it.
	RemoveAll(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
}
