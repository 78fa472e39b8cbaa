// Package testutil provides shared test helpers for setting up stores and databases.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/folio/internal/images"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/storage"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "folio-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a single-target store under a temporary directory and
// returns it with the target root.
func TestStore(t *testing.T) (*storage.Store, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "blogs")
	fs, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	store, err := storage.New([]storage.Target{{Name: "project", Provider: fs}}, storage.WithLogger(Logger()))
	if err != nil {
		t.Fatal(err)
	}
	return store, fs.Root()
}

// TestImages creates an image manager over a temporary root that associates
// uploads with store.
func TestImages(t *testing.T, store *storage.Store) *images.Manager {
	t.Helper()
	fs, err := storage.NewFS(filepath.Join(t.TempDir(), "images"))
	if err != nil {
		t.Fatal(err)
	}
	return images.New(fs, store, images.Config{}, images.WithLogger(Logger()))
}
