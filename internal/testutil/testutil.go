// Package testutil provides shared test helpers for setting up stores and
// catalogs.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/zettelkasten/internal/index"
	"github.com/starford/zettelkasten/internal/models"
	"github.com/starford/zettelkasten/internal/storage"
)

// TestDB creates a temporary SQLite catalog that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary record directory with a file-backed store.
func TestStore(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir, QuietLogger())
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// QuietLogger logs errors only.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Zettel returns a valid record with the given id, title and tags.
func Zettel(id, title string, tags ...string) models.Zettel {
	ts := models.NewTimestamp(time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local))
	if tags == nil {
		tags = []string{}
	}
	return models.Zettel{
		ID:        id,
		Title:     title,
		Content:   title + " body",
		Tags:      tags,
		Links:     []string{},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}
