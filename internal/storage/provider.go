// Package storage defines the record store abstraction and its file-backed and
// in-memory implementations.
package storage

import (
	"context"
	"time"

	"github.com/starford/zettelkasten/internal/models"
)

// Store is the record repository. Callers address records by id only and
// never see the backing files.
type Store interface {
	// LoadAll returns every parseable record keyed by id. Corrupt records are
	// skipped, never reported.
	LoadAll(ctx context.Context) (map[string]models.Zettel, error)
	// Get looks up one record. The id must match ^[A-Za-z0-9]+$.
	Get(ctx context.Context, id string) (models.Zettel, bool, error)
	// Put creates or overwrites the record for z.ID under that record's lock.
	Put(ctx context.Context, z models.Zettel) error
	// Create writes z only if no record with z.ID exists, checked under the
	// record's lock. An existing record yields ErrAlreadyExists.
	Create(ctx context.Context, z models.Zettel) error
	// Delete removes the record; deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
}

// Units stores small auxiliary values (tag cache, sticky pointer) next to the
// records. Each unit is replaced atomically.
type Units interface {
	// ReadUnit returns the unit's bytes and modification time. A missing unit
	// yields an error wrapping os.ErrNotExist.
	ReadUnit(name string) ([]byte, time.Time, error)
	WriteUnit(name string, data []byte) error
	// RemoveUnit deletes the unit; a missing unit is not an error.
	RemoveUnit(name string) error
}

// Provider is a full backing store.
type Provider interface {
	Store
	Units
}

// Well-known unit names.
const (
	TagCacheUnit = ".tag_cache.json"
	StickyUnit   = ".sticky_zettel.txt"
)

var (
	_ Provider = (*FS)(nil)
	_ Provider = (*Memory)(nil)
)
