package index

import (
	"context"
	"log/slog"

	"github.com/starford/zettelkasten/internal/checksum"
	"github.com/starford/zettelkasten/internal/storage"
)

// Change kinds passed to EventCallback.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

// Sync brings the catalog up to date with the store:
//   - new/changed records are upserted
//   - records no longer in the store are removed
func Sync(ctx context.Context, db Catalog, store storage.Store, logger *slog.Logger) error {
	return syncWith(ctx, db, store, logger, nil)
}

func syncWith(ctx context.Context, db Catalog, store storage.Store, logger *slog.Logger, cb EventCallback) error {
	records, err := store.LoadAll(ctx)
	if err != nil {
		return err
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	for id, z := range records {
		old, known := checksums[id]
		if old == checksum.Zettel(z) {
			continue
		}
		if err := db.UpsertZettel(RowOf(z), z.Links); err != nil {
			logger.Warn("sync: index failed", slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: indexed", slog.String("id", id))
		if cb != nil {
			kind := KindUpdated
			if !known {
				kind = KindCreated
			}
			cb(kind, id)
		}
	}

	for id := range checksums {
		if _, ok := records[id]; ok {
			continue
		}
		if _, err := db.DeleteZettel(id); err != nil {
			logger.Warn("sync: delete failed", slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		logger.Debug("sync: removed stale", slog.String("id", id))
		if cb != nil {
			cb(KindDeleted, id)
		}
	}
	return nil
}

// Refresh re-reads one record and updates its catalog row. It returns the kind
// of change applied, or "" when the catalog already matched the store.
func Refresh(ctx context.Context, db Catalog, store storage.Store, id string) (string, error) {
	z, found, err := store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !found {
		removed, err := db.DeleteZettel(id)
		if err != nil || !removed {
			return "", err
		}
		return KindDeleted, nil
	}

	old, err := db.GetChecksum(id)
	if err != nil {
		return "", err
	}
	row := RowOf(z)
	if old == row.Checksum {
		return "", nil
	}
	if err := db.UpsertZettel(row, z.Links); err != nil {
		return "", err
	}
	if old == "" {
		return KindCreated, nil
	}
	return KindUpdated, nil
}
