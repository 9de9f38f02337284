package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/starford/zettelkasten/internal/apperr"
	"github.com/starford/zettelkasten/internal/models"
)

const (
	recordExt  = ".txt"
	lockDir    = ".locks"
	tempPrefix = ".zk-tmp-"

	defaultLoadWorkers = 8
)

var unitNameRe = regexp.MustCompile(`^\.[A-Za-z0-9_.-]+$`)

// FS implements Provider on a local directory, one file per record.
//
// Writers to the same id are serialized by an in-process lock plus an
// advisory file lock under .locks/, so separate processes sharing the
// directory also exclude each other. Readers take no lock: every write goes
// to a temp file that is fsynced and renamed over the record, so a reader sees
// either the old or the new content in full.
type FS struct {
	root    string // absolute path to the store directory
	locks   *lockMap
	logger  *slog.Logger
	workers int
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, logger *slog.Logger) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	if err := os.MkdirAll(filepath.Join(abs, lockDir), 0o755); err != nil {
		return nil, fmt.Errorf("storage: create lock dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FS{root: abs, locks: newLockMap(), logger: logger, workers: defaultLoadWorkers}, nil
}

// Root returns the absolute store directory.
func (f *FS) Root() string { return f.root }

// RecordPath returns the file backing id, relative to Root. It is exported
// for the catalog watcher, which maps file events back to ids.
func RecordPath(id string) string { return id + recordExt }

// IDFromPath reports the record id for a file name inside the store, if any.
func IDFromPath(name string) (string, bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, recordExt) {
		return "", false
	}
	id := strings.TrimSuffix(base, recordExt)
	return id, models.ValidID(id)
}

func (f *FS) recordPath(id string) string {
	return filepath.Join(f.root, RecordPath(id))
}

// LoadAll reads and parses every record concurrently.
func (f *FS) LoadAll(ctx context.Context) (map[string]models.Zettel, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", apperr.ErrStorageRead, f.root, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := IDFromPath(e.Name()); ok {
			names = append(names, e.Name())
		}
	}

	parsed := make([]*models.Zettel, len(names))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for i, name := range names {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(f.root, name))
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					f.logger.Warn("storage: skipping unreadable record",
						slog.String("file", name), slog.String("error", err.Error()))
				}
				return nil
			}
			z, err := decodeRecord(data)
			if err != nil {
				f.logger.Warn("storage: skipping corrupt record",
					slog.String("file", name), slog.String("error", err.Error()))
				return nil
			}
			parsed[i] = &z
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]models.Zettel, len(parsed))
	for i, z := range parsed {
		if z == nil {
			continue
		}
		if _, dup := out[z.ID]; dup {
			f.logger.Warn("storage: duplicate record id",
				slog.String("id", z.ID), slog.String("file", names[i]))
			continue
		}
		out[z.ID] = *z
	}
	return out, nil
}

// Get returns the record for id. A record that exists but cannot be parsed
// is reported as ErrStorageRead.
func (f *FS) Get(_ context.Context, id string) (models.Zettel, bool, error) {
	if err := models.ValidateID(id); err != nil {
		return models.Zettel{}, false, err
	}
	data, err := os.ReadFile(f.recordPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Zettel{}, false, nil
		}
		return models.Zettel{}, false, fmt.Errorf("%w: %s: %v", apperr.ErrStorageRead, id, err)
	}
	z, err := decodeRecord(data)
	if err != nil {
		return models.Zettel{}, false, fmt.Errorf("%w: %s: %v", apperr.ErrStorageRead, id, err)
	}
	return z, true, nil
}

// Put writes z under the record's exclusive lock.
func (f *FS) Put(_ context.Context, z models.Zettel) error {
	if err := models.ValidateID(z.ID); err != nil {
		return err
	}
	data, err := encodeRecord(z)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", apperr.ErrStorageWrite, z.ID, err)
	}
	return f.withLock(z.ID, func() error {
		if err := writeAtomic(f.recordPath(z.ID), data); err != nil {
			return fmt.Errorf("%w: %s: %v", apperr.ErrStorageWrite, z.ID, err)
		}
		return nil
	})
}

// Create writes z unless its record file already exists.
func (f *FS) Create(_ context.Context, z models.Zettel) error {
	if err := models.ValidateID(z.ID); err != nil {
		return err
	}
	data, err := encodeRecord(z)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", apperr.ErrStorageWrite, z.ID, err)
	}
	return f.withLock(z.ID, func() error {
		path := f.recordPath(z.ID)
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", apperr.ErrAlreadyExists, z.ID)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s: %v", apperr.ErrStorageRead, z.ID, err)
		}
		if err := writeAtomic(path, data); err != nil {
			return fmt.Errorf("%w: %s: %v", apperr.ErrStorageWrite, z.ID, err)
		}
		return nil
	})
}

// Delete removes the record for id under its lock.
func (f *FS) Delete(_ context.Context, id string) error {
	if err := models.ValidateID(id); err != nil {
		return err
	}
	return f.withLock(id, func() error {
		if err := os.Remove(f.recordPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: delete %s: %v", apperr.ErrStorageWrite, id, err)
		}
		return nil
	})
}

// withLock runs fn while holding both the in-process and the file lock for
// id. Either lock being held elsewhere fails fast with ErrStorageLocked.
func (f *FS) withLock(id string, fn func() error) error {
	release, ok := f.locks.tryLock(id)
	if !ok {
		return fmt.Errorf("%w: %s", apperr.ErrStorageLocked, id)
	}
	defer release()

	fl := flock.New(filepath.Join(f.root, lockDir, id+".lock"))
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("%w: lock %s: %v", apperr.ErrStorageWrite, id, err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", apperr.ErrStorageLocked, id)
	}
	defer func() {
		if err := fl.Unlock(); err != nil {
			f.logger.Warn("storage: unlock failed", slog.String("id", id), slog.String("error", err.Error()))
		}
	}()

	return fn()
}

func (f *FS) unitPath(name string) (string, error) {
	if !unitNameRe.MatchString(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("storage: invalid unit name %q", name)
	}
	return filepath.Join(f.root, name), nil
}

// ReadUnit returns the unit bytes and modification time.
func (f *FS) ReadUnit(name string) ([]byte, time.Time, error) {
	p, err := f.unitPath(name)
	if err != nil {
		return nil, time.Time{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("storage: stat unit %s: %w", name, err)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("storage: read unit %s: %w", name, err)
	}
	return data, info.ModTime(), nil
}

// WriteUnit atomically replaces the unit.
func (f *FS) WriteUnit(name string, data []byte) error {
	p, err := f.unitPath(name)
	if err != nil {
		return err
	}
	if err := writeAtomic(p, data); err != nil {
		return fmt.Errorf("%w: unit %s: %v", apperr.ErrStorageWrite, name, err)
	}
	return nil
}

// RemoveUnit deletes the unit if present.
func (f *FS) RemoveUnit(name string) error {
	p, err := f.unitPath(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: remove unit %s: %v", apperr.ErrStorageWrite, name, err)
	}
	return nil
}

// writeAtomic writes content next to path: tmp file → fsync → rename.
func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	success = true
	return nil
}
