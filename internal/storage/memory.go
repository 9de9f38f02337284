package storage

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/starford/zettelkasten/internal/apperr"
	"github.com/starford/zettelkasten/internal/models"
)

// Memory is an in-process Provider used by tests and embedders. It applies
// the same per-id lock discipline as FS.
type Memory struct {
	mu      sync.RWMutex
	records map[string]models.Zettel
	units   map[string]memUnit
	locks   *lockMap
	now     func() time.Time
}

type memUnit struct {
	data    []byte
	modTime time.Time
}

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithClock sets the clock used for unit modification times.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory returns an empty in-memory store.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		records: make(map[string]models.Zettel),
		units:   make(map[string]memUnit),
		locks:   newLockMap(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) LoadAll(_ context.Context) (map[string]models.Zettel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]models.Zettel, len(m.records))
	for id, z := range m.records {
		out[id] = z.Clone()
	}
	return out, nil
}

func (m *Memory) Get(_ context.Context, id string) (models.Zettel, bool, error) {
	if err := models.ValidateID(id); err != nil {
		return models.Zettel{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	z, ok := m.records[id]
	if !ok {
		return models.Zettel{}, false, nil
	}
	return z.Clone(), true, nil
}

func (m *Memory) Put(_ context.Context, z models.Zettel) error {
	if err := models.ValidateID(z.ID); err != nil {
		return err
	}
	release, ok := m.locks.tryLock(z.ID)
	if !ok {
		return fmt.Errorf("%w: %s", apperr.ErrStorageLocked, z.ID)
	}
	defer release()

	m.store(z)
	return nil
}

func (m *Memory) Create(_ context.Context, z models.Zettel) error {
	if err := models.ValidateID(z.ID); err != nil {
		return err
	}
	release, ok := m.locks.tryLock(z.ID)
	if !ok {
		return fmt.Errorf("%w: %s", apperr.ErrStorageLocked, z.ID)
	}
	defer release()

	m.mu.RLock()
	_, exists := m.records[z.ID]
	m.mu.RUnlock()
	if exists {
		return fmt.Errorf("%w: %s", apperr.ErrAlreadyExists, z.ID)
	}
	m.store(z)
	return nil
}

func (m *Memory) store(z models.Zettel) {
	z = z.Clone()
	if z.Tags == nil {
		z.Tags = []string{}
	}
	if z.Links == nil {
		z.Links = []string{}
	}
	m.mu.Lock()
	m.records[z.ID] = z
	m.mu.Unlock()
}

func (m *Memory) Delete(_ context.Context, id string) error {
	if err := models.ValidateID(id); err != nil {
		return err
	}
	release, ok := m.locks.tryLock(id)
	if !ok {
		return fmt.Errorf("%w: %s", apperr.ErrStorageLocked, id)
	}
	defer release()

	m.mu.Lock()
	delete(m.records, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ReadUnit(name string) ([]byte, time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.units[name]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("storage: unit %s: %w", name, os.ErrNotExist)
	}
	return append([]byte(nil), u.data...), u.modTime, nil
}

func (m *Memory) WriteUnit(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units[name] = memUnit{data: append([]byte(nil), data...), modTime: m.now()}
	return nil
}

func (m *Memory) RemoveUnit(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.units, name)
	return nil
}
