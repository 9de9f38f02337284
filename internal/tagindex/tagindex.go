// Package tagindex maintains the cached set of distinct tags across the store.
//
// The cache lives in its own storage unit holding a JSON array of strings.
// Its modification time is the freshness clock: a cache older than the TTL is
// rebuilt from a full scan even when nobody invalidated it.
package tagindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/zettelkasten/internal/models"
	"github.com/starford/zettelkasten/internal/storage"
)

// DefaultTTL bounds how stale the cache may get without explicit invalidation.
const DefaultTTL = time.Hour

// Index is the tag index. It is safe for concurrent use.
type Index struct {
	store  storage.Store
	units  storage.Units
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
	group  singleflight.Group

	// gen counts invalidations. A rebuild only publishes its snapshot when no
	// invalidation happened since the snapshot was taken; mu orders that
	// check-and-write against Invalidate.
	gen atomic.Uint64
	mu  sync.Mutex
}

// snapshot is a rebuild result and the generation it was taken at.
type snapshot struct {
	tags []string
	gen  uint64
}

// Option configures an Index.
type Option func(*Index)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(ix *Index) {
		if ttl > 0 {
			ix.ttl = ttl
		}
	}
}

// WithClock sets the clock used to age the cache.
func WithClock(now func() time.Time) Option {
	return func(ix *Index) { ix.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Index) { ix.logger = l }
}

// New creates an index over p.
func New(p storage.Provider, opts ...Option) *Index {
	ix := &Index{
		store:  p,
		units:  p,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// GetTags returns the distinct tags, sorted case-insensitively. The result
// reflects every change whose Invalidate returned before GetTags was called.
func (ix *Index) GetTags(ctx context.Context) ([]string, error) {
	want := ix.gen.Load()
	for {
		if tags, ok := ix.cached(); ok {
			return tags, nil
		}
		v, err, _ := ix.group.Do("rebuild", func() (any, error) {
			return ix.rebuild(ctx)
		})
		if err != nil {
			return nil, err
		}
		// A rebuild that started before our generation may predate a change
		// we must see.
		if snap := v.(snapshot); snap.gen >= want {
			return slices.Clone(snap.tags), nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// Invalidate drops the cache so the next GetTags rebuilds it. A rebuild
// already in flight is neither written to the cache nor handed to later
// callers.
func (ix *Index) Invalidate() {
	ix.mu.Lock()
	ix.gen.Add(1)
	err := ix.units.RemoveUnit(storage.TagCacheUnit)
	ix.mu.Unlock()
	ix.group.Forget("rebuild")
	if err != nil {
		ix.logger.Warn("tagindex: invalidate failed", slog.String("error", err.Error()))
	}
}

// Counts returns how many records carry each tag. Tags are compared
// case-sensitively and a record counts once per distinct tag.
func (ix *Index) Counts(ctx context.Context) (map[string]int, error) {
	corpus, err := ix.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("tagindex: counts: %w", err)
	}
	out := make(map[string]int)
	for _, z := range corpus {
		seen := make(map[string]struct{}, len(z.Tags))
		for _, t := range z.Tags {
			if _, dup := seen[t]; dup || t == "" {
				continue
			}
			seen[t] = struct{}{}
			out[t]++
		}
	}
	return out, nil
}

func (ix *Index) cached() ([]string, bool) {
	data, mod, err := ix.units.ReadUnit(storage.TagCacheUnit)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			ix.logger.Warn("tagindex: read cache failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	if ix.now().Sub(mod) >= ix.ttl {
		return nil, false
	}
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		ix.logger.Warn("tagindex: discarding unreadable cache", slog.String("error", err.Error()))
		return nil, false
	}
	if tags == nil {
		tags = []string{}
	}
	return tags, true
}

func (ix *Index) rebuild(ctx context.Context) (snapshot, error) {
	gen := ix.gen.Load()
	corpus, err := ix.store.LoadAll(ctx)
	if err != nil {
		return snapshot{}, fmt.Errorf("tagindex: rebuild: %w", err)
	}
	tags := Distinct(corpus)

	data, err := json.Marshal(tags)
	if err == nil {
		ix.mu.Lock()
		if ix.gen.Load() == gen {
			err = ix.units.WriteUnit(storage.TagCacheUnit, data)
		} else {
			ix.logger.Debug("tagindex: dropping stale rebuild")
		}
		ix.mu.Unlock()
	}
	if err != nil {
		ix.logger.Warn("tagindex: write cache failed", slog.String("error", err.Error()))
	}
	ix.logger.Debug("tagindex: rebuilt", slog.Int("records", len(corpus)), slog.Int("tags", len(tags)))
	return snapshot{tags: tags, gen: gen}, nil
}

// Distinct collects the distinct non-empty tags of corpus, sorted
// case-insensitively with a case-sensitive tie-break.
func Distinct(corpus map[string]models.Zettel) []string {
	seen := make(map[string]struct{})
	tags := []string{}
	for _, z := range corpus {
		for _, t := range z.Tags {
			if t == "" {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			tags = append(tags, t)
		}
	}
	slices.SortFunc(tags, func(a, b string) int {
		if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return tags
}
