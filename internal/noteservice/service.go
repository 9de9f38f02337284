// Package noteservice coordinates the record store, tag index and the
// retrieval engines behind the transport layers.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/starford/zettelkasten/internal/apperr"
	"github.com/starford/zettelkasten/internal/graph"
	"github.com/starford/zettelkasten/internal/models"
	"github.com/starford/zettelkasten/internal/paginate"
	"github.com/starford/zettelkasten/internal/storage"
	"github.com/starford/zettelkasten/internal/tagindex"
)

// Change kinds reported to the Notifier.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

// Notifier receives a call after every successful mutation.
type Notifier interface {
	PublishZettelEvent(kind, id string)
}

// Draft is the user-editable part of a zettel. Tags and links may be given
// pre-split or as comma-separated strings.
type Draft struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
	Links   []string `json:"links"`
}

// Annotations are the graph neighbours of a record.
type Annotations struct {
	Backlinks []graph.Reference `json:"backlinks"`
	Related   []graph.Relation  `json:"related"`
	Similar   []graph.Relation  `json:"similar"`
}

// Detail is a single record with everything a detail view shows.
type Detail struct {
	models.Zettel
	Annotations
	ResolvedLinks []graph.Reference `json:"resolved_links"`
	References    []graph.Reference `json:"references"`
}

// Service coordinates storage, tag index and graph operations.
type Service struct {
	store        storage.Provider
	tags         *tagindex.Index
	notifier     Notifier
	logger       *slog.Logger
	now          func() time.Time
	intn         func(n int) int
	ids          *idGenerator
	perPage      int
	relatedLimit int
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier registers n for change events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now for timestamps and id generation.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRand replaces the source Random draws from. intn must return a value in
// [0, n).
func WithRand(intn func(n int) int) Option {
	return func(s *Service) { s.intn = intn }
}

// WithPerPage sets the default listing page size.
func WithPerPage(n int) Option {
	return func(s *Service) { s.perPage = n }
}

// WithRelatedLimit caps the related and similar annotations.
func WithRelatedLimit(n int) Option {
	return func(s *Service) { s.relatedLimit = n }
}

// NewService creates a new note service.
func NewService(store storage.Provider, tags *tagindex.Index, opts ...Option) *Service {
	s := &Service{
		store:        store,
		tags:         tags,
		logger:       slog.Default(),
		now:          time.Now,
		intn:         rand.IntN,
		perPage:      paginate.DefaultPageSize,
		relatedLimit: graph.DefaultLimit,
	}
	for _, o := range opts {
		o(s)
	}
	s.ids = newIDGenerator(s.now)
	return s
}

// Create validates d, assigns a fresh id and stores the new record.
func (s *Service) Create(ctx context.Context, d Draft) (models.Zettel, error) {
	now := models.NewTimestamp(s.now())
	z := fromDraft(d)
	z.CreatedAt, z.UpdatedAt = now, now
	if err := z.Validate(); err != nil {
		return models.Zettel{}, err
	}

	if err := s.createFresh(ctx, &z); err != nil {
		return models.Zettel{}, err
	}
	s.changed(KindCreated, z.ID)
	return z, nil
}

// Edit replaces the user-editable fields of an existing record. created_at is
// preserved and updated_at refreshed.
func (s *Service) Edit(ctx context.Context, id string, d Draft) (models.Zettel, error) {
	if err := models.ValidateID(id); err != nil {
		return models.Zettel{}, err
	}
	current, found, err := s.store.Get(ctx, id)
	if err != nil {
		return models.Zettel{}, err
	}
	if !found {
		return models.Zettel{}, fmt.Errorf("%w: %s", apperr.ErrNotFound, id)
	}

	z := fromDraft(d)
	z.ID = id
	z.CreatedAt = current.CreatedAt
	z.UpdatedAt = models.NewTimestamp(s.now())
	if err := z.Validate(); err != nil {
		return models.Zettel{}, err
	}
	if err := s.store.Put(ctx, z); err != nil {
		return models.Zettel{}, err
	}
	s.changed(KindUpdated, id)
	return z, nil
}

// Delete removes a record. Deleting a missing id succeeds without touching
// derived state or notifying listeners. A sticky pointer naming the record is
// cleared.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := models.ValidateID(id); err != nil {
		return err
	}
	// An unreadable record still exists on disk and is removed below.
	if _, found, err := s.store.Get(ctx, id); err == nil && !found {
		return nil
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if current, ok := s.stickyID(); ok && current == id {
		if err := s.store.RemoveUnit(storage.StickyUnit); err != nil {
			s.logger.Warn("noteservice: clear sticky failed", slog.String("error", err.Error()))
		}
	}
	s.changed(KindDeleted, id)
	return nil
}

// Get returns a record with its backlinks, related and similar records and
// resolved references.
func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	if err := models.ValidateID(id); err != nil {
		return nil, err
	}
	all, err := s.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	z, ok := all[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, id)
	}
	corpus := models.Chronological(all)

	backlinks := make([]graph.Reference, 0)
	for _, src := range graph.Backlinks(id, corpus) {
		backlinks = append(backlinks, graph.Reference{ID: src, Title: all[src].Title, Resolved: true})
	}
	return &Detail{
		Zettel: z,
		Annotations: Annotations{
			Backlinks: backlinks,
			Related:   nonNil(graph.Related(z, corpus, s.relatedLimit)),
			Similar:   nonNil(graph.Similar(z, corpus, s.relatedLimit)),
		},
		ResolvedLinks: graph.ResolveLinks(z, all),
		References:    graph.References(z.Content, all),
	}, nil
}

// Tags returns the distinct tag set.
func (s *Service) Tags(ctx context.Context) ([]string, error) {
	return s.tags.GetTags(ctx)
}

// TagCounts returns how many records carry each tag.
func (s *Service) TagCounts(ctx context.Context) (map[string]int, error) {
	return s.tags.Counts(ctx)
}

// Random picks a record uniformly. ok is false when the store is empty.
func (s *Service) Random(ctx context.Context) (z models.Zettel, ok bool, err error) {
	all, err := s.store.LoadAll(ctx)
	if err != nil || len(all) == 0 {
		return models.Zettel{}, false, err
	}
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return all[ids[s.intn(len(ids))]], true, nil
}

// Graph returns all nodes and links for graph visualization.
func (s *Service) Graph(ctx context.Context) (graph.Graph, error) {
	all, err := s.store.LoadAll(ctx)
	if err != nil {
		return graph.Graph{}, err
	}
	return graph.Build(models.Chronological(all)), nil
}

// Invalidate drops derived state after records changed behind the service's
// back, e.g. edits by another process, and notifies listeners.
func (s *Service) Invalidate(kind, id string) {
	s.changed(kind, id)
}

func (s *Service) changed(kind, id string) {
	s.tags.Invalidate()
	if s.notifier != nil {
		s.notifier.PublishZettelEvent(kind, id)
	}
	s.logger.Debug("zettel changed", slog.String("kind", kind), slog.String("id", id))
}

// createFresh draws ids until the store accepts one that is not taken.
func (s *Service) createFresh(ctx context.Context, z *models.Zettel) error {
	const attempts = 8
	for range attempts {
		z.ID = s.ids.next()
		err := s.store.Create(ctx, *z)
		if err == nil {
			return nil
		}
		if !errors.Is(err, apperr.ErrAlreadyExists) {
			return err
		}
	}
	return fmt.Errorf("%w: no free id after %d attempts", apperr.ErrAlreadyExists, attempts)
}

func fromDraft(d Draft) models.Zettel {
	return models.Zettel{
		Title:   strings.TrimSpace(d.Title),
		Content: strings.TrimSpace(d.Content),
		Tags:    models.NormalizeList(d.Tags...),
		Links:   models.NormalizeList(d.Links...),
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
