package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/starford/zettelkasten/internal/apperr"
	"github.com/starford/zettelkasten/internal/models"
)

// MaxImport is the largest batch Import accepts.
const MaxImport = 1000

// ImportEntry is one record of an import batch. Timestamps are kept as text
// so that malformed values can be replaced instead of failing the batch.
type ImportEntry struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	Links     []string `json:"links"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

// ImportReport summarizes an Import call.
type ImportReport struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// Bundle is the export format; Import accepts its Zettels field back.
type Bundle struct {
	ExportedAt models.Timestamp `json:"exported_at"`
	TotalNotes int              `json:"total_notes"`
	Zettels    []models.Zettel  `json:"zettels"`
}

// Import stores entries that do not exist yet. Entries with an existing id
// are skipped silently; invalid entries are skipped and reported. Tags and
// links are cleaned the same way Create cleans them, dropping tokens that
// would not validate. The tag index is invalidated once at the end.
func (s *Service) Import(ctx context.Context, entries []ImportEntry) (ImportReport, error) {
	rep := ImportReport{Errors: []string{}}
	if len(entries) > MaxImport {
		return rep, fmt.Errorf("%w: too many zettels, maximum is %d", apperr.ErrValidation, MaxImport)
	}

	now := models.NewTimestamp(s.now())
	var imported []string
	for i, e := range entries {
		fail := func(format string, args ...any) {
			rep.Errors = append(rep.Errors, fmt.Sprintf("entry %d: ", i)+fmt.Sprintf(format, args...))
			rep.Skipped++
		}
		if !models.ValidID(e.ID) {
			fail("invalid id %q", e.ID)
			continue
		}
		_, found, err := s.store.Get(ctx, e.ID)
		if err != nil {
			fail("%v", err)
			continue
		}
		if found {
			rep.Skipped++
			continue
		}

		z := models.Zettel{
			ID:        e.ID,
			Title:     strings.TrimSpace(e.Title),
			Content:   strings.TrimSpace(e.Content),
			Tags:      slices.DeleteFunc(models.NormalizeList(e.Tags...), func(t string) bool { return len(t) > models.MaxTagLength }),
			Links:     slices.DeleteFunc(models.NormalizeList(e.Links...), func(l string) bool { return !models.ValidID(l) }),
			CreatedAt: timestampOr(e.CreatedAt, now),
			UpdatedAt: timestampOr(e.UpdatedAt, now),
		}
		if err := z.Validate(); err != nil {
			fail("%v", err)
			continue
		}
		if err := s.store.Create(ctx, z); err != nil {
			if errors.Is(err, apperr.ErrAlreadyExists) {
				rep.Skipped++
				continue
			}
			fail("%v", err)
			continue
		}
		rep.Imported++
		imported = append(imported, z.ID)
	}

	if len(imported) > 0 {
		s.tags.Invalidate()
		if s.notifier != nil {
			for _, id := range imported {
				s.notifier.PublishZettelEvent(KindCreated, id)
			}
		}
	}
	s.logger.Info("import finished",
		slog.Int("imported", rep.Imported),
		slog.Int("skipped", rep.Skipped),
		slog.Int("errors", len(rep.Errors)))
	return rep, nil
}

// Export bundles the records named by ids, oldest first. Unknown ids are
// ignored; no ids means every record.
func (s *Service) Export(ctx context.Context, ids []string) (*Bundle, error) {
	all, err := s.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	var picked []models.Zettel
	if len(ids) == 0 {
		picked = models.Chronological(all)
	} else {
		for _, id := range ids {
			if z, ok := all[strings.TrimSpace(id)]; ok {
				picked = append(picked, z)
			}
		}
		models.SortChronological(picked)
		picked = slices.CompactFunc(picked, func(a, b models.Zettel) bool { return a.ID == b.ID })
	}
	slices.Reverse(picked)
	return &Bundle{
		ExportedAt: models.NewTimestamp(s.now()),
		TotalNotes: len(picked),
		Zettels:    nonNil(picked),
	}, nil
}

func timestampOr(s string, fallback models.Timestamp) models.Timestamp {
	t, err := models.ParseTimestamp(s)
	if err != nil {
		return fallback
	}
	return t
}
