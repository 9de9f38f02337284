package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/starford/zettelkasten/internal/apperr"
	"github.com/starford/zettelkasten/internal/models"
	"github.com/starford/zettelkasten/internal/storage"
)

// Sticky returns the pinned record, or nil when nothing is pinned or the pin
// names a record that no longer exists.
func (s *Service) Sticky(ctx context.Context) (*models.Zettel, error) {
	id, ok := s.stickyID()
	if !ok {
		return nil, nil
	}
	z, found, err := s.store.Get(ctx, id)
	if err != nil || !found {
		return nil, err
	}
	return &z, nil
}

// SetSticky pins an existing record.
func (s *Service) SetSticky(ctx context.Context, id string) error {
	if err := models.ValidateID(id); err != nil {
		return err
	}
	_, found, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, id)
	}
	if err := s.store.WriteUnit(storage.StickyUnit, []byte(id)); err != nil {
		return fmt.Errorf("%w: sticky: %v", apperr.ErrStorageWrite, err)
	}
	return nil
}

// UnsetSticky removes the pin. It succeeds when nothing is pinned.
func (s *Service) UnsetSticky(_ context.Context) error {
	if err := s.store.RemoveUnit(storage.StickyUnit); err != nil {
		return fmt.Errorf("%w: sticky: %v", apperr.ErrStorageWrite, err)
	}
	return nil
}

func (s *Service) stickyID() (string, bool) {
	data, _, err := s.store.ReadUnit(storage.StickyUnit)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("noteservice: read sticky failed", slog.String("error", err.Error()))
		}
		return "", false
	}
	id := strings.TrimSpace(string(data))
	if !models.ValidID(id) {
		return "", false
	}
	return id, true
}
