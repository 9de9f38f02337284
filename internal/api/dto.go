package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/zettelkasten/internal/models"
	"github.com/starford/zettelkasten/internal/noteservice"
)

// ZettelRequest is the request body for creating or editing a zettel.
type ZettelRequest = noteservice.Draft

// ZettelDetail is the full zettel response type (aliased from the domain layer).
type ZettelDetail = noteservice.Detail

// ZettelListResponse is one page of a listing (aliased from the domain layer).
type ZettelListResponse = noteservice.Listing

// StickyRequest is the request body for pinning a zettel.
type StickyRequest struct {
	ID string `json:"id" example:"65e19a001e240" validate:"required"`
}

// Validate implements validation.Validatable.
func (r StickyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required, validation.By(func(any) error {
			return models.ValidateID(r.ID)
		})),
	)
}

// StickyResponse wraps the pinned zettel, if any.
type StickyResponse struct {
	Sticky *models.Zettel `json:"sticky"`
}

// ImportRequest is an export bundle (or any object with a zettels array).
type ImportRequest struct {
	Zettels []noteservice.ImportEntry `json:"zettels"`
}

// Validate implements validation.Validatable.
func (r ImportRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Zettels,
			validation.NotNil,
			validation.Length(0, noteservice.MaxImport).Error("too many zettels")),
	)
}

// TagsResponse wraps the distinct tag set.
type TagsResponse struct {
	Tags []string `json:"tags" validate:"required"`
}

// TagCountsResponse wraps per-tag record counts.
type TagCountsResponse struct {
	Counts map[string]int `json:"counts" validate:"required"`
}
