package models

import (
	"fmt"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/zettelkasten/internal/apperr"
)

// Field limits.
const (
	MaxTitleRunes   = 255
	MaxContentBytes = 100_000
	MaxTagLength    = 50
)

var (
	idRe      = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	tokenRe   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	tokenJunk = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// ValidID reports whether id is usable as a record address.
func ValidID(id string) bool {
	return idRe.MatchString(id)
}

// ValidateID returns apperr.ErrInvalidID unless id matches ^[A-Za-z0-9]+$.
func ValidateID(id string) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", apperr.ErrInvalidID, id)
	}
	return nil
}

// Validate checks the user-editable fields of z. The id is only checked when
// set; the store assigns it on create.
func (z *Zettel) Validate() error {
	if z.ID != "" {
		if err := ValidateID(z.ID); err != nil {
			return err
		}
	}
	err := validation.ValidateStruct(z,
		validation.Field(&z.Title,
			validation.Required,
			validation.By(notBlank),
			validation.RuneLength(1, MaxTitleRunes)),
		validation.Field(&z.Content,
			validation.Required,
			validation.By(notBlank),
			validation.Length(1, MaxContentBytes)),
		validation.Field(&z.Tags, validation.Each(
			validation.Required,
			validation.Length(1, MaxTagLength),
			validation.Match(tokenRe))),
		validation.Field(&z.Links, validation.Each(
			validation.Required,
			validation.Match(idRe))),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	return nil
}

func notBlank(value any) error {
	if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
		return validation.NewError("validation_blank", "cannot be blank")
	}
	return nil
}

// NormalizeList turns raw user input into a clean token list: it accepts
// either pre-split values or comma-separated strings, trims each entry, strips
// characters outside [A-Za-z0-9_-] and drops empties. Order and duplicates are
// preserved.
func NormalizeList(raw ...string) []string {
	out := []string{}
	for _, chunk := range raw {
		for _, part := range strings.Split(chunk, ",") {
			clean := tokenJunk.ReplaceAllString(strings.TrimSpace(part), "")
			if clean != "" {
				out = append(out, clean)
			}
		}
	}
	return out
}
