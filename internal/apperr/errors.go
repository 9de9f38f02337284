// Package apperr holds the sentinel errors shared across the store, the note
// service and the transport adapters. Callers compare with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Validation failures are rejected before any persistence attempt.
	ErrValidation = errors.New("validation failed")
	ErrInvalidID  = errors.New("invalid zettel id")

	// Storage failures abort only the affected single-record operation.
	ErrStorageLocked = errors.New("storage: record is locked")
	ErrStorageWrite  = errors.New("storage: write failed")
	ErrStorageRead   = errors.New("storage: read failed")
)

// IsValidation reports whether err belongs to the validation family.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidID)
}

// IsStorage reports whether err belongs to the storage family.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorageLocked) ||
		errors.Is(err, ErrStorageWrite) ||
		errors.Is(err, ErrStorageRead)
}
