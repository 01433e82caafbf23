// Package domain provides shared domain-level sentinel errors.
package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrAlreadyExists indicates an insert collided with an existing key. It is
// a conflict.
var ErrAlreadyExists = fmt.Errorf("already exists: %w", ErrConflict)

// ErrValidation indicates that input failed domain validation.
var ErrValidation = errors.New("validation error")

// ErrUpdateFailed indicates that a resolved entity could not be written,
// typically because it was deleted between lookup and update.
var ErrUpdateFailed = errors.New("update failed")

// Error codes surfaced to API clients.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeUpdateFailed = "UPDATE_FAILED"
	CodeValidation   = "VALIDATION_ERROR"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
)

// Code maps an error to its client-facing error code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUpdateFailed):
		return CodeUpdateFailed
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrConflict):
		return CodeConflict
	default:
		return CodeInternal
	}
}
