package app

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound maps expected-empty lookups.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks bad input rejected before any remote call.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks duplicates detected by the advisory pre-check or
	// the remote unique constraint.
	ErrConflict = errors.New("already exists")
)

// PartialWriteError reports a recipe row that was created before its
// ingredient links failed to write. The recipe id is surfaced so callers
// know the orphan exists; cleanup is queued by the service.
type PartialWriteError struct {
	RecipeID string
	Err      error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("recipe %s created but ingredient links failed: %v", e.RecipeID, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
