package backend

import (
	"errors"
	"fmt"
)

// ErrConflict means the entity an operation targets no longer exists or
// can no longer change. Callers should refetch.
var ErrConflict = errors.New("conflict")

// TransportError wraps every failed remote call. Use errors.Is with
// ErrConflict or errors.As with *models.ValidationError to inspect it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Conflict wraps err so it matches ErrConflict as well as itself.
func Conflict(err error) error {
	return fmt.Errorf("%w: %w", ErrConflict, err)
}
