package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by every error about a missing row, so callers can
// tell a stale reference from a storage failure.
var ErrNotFound = errors.New("not found")

func notFound(kind, id string) error {
	return fmt.Errorf("%s %w: %s", kind, ErrNotFound, id)
}

func expectRows(res sql.Result, kind, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFound(kind, id)
	}
	return nil
}
