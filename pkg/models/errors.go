package models

import "fmt"

// ValidationError reports a malformed payload. It is raised before a
// mutation is dispatched and is never the result of a remote call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
