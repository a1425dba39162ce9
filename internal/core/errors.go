package core

import "fmt"

// ValidationError is a malformed caller request. It is the only fault the
// intake operation surfaces.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing %s field", e.Field)
}
