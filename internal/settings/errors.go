package settings

import (
	"errors"
	"fmt"
)

// ErrCorrupt marks a state file that exists but cannot be decoded.
// Startup must surface it and leave the file alone; overwriting is an
// operator decision, not ours.
var ErrCorrupt = errors.New("state document corrupt")

// ValidationError rejects a mutation before anything is applied.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

func validationErr(field, format string, args ...any) error {
	return &ValidationError{Field: field, Detail: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a rejected-input error (as
// opposed to an infrastructure failure).
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// PersistError means the document could not be written. The in-memory
// state was NOT advanced; the caller should retry the mutation.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
