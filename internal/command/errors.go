package command

import (
	"errors"
	"fmt"

	"motivbot/internal/settings"
)

type ErrKind string

const (
	KindValidation    ErrKind = "validation"
	KindUnauthorized  ErrKind = "unauthorized"
	KindNotConfigured ErrKind = "not_configured"
	KindUnknown       ErrKind = "unknown_command"
	KindInternal      ErrKind = "internal"
)

// Error is the structured failure returned to the command layer: a
// machine-readable kind plus a detail safe to show the user.
type Error struct {
	Kind   ErrKind
	Detail string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Detail) }

func errf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// wrapStoreErr maps store failures onto the command taxonomy: rejected
// input stays a validation error; a failed write tells the admin to
// retry because nothing was committed.
func wrapStoreErr(err error) *Error {
	var v *settings.ValidationError
	if errors.As(err, &v) {
		return errf(KindValidation, "%s", v.Detail)
	}
	var p *settings.PersistError
	if errors.As(err, &p) {
		return errf(KindInternal, "change could not be saved, nothing was applied — please retry")
	}
	return errf(KindInternal, "%v", err)
}
