// Package apperr defines the error categories shared by the domain services
// and the transport layer.
//
// Domain packages declare their sentinel errors with New, or implement the
// Classified interface on typed errors. Wrapping with errors.Wrap keeps the
// category reachable through errors.As, so the HTTP layer can map any error
// to a status code and a caller-safe message.
package apperr

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Kind is a machine-checkable error category.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindAuthorization Kind = "authorization"
	KindExternal      Kind = "external_service"
	KindInternal      Kind = "internal"
)

// Classified is implemented by errors that carry a category.
type Classified interface {
	error
	Kind() Kind
}

// Error is a categorized error with a caller-safe message.
type Error struct {
	kind Kind
	msg  string
}

// New returns a categorized error. Errors returned by New are comparable with
// errors.Is, which makes them suitable as package-level sentinels.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Errorf is like New with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string { return e.msg }

// Kind returns the category.
func (e *Error) Kind() Kind { return e.kind }

// External wraps a collaborator failure (payment gateway, mail relay) so that
// it is reported as KindExternal while keeping the cause for logs.
func External(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &externalError{msg: msg, err: err}
}

type externalError struct {
	msg string
	err error
}

func (e *externalError) Error() string { return e.msg + ": " + e.err.Error() }
func (e *externalError) Unwrap() error { return e.err }
func (e *externalError) Kind() Kind    { return KindExternal }

// Public returns the caller-safe message of the first classified error in the chain.
func (e *externalError) Public() string { return e.msg }

// KindOf reports the category of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var c Classified
	if errors.As(err, &c) {
		return c.Kind()
	}
	return KindInternal
}

// Message returns the text that may be shown to a caller. Internal errors are
// replaced with a generic message so that no implementation detail leaks.
func Message(err error) string {
	var c Classified
	if !errors.As(err, &c) || c.Kind() == KindInternal {
		return "internal error"
	}
	if p, ok := c.(interface{ Public() string }); ok {
		return p.Public()
	}
	return c.Error()
}
