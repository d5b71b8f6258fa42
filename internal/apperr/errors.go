// Package apperr defines the typed error kinds the core returns, so that
// the HTTP boundary can map them to status codes without re-inspecting
// error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds from the design's error-handling section.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindUnauthorized       Kind = "unauthorized"
	KindValidation         Kind = "validation"
	KindProviderTransient  Kind = "provider_transient"
	KindProviderStaleCursor Kind = "provider_stale_cursor"
	KindProviderFatal      Kind = "provider_fatal"
	KindIntegrityFailure   Kind = "integrity_failure"
	KindAiFailure          Kind = "ai_failure"
)

// Error wraps an underlying cause with a Kind so callers can branch on it
// with errors.As without parsing messages.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func new_(k Kind, msg string, err error) *Error {
	return &Error{Kind: k, Msg: msg, Err: err}
}

func NotFound(msg string) error                 { return new_(KindNotFound, msg, nil) }
func Conflict(msg string) error                  { return new_(KindConflict, msg, nil) }
func Unauthorized(msg string) error              { return new_(KindUnauthorized, msg, nil) }
func Validation(msg string) error                { return new_(KindValidation, msg, nil) }
func ProviderTransient(msg string, err error) error  { return new_(KindProviderTransient, msg, err) }
func ProviderStaleCursor(msg string) error       { return new_(KindProviderStaleCursor, msg, nil) }
func ProviderFatal(msg string, err error) error  { return new_(KindProviderFatal, msg, err) }
func IntegrityFailure(msg string, err error) error { return new_(KindIntegrityFailure, msg, err) }
func AiFailure(msg string, err error) error      { return new_(KindAiFailure, msg, err) }

// Is reports whether err (or something it wraps) has the given Kind.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// KindOf extracts the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
