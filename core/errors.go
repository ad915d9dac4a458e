package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Every error returned by the session manager wraps exactly one
// of these, so callers can branch with errors.Is.
var (
	ErrNotConnected = errors.New("not connected")
	ErrConnection   = errors.New("connection failed")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("version conflict")
	ErrValidation   = errors.New("invalid input")
	ErrStorage      = errors.New("storage error")
)

// Error carries the kind of failure, the operation that failed and the
// underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.Error()
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// E builds an *Error. A nil kind defaults to ErrStorage.
func E(kind error, op string, err error) error {
	if kind == nil {
		kind = ErrStorage
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error whose cause is a formatted message.
func Errorf(kind error, op string, format string, args ...any) error {
	return E(kind, op, fmt.Errorf(format, args...))
}

// KindOf returns the error kind carried by err, or ErrStorage for anything
// that does not carry one.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotConnected, ErrConnection, ErrNotFound, ErrConflict, ErrValidation} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrStorage
}

// StatusCode maps an error to the HTTP status the API layer reports.
func StatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch KindOf(err) {
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict, ErrValidation:
		return http.StatusBadRequest
	case ErrNotConnected:
		return http.StatusServiceUnavailable
	case ErrConnection:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
