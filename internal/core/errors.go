package core

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable category of an import failure.
// Clients switch on it to render row-by-row or conflict-by-conflict feedback.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation_error"
	KindRow        ErrorKind = "row_error"
	KindNotFound   ErrorKind = "not_found"
	KindForbidden  ErrorKind = "forbidden"
	KindState      ErrorKind = "state_error"
	KindStorage    ErrorKind = "storage_error"
	KindInternal   ErrorKind = "internal_error"
)

// Error is the error type returned by the import engine.
type Error struct {
	Kind    ErrorKind
	Op      string // operation that failed, e.g. "commit"
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind. This lets
// callers write errors.Is(err, core.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Op == ""
}

// Sentinels for errors.Is checks.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrRow        = &Error{Kind: KindRow}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrForbidden  = &Error{Kind: KindForbidden}
	ErrState      = &Error{Kind: KindState}
	ErrStorage    = &Error{Kind: KindStorage}
)

func newError(kind ErrorKind, op string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// ValidationErrorf reports bad input shape. The batch is rejected before
// a session exists.
func ValidationErrorf(op, format string, args ...any) *Error {
	return newError(KindValidation, op, nil, format, args...)
}

// NotFoundErrorf reports an unknown session or conflict id.
func NotFoundErrorf(op, format string, args ...any) *Error {
	return newError(KindNotFound, op, nil, format, args...)
}

// ForbiddenErrorf reports an owner mismatch.
func ForbiddenErrorf(op, format string, args ...any) *Error {
	return newError(KindForbidden, op, nil, format, args...)
}

// StateErrorf reports an operation attempted outside its valid session status.
func StateErrorf(op, format string, args ...any) *Error {
	return newError(KindState, op, nil, format, args...)
}

// StorageError wraps a failure from the storage interface.
func StorageError(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Message: "storage failure", Err: err}
}

// KindOf returns the ErrorKind carried by err, or KindInternal for errors
// that did not originate in the engine.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// RowError is a single per-row parse failure. Row errors are recorded on
// the ParsedRow and never abort the batch.
type RowError struct {
	Row     int    `json:"row"`
	Line    int    `json:"line"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}
