// Package bhavcopy fetches, extracts and normalizes exchange bhavcopy files
package bhavcopy

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure
type Kind string

const (
	KindSessionUnavailable Kind = "SessionUnavailable"
	KindBlocked            Kind = "Blocked"
	KindNotFound           Kind = "NotFound"
	KindFetchFailed        Kind = "FetchFailed"
	KindCorruptArchive     Kind = "CorruptArchive"
	KindFileNotFound       Kind = "FileNotFound"
	KindSchemaMismatch     Kind = "SchemaMismatch"
	KindUpsertFailed       Kind = "UpsertFailed"
	KindInProgress         Kind = "InProgress"
	KindInvalidInput       Kind = "InvalidInput"
	KindUnexpected         Kind = "Unexpected"
)

// Error is a pipeline failure with a machine-checkable kind
type Error struct {
	Kind       Kind
	Op         string
	Message    string
	StatusCode int
	BatchIndex int
	Err        error
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
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: KindNotFound}) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Retryable reports whether running the same reload again may succeed
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNotFound, KindCorruptArchive, KindFileNotFound, KindSchemaMismatch, KindInvalidInput:
		return false
	}
	return true
}

func newError(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, op string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind carried by err, or KindUnexpected
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

// AsError returns err as *Error, wrapping foreign errors as Unexpected
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindUnexpected, Message: "unexpected failure", Err: err}
}

// NewError builds an *Error for callers outside the package
func NewError(kind Kind, op string, err error, format string, args ...interface{}) *Error {
	return wrapError(kind, op, err, format, args...)
}
