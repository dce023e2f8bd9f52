package core

import "github.com/pkg/errors"

// ErrStoreClosed is returned by a KVStore used after Close. The process cannot serve without its store.
var ErrStoreClosed = NewShutdownError("kv store closed")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// ShutdownError reports a failure the application cannot recover from without a restart.
type ShutdownError struct {
	Message string
}

func NewShutdownError(msg string) error {
	return &ShutdownError{Message: msg}
}

func (err *ShutdownError) Error() string {
	return err.Message
}

// IsShutdown tells whether err, or any error it wraps, is a *ShutdownError.
func IsShutdown(err error) bool {
	var sErr *ShutdownError
	return errors.As(err, &sErr)
}
