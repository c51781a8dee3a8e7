// Package apperrors holds the error taxonomy shared by the services and
// translated to HTTP status codes by the handlers.
package apperrors

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrForbidden   = errors.New("forbidden")
	ErrNotFound    = errors.New("not found")
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError is returned before anything is written.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func Validation(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

type persistenceError struct {
	cause error
	msg   string
}

func (e *persistenceError) Error() string { return e.msg + ": " + e.cause.Error() }
func (e *persistenceError) Unwrap() error { return e.cause }
func (e *persistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// Persistence marks err as a store failure. Nil stays nil and ErrNotFound is
// passed through so callers can still tell a missing row from an outage.
func Persistence(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return errors.Wrap(err, msg)
	}
	return &persistenceError{cause: errors.WithStack(err), msg: msg}
}
