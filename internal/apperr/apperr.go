// Package apperr classifies failures so handlers can decide what the user
// sees and what only the logs see.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrPermission = errors.New("permission denied")
	ErrNotFound   = errors.New("not found")
	ErrDependency = errors.New("dependency failure")
)

// ValidationError carries a message that is safe to show to the user. Field
// names the offending input, such as an attachment file name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Dependency marks err as an external failure (database, platform, scanner).
func Dependency(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &dependencyError{cause: errors.Wrap(err, msg)}
}

type dependencyError struct {
	cause error
}

func (e *dependencyError) Error() string { return e.cause.Error() }

func (e *dependencyError) Unwrap() error { return e.cause }

func (e *dependencyError) Is(target error) bool { return target == ErrDependency }

// NotFound reports a missing record with a user-facing message.
func NotFound(msg string) error {
	return &notFoundError{msg: msg}
}

type notFoundError struct {
	msg string
}

func (e *notFoundError) Error() string { return e.msg }

func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }

// UserMessage returns the text a user may see for err, and false when err
// is not one of the user-visible kinds.
func UserMessage(err error) (string, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Error(), true
	}
	if errors.Is(err, ErrPermission) {
		return "You do not have permission to use this command.", true
	}
	var nf *notFoundError
	if errors.As(err, &nf) {
		return nf.msg, true
	}
	if errors.Is(err, ErrNotFound) {
		return "Nothing found.", true
	}
	return "", false
}
