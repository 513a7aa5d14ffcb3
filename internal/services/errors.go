package services

import (
	"errors"
	"fmt"
)

// ValidationError reports an operation attempted against a violated guard:
// a past date, the wrong actor, or a terminal state. It is never retried;
// the caller must correct the input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
