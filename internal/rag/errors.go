package rag

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks a transient dependency failure: the backend is
// unreachable or overloaded and the call may succeed if retried. Permanent
// failures (bad request, malformed response) are returned unwrapped.
var ErrUnavailable = errors.New("backend unavailable")

// Unavailablef wraps a formatted error so it is classified as transient.
func Unavailablef(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUnavailable}, args...)...)
}

// IsTransient reports whether err represents a transient dependency failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
