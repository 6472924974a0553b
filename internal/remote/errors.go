package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the remote store has no such record.
	ErrNotFound = errors.New("remote: not found")
	// ErrUnavailable covers transport failures, 5xx responses, timeouts and
	// an open circuit breaker. Callers fall back to the local store.
	ErrUnavailable = errors.New("remote: unavailable")
)

// StatusError is a non-404 client error returned by the backend.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: %s %s: status %d", e.Method, e.Path, e.StatusCode)
}
