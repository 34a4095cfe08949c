package publish

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransient marks failures that were retried until the ceiling.
	ErrTransient = errors.New("publish failed transiently")
	// ErrRejected marks failures the backend will not accept on retry.
	ErrRejected = errors.New("publish rejected")
	// ErrLinking marks a failed translation link; the posts stay published.
	ErrLinking = errors.New("translation linking failed")
)

// StatusError is a non-2xx answer from the publish backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("publish backend returned status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
