package rest

import (
	"errors"
	"fmt"
)

var (
	// ErrBadRequest maps HTTP 400: the request body was malformed. Not retried.
	ErrBadRequest = errors.New("rest: bad request body")
	// ErrUnauthorized maps HTTP 401: the node rejected the credential.
	ErrUnauthorized = errors.New("rest: unauthorized")
	// ErrNotFound maps HTTP 404: the referenced player, session or track does not exist.
	ErrNotFound = errors.New("rest: not found")
	// ErrTimeout is returned when a call did not complete within the client timeout.
	ErrTimeout = errors.New("rest: request timed out")
	// ErrTransport wraps connection-level failures.
	ErrTransport = errors.New("rest: transport failure")
	// ErrNoSession is returned by session-scoped routes before the node assigned a session id.
	ErrNoSession = errors.New("rest: no session id yet")
)

// StatusError carries any non-success status the gateway has no mapping for.
// It is not fatal; callers inspect it with errors.As.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rest: %s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
}

// IsRetryable reports whether err is a timeout or transport failure that can be
// retried without changing the request.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrTransport)
}
