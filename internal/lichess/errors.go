package lichess

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection marks transport failures and server-side (5xx) errors.
	ErrConnection = errors.New("lichess connection failure")
	// ErrStreamClosed is returned by Next after Close.
	ErrStreamClosed = errors.New("stream closed")
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lichess api error: %s %s status=%d body=%s", e.Method, e.Path, e.Status, e.Body)
}

// ClientError reports whether err is a 4xx answer. Those concern a single request
// (a withdrawn challenge, a move after the game ended) and are not fatal.
func ClientError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status >= 400 && apiErr.Status < 500
}

func newStatusError(method, path string, status int, body []byte) error {
	apiErr := &APIError{Method: method, Path: path, Status: status, Body: truncate(string(body), 512)}
	if status >= 500 {
		return fmt.Errorf("%w: %w", ErrConnection, apiErr)
	}
	return apiErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
