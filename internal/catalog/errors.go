package catalog

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned by a Fetcher when the request timed out.
var ErrTimeout = errors.New("catalog request timed out")

// StatusError is returned by a Fetcher when the upstream answered with a
// non-success status code.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}
