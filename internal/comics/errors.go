package comics

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited matches any upstream 429.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrNoSnapshot means the archive never captured the page.
	ErrNoSnapshot = errors.New("no archived snapshot")
	// ErrRetryExhausted wraps the last cause once a retry budget is spent.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
	// ErrNotFound is returned by read queries and tag edits for missing rows.
	ErrNotFound = errors.New("not found")
	// ErrTagExists is returned when a rename collides with an existing tag.
	ErrTagExists = errors.New("tag already exists")
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d for %s", e.StatusCode, e.URL)
}

// Is lets errors.Is(err, ErrRateLimited) match 429 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}

// Permanent reports whether the resource is known to be gone.
func (e *StatusError) Permanent() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// TransportError reports a failure with no HTTP response.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err can never succeed on retry.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrNoSnapshot) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Permanent()
	}
	return false
}
