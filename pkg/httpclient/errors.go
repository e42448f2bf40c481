package httpclient

import (
	"errors"
	"fmt"
)

// ErrDecode marks a response body that was received intact but could
// not be parsed as JSON. Decode failures are never retried.
var ErrDecode = errors.New("decode response")

// HTTPError is returned when the server answered with a non-2xx
// status. Only 429 and 5xx are considered transient.
type HTTPError struct {
	Status int
	URL    string
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d from %s", e.Status, e.URL)
}

// Retryable reports whether another attempt could plausibly succeed.
func (e *HTTPError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

// StatusOf extracts the HTTP status carried by err, or 0 if err has
// no status (transport failure, decode failure).
func StatusOf(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Status
	}
	return 0
}

func retryable(err error) bool {
	if errors.Is(err, ErrDecode) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Retryable()
	}
	// Anything else is a transport-level failure (connection reset,
	// DNS, deadline) and worth another attempt.
	return true
}
