package fetch

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrNotFound is returned for a 404 response.
	ErrNotFound = errors.New("resource not found")

	// ErrRateLimited is returned for a 429 response.
	ErrRateLimited = errors.New("rate limited by upstream")

	// ErrUpstreamDown is returned for 5xx responses.
	ErrUpstreamDown = errors.New("upstream repository unavailable")

	// ErrCircuitOpen is returned without a request when the host's breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrNetwork wraps transport failures (DNS, refused, reset, TLS).
	ErrNetwork = errors.New("network error")
)

// IsConnectionError reports whether err means the repository itself is
// unreachable or broken, as opposed to a missing document. Callers use it to
// quarantine a repository for the rest of a cycle.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrNetwork) || errors.Is(err, ErrUpstreamDown) ||
		errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
