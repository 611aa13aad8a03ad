package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies why an attempt or a whole fetch call failed.
// Per-attempt kinds are recovered locally and drive the retry loop; only
// KindAllAttemptsExhausted is ever surfaced to the caller as terminal.
type ErrorKind string

const (
	KindNone                 ErrorKind = ""
	KindProxyUnavailable     ErrorKind = "proxy_unavailable"
	KindAttemptTimeout       ErrorKind = "attempt_timeout"
	KindConnectionError      ErrorKind = "attempt_connection_error"
	KindNonSuccessStatus     ErrorKind = "attempt_non_success_status"
	KindAllAttemptsExhausted ErrorKind = "all_attempts_exhausted"
)

var (
	// ErrNoProxiesAvailable marks the degraded (non-fatal) case: the pool
	// is empty and only the direct fallback remains.
	ErrNoProxiesAvailable = errors.New("no working proxies available")

	// ErrAllAttemptsExhausted is the terminal failure for a fetch call.
	// The last underlying attempt error is always wrapped alongside it.
	ErrAllAttemptsExhausted = errors.New("all attempts including direct fallback failed")
)

// statusError marks a completed HTTP exchange with a non-success status.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.status)
}

// classifyAttemptError maps an attempt error onto the retry taxonomy.
func classifyAttemptError(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	if errors.Is(err, ErrNoProxiesAvailable) {
		return KindProxyUnavailable
	}

	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return KindNonSuccessStatus
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindAttemptTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindAttemptTimeout
	}

	return KindConnectionError
}
