// Package resilience provides the retry/backoff policy and the error
// taxonomy shared by every source client: transient failures are retried,
// confirmed absence is terminal and falls through to the next resolution
// step, and anti-bot challenges count as transient until the bound runs out.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// ErrNotFound marks confirmed upstream absence: the item genuinely does not
// exist in that marketplace. Never retried; callers fall back to the next
// resolution step instead.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err signals confirmed absence.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// TransientError wraps an error that is safe to retry (timeout, 5xx,
// rate-limit signal, anti-bot challenge).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient with an optional HTTP
// status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient returns true if the error chain contains a TransientError or
// matches common network-level transient failures. Not-found errors are
// never transient, whatever else wraps them.
func IsTransient(err error) bool {
	if err == nil || IsNotFound(err) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String heuristics for errors wrapped by HTTP clients.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus reports whether the status code is a server-side
// condition worth retrying.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
