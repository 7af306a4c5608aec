package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// Kind is the closed classification of extraction-boundary errors.
type Kind int

const (
	// KindRetryable marks transient failures (network, rate limits, flaky
	// parses) that are worth another attempt.
	KindRetryable Kind = iota
	// KindNonRetryable marks structural failures (bad content type, missing
	// structure, empty or oversized body) that retrying cannot fix.
	KindNonRetryable
	// KindFatal marks collaborator-level failures (auth, misconfiguration)
	// that should fail the whole stage, not just one source.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindNonRetryable:
		return "non_retryable"
	case KindFatal:
		return "fatal"
	default:
		return "retryable"
	}
}

// ClassifiedError tags an error with an explicit Kind.
type ClassifiedError struct {
	Kind Kind
	Err  error
}

func (e *ClassifiedError) Error() string {
	return e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Retryable tags err as transient.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: KindRetryable, Err: err}
}

// NonRetryable tags err as structural.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: KindNonRetryable, Err: err}
}

// Fatal tags err as a stage-level failure.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: KindFatal, Err: err}
}

// KindOf resolves the Kind of an error. Explicit tags win; untagged errors
// default to retryable, since only the extractor boundary can prove a
// failure structural.
func KindOf(err error) Kind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindRetryable
}

// IsTransient returns true if the error (or any error in its chain) is
// tagged retryable, or matches common transient error patterns (network
// timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind == KindRetryable
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

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}
