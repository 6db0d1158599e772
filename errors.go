package x402agent

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for x402 client operations.
var (
	// ErrMissingGateway indicates no gateway base URL was configured.
	ErrMissingGateway = errors.New("x402: gateway base URL is required")

	// ErrMalformed402 indicates a 402 response carried no parsable
	// payment requirements in either header or body.
	ErrMalformed402 = errors.New("x402: 402 response has no parsable payment requirements")

	// ErrNoRequirements indicates an empty accepts list.
	ErrNoRequirements = errors.New("x402: no payment requirements in document")

	// ErrRateLimited indicates the local token bucket is empty.
	ErrRateLimited = errors.New("x402: rate limit exceeded")

	// ErrSignerUnavailable indicates the signer capability cannot serve requests.
	ErrSignerUnavailable = errors.New("x402: signer unavailable")

	// ErrUserRejected indicates the signer declined to authorize the payment.
	ErrUserRejected = errors.New("x402: payment rejected by signer")

	// ErrNetworkMismatch indicates the signer does not operate on the
	// requirement's network.
	ErrNetworkMismatch = errors.New("x402: signer network mismatch")

	// ErrDiscoveryPaymentRequired indicates the discovery endpoint answered
	// with a 402. Discovery is always free; this is a hard failure.
	ErrDiscoveryPaymentRequired = errors.New("x402: discovery endpoint demanded payment")
)

// ErrorKind classifies protocol failures for programmatic handling.
type ErrorKind string

const (
	// KindConfig indicates invalid or missing configuration.
	KindConfig ErrorKind = "config"

	// KindRateLimited indicates the local token bucket denied admission.
	KindRateLimited ErrorKind = "rate_limited"

	// KindTransport indicates a DNS, connect, TLS or read error.
	KindTransport ErrorKind = "transport"

	// KindTimeout indicates the per-request deadline was hit.
	KindTimeout ErrorKind = "timeout"

	// KindMalformed402 indicates a 402 with no parsable requirements.
	KindMalformed402 ErrorKind = "malformed_402"

	// KindStatus indicates a non-200, non-402 HTTP status.
	KindStatus ErrorKind = "status"

	// KindSigner indicates a signer capability failure.
	KindSigner ErrorKind = "signer"

	// KindCancelled indicates the caller cancelled the operation.
	KindCancelled ErrorKind = "cancelled"
)

// Retryable reports whether a caller may reasonably retry after this kind of
// failure. Status errors depend on the specific code and report false here.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindTransport, KindTimeout:
		return true
	default:
		return false
	}
}

// ProtocolError provides structured failure information for a single
// logical call. The protocol core never retries on its own; callers inspect
// Kind and RetryAfter to decide.
type ProtocolError struct {
	// Kind is the machine-readable failure class.
	Kind ErrorKind

	// Message is the human-readable error message.
	Message string

	// StatusCode is set for KindStatus failures.
	StatusCode int

	// RetryAfter is set for KindRateLimited failures: the duration after
	// which a token is expected to be available.
	RetryAfter time.Duration

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError creates a ProtocolError with the given kind and message.
func NewProtocolError(kind ErrorKind, message string, err error) *ProtocolError {
	return &ProtocolError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// WithStatus attaches an HTTP status code to the error.
func (e *ProtocolError) WithStatus(code int) *ProtocolError {
	e.StatusCode = code
	return e
}

// WithRetryAfter attaches a retry hint to the error.
func (e *ProtocolError) WithRetryAfter(d time.Duration) *ProtocolError {
	e.RetryAfter = d
	return e
}

// KindOf extracts the ErrorKind from err, or empty string if err is not a
// ProtocolError.
func KindOf(err error) ErrorKind {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
