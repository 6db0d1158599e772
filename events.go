package x402agent

import "time"

// PaymentEventType represents the type of payment event.
type PaymentEventType string

const (
	// PaymentEventAttempt indicates a payment is being attempted.
	PaymentEventAttempt PaymentEventType = "attempt"

	// PaymentEventSuccess indicates a payment succeeded.
	PaymentEventSuccess PaymentEventType = "success"

	// PaymentEventFailure indicates a payment failed.
	PaymentEventFailure PaymentEventType = "failure"
)

// PaymentEvent represents a payment lifecycle event emitted by the tool
// invoker for logging, monitoring and debugging.
type PaymentEvent struct {
	// Type is the event type (attempt, success, failure).
	Type PaymentEventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Tool is the tool being invoked, when known.
	Tool string

	// URL is the endpoint being accessed.
	URL string

	// Amount is the payment amount in atomic units.
	Amount string

	// Asset is the token/asset identifier.
	Asset string

	// Network is the chain identifier (CAIP-2 format).
	Network string

	// Scheme is the payment scheme (e.g., "exact").
	Scheme string

	// Recipient is the payment recipient identifier.
	Recipient string

	// Transaction is the settlement transaction identifier (on success).
	Transaction string

	// Error contains failure details (on failure).
	Error error

	// Duration is the time taken for the payment operation.
	Duration time.Duration
}

// PaymentCallback handles payment events. Callbacks are invoked synchronously
// during the payment flow, so they should be fast; spawn a goroutine inside
// the callback for longer work.
type PaymentCallback func(PaymentEvent)
