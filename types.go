// Package x402agent implements the client side of the x402 payment protocol
// for programmatic callers such as LLM agents and scripts.
//
// A server advertises machine-readable payment requirements in a
// 402 Payment Required response; the client attaches a signed payment
// authorization to a retried request and receives a settlement receipt on
// delivery. This package holds the shared protocol types and contracts;
// the protocol engine lives in the client package, tool discovery in
// catalog, and tool binding in invoker.
//
// Import path: github.com/mark3labs/x402-agent
package x402agent

// X402Version is the protocol version this module targets.
const X402Version = 2

// ResourceInfo describes the protected resource named by a 402 response.
type ResourceInfo struct {
	// URL is the URL of the protected resource.
	URL string `json:"url"`

	// Description is an optional human-readable description.
	Description string `json:"description,omitempty"`
}

// PaymentRequirement defines a single acceptable way of paying for a resource.
// This is an element in the "accepts" array of PaymentRequiredDocument.
type PaymentRequirement struct {
	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the chain identifier in CAIP-2 format (e.g., "eip155:84532").
	Network string `json:"network"`

	// Amount is the payment amount as a decimal string in the asset's
	// smallest unit (e.g., wei, USDC base units).
	Amount string `json:"amount"`

	// Asset is the token contract address or other opaque asset identifier.
	Asset string `json:"asset"`

	// PayTo is the recipient identifier for the payment.
	PayTo string `json:"payTo"`

	// MaxTimeoutSeconds is the validity window for a payment authorization.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Extra carries scheme-specific additional data. By convention it holds
	// a human-readable asset name and version (e.g., {"name":"USDC","version":"2"}).
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequiredDocument is the body of a 402 response.
// Invariant: Accepts is non-empty; its order is the server's preference order.
type PaymentRequiredDocument struct {
	// X402Version is the protocol version (2 for this module).
	X402Version int `json:"x402Version"`

	// Error is an optional human-readable error message.
	Error string `json:"error,omitempty"`

	// Resource describes the protected resource.
	Resource *ResourceInfo `json:"resource,omitempty"`

	// Accepts lists the payment options the server will accept, in
	// preference order.
	Accepts []PaymentRequirement `json:"accepts"`
}

// SignedPaymentAuthorization is the output of a Signer: a payment the caller
// has authorized, serialized into the X-PAYMENT-SIGNATURE header on retry.
// It must survive a JSON round-trip byte-for-byte on the required fields.
type SignedPaymentAuthorization struct {
	// Scheme matches the chosen requirement's scheme.
	Scheme string `json:"scheme"`

	// Network matches the chosen requirement's network (CAIP-2).
	Network string `json:"network"`

	// Signature is the opaque signature string.
	Signature string `json:"signature"`

	// From is the payer identifier.
	From string `json:"from"`

	// To matches the chosen requirement's payTo.
	To string `json:"to"`

	// Amount matches the chosen requirement's amount.
	Amount string `json:"amount"`

	// ValidAfter is the unix timestamp after which the authorization is valid.
	ValidAfter string `json:"validAfter,omitempty"`

	// ValidBefore is the unix timestamp before which the authorization is valid.
	ValidBefore string `json:"validBefore,omitempty"`

	// Nonce is a unique hex string chosen by the signer to prevent replay.
	Nonce string `json:"nonce,omitempty"`

	// Extra carries signer-specific additional data.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// SettlementReceipt is the body of the seller's X-PAYMENT-RESPONSE header on a
// successful delivery. The client treats it as opaque and surfaces it verbatim.
type SettlementReceipt struct {
	// Success indicates whether the payment was recorded.
	Success bool `json:"success"`

	// Transaction is an opaque transaction identifier.
	Transaction string `json:"transaction"`

	// Network is the network the payment settled on (CAIP-2).
	Network string `json:"network"`

	// SettledAt is milliseconds since epoch, when provided by the seller.
	SettledAt int64 `json:"settledAt,omitempty"`
}
