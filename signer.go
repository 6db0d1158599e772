package x402agent

import "context"

// Signer is the injected wallet capability. Given the payment terms chosen
// from a 402 response it returns a signed payment authorization the seller
// will accept. Implementations handle key management and chain-specific
// signing; the core relies only on the returned object serializing to JSON
// with the documented fields.
//
// Failures wrap ErrSignerUnavailable, ErrUserRejected or ErrNetworkMismatch.
type Signer interface {
	Sign(ctx context.Context, terms PaymentRequirement, payerHint string) (*SignedPaymentAuthorization, error)
}
