// Package encoding converts x402 payment data between typed records and the
// base64(JSON) form carried in HTTP headers. The alphabet is standard base64,
// padded, with no line wrapping.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	x402 "github.com/mark3labs/x402-agent"
)

// EncodeRequirements converts a PaymentRequiredDocument to base64-encoded
// JSON, the form carried in X-PAYMENT-REQUIRED headers.
func EncodeRequirements(doc x402.PaymentRequiredDocument) (string, error) {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal requirements: %w", err)
	}
	return base64.StdEncoding.EncodeToString(docJSON), nil
}

// DecodeRequirements converts a base64-encoded JSON string to a
// PaymentRequiredDocument. An empty accepts list is rejected.
func DecodeRequirements(encoded string) (x402.PaymentRequiredDocument, error) {
	var doc x402.PaymentRequiredDocument

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return doc, fmt.Errorf("failed to decode base64: %w", err)
	}

	return ParseRequirements(decoded)
}

// ParseRequirements parses a PaymentRequiredDocument from raw JSON, the form
// carried in a 402 response body. An empty accepts list is rejected.
func ParseRequirements(data []byte) (x402.PaymentRequiredDocument, error) {
	var doc x402.PaymentRequiredDocument

	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("failed to unmarshal requirements: %w", err)
	}

	if len(doc.Accepts) == 0 {
		return doc, x402.ErrNoRequirements
	}

	return doc, nil
}

// EncodeAuthorization converts a SignedPaymentAuthorization to base64-encoded
// JSON, the form carried in X-PAYMENT-SIGNATURE headers.
func EncodeAuthorization(auth x402.SignedPaymentAuthorization) (string, error) {
	authJSON, err := json.Marshal(auth)
	if err != nil {
		return "", fmt.Errorf("failed to marshal authorization: %w", err)
	}
	return base64.StdEncoding.EncodeToString(authJSON), nil
}

// DecodeAuthorization converts a base64-encoded JSON string to a
// SignedPaymentAuthorization.
func DecodeAuthorization(encoded string) (x402.SignedPaymentAuthorization, error) {
	var auth x402.SignedPaymentAuthorization

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return auth, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &auth); err != nil {
		return auth, fmt.Errorf("failed to unmarshal authorization: %w", err)
	}

	return auth, nil
}

// EncodeSettlement converts a SettlementReceipt to base64-encoded JSON, the
// form carried in X-PAYMENT-RESPONSE headers.
func EncodeSettlement(receipt x402.SettlementReceipt) (string, error) {
	receiptJSON, err := json.Marshal(receipt)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settlement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(receiptJSON), nil
}

// DecodeSettlement converts a base64-encoded JSON string to a
// SettlementReceipt.
func DecodeSettlement(encoded string) (x402.SettlementReceipt, error) {
	var receipt x402.SettlementReceipt

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return receipt, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &receipt); err != nil {
		return receipt, fmt.Errorf("failed to unmarshal settlement: %w", err)
	}

	return receipt, nil
}
