// Package validation provides shape checks for x402 payment data: amounts,
// CAIP-2 network identifiers, recipient addresses and whole requirement
// documents.
package validation

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	x402 "github.com/mark3labs/x402-agent"
)

// caip2Regex matches CAIP-2 network identifiers (namespace:reference).
var caip2Regex = regexp.MustCompile(`^[a-z0-9]+:[a-zA-Z0-9]+$`)

// ValidateAmount validates that an amount string is a non-negative integer in
// the asset's smallest unit. Zero amounts are allowed for free-with-signature
// flows.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}

	amt := new(big.Int)
	if _, ok := amt.SetString(amount, 10); !ok {
		return fmt.Errorf("invalid amount format: %s", amount)
	}

	if amt.Sign() < 0 {
		return fmt.Errorf("amount cannot be negative, got: %s", amount)
	}

	return nil
}

// ValidateNetwork validates a CAIP-2 network identifier. EIP-155 references
// must additionally be numeric chain IDs.
func ValidateNetwork(network string) error {
	if network == "" {
		return fmt.Errorf("network cannot be empty")
	}

	if !caip2Regex.MatchString(network) {
		return fmt.Errorf("invalid CAIP-2 network format: %s (expected namespace:reference)", network)
	}

	parts := strings.SplitN(network, ":", 2)
	if parts[0] == "eip155" {
		if _, err := strconv.ParseInt(parts[1], 10, 64); err != nil {
			return fmt.Errorf("invalid EIP-155 chain ID: %s", parts[1])
		}
	}

	return nil
}

// IsEVMNetwork reports whether network is an EIP-155 chain identifier.
func IsEVMNetwork(network string) bool {
	return strings.HasPrefix(network, "eip155:")
}

// EVMRecipient reports whether recipient is a 0x-prefixed 20-byte hex
// address. It is the default recipient-shape check for EVM deployments.
func EVMRecipient(recipient string) bool {
	return common.IsHexAddress(recipient)
}

// ValidateRequirement performs comprehensive validation of a single payment
// requirement: amount, network, recipient, asset, scheme and timeout.
func ValidateRequirement(req x402.PaymentRequirement) error {
	if err := ValidateAmount(req.Amount); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	if err := ValidateNetwork(req.Network); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	if req.PayTo == "" {
		return fmt.Errorf("invalid requirement: payTo cannot be empty")
	}
	if IsEVMNetwork(req.Network) && !EVMRecipient(req.PayTo) {
		return fmt.Errorf("invalid requirement: payTo is not a valid EVM address: %s", req.PayTo)
	}

	if req.Asset == "" {
		return fmt.Errorf("invalid requirement: asset cannot be empty")
	}

	if req.Scheme == "" {
		return fmt.Errorf("invalid requirement: scheme cannot be empty")
	}

	if req.MaxTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid requirement: maxTimeoutSeconds must be positive: %d", req.MaxTimeoutSeconds)
	}

	return nil
}

// ValidateDocument validates a complete 402 document: version, resource and
// every accepted requirement.
func ValidateDocument(doc x402.PaymentRequiredDocument) error {
	if doc.X402Version != x402.X402Version {
		return fmt.Errorf("unsupported x402 version: %d (expected %d)", doc.X402Version, x402.X402Version)
	}

	if len(doc.Accepts) == 0 {
		return x402.ErrNoRequirements
	}

	for i, req := range doc.Accepts {
		if err := ValidateRequirement(req); err != nil {
			return fmt.Errorf("accepts[%d]: %w", i, err)
		}
	}

	return nil
}
