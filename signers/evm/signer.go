// Package evm provides a local-key Signer for EVM chains. It exists as the
// reference implementation of the wallet capability; production deployments
// typically inject a remote or hardware-backed signer instead.
package evm

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	x402 "github.com/mark3labs/x402-agent"
	"github.com/mark3labs/x402-agent/validation"
)

// Signer authorizes payments with a local ECDSA key on a single EVM network.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	network    string
}

// NewSigner creates a Signer from a hex-encoded private key. The network
// must be a CAIP-2 EIP-155 identifier (e.g., "eip155:84532").
func NewSigner(network string, privateKeyHex string) (*Signer, error) {
	if err := validation.ValidateNetwork(network); err != nil {
		return nil, fmt.Errorf("%w: %s", x402.ErrNetworkMismatch, network)
	}
	if !validation.IsEVMNetwork(network) {
		return nil, fmt.Errorf("%w: not an EVM network: %s", x402.ErrNetworkMismatch, network)
	}

	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: bad private key", x402.ErrSignerUnavailable)
	}

	return NewSignerFromKey(network, privateKey)
}

// NewSignerFromKey creates a Signer from an in-memory ECDSA key.
func NewSignerFromKey(network string, key *ecdsa.PrivateKey) (*Signer, error) {
	if key == nil {
		return nil, x402.ErrSignerUnavailable
	}
	return &Signer{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		network:    network,
	}, nil
}

// Address returns the payer address derived from the key.
func (s *Signer) Address() string {
	return s.address.Hex()
}

// Network returns the signer's CAIP-2 network identifier.
func (s *Signer) Network() string {
	return s.network
}

// Sign implements the x402agent.Signer capability. The authorization is
// valid from slightly before now until maxTimeoutSeconds from now, carries a
// random 32-byte nonce, and is signed over the canonical JSON of its fields.
func (s *Signer) Sign(ctx context.Context, terms x402.PaymentRequirement, payerHint string) (*x402.SignedPaymentAuthorization, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if terms.Network != s.network {
		return nil, fmt.Errorf("%w: signer on %s, requirement wants %s",
			x402.ErrNetworkMismatch, s.network, terms.Network)
	}

	if payerHint != "" && !strings.EqualFold(payerHint, s.address.Hex()) {
		return nil, fmt.Errorf("%w: signer holds %s, caller asked for %s",
			x402.ErrUserRejected, s.address.Hex(), payerHint)
	}

	if !common.IsHexAddress(terms.PayTo) {
		return nil, fmt.Errorf("%w: payTo is not an EVM address: %s",
			x402.ErrUserRejected, terms.PayTo)
	}

	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("%w: nonce generation failed", x402.ErrSignerUnavailable)
	}

	timeout := terms.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = 600
	}
	now := time.Now().Unix()
	validAfter := strconv.FormatInt(now-10, 10)
	validBefore := strconv.FormatInt(now+int64(timeout), 10)

	auth := x402.SignedPaymentAuthorization{
		Scheme:      terms.Scheme,
		Network:     terms.Network,
		From:        s.address.Hex(),
		To:          common.HexToAddress(terms.PayTo).Hex(),
		Amount:      terms.Amount,
		ValidAfter:  validAfter,
		ValidBefore: validBefore,
		Nonce:       nonce,
	}

	digest, err := authorizationDigest(auth)
	if err != nil {
		return nil, fmt.Errorf("%w: digest failed", x402.ErrSignerUnavailable)
	}

	sig, err := crypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: signing failed", x402.ErrSignerUnavailable)
	}
	auth.Signature = "0x" + hex.EncodeToString(sig)

	return &auth, nil
}

// authorizationDigest hashes the canonical JSON of the unsigned
// authorization fields with keccak256.
func authorizationDigest(auth x402.SignedPaymentAuthorization) ([]byte, error) {
	unsigned := auth
	unsigned.Signature = ""
	payload, err := json.Marshal(unsigned)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(payload), nil
}

func generateNonce() (string, error) {
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(nonce[:]), nil
}
