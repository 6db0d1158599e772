package encoding

import (
	"errors"
	"reflect"
	"testing"

	x402 "github.com/mark3labs/x402-agent"
)

func sampleDocument() x402.PaymentRequiredDocument {
	return x402.PaymentRequiredDocument{
		X402Version: 2,
		Resource: &x402.ResourceInfo{
			URL:         "https://gateway.example.com/api/premium-article",
			Description: "Premium article",
		},
		Accepts: []x402.PaymentRequirement{
			{
				Scheme:            "exact",
				Network:           "eip155:84532",
				Amount:            "1000",
				Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
				PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
				MaxTimeoutSeconds: 60,
				Extra:             map[string]interface{}{"name": "USDC", "version": "2"},
			},
		},
	}
}

func TestRequirementsRoundTrip(t *testing.T) {
	doc := sampleDocument()

	encoded, err := EncodeRequirements(doc)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := DecodeRequirements(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if !reflect.DeepEqual(doc, decoded) {
		t.Errorf("round trip mismatch:\nwant %+v\ngot  %+v", doc, decoded)
	}
}

func TestDecodeRequirements_InvalidBase64(t *testing.T) {
	if _, err := DecodeRequirements("not base64!!!"); err == nil {
		t.Error("expected error for invalid base64")
	}
}

func TestDecodeRequirements_EmptyAccepts(t *testing.T) {
	encoded, err := EncodeRequirements(x402.PaymentRequiredDocument{X402Version: 2})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	_, err = DecodeRequirements(encoded)
	if !errors.Is(err, x402.ErrNoRequirements) {
		t.Errorf("expected ErrNoRequirements, got %v", err)
	}
}

func TestParseRequirements_InvalidJSON(t *testing.T) {
	if _, err := ParseRequirements([]byte("<html>nope</html>")); err == nil {
		t.Error("expected error for non-JSON body")
	}
}

func TestAuthorizationRoundTrip(t *testing.T) {
	auth := x402.SignedPaymentAuthorization{
		Scheme:      "exact",
		Network:     "eip155:84532",
		Signature:   "0xdeadbeef",
		From:        "0x1111111111111111111111111111111111111111",
		To:          "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		Amount:      "1000",
		ValidAfter:  "1700000000",
		ValidBefore: "1700000600",
		Nonce:       "0xabc123",
	}

	encoded, err := EncodeAuthorization(auth)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := DecodeAuthorization(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if !reflect.DeepEqual(auth, decoded) {
		t.Errorf("round trip mismatch:\nwant %+v\ngot  %+v", auth, decoded)
	}
}

func TestSettlementRoundTrip(t *testing.T) {
	receipt := x402.SettlementReceipt{
		Success:     true,
		Transaction: "0x1234567890abcdef",
		Network:     "eip155:84532",
		SettledAt:   1700000000123,
	}

	encoded, err := EncodeSettlement(receipt)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := DecodeSettlement(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if decoded != receipt {
		t.Errorf("round trip mismatch: want %+v, got %+v", receipt, decoded)
	}
}

func TestDecodeSettlement_Garbage(t *testing.T) {
	if _, err := DecodeSettlement("%%%"); err == nil {
		t.Error("expected error for invalid base64")
	}
}
