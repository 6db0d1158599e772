package x402agent

import (
	"errors"
	"testing"
)

func TestFirstAccepted(t *testing.T) {
	accepts := []PaymentRequirement{
		{Scheme: "exact", Network: "eip155:84532", Amount: "1000"},
		{Scheme: "exact", Network: "eip155:8453", Amount: "900"},
	}

	req, err := FirstAccepted{}.Select(accepts)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if req.Network != "eip155:84532" || req.Amount != "1000" {
		t.Errorf("expected the server's first requirement, got %+v", req)
	}
}

func TestFirstAccepted_Empty(t *testing.T) {
	_, err := FirstAccepted{}.Select(nil)
	if !errors.Is(err, ErrNoRequirements) {
		t.Errorf("expected ErrNoRequirements, got %v", err)
	}
}
