package x402agent

// RequirementSelector chooses which entry of a 402 document's accepts list to
// pay against. The wire protocol implies server preference order; the default
// policy takes the first entry, but callers with multiple wallets or network
// preferences can supply their own.
type RequirementSelector interface {
	Select(accepts []PaymentRequirement) (*PaymentRequirement, error)
}

// FirstAccepted selects the server's most-preferred requirement.
type FirstAccepted struct{}

// Select implements RequirementSelector.
func (FirstAccepted) Select(accepts []PaymentRequirement) (*PaymentRequirement, error) {
	if len(accepts) == 0 {
		return nil, ErrNoRequirements
	}
	return &accepts[0], nil
}
