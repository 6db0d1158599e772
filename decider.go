package x402agent

import "github.com/shopspring/decimal"

// RiskLevel grades a payment decision.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Decision reason codes produced by the default decider.
const (
	ReasonInvalidFormat       = "invalid_format"
	ReasonInsufficientBalance = "insufficient_balance"
	ReasonAmountTooHigh       = "amount_too_high"
	ReasonInvalidRecipient    = "invalid_recipient"
	ReasonApproved            = "approved"
)

// Decision is the pure output of a Decider.
type Decision struct {
	// Approve indicates whether the payment should proceed.
	Approve bool `json:"approve"`

	// Reason is a short machine-readable reason code.
	Reason string `json:"reason"`

	// RiskLevel grades the decision.
	RiskLevel RiskLevel `json:"riskLevel"`
}

// RecipientValidator checks the shape of a payment recipient identifier
// (e.g., 0x-prefixed 20-byte hex for EVM chains).
type RecipientValidator func(recipient string) bool

// DecisionContext carries the caller-supplied policy inputs for a decision.
type DecisionContext struct {
	// MaxAmount is the ceiling for a single payment, as a decimal string in
	// the asset's smallest unit. Empty means no ceiling.
	MaxAmount string

	// ValidateRecipient checks the recipient identifier shape. Nil skips
	// the check.
	ValidateRecipient RecipientValidator
}

// Decider decides whether a payment requirement should be approved given the
// caller's balance. Implementations must be pure and deterministic functions
// of their inputs so they are trivially testable and swappable.
type Decider interface {
	Decide(req PaymentRequirement, balance string, dc DecisionContext) Decision
}

// DeciderFunc adapts a plain function to the Decider interface.
type DeciderFunc func(req PaymentRequirement, balance string, dc DecisionContext) Decision

// Decide implements Decider.
func (f DeciderFunc) Decide(req PaymentRequirement, balance string, dc DecisionContext) Decision {
	return f(req, balance, dc)
}

// DefaultDecider is the trivial built-in rule set. Real policy is expected to
// be caller-supplied; this exists so the module is usable out of the box.
//
// Rules, in order:
//  1. amount or balance fails to parse as a non-negative decimal -> deny, high risk
//  2. balance < amount -> deny, high risk
//  3. amount > configured ceiling -> deny, medium risk
//  4. recipient fails the shape check -> deny, high risk
//  5. otherwise approve, low risk
type DefaultDecider struct{}

// Decide implements Decider.
func (DefaultDecider) Decide(req PaymentRequirement, balance string, dc DecisionContext) Decision {
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsNegative() {
		return Decision{Approve: false, Reason: ReasonInvalidFormat, RiskLevel: RiskHigh}
	}

	bal, err := decimal.NewFromString(balance)
	if err != nil || bal.IsNegative() {
		return Decision{Approve: false, Reason: ReasonInvalidFormat, RiskLevel: RiskHigh}
	}

	if bal.LessThan(amount) {
		return Decision{Approve: false, Reason: ReasonInsufficientBalance, RiskLevel: RiskHigh}
	}

	if dc.MaxAmount != "" {
		ceiling, err := decimal.NewFromString(dc.MaxAmount)
		if err == nil && amount.GreaterThan(ceiling) {
			return Decision{Approve: false, Reason: ReasonAmountTooHigh, RiskLevel: RiskMedium}
		}
	}

	if dc.ValidateRecipient != nil && !dc.ValidateRecipient(req.PayTo) {
		return Decision{Approve: false, Reason: ReasonInvalidRecipient, RiskLevel: RiskHigh}
	}

	return Decision{Approve: true, Reason: ReasonApproved, RiskLevel: RiskLow}
}
