// Package invoker binds catalog descriptors to callable handles. A bound
// tool drives the protocol client underneath and translates the
// protocol-level outcome into a shape a non-expert caller can consume
// directly: no new protocol logic lives here.
package invoker

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	x402 "github.com/mark3labs/x402-agent"
	"github.com/mark3labs/x402-agent/catalog"
	"github.com/mark3labs/x402-agent/client"
	"github.com/mark3labs/x402-agent/logger"
	"github.com/mark3labs/x402-agent/metrics"
)

// ResultStatus tags the two non-error shapes of an invocation result.
type ResultStatus string

const (
	// StatusDelivered means content was returned.
	StatusDelivered ResultStatus = "delivered"

	// StatusPaymentRequired means the endpoint answered 402 and the result
	// carries the flattened payment request.
	StatusPaymentRequired ResultStatus = "payment_required"
)

// PaymentRequest is the first accepted requirement of a 402 document
// flattened into caller-friendly fields. The decision and signing layers
// consume this shape.
type PaymentRequest struct {
	// Scheme is the payment scheme (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the chain identifier (CAIP-2).
	Network string `json:"network"`

	// Amount is the price in the asset's smallest unit.
	Amount string `json:"amount"`

	// Asset is the token/asset identifier.
	Asset string `json:"asset"`

	// Currency is the human asset label from the requirement's extra.name.
	Currency string `json:"currency,omitempty"`

	// PayTo is the recipient identifier.
	PayTo string `json:"payTo"`

	// Description describes the protected resource.
	Description string `json:"description,omitempty"`
}

// Result is the outcome of one bound-tool invocation.
type Result struct {
	// Status is delivered or payment_required.
	Status ResultStatus `json:"status"`

	// Content is the delivered body (delivered only).
	Content json.RawMessage `json:"content,omitempty"`

	// Settlement is the parsed settlement receipt, when present.
	Settlement *x402.SettlementReceipt `json:"settlement,omitempty"`

	// RawSettlement is the verbatim settlement header value, when present.
	RawSettlement string `json:"rawSettlement,omitempty"`

	// PaymentRequest is the flattened requirement (payment_required only).
	PaymentRequest *PaymentRequest `json:"paymentRequest,omitempty"`

	// Raw is the full requirements document as received
	// (payment_required only).
	Raw json.RawMessage `json:"raw,omitempty"`

	// Requirement is the requirement the selector chose
	// (payment_required only); the input to the decider and signer.
	Requirement *x402.PaymentRequirement `json:"requirement,omitempty"`

	// Waited is the time spent in the rate-limit gate.
	Waited time.Duration `json:"-"`
}

// Invoker binds tool descriptors to the protocol client.
type Invoker struct {
	catalog  *catalog.Catalog
	client   *client.Client
	selector x402.RequirementSelector

	onAttempt x402.PaymentCallback
	onSuccess x402.PaymentCallback
	onFailure x402.PaymentCallback

	log logger.Logger
	rec metrics.Recorder
}

// Option configures an Invoker.
type Option func(*Invoker)

// WithSelector sets the requirement selection policy. Default: the server's
// first accepted requirement.
func WithSelector(sel x402.RequirementSelector) Option {
	return func(inv *Invoker) { inv.selector = sel }
}

// WithPaymentCallbacks sets lifecycle callbacks for paid invocations. Pass
// nil for any callback you don't want.
func WithPaymentCallbacks(onAttempt, onSuccess, onFailure x402.PaymentCallback) Option {
	return func(inv *Invoker) {
		inv.onAttempt = onAttempt
		inv.onSuccess = onSuccess
		inv.onFailure = onFailure
	}
}

// WithLogger wires a logger.
func WithLogger(log logger.Logger) Option {
	return func(inv *Invoker) { inv.log = log }
}

// WithMetrics wires a metrics sink.
func WithMetrics(rec metrics.Recorder) Option {
	return func(inv *Invoker) { inv.rec = rec }
}

// New creates an Invoker over the given catalog and client.
func New(cat *catalog.Catalog, cli *client.Client, opts ...Option) *Invoker {
	inv := &Invoker{
		catalog:  cat,
		client:   cli,
		selector: x402.FirstAccepted{},
		log:      logger.NoopLogger{},
		rec:      metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Bind resolves name through the catalog and returns a callable handle.
func (inv *Invoker) Bind(ctx context.Context, name string) (BoundTool, error) {
	desc, err := inv.catalog.Lookup(ctx, name)
	if err != nil {
		return BoundTool{}, err
	}
	return BoundTool{Descriptor: desc, inv: inv}, nil
}

// Tools returns a bound handle for every tool in the current catalog
// snapshot.
func (inv *Invoker) Tools(ctx context.Context) ([]BoundTool, error) {
	snap, err := inv.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	tools := make([]BoundTool, 0, len(snap.Tools))
	for _, desc := range snap.Tools {
		tools = append(tools, BoundTool{Descriptor: desc, inv: inv})
	}
	return tools, nil
}

// BoundTool is a plain value binding one descriptor to the invoker. It holds
// no mutable state of its own; the cache lives in the catalog.
type BoundTool struct {
	Descriptor catalog.ToolDescriptor

	inv *Invoker
}

// EndpointPath resolves the tool's invocation path: the descriptor's path
// verbatim when supplied, otherwise derived from the operation ID.
func (t BoundTool) EndpointPath() string {
	if t.Descriptor.EndpointPath != "" {
		return t.Descriptor.EndpointPath
	}
	return DeriveEndpointPath(t.Descriptor.OperationID)
}

// DeriveEndpointPath maps an operation ID to an endpoint path: strip a
// "get_" prefix, replace underscores with hyphens, prepend "/api/".
func DeriveEndpointPath(operationID string) string {
	stem := strings.TrimPrefix(operationID, "get_")
	return "/api/" + strings.ReplaceAll(stem, "_", "-")
}

var invokerLabels = map[string]string{"component": "invoker"}

// Invoke calls the tool's endpoint. Without a payment, a 402 is translated
// into a payment_required result carrying the selected requirement flattened
// for the decision layer plus the raw document. With a payment, the signed
// authorization rides the retry and a delivered result carries content and
// settlement.
func (t BoundTool) Invoke(ctx context.Context, payment *x402.SignedPaymentAuthorization) (*Result, error) {
	inv := t.inv
	path := t.EndpointPath()
	start := time.Now()

	if payment != nil && inv.onAttempt != nil {
		inv.onAttempt(x402.PaymentEvent{
			Type:      x402.PaymentEventAttempt,
			Timestamp: start,
			Tool:      t.Descriptor.Name,
			URL:       path,
			Amount:    payment.Amount,
			Network:   payment.Network,
			Scheme:    payment.Scheme,
			Recipient: payment.To,
		})
	}

	outcome, err := inv.client.Invoke(ctx, path, payment)
	if err != nil {
		inv.rec.IncCounter("tool_invoke_error", invokerLabels)
		if payment != nil && inv.onFailure != nil {
			inv.onFailure(x402.PaymentEvent{
				Type:      x402.PaymentEventFailure,
				Timestamp: time.Now(),
				Tool:      t.Descriptor.Name,
				URL:       path,
				Error:     err,
				Duration:  time.Since(start),
			})
		}
		return nil, err
	}

	switch o := outcome.(type) {
	case client.Delivered:
		inv.rec.IncCounter("tool_delivered", invokerLabels)
		if payment != nil && inv.onSuccess != nil {
			event := x402.PaymentEvent{
				Type:      x402.PaymentEventSuccess,
				Timestamp: time.Now(),
				Tool:      t.Descriptor.Name,
				URL:       path,
				Amount:    payment.Amount,
				Network:   payment.Network,
				Scheme:    payment.Scheme,
				Recipient: payment.To,
				Duration:  time.Since(start),
			}
			if o.Settlement != nil {
				event.Transaction = o.Settlement.Transaction
			}
			inv.onSuccess(event)
		}
		return &Result{
			Status:        StatusDelivered,
			Content:       o.Body,
			Settlement:    o.Settlement,
			RawSettlement: o.RawSettlement,
			Waited:        o.Waited,
		}, nil

	case client.NeedsPayment:
		inv.rec.IncCounter("tool_payment_required", invokerLabels)
		req, err := inv.selector.Select(o.Document.Accepts)
		if err != nil {
			return nil, x402.NewProtocolError(x402.KindMalformed402, "no selectable payment requirement", err)
		}
		return &Result{
			Status:         StatusPaymentRequired,
			PaymentRequest: flattenRequirement(req, o.Document.Resource),
			Requirement:    req,
			Raw:            o.Raw,
			Waited:         o.Waited,
		}, nil

	default:
		return nil, x402.NewProtocolError(x402.KindTransport, "unexpected invocation outcome", nil)
	}
}

// flattenRequirement exposes a requirement in the caller-friendly shape the
// decision/signing layer consumes. The currency label comes from the
// conventional extra.name field.
func flattenRequirement(req *x402.PaymentRequirement, resource *x402.ResourceInfo) *PaymentRequest {
	pr := &PaymentRequest{
		Scheme:  req.Scheme,
		Network: req.Network,
		Amount:  req.Amount,
		Asset:   req.Asset,
		PayTo:   req.PayTo,
	}
	if name, ok := req.Extra["name"].(string); ok {
		pr.Currency = name
	}
	if resource != nil {
		pr.Description = resource.Description
	}
	return pr
}
