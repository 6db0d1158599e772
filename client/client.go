// Package client implements the x402 protocol engine: a state machine that
// executes the request / 402 / signed-retry / settlement-parse flow one HTTP
// exchange at a time.
//
// A single Invoke performs exactly one exchange. The 402 -> sign -> retry
// sequence is driven by the caller as two separate Invoke calls; the engine
// never retries autonomously, so a non-idempotent settlement is never
// double-charged by a transport hiccup.
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	x402 "github.com/mark3labs/x402-agent"
	"github.com/mark3labs/x402-agent/encoding"
	"github.com/mark3labs/x402-agent/logger"
	"github.com/mark3labs/x402-agent/metrics"
	"github.com/mark3labs/x402-agent/ratelimit"
	"github.com/mark3labs/x402-agent/tracing"
)

// Wire header names. The X- prefixed forms are canonical on emit; both
// spellings are accepted on read.
const (
	HeaderPaymentSignature = "X-PAYMENT-SIGNATURE"
	HeaderPaymentRequired  = "X-PAYMENT-REQUIRED"
	HeaderPaymentResponse  = "X-PAYMENT-RESPONSE"
)

// State identifies a position in the invocation state machine. States are
// exposed for logging and span attributes only; transitions happen inside
// Invoke.
type State string

const (
	StateIdle             State = "idle"
	StateSending          State = "sending"
	StateAwaitingResponse State = "awaiting_response"
	StateDelivered        State = "delivered"
	StateNeedsPayment     State = "needs_payment"
	StateFailed           State = "failed"
	StateAbandoned        State = "abandoned"
)

// Outcome is the result of a single Invoke. Exactly one of the concrete
// types (Delivered, NeedsPayment) is returned on success; failures are
// *x402agent.ProtocolError values.
type Outcome interface {
	State() State
}

// Delivered reports a 2xx response.
type Delivered struct {
	// StatusCode is the HTTP status of the delivery.
	StatusCode int

	// Body is the raw response body, typically JSON.
	Body json.RawMessage

	// Settlement is the parsed X-PAYMENT-RESPONSE receipt, if present and
	// decodable.
	Settlement *x402.SettlementReceipt

	// RawSettlement is the verbatim header value whenever the header was
	// present, decodable or not, so unknown server revisions stay
	// inspectable.
	RawSettlement string

	// Waited is the time spent in the rate-limit gate.
	Waited time.Duration
}

// State implements Outcome.
func (Delivered) State() State { return StateDelivered }

// JSON decodes the body into a generic map. The body is optional JSON; a
// decode failure is reported, not fatal to the call.
func (d Delivered) JSON() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(d.Body, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// NeedsPayment reports a 402 response with parsable requirements.
type NeedsPayment struct {
	// Document is the parsed requirements document.
	Document x402.PaymentRequiredDocument

	// Raw is the document as received, either the decoded header value or
	// the response body.
	Raw json.RawMessage

	// Waited is the time spent in the rate-limit gate.
	Waited time.Duration
}

// State implements Outcome.
func (NeedsPayment) State() State { return StateNeedsPayment }

// Client executes the x402 request flow against one gateway origin. It owns
// no request state beyond a single in-flight exchange and is safe for
// concurrent use.
type Client struct {
	base    *http.Client
	gateway string
	limiter *ratelimit.Limiter
	timeout time.Duration

	log    logger.Logger
	rec    metrics.Recorder
	tracer tracing.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client. Redirects and connection
// pooling follow its configuration.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.base = hc }
}

// WithLimiter wires the shared rate limiter gating every exchange.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithTimeout sets the default per-request deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger wires a logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithMetrics wires a metrics sink.
func WithMetrics(rec metrics.Recorder) Option {
	return func(c *Client) { c.rec = rec }
}

// WithTracer wires a tracing sink.
func WithTracer(tr tracing.Tracer) Option {
	return func(c *Client) { c.tracer = tr }
}

// New creates a Client for the given gateway base URL.
func New(gatewayBaseURL string, opts ...Option) (*Client, error) {
	if gatewayBaseURL == "" {
		return nil, x402.NewProtocolError(x402.KindConfig, "missing gateway", x402.ErrMissingGateway)
	}
	if _, err := url.Parse(gatewayBaseURL); err != nil {
		return nil, x402.NewProtocolError(x402.KindConfig, "invalid gateway URL", err)
	}

	c := &Client{
		base:    &http.Client{},
		gateway: strings.TrimRight(gatewayBaseURL, "/"),
		timeout: x402.DefaultInvokeTimeout,
		log:     logger.NoopLogger{},
		rec:     metrics.NoopRecorder{},
		tracer:  tracing.NoopTracer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// InvokeOption adjusts a single Invoke call.
type InvokeOption func(*invokeParams)

type invokeParams struct {
	timeout time.Duration
}

// WithRequestTimeout overrides the client's default per-request deadline for
// this call only.
func WithRequestTimeout(d time.Duration) InvokeOption {
	return func(p *invokeParams) { p.timeout = d }
}

var clientLabels = map[string]string{"component": "client"}

// Invoke performs one logical call against endpointPath. A nil payment sends
// a bare GET; a non-nil payment is serialized into the X-PAYMENT-SIGNATURE
// header. The returned outcome is exactly one of Delivered or NeedsPayment;
// every failure is a *x402agent.ProtocolError whose Kind distinguishes
// rate-limited, transport, timeout, malformed-402, status and cancelled
// cases.
func (c *Client) Invoke(ctx context.Context, endpointPath string, payment *x402.SignedPaymentAuthorization, opts ...InvokeOption) (Outcome, error) {
	params := invokeParams{timeout: c.timeout}
	for _, opt := range opts {
		opt(&params)
	}

	// Rate-limit gate.
	var waited time.Duration
	if c.limiter != nil {
		acq, err := c.limiter.Acquire(ctx)
		if err != nil {
			var le *ratelimit.LimitError
			if errors.As(err, &le) {
				c.rec.IncCounter("invoke_rate_limited", clientLabels)
				return nil, x402.NewProtocolError(x402.KindRateLimited, "local rate limit exceeded", x402.ErrRateLimited).
					WithRetryAfter(le.RetryAfter)
			}
			return nil, x402.NewProtocolError(x402.KindCancelled, "cancelled while waiting for rate limiter", err)
		}
		waited = acq.Waited
	}

	target, err := url.JoinPath(c.gateway, endpointPath)
	if err != nil {
		return nil, x402.NewProtocolError(x402.KindConfig, "invalid endpoint path", err)
	}

	reqCtx := ctx
	if params.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, params.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, x402.NewProtocolError(x402.KindConfig, "failed to build request", err)
	}
	req.Header.Set("Accept", "application/json")

	hasPayment := payment != nil
	if hasPayment {
		header, err := encoding.EncodeAuthorization(*payment)
		if err != nil {
			return nil, x402.NewProtocolError(x402.KindSigner, "failed to encode payment authorization", err)
		}
		req.Header.Set(HeaderPaymentSignature, header)
	}

	span := c.tracer.StartSpan("http.request")
	span.SetAttribute("url", target)
	span.SetAttribute("method", http.MethodGet)
	span.SetAttribute("has_payment", hasPayment)
	defer span.End()

	start := time.Now()
	resp, err := c.base.Do(req)
	c.rec.ObserveLatency("http.request", time.Since(start), clientLabels)

	if err != nil {
		return nil, c.classifyTransport(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.classifyTransport(ctx, reqCtx, err)
	}

	span.SetAttribute("status", resp.StatusCode)
	c.log.Debug("http exchange complete", map[string]any{
		"url":         target,
		"status":      resp.StatusCode,
		"has_payment": hasPayment,
	})

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.rec.IncCounter("invoke_delivered", clientLabels)
		return c.deliver(resp, body, waited), nil

	case resp.StatusCode == http.StatusPaymentRequired:
		outcome, err := c.parse402(resp, body, waited)
		if err != nil {
			c.rec.IncCounter("invoke_malformed_402", clientLabels)
			return nil, err
		}
		c.rec.IncCounter("invoke_needs_payment", clientLabels)
		return outcome, nil

	default:
		c.rec.IncCounter("invoke_status_error", clientLabels)
		return nil, x402.NewProtocolError(x402.KindStatus, "unexpected response status", nil).
			WithStatus(resp.StatusCode)
	}
}

// deliver builds the Delivered outcome from a 2xx response, parsing the
// settlement header leniently: a receipt that fails to decode is surfaced
// verbatim instead of failing the call.
func (c *Client) deliver(resp *http.Response, body []byte, waited time.Duration) Delivered {
	out := Delivered{
		StatusCode: resp.StatusCode,
		Body:       body,
		Waited:     waited,
	}

	raw := paymentHeader(resp.Header, HeaderPaymentResponse, "PAYMENT-RESPONSE")
	if raw == "" {
		return out
	}
	out.RawSettlement = raw

	receipt, err := encoding.DecodeSettlement(raw)
	if err != nil {
		c.log.Warn("undecodable settlement header", map[string]any{"error": err.Error()})
		return out
	}
	out.Settlement = &receipt
	return out
}

// parse402 extracts the requirements document from a 402 response. The
// X-PAYMENT-REQUIRED header wins over the body when both are present.
func (c *Client) parse402(resp *http.Response, body []byte, waited time.Duration) (Outcome, error) {
	if raw := paymentHeader(resp.Header, HeaderPaymentRequired, "PAYMENT-REQUIRED"); raw != "" {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err == nil {
			if doc, err := encoding.ParseRequirements(decoded); err == nil {
				return NeedsPayment{Document: doc, Raw: decoded, Waited: waited}, nil
			}
		}
		c.log.Warn("undecodable payment-required header, falling back to body", map[string]any{
			"header": HeaderPaymentRequired,
		})
	}

	doc, err := encoding.ParseRequirements(body)
	if err != nil {
		return nil, x402.NewProtocolError(x402.KindMalformed402, "402 response with no parsable requirements", x402.ErrMalformed402)
	}
	return NeedsPayment{Document: doc, Raw: body, Waited: waited}, nil
}

// classifyTransport distinguishes caller cancellation, deadline expiry and
// plain transport failures.
func (c *Client) classifyTransport(ctx, reqCtx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		c.rec.IncCounter("invoke_cancelled", clientLabels)
		return x402.NewProtocolError(x402.KindCancelled, "request cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		c.rec.IncCounter("invoke_timeout", clientLabels)
		return x402.NewProtocolError(x402.KindTimeout, "request deadline exceeded", err)
	}
	c.rec.IncCounter("invoke_transport_error", clientLabels)
	return x402.NewProtocolError(x402.KindTransport, "transport failure", err)
}

// paymentHeader reads a payment header accepting both the X- prefixed and
// bare spellings. net/http canonicalizes header names case-insensitively, so
// each Get covers every case variant of its name; the direct scan below keeps
// the lookup correct for responses whose header map was populated without
// canonicalization.
func paymentHeader(h http.Header, names ...string) string {
	for _, name := range names {
		if v := h.Get(name); v != "" {
			return v
		}
		for key, values := range h {
			if strings.EqualFold(key, name) && len(values) > 0 && values[0] != "" {
				return values[0]
			}
		}
	}
	return ""
}
