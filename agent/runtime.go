// Package agent wires the module's components into a Runtime: one rate
// limiter, one protocol client, one catalog and one invoker per process,
// passed explicitly rather than hidden behind singletons.
package agent

import (
	"context"
	"net/http"

	x402 "github.com/mark3labs/x402-agent"
	"github.com/mark3labs/x402-agent/catalog"
	"github.com/mark3labs/x402-agent/client"
	"github.com/mark3labs/x402-agent/invoker"
	"github.com/mark3labs/x402-agent/logger"
	"github.com/mark3labs/x402-agent/metrics"
	"github.com/mark3labs/x402-agent/ratelimit"
	"github.com/mark3labs/x402-agent/tracing"
)

// Runtime aggregates the wired components for one gateway.
type Runtime struct {
	Config  x402.Config
	Limiter *ratelimit.Limiter
	Client  *client.Client
	Catalog *catalog.Catalog
	Invoker *invoker.Invoker

	signer   x402.Signer
	decider  x402.Decider
	selector x402.RequirementSelector

	log logger.Logger
	rec metrics.Recorder
	tr  tracing.Tracer

	httpClient *http.Client
	callbacks  [3]x402.PaymentCallback
}

// Option configures a Runtime before wiring.
type Option func(*Runtime)

// WithLogger sets the logger shared by all components.
func WithLogger(log logger.Logger) Option {
	return func(r *Runtime) { r.log = log }
}

// WithMetrics sets the metrics sink shared by all components.
func WithMetrics(rec metrics.Recorder) Option {
	return func(r *Runtime) { r.rec = rec }
}

// WithTracer sets the tracing sink.
func WithTracer(tr tracing.Tracer) Option {
	return func(r *Runtime) { r.tr = tr }
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Runtime) { r.httpClient = hc }
}

// WithSigner injects the wallet capability used by Call.
func WithSigner(s x402.Signer) Option {
	return func(r *Runtime) { r.signer = s }
}

// WithDecider replaces the default payment decider.
func WithDecider(d x402.Decider) Option {
	return func(r *Runtime) { r.decider = d }
}

// WithSelector replaces the default requirement selection policy.
func WithSelector(sel x402.RequirementSelector) Option {
	return func(r *Runtime) { r.selector = sel }
}

// WithPaymentCallbacks sets payment lifecycle callbacks.
func WithPaymentCallbacks(onAttempt, onSuccess, onFailure x402.PaymentCallback) Option {
	return func(r *Runtime) { r.callbacks = [3]x402.PaymentCallback{onAttempt, onSuccess, onFailure} }
}

// NewRuntime validates cfg and wires the components.
func NewRuntime(cfg x402.Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runtime{
		Config:   cfg,
		decider:  x402.DefaultDecider{},
		selector: x402.FirstAccepted{},
		log:      logger.NoopLogger{},
		rec:      metrics.NoopRecorder{},
		tr:       tracing.NoopTracer{},
	}
	for _, opt := range opts {
		opt(r)
	}

	r.Limiter = ratelimit.New(ratelimit.Config{
		RatePerSecond: cfg.RateLimit.RatePerSecond,
		Burst:         cfg.RateLimit.Burst,
		BlockOnLimit:  cfg.RateLimit.BlockOnLimit,
		MaxWait:       cfg.RateLimit.MaxWait,
	}, ratelimit.WithMetrics(r.rec))

	clientOpts := []client.Option{
		client.WithLimiter(r.Limiter),
		client.WithTimeout(cfg.InvokeTimeout),
		client.WithLogger(r.log),
		client.WithMetrics(r.rec),
		client.WithTracer(r.tr),
	}
	if r.httpClient != nil {
		clientOpts = append(clientOpts, client.WithHTTPClient(r.httpClient))
	}

	cli, err := client.New(cfg.GatewayBaseURL, clientOpts...)
	if err != nil {
		return nil, err
	}
	r.Client = cli

	r.Catalog = catalog.New(cli,
		catalog.WithTTL(cfg.CatalogTTL),
		catalog.WithFetchTimeout(cfg.DiscoveryTimeout),
		catalog.WithLogger(r.log),
		catalog.WithMetrics(r.rec),
	)

	r.Invoker = invoker.New(r.Catalog, cli,
		invoker.WithSelector(r.selector),
		invoker.WithPaymentCallbacks(r.callbacks[0], r.callbacks[1], r.callbacks[2]),
		invoker.WithLogger(r.log),
		invoker.WithMetrics(r.rec),
	)

	return r, nil
}

// DefaultRuntime wires a Runtime with default configuration for the given
// gateway. Convenience for the outermost layer only; anything with opinions
// should build a Config and call NewRuntime.
func DefaultRuntime(gatewayBaseURL string, opts ...Option) (*Runtime, error) {
	return NewRuntime(x402.DefaultConfig(gatewayBaseURL), opts...)
}

// Tools lists bound handles for every discovered tool.
func (r *Runtime) Tools(ctx context.Context) ([]invoker.BoundTool, error) {
	return r.Invoker.Tools(ctx)
}

// Bind returns a callable handle for one named tool.
func (r *Runtime) Bind(ctx context.Context, name string) (invoker.BoundTool, error) {
	return r.Invoker.Bind(ctx, name)
}

// Call drives the full paid flow for one tool: invoke, and on a 402 decide
// against balance, sign, and retry with the authorization. The runtime's
// signer must be set for paid tools. A denied decision is returned as-is
// with the payment_required result so the caller can inspect the reason;
// no retry HTTP call is made.
func (r *Runtime) Call(ctx context.Context, name string, balance string) (*invoker.Result, x402.Decision, error) {
	tool, err := r.Bind(ctx, name)
	if err != nil {
		return nil, x402.Decision{}, err
	}

	res, err := tool.Invoke(ctx, nil)
	if err != nil {
		return nil, x402.Decision{}, err
	}
	if res.Status != invoker.StatusPaymentRequired {
		return res, x402.Decision{Approve: true, Reason: x402.ReasonApproved, RiskLevel: x402.RiskLow}, nil
	}

	decision := r.decider.Decide(*res.Requirement, balance, x402.DecisionContext{
		MaxAmount:         r.Config.MaxAmount,
		ValidateRecipient: r.Config.RecipientValidator,
	})
	if !decision.Approve {
		r.log.Info("payment denied by decider", map[string]any{
			"tool":   name,
			"reason": decision.Reason,
			"risk":   string(decision.RiskLevel),
		})
		return res, decision, nil
	}

	if r.signer == nil {
		return res, decision, x402.NewProtocolError(x402.KindSigner, "no signer configured", x402.ErrSignerUnavailable)
	}

	payment, err := r.signer.Sign(ctx, *res.Requirement, "")
	if err != nil {
		return res, decision, x402.NewProtocolError(x402.KindSigner, "payment signing failed", err)
	}

	paid, err := tool.Invoke(ctx, payment)
	if err != nil {
		return res, decision, err
	}
	return paid, decision, nil
}
