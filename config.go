package x402agent

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Default configuration values.
const (
	DefaultDiscoveryTimeout = 30 * time.Second
	DefaultInvokeTimeout    = 30 * time.Second
	DefaultCatalogTTL       = 5 * time.Minute
	DefaultRatePerSecond    = 10
	DefaultBurst            = 5
	DefaultMaxWait          = 10 * time.Second
)

// RateLimitConfig parameterizes the shared token bucket.
type RateLimitConfig struct {
	// RatePerSecond is the token refill rate. Zero disables refill, so only
	// the initial burst is ever admitted.
	RatePerSecond float64 `validate:"min=0"`

	// Burst is the bucket capacity.
	Burst int `validate:"min=1"`

	// BlockOnLimit selects between waiting for a token and failing fast.
	BlockOnLimit bool

	// MaxWait caps how long a blocking acquire will wait. Zero means no cap.
	MaxWait time.Duration `validate:"min=0"`
}

// Config is the configuration surface for a runtime: one gateway origin,
// timeouts, rate limit and default payment policy inputs.
type Config struct {
	// GatewayBaseURL is the origin serving both the discovery document and
	// the tool endpoints.
	GatewayBaseURL string `validate:"required,url"`

	// DiscoveryTimeout is the per-request deadline for catalog fetches.
	DiscoveryTimeout time.Duration `validate:"min=0"`

	// InvokeTimeout is the per-request deadline for tool invocations.
	InvokeTimeout time.Duration `validate:"min=0"`

	// RateLimit parameterizes the token bucket shared by all outbound calls.
	RateLimit RateLimitConfig

	// CatalogTTL is how long a fetched catalog snapshot stays fresh.
	CatalogTTL time.Duration `validate:"min=0"`

	// MaxAmount is the default decider's per-payment ceiling as a decimal
	// string in the asset's smallest unit. Empty means no ceiling.
	MaxAmount string

	// RecipientValidator checks recipient identifier shape for the default
	// decider. Nil skips the check.
	RecipientValidator RecipientValidator `validate:"-"`
}

// DefaultConfig returns a Config with sensible defaults for the given gateway.
func DefaultConfig(gatewayBaseURL string) Config {
	return Config{
		GatewayBaseURL:   gatewayBaseURL,
		DiscoveryTimeout: DefaultDiscoveryTimeout,
		InvokeTimeout:    DefaultInvokeTimeout,
		RateLimit: RateLimitConfig{
			RatePerSecond: DefaultRatePerSecond,
			Burst:         DefaultBurst,
			BlockOnLimit:  true,
			MaxWait:       DefaultMaxWait,
		},
		CatalogTTL: DefaultCatalogTTL,
	}
}

var structValidator = validator.New()

// Validate checks the configuration for nonsensical values.
func (c Config) Validate() error {
	if c.GatewayBaseURL == "" {
		return NewProtocolError(KindConfig, "invalid configuration", ErrMissingGateway)
	}
	if err := structValidator.Struct(c); err != nil {
		return NewProtocolError(KindConfig, "invalid configuration", err)
	}
	if c.RateLimit.RatePerSecond == 0 && c.RateLimit.BlockOnLimit {
		return NewProtocolError(KindConfig, "invalid rate limit configuration",
			fmt.Errorf("blocking acquire with zero refill rate can never succeed"))
	}
	return nil
}
