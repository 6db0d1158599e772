// Package catalog fetches and caches the gateway's tool-discovery document
// and parses its entries into typed descriptors.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	x402 "github.com/mark3labs/x402-agent"
	"github.com/mark3labs/x402-agent/client"
	"github.com/mark3labs/x402-agent/logger"
	"github.com/mark3labs/x402-agent/metrics"
)

// DiscoveryPath is the well-known tool catalog path on the gateway.
const DiscoveryPath = "/mcp/tools"

// Pricing summarizes a paid tool's cost for display.
type Pricing struct {
	// Display is a human-readable price string (e.g., "$0.001 USDC").
	Display string `json:"display,omitempty"`

	// Asset is the asset name (e.g., "USDC").
	Asset string `json:"asset,omitempty"`

	// Network is the network name (e.g., "Base Sepolia").
	Network string `json:"network,omitempty"`
}

// Parameter describes one input of a tool, derived from its JSON schema.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// ToolDescriptor is one entry of the discovery document.
type ToolDescriptor struct {
	// Name is unique within a catalog.
	Name string `json:"name"`

	// Description is the tool's human-readable description.
	Description string `json:"description,omitempty"`

	// OperationID identifies the underlying operation.
	OperationID string `json:"operationId,omitempty"`

	// EndpointPath is the invocation path when the server supplies one;
	// otherwise it is derived from OperationID at bind time.
	EndpointPath string `json:"endpointPath,omitempty"`

	// RequiresPayment marks priced tools.
	RequiresPayment bool `json:"requiresPayment"`

	// Pricing summarizes the cost of a priced tool, when advertised.
	Pricing *Pricing `json:"pricing,omitempty"`

	// Tags are searchable keywords.
	Tags []string `json:"tags,omitempty"`

	// Category groups tools (e.g., "data", "ai").
	Category string `json:"category,omitempty"`

	// InputSchema is the tool's free-form JSON schema.
	InputSchema map[string]any `json:"inputSchema,omitempty"`

	// Parameters is the schema's properties flattened into a list.
	Parameters []Parameter `json:"parameters,omitempty"`
}

// Snapshot is an immutable view of the catalog at one fetch instant.
// Replacement is wholesale; a snapshot handed to a reader never mutates.
type Snapshot struct {
	// Tools is the ordered descriptor list.
	Tools []ToolDescriptor

	// FetchedAt is the monotonic instant of the fetch.
	FetchedAt time.Time

	byName map[string]int
}

// Lookup returns the descriptor with the given name, O(1).
func (s *Snapshot) Lookup(name string) (ToolDescriptor, bool) {
	i, ok := s.byName[name]
	if !ok {
		return ToolDescriptor{}, false
	}
	return s.Tools[i], true
}

// Catalog maintains at most one snapshot of the gateway's tool list.
// Concurrent refreshes coalesce into a single in-flight fetch.
type Catalog struct {
	client *client.Client
	ttl    time.Duration

	snap  atomic.Pointer[Snapshot]
	group singleflight.Group

	fetchTimeout time.Duration
	log          logger.Logger
	rec          metrics.Recorder
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithTTL sets how long a snapshot stays fresh.
func WithTTL(ttl time.Duration) Option {
	return func(c *Catalog) { c.ttl = ttl }
}

// WithFetchTimeout sets the per-fetch deadline for discovery requests.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Catalog) { c.fetchTimeout = d }
}

// WithLogger wires a logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Catalog) { c.log = log }
}

// WithMetrics wires a metrics sink.
func WithMetrics(rec metrics.Recorder) Option {
	return func(c *Catalog) { c.rec = rec }
}

// New creates a Catalog backed by the given protocol client.
func New(cli *client.Client, opts ...Option) *Catalog {
	c := &Catalog{
		client:       cli,
		ttl:          x402.DefaultCatalogTTL,
		fetchTimeout: x402.DefaultDiscoveryTimeout,
		log:          logger.NoopLogger{},
		rec:          metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var catalogLabels = map[string]string{"component": "catalog"}

// List returns the current snapshot, refreshing first when none exists or
// the TTL has expired.
func (c *Catalog) List(ctx context.Context) (*Snapshot, error) {
	if s := c.snap.Load(); s != nil && time.Since(s.FetchedAt) < c.ttl {
		c.rec.IncCounter("catalog_cache_hit", catalogLabels)
		return s, nil
	}
	return c.Refresh(ctx, false)
}

// Lookup returns the named descriptor from the current snapshot, refreshing
// if necessary.
func (c *Catalog) Lookup(ctx context.Context, name string) (ToolDescriptor, error) {
	s, err := c.List(ctx)
	if err != nil {
		return ToolDescriptor{}, err
	}
	desc, ok := s.Lookup(name)
	if !ok {
		return ToolDescriptor{}, fmt.Errorf("unknown tool: %s", name)
	}
	return desc, nil
}

// Refresh fetches the discovery document and atomically replaces the
// snapshot. With force false a still-fresh snapshot short-circuits the
// fetch; concurrent callers coalesce onto a single in-flight fetch and all
// receive the same snapshot.
func (c *Catalog) Refresh(ctx context.Context, force bool) (*Snapshot, error) {
	v, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		if !force {
			if s := c.snap.Load(); s != nil && time.Since(s.FetchedAt) < c.ttl {
				return s, nil
			}
		}
		return c.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// fetch performs the discovery GET. Discovery is always free: a 402 here is
// a hard failure, never a payment negotiation.
func (c *Catalog) fetch(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	outcome, err := c.client.Invoke(ctx, DiscoveryPath, nil, client.WithRequestTimeout(c.fetchTimeout))
	c.rec.ObserveLatency("catalog.fetch", time.Since(start), catalogLabels)
	if err != nil {
		c.rec.IncCounter("catalog_fetch_error", catalogLabels)
		return nil, err
	}

	delivered, ok := outcome.(client.Delivered)
	if !ok {
		c.rec.IncCounter("catalog_fetch_error", catalogLabels)
		return nil, x402.NewProtocolError(x402.KindStatus, "discovery endpoint demanded payment", x402.ErrDiscoveryPaymentRequired)
	}

	snap, err := parseSnapshot(delivered.Body)
	if err != nil {
		c.rec.IncCounter("catalog_fetch_error", catalogLabels)
		return nil, fmt.Errorf("failed to parse discovery document: %w", err)
	}

	c.snap.Store(snap)
	c.rec.IncCounter("catalog_refreshed", catalogLabels)
	c.log.Info("catalog refreshed", map[string]any{"tools": len(snap.Tools)})
	return snap, nil
}

// Wire shapes for the discovery document. Field spellings vary across
// gateway revisions; both forms are accepted.
type toolEntry struct {
	Name             string         `json:"name"`
	ToolName         string         `json:"tool_name"`
	Description      string         `json:"description"`
	ToolDescription  string         `json:"tool_description"`
	OperationID      string         `json:"operationId"`
	OperationIDSnake string         `json:"operation_id"`
	EndpointPath     string         `json:"endpointPath"`
	EndpointSnake    string         `json:"endpoint_path"`
	InputSchema      map[string]any `json:"inputSchema"`
	InputSchemaSnake map[string]any `json:"input_schema"`

	MCPMetadata *struct {
		Category        string   `json:"category"`
		Tags            []string `json:"tags"`
		RequiresPayment bool     `json:"requires_payment"`
	} `json:"mcp_metadata"`

	X402Metadata *struct {
		PriceUSDCDisplay string `json:"price_usdc_display"`
		NetworkName      string `json:"network_name"`
		AssetName        string `json:"asset_name"`
	} `json:"x402_metadata"`
}

type discoveryDocument struct {
	Tools []toolEntry `json:"tools"`
}

func parseSnapshot(body []byte) (*Snapshot, error) {
	var doc discoveryDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Tools:     make([]ToolDescriptor, 0, len(doc.Tools)),
		FetchedAt: time.Now(),
		byName:    make(map[string]int, len(doc.Tools)),
	}

	for _, entry := range doc.Tools {
		desc := entry.toDescriptor()
		if desc.Name == "" {
			continue
		}
		if _, dup := snap.byName[desc.Name]; dup {
			continue
		}
		snap.byName[desc.Name] = len(snap.Tools)
		snap.Tools = append(snap.Tools, desc)
	}

	return snap, nil
}

func (e toolEntry) toDescriptor() ToolDescriptor {
	desc := ToolDescriptor{
		Name:         firstNonEmpty(e.Name, e.ToolName),
		Description:  firstNonEmpty(e.Description, e.ToolDescription),
		OperationID:  firstNonEmpty(e.OperationID, e.OperationIDSnake),
		EndpointPath: firstNonEmpty(e.EndpointPath, e.EndpointSnake),
		InputSchema:  e.InputSchema,
	}
	if desc.InputSchema == nil {
		desc.InputSchema = e.InputSchemaSnake
	}

	if e.MCPMetadata != nil {
		desc.Category = e.MCPMetadata.Category
		desc.Tags = e.MCPMetadata.Tags
		desc.RequiresPayment = e.MCPMetadata.RequiresPayment
	}

	if e.X402Metadata != nil {
		desc.Pricing = &Pricing{
			Display: e.X402Metadata.PriceUSDCDisplay,
			Asset:   e.X402Metadata.AssetName,
			Network: e.X402Metadata.NetworkName,
		}
	}

	desc.Parameters = schemaParameters(desc.InputSchema)
	return desc
}

// schemaParameters flattens inputSchema.properties into a parameter list,
// marking entries listed under inputSchema.required.
func schemaParameters(schema map[string]any) []Parameter {
	if schema == nil {
		return nil
	}

	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return nil
	}

	required := make(map[string]bool)
	if reqList, ok := schema["required"].([]any); ok {
		for _, r := range reqList {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	params := make([]Parameter, 0, len(props))
	for name, raw := range props {
		p := Parameter{Name: name, Required: required[name]}
		if prop, ok := raw.(map[string]any); ok {
			p.Type, _ = prop["type"].(string)
			p.Description, _ = prop["description"].(string)
		}
		params = append(params, p)
	}
	sort.Slice(params, func(i, j int) bool { return params[i].Name < params[j].Name })
	return params
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
